// Package config loads and watches the scoring configuration file (config.yaml).
//
// Top-level types:
//   - Config: the full scoring surface parsed from YAML
//   - WeightProfile: signal name → weight; profiles are selected by name
//   - Bounds: per-signal normalization min/max/expected
//   - ConflictRule: description, severity, penalty for one contradiction check
//   - PenaltyRules, TierThresholds, ConfidenceWeights, FallbackRules,
//     SignalDefaults, Versions
//
// Default() returns the built-in configuration (profiles v1, v2, experimental;
// active v1; tiers A≥80, B≥55). Load(path) reads the YAML file over Default(),
// so a file only needs the keys it changes, then validates it. An active
// profile that does not exist is reported as ErrUnknownProfile.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config. It handles the rename→create pattern
// used by atomic-save editors (vim, VS Code) by re-adding the watch after
// each event.
package config
