// Package batch scores many leads concurrently against one shared Engine.
//
// Leads are independent, so they run on a bounded errgroup worker pool.
// Results are written by index and come back in input order regardless of
// scheduling.
package batch

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lugypresko/SDR-AGENT/internal/engine"
	"github.com/lugypresko/SDR-AGENT/internal/schema"
)

// Observer receives every result as it completes. It must be safe for
// concurrent use.
type Observer interface {
	Observe(*engine.Result)
}

// Batch is the outcome of one Run.
type Batch struct {
	RunID   string           `json:"run_id" yaml:"run_id"`
	Profile string           `json:"profile" yaml:"profile"`
	Results []*engine.Result `json:"results" yaml:"results"`
}

// Runner processes leads with bounded parallelism.
type Runner struct {
	engine   *engine.Engine
	parallel int
	observer Observer
}

// NewRunner returns a Runner. parallel < 1 means sequential.
func NewRunner(e *engine.Engine, parallel int) *Runner {
	if parallel < 1 {
		parallel = 1
	}
	return &Runner{engine: e, parallel: parallel}
}

// WithObserver attaches o to every subsequent Run.
func (r *Runner) WithObserver(o Observer) *Runner {
	r.observer = o
	return r
}

// Run scores leads. It returns ctx.Err() if ctx is cancelled before every
// lead is processed.
func (r *Runner) Run(ctx context.Context, leads []schema.RawContext) (*Batch, error) {
	b := &Batch{
		RunID:   uuid.NewString(),
		Profile: r.engine.Profile(),
		Results: make([]*engine.Result, len(leads)),
	}
	start := time.Now()

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallel)
	for i := range leads {
		if gCtx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			res := r.engine.Process(leads[i])
			b.Results[i] = res
			if r.observer != nil {
				r.observer.Observe(res)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("batch: run %s: %w", b.RunID, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("batch: run %s: %w", b.RunID, err)
	}

	slog.Info("batch: run complete",
		"run_id", b.RunID,
		"profile", b.Profile,
		"leads", len(leads),
		"parallel", r.parallel,
		"elapsed", time.Since(start),
	)
	return b, nil
}

// Digest returns a hex sha256 over the results with timestamps and timing
// removed. Two runs over identical input and configuration have equal
// digests regardless of parallelism.
func (b *Batch) Digest() (string, error) {
	stripped := make([]engine.Result, len(b.Results))
	for i, res := range b.Results {
		if res == nil {
			continue
		}
		c := *res
		c.Trace.Lineage = append(c.Trace.Lineage[:0:0], res.Trace.Lineage...)
		for j := range c.Trace.Lineage {
			c.Trace.Lineage[j].Timestamp = time.Time{}
		}
		c.Trace.Metrics.ProcessingTimeMs = 0
		stripped[i] = c
	}
	data, err := json.Marshal(stripped)
	if err != nil {
		return "", fmt.Errorf("batch: digest: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// ReadContexts decodes leads from r. It accepts a JSON array of contexts or
// one JSON object per line.
func ReadContexts(r io.Reader) ([]schema.RawContext, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return []schema.RawContext{}, nil
		}
		return nil, fmt.Errorf("batch: read input: %w", err)
	}

	if first == '[' {
		var leads []schema.RawContext
		if err := json.NewDecoder(br).Decode(&leads); err != nil {
			return nil, fmt.Errorf("batch: decode array: %w", err)
		}
		if leads == nil {
			leads = []schema.RawContext{}
		}
		return leads, nil
	}

	dec := json.NewDecoder(br)
	leads := []schema.RawContext{}
	for n := 1; ; n++ {
		var lead schema.RawContext
		err := dec.Decode(&lead)
		if errors.Is(err, io.EOF) {
			return leads, nil
		}
		if err != nil {
			return nil, fmt.Errorf("batch: decode record %d: %w", n, err)
		}
		leads = append(leads, lead)
	}
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.Peek(1)
		if err != nil {
			return 0, err
		}
		if !bytes.ContainsAny(b, " \t\r\n") {
			return b[0], nil
		}
		if _, err := br.ReadByte(); err != nil {
			return 0, err
		}
	}
}
