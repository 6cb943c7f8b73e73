package flow

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Outcome is the result of one method of a batch. Exactly one of Result
// and Err is set.
type Outcome struct {
	Method *Method
	Result *Result
	Err    error
}

// Batch is the result of AnalyzeAll.
type Batch struct {
	RunID    uuid.UUID
	Outcomes []Outcome // in input order
}

// Failed returns the outcomes that carry an error.
func (b *Batch) Failed() []Outcome {
	var out []Outcome
	for _, o := range b.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// AnalyzeAll analyzes methods concurrently, at most opts.Parallelism at a
// time. A failing method does not stop the others; its error is kept in
// its Outcome. The returned error is non-nil only if ctx was cancelled.
func AnalyzeAll(ctx context.Context, methods []*Method, opts Options) (*Batch, error) {
	batch := &Batch{
		RunID:    uuid.New(),
		Outcomes: make([]Outcome, len(methods)),
	}
	log.Infof("run %s: analyzing %d methods", batch.RunID, len(methods))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.parallelism())
	for i, m := range methods {
		i, m := i, m
		g.Go(func() error {
			res, err := Analyze(gctx, m, opts)
			batch.Outcomes[i] = Outcome{Method: m, Result: res, Err: err}
			if err != nil {
				log.Warningf("run %s: %s: %s", batch.RunID, m, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return batch, err
	}
	if err := ctx.Err(); err != nil {
		return batch, err
	}
	log.Infof("run %s: %d of %d methods failed", batch.RunID, len(batch.Failed()), len(methods))
	return batch, nil
}
