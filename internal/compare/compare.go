// Package compare runs prompt/model/template variants against the backend
// side by side and picks a winner.
package compare

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// ErrTooFewVariants rejects runs that cannot compare anything.
var ErrTooFewVariants = errors.New("comparison requires at least 2 variants")

// Variant is one provider/model/template combination under comparison.
type Variant struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Template string `json:"tpl"`
	Version  int    `json:"version,omitempty"`
}

// Key is the deterministic identifier used for result lookup. A missing
// version reads as 0.
func (v Variant) Key() string {
	return fmt.Sprintf("%s|%s|%s:%d", v.Provider, v.Model, v.Template, v.Version)
}

func (v Variant) validate() error {
	if v.Provider == "" {
		return errors.New("variant missing provider")
	}
	if v.Model == "" {
		return errors.New("variant missing model")
	}
	if v.Template == "" {
		return errors.New("variant missing template")
	}
	return nil
}

// Outcome is what the backend reports for one executed variant. Scoring is
// computed server-side; latency is in seconds.
type Outcome struct {
	Answer  string  `json:"answer"`
	Score   float64 `json:"score"`
	Latency float64 `json:"latency"`
}

// Result aggregates one comparison run. Scores, Latencies and Answers share
// exactly one key set: the deduplicated variant keys of the input list.
type Result struct {
	Best      Variant            `json:"best"`
	Scores    map[string]float64 `json:"scores"`
	Answers   map[string]string  `json:"answers"`
	Latencies map[string]float64 `json:"latencies"`
}

// Executor resolves and runs a single variant against the backend.
// *api.Client satisfies it.
type Executor interface {
	ExecuteVariant(ctx context.Context, v Variant, vars map[string]string) (Outcome, error)
}

// Runner fans variant requests out through an Executor. It holds no state
// across runs; each Result is caller-owned.
type Runner struct {
	exec Executor
}

// NewRunner returns a Runner dispatching through exec.
func NewRunner(exec Executor) *Runner {
	return &Runner{exec: exec}
}

// Run executes every variant concurrently and aggregates score, latency and
// answer per variant key. Malformed input fails before any dispatch. Any
// backend failure aborts the whole run: remaining requests are cancelled,
// partial results discarded, and a single error returned. The best variant
// has the highest score; ties break on lowest latency, then on input order.
func (r *Runner) Run(ctx context.Context, variants []Variant, vars map[string]string) (*Result, error) {
	if len(variants) < 2 {
		return nil, ErrTooFewVariants
	}
	for i, v := range variants {
		if err := v.validate(); err != nil {
			return nil, fmt.Errorf("variant %d: %w", i, err)
		}
	}

	// Duplicate keys collapse to one dispatch. The last occurrence wins
	// deterministically; first-encounter order is kept for the tie-break.
	byKey := make(map[string]Variant, len(variants))
	order := make([]string, 0, len(variants))
	for _, v := range variants {
		key := v.Key()
		if _, seen := byKey[key]; !seen {
			order = append(order, key)
		}
		byKey[key] = v
	}

	outcomes := make([]Outcome, len(order))
	g, gctx := errgroup.WithContext(ctx)
	for i, key := range order {
		v := byKey[key]
		g.Go(func() error {
			out, err := r.exec.ExecuteVariant(gctx, v, vars)
			if err != nil {
				return fmt.Errorf("variant %s: %w", v.Key(), err)
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{
		Scores:    make(map[string]float64, len(order)),
		Answers:   make(map[string]string, len(order)),
		Latencies: make(map[string]float64, len(order)),
	}
	best := 0
	for i, key := range order {
		out := outcomes[i]
		res.Scores[key] = out.Score
		res.Answers[key] = out.Answer
		res.Latencies[key] = out.Latency
		if i == 0 {
			continue
		}
		top := outcomes[best]
		if out.Score > top.Score || (out.Score == top.Score && out.Latency < top.Latency) {
			best = i
		}
	}
	res.Best = byKey[order[best]]
	return res, nil
}
