package compare

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

// fakeExecutor serves canned outcomes per variant key and records how many
// times each key was dispatched.
type fakeExecutor struct {
	mu       sync.Mutex
	outcomes map[string]Outcome
	errs     map[string]error
	calls    map[string]int
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		outcomes: map[string]Outcome{},
		errs:     map[string]error{},
		calls:    map[string]int{},
	}
}

func (f *fakeExecutor) ExecuteVariant(_ context.Context, v Variant, _ map[string]string) (Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := v.Key()
	f.calls[key]++
	if err := f.errs[key]; err != nil {
		return Outcome{}, err
	}
	return f.outcomes[key], nil
}

func variant(provider, model, tpl string) Variant {
	return Variant{Provider: provider, Model: model, Template: tpl}
}

func TestRunPicksHighestScore(t *testing.T) {
	exec := newFakeExecutor()
	a := variant("openai", "gpt-4o", "qa")
	b := variant("ollama", "llama3", "qa")
	exec.outcomes[a.Key()] = Outcome{Answer: "answer a", Score: 0.7, Latency: 1.1}
	exec.outcomes[b.Key()] = Outcome{Answer: "answer b", Score: 0.9, Latency: 2.8}

	res, err := NewRunner(exec).Run(context.Background(), []Variant{a, b}, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Best != b {
		t.Errorf("best = %+v, want %+v", res.Best, b)
	}
	if res.Answers[b.Key()] != "answer b" {
		t.Errorf("answer = %q", res.Answers[b.Key()])
	}
	if len(res.Scores) != 2 || len(res.Answers) != 2 || len(res.Latencies) != 2 {
		t.Errorf("result maps must share the full key set: %d/%d/%d",
			len(res.Scores), len(res.Answers), len(res.Latencies))
	}
}

func TestRunScoreTieBreaksOnLatency(t *testing.T) {
	exec := newFakeExecutor()
	a := variant("openai", "gpt-4o", "qa")
	b := variant("ollama", "llama3", "qa")
	exec.outcomes[a.Key()] = Outcome{Score: 0.9, Latency: 120}
	exec.outcomes[b.Key()] = Outcome{Score: 0.9, Latency: 80}

	res, err := NewRunner(exec).Run(context.Background(), []Variant{a, b}, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Best != b {
		t.Errorf("best = %+v, want the faster variant %+v", res.Best, b)
	}
}

func TestRunFullTieKeepsInputOrder(t *testing.T) {
	exec := newFakeExecutor()
	a := variant("openai", "gpt-4o", "qa")
	b := variant("ollama", "llama3", "qa")
	exec.outcomes[a.Key()] = Outcome{Score: 0.5, Latency: 1.0}
	exec.outcomes[b.Key()] = Outcome{Score: 0.5, Latency: 1.0}

	res, err := NewRunner(exec).Run(context.Background(), []Variant{a, b}, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Best != a {
		t.Errorf("best = %+v, want the earlier variant %+v", res.Best, a)
	}
}

func TestRunCollapsesDuplicateKeys(t *testing.T) {
	exec := newFakeExecutor()
	a := variant("openai", "gpt-4o", "qa")
	b := variant("ollama", "llama3", "qa")
	exec.outcomes[a.Key()] = Outcome{Score: 0.3}
	exec.outcomes[b.Key()] = Outcome{Score: 0.8}

	res, err := NewRunner(exec).Run(context.Background(), []Variant{a, b, a, a}, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := exec.calls[a.Key()]; got != 1 {
		t.Errorf("duplicate variant dispatched %d times, want 1", got)
	}
	if len(res.Scores) != 2 {
		t.Errorf("got %d keys, want 2", len(res.Scores))
	}
}

func TestRunRejectsTooFewVariants(t *testing.T) {
	_, err := NewRunner(newFakeExecutor()).Run(context.Background(),
		[]Variant{variant("openai", "gpt-4o", "qa")}, nil)
	if !errors.Is(err, ErrTooFewVariants) {
		t.Errorf("err = %v, want ErrTooFewVariants", err)
	}
}

func TestRunRejectsIncompleteVariant(t *testing.T) {
	tests := []struct {
		name string
		bad  Variant
	}{
		{"missing provider", Variant{Model: "llama3", Template: "qa"}},
		{"missing model", Variant{Provider: "ollama", Template: "qa"}},
		{"missing template", Variant{Provider: "ollama", Model: "llama3"}},
	}

	exec := newFakeExecutor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRunner(exec).Run(context.Background(),
				[]Variant{variant("openai", "gpt-4o", "qa"), tt.bad}, nil)
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if len(exec.calls) != 0 {
				t.Error("nothing must be dispatched for invalid input")
			}
		})
	}
}

func TestRunAbortsOnBackendFailure(t *testing.T) {
	exec := newFakeExecutor()
	a := variant("openai", "gpt-4o", "qa")
	b := variant("ollama", "llama3", "qa")
	exec.outcomes[a.Key()] = Outcome{Score: 0.9}
	exec.errs[b.Key()] = errors.New("model not loaded")

	res, err := NewRunner(exec).Run(context.Background(), []Variant{a, b}, nil)
	if err == nil {
		t.Fatal("expected the run to fail")
	}
	if res != nil {
		t.Errorf("partial result returned: %+v", res)
	}
	if !strings.Contains(err.Error(), b.Key()) {
		t.Errorf("error %q does not name the failing variant", err)
	}
}

func TestVariantKey(t *testing.T) {
	v := Variant{Provider: "ollama", Model: "llama3", Template: "qa", Version: 2}
	if got, want := v.Key(), "ollama|llama3|qa:2"; got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}
	unversioned := variant("ollama", "llama3", "qa")
	if got, want := unversioned.Key(), "ollama|llama3|qa:0"; got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}
}
