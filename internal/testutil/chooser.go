package testutil

import (
	"sync"
)

// StubChooser answers every Choose call with Choice, or with the candidate
// at Index when Choice is empty and Index is not negative. Calls are recorded.
type StubChooser struct {
	Choice string
	Index  int
	Err    error

	mu    sync.Mutex
	calls []ChooseCall
}

// ChooseCall is one recorded Choose invocation.
type ChooseCall struct {
	Name       string
	Candidates []string
}

// NewStubChooser returns a chooser that picks the first candidate.
func NewStubChooser() *StubChooser {
	return &StubChooser{}
}

func (c *StubChooser) Choose(name string, candidates []string) (string, error) {
	c.mu.Lock()
	c.calls = append(c.calls, ChooseCall{Name: name, Candidates: append([]string(nil), candidates...)})
	c.mu.Unlock()

	if c.Err != nil {
		return "", c.Err
	}
	if c.Choice != "" {
		return c.Choice, nil
	}
	if c.Index < 0 || c.Index >= len(candidates) {
		return "", nil
	}
	return candidates[c.Index], nil
}

// Calls returns the recorded invocations.
func (c *StubChooser) Calls() []ChooseCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ChooseCall(nil), c.calls...)
}
