package types

import (
	"fmt"
	"time"
)

// Status represents the possible outcomes of a scenario execution.
type Status string

const (
	StatusPass  Status = "pass"
	StatusFail  Status = "fail"
	StatusSkip  Status = "skip"
	StatusError Status = "error"
)

// ScenarioFile is the top-level shape of a scenario config file.
type ScenarioFile struct {
	Scenarios []ScenarioConfig `yaml:"scenarios"`
}

// ScenarioConfig is one scripted conduct scenario: a set of thread scripts
// run under a Conductor, plus the expected outcome. Scenarios double as a
// conformance suite for the conductor's determinism guarantees, so a
// Repeat count reruns the same script and requires identical results.
type ScenarioConfig struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	Timeout     *time.Duration `yaml:"timeout,omitempty"`
	Repeat      int            `yaml:"repeat,omitempty"`
	Threads     []ThreadScript `yaml:"threads"`
	Expect      Expectation    `yaml:"expect,omitempty"`
}

// ThreadScript is the step list for one registered thread. Count > 1
// registers that many copies with auto-suffixed names.
type ThreadScript struct {
	Name  string `yaml:"name"`
	Count int    `yaml:"count,omitempty"`
	Steps []Step `yaml:"steps"`
}

// Step is a single scripted action. Exactly one of the fields may be set.
type Step struct {
	// WaitForBeat blocks the thread until the clock reaches the beat.
	WaitForBeat *uint64 `yaml:"wait_for_beat,omitempty"`
	// Append records a token in the scenario's shared log.
	Append string `yaml:"append,omitempty"`
	// Sleep pauses the thread for a wall-clock duration.
	Sleep time.Duration `yaml:"sleep,omitempty"`
	// Interrupt delivers an interrupt to the named thread.
	Interrupt string `yaml:"interrupt,omitempty"`
	// AwaitInterrupt blocks until this thread is interrupted.
	AwaitInterrupt bool `yaml:"await_interrupt,omitempty"`
	// Fail terminates the thread with a failure carrying the message.
	Fail string `yaml:"fail,omitempty"`
}

// Expectation describes what a scenario run must produce. A zero value
// expects a clean pass with no particular log.
type Expectation struct {
	// Log is the expected concatenation of appended tokens, in order.
	Log string `yaml:"log,omitempty"`
	// Outcome is the expected conduct result; defaults to pass.
	Outcome Status `yaml:"outcome,omitempty"`
	// ErrorContains, for expected fail/error outcomes, requires the
	// surfaced error text to contain the substring.
	ErrorContains string `yaml:"error_contains,omitempty"`
}

// actionCount returns how many of the step's mutually exclusive actions
// are set.
func (s Step) actionCount() int {
	n := 0
	if s.WaitForBeat != nil {
		n++
	}
	if s.Append != "" {
		n++
	}
	if s.Sleep > 0 {
		n++
	}
	if s.Interrupt != "" {
		n++
	}
	if s.AwaitInterrupt {
		n++
	}
	if s.Fail != "" {
		n++
	}
	return n
}

// Validate checks structural soundness of a scenario config: a name, at
// least one thread, unique thread names, well-formed steps, and interrupt
// targets that exist.
func (s ScenarioConfig) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario name is required")
	}
	if len(s.Threads) == 0 {
		return fmt.Errorf("scenario %q has no threads", s.Name)
	}
	if s.Repeat < 0 {
		return fmt.Errorf("scenario %q has negative repeat count %d", s.Name, s.Repeat)
	}
	names := make(map[string]bool)
	for i, th := range s.Threads {
		if th.Name == "" {
			return fmt.Errorf("scenario %q: thread %d has no name", s.Name, i)
		}
		if names[th.Name] {
			return fmt.Errorf("scenario %q: duplicate thread name %q", s.Name, th.Name)
		}
		names[th.Name] = true
		if th.Count < 0 {
			return fmt.Errorf("scenario %q: thread %q has negative count %d", s.Name, th.Name, th.Count)
		}
	}
	for _, th := range s.Threads {
		for j, step := range th.Steps {
			switch n := step.actionCount(); {
			case n == 0:
				return fmt.Errorf("scenario %q: thread %q step %d has no action", s.Name, th.Name, j)
			case n > 1:
				return fmt.Errorf("scenario %q: thread %q step %d sets multiple actions", s.Name, th.Name, j)
			}
			if step.Interrupt != "" && !names[step.Interrupt] {
				return fmt.Errorf("scenario %q: thread %q interrupts unknown thread %q", s.Name, th.Name, step.Interrupt)
			}
			if step.Interrupt != "" && names[step.Interrupt] && interruptTargetHasCount(s.Threads, step.Interrupt) {
				return fmt.Errorf("scenario %q: thread %q interrupts %q, which expands to multiple threads", s.Name, th.Name, step.Interrupt)
			}
		}
	}
	switch s.Expect.Outcome {
	case "", StatusPass, StatusFail, StatusError:
	default:
		return fmt.Errorf("scenario %q: invalid expected outcome %q", s.Name, s.Expect.Outcome)
	}
	return nil
}

func interruptTargetHasCount(threads []ThreadScript, name string) bool {
	for _, th := range threads {
		if th.Name == name {
			return th.Count > 1
		}
	}
	return false
}
