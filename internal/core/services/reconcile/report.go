package reconcile

import (
	"errors"
	"time"

	"discord-interactions-server/internal/core/domain"
)

type Status string

const (
	StatusCreated   Status = "created"
	StatusDeleted   Status = "deleted"
	StatusUpdated   Status = "updated"
	StatusUnchanged Status = "unchanged"
	StatusFailed    Status = "failed"
)

// OperationResult is the outcome of the single operation issued for one command name.
type OperationResult struct {
	Name     string
	Phase    Phase
	RemoteID string
	Status   Status
	Err      error
}

func (r OperationResult) OK() bool {
	return r.Err == nil
}

// Report itemizes one reconciliation pass.
type Report struct {
	Scope    domain.Scope
	Results  []OperationResult
	Duration time.Duration
}

func (r Report) Failed() []OperationResult {
	var failed []OperationResult
	for _, res := range r.Results {
		if !res.OK() {
			failed = append(failed, res)
		}
	}
	return failed
}

// Names returns the command names that ended with the given status.
func (r Report) Names(status Status) []string {
	var names []string
	for _, res := range r.Results {
		if res.Status == status {
			names = append(names, res.Name)
		}
	}
	return names
}

// Count returns how many operations of a phase were issued over the wire.
func (r Report) Count(phase Phase) int {
	n := 0
	for _, res := range r.Results {
		if res.Phase == phase && res.Status != StatusUnchanged {
			n++
		}
	}
	return n
}

// Err joins every failed operation's error, nil when the pass fully succeeded.
func (r Report) Err() error {
	var errs []error
	for _, res := range r.Failed() {
		errs = append(errs, res.Err)
	}
	return errors.Join(errs...)
}
