package reconcile

import (
	"errors"
	"fmt"

	"discord-interactions-server/internal/core/domain"
)

type Phase string

const (
	PhaseFetch  Phase = "fetch"
	PhaseCreate Phase = "create"
	PhaseDelete Phase = "delete"
	PhaseUpdate Phase = "update"
)

var (
	ErrReconcileInProgress = errors.New("reconciliation already in progress")
	ErrMissingRemoteID     = errors.New("remote response carries no command id")
)

// DuplicateNameError is returned when a queued name already exists in the queue or cache.
type DuplicateNameError struct {
	Name  string
	Scope domain.Scope
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("command %q already exists in scope %s", e.Name, e.Scope)
}

// ReconcileError wraps a transport failure with the phase and command it belongs to.
type ReconcileError struct {
	Phase Phase
	Name  string
	Cause error
}

func (e *ReconcileError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("reconcile %s: %v", e.Phase, e.Cause)
	}
	return fmt.Sprintf("reconcile %s %q: %v", e.Phase, e.Name, e.Cause)
}

func (e *ReconcileError) Unwrap() error {
	return e.Cause
}
