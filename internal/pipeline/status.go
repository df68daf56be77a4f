package pipeline

import (
	"errors"

	"github.com/nucleus/itsm-core/internal/core"
	"github.com/nucleus/itsm-core/internal/diagnostic"
)

// State of a fetch operation.
type State string

const (
	StateStarted      State = "started"
	StateFetchingPage State = "fetching_page"
	StateEnriching    State = "enriching"
	StateDone         State = "done"
	StateFailed       State = "failed"
	StateCancelled    State = "cancelled"
)

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateCancelled
}

// JoinFailure records a join pass that could not read all related records.
// The page was still delivered with whatever the pass did fetch.
type JoinFailure struct {
	Join string
	Page int
	Err  error
}

// FinalStatus summarizes a fetch operation.
type FinalStatus struct {
	OperationID string
	ContentType string
	State       State
	Err         error
	Message     string
	// StatusCode and Body are copied from a failed primary response.
	StatusCode   int
	Body         string
	Pages        int
	Records      int
	JoinFailures []JoinFailure
	// Diagnostics collects the conversion problems of every delivered
	// record when the operation converts to canonical records.
	Diagnostics diagnostic.Diagnostics
}

// Succeeded reports whether the operation reached Done.
func (s *FinalStatus) Succeeded() bool { return s.State == StateDone }

func (s *FinalStatus) fail(err error) *FinalStatus {
	s.State = StateFailed
	s.Err = err
	s.Message = err.Error()
	var te *core.TransportError
	if errors.As(err, &te) {
		s.StatusCode = te.StatusCode
		s.Body = te.Body
	}
	return s
}

func (s *FinalStatus) cancel(err error) *FinalStatus {
	s.State = StateCancelled
	s.Err = err
	if err != nil {
		s.Message = err.Error()
	}
	return s
}
