package types

import (
	"fmt"
)

type StashStatus string

const (
	StashStatusOK    = StashStatus("OK")
	StashStatusError = StashStatus("ERROR")
)

type ErrorKind string

const (
	ErrorKindNone          = ErrorKind("")
	ErrorKindNetwork       = ErrorKind("network")
	ErrorKindProtocol      = ErrorKind("protocol")
	ErrorKindSerialization = ErrorKind("serialization")
	ErrorKindRejected      = ErrorKind("rejected")
	ErrorKindUnsupported   = ErrorKind("unsupported")
)

const (
	// ResultCodeOK is the code of every successful backend result.
	ResultCodeOK = 0
	// ResultCodeLocalFailure marks failures produced on this side of the backend boundary.
	ResultCodeLocalFailure = -1
)

// StashResult is the outcome of a reserve, lock or release call to a resource manager backend.
// A nil result is never ok.
type StashResult struct {
	Status    StashStatus `json:"status"`
	ErrorCode int         `json:"code"`
	Message   string      `json:"message"`
	Key       string      `json:"key,omitempty"`
	Lease     *Lease      `json:"lease,omitempty"`
	Kind      ErrorKind   `json:"kind,omitempty"`
}

func NewOKResult(message, key string, lease *Lease) *StashResult {
	return &StashResult{
		Status:    StashStatusOK,
		ErrorCode: ResultCodeOK,
		Message:   message,
		Key:       key,
		Lease:     lease,
	}
}

// NewErrorResult converts a local failure into a failed result.
func NewErrorResult(kind ErrorKind, err error) *StashResult {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &StashResult{
		Status:    StashStatusError,
		ErrorCode: ResultCodeLocalFailure,
		Message:   msg,
		Kind:      kind,
	}
}

func (r *StashResult) IsOK() bool {
	return r != nil && r.Status == StashStatusOK
}

func (r *StashResult) String() string {
	if r == nil {
		return "no result"
	}
	return fmt.Sprintf("Status: %v, Code: %v, Message: %v", r.Status, r.ErrorCode, r.Message)
}
