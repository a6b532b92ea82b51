package deploy

import (
	"errors"
	"fmt"
)

// Kind classifies deployment errors.
type Kind int

const (
	KindConfiguration Kind = iota + 1
	KindConnectivity
	KindTransactionRejected
	KindTimeout
	KindPersistence
)

var kindNames = map[Kind]string{
	KindConfiguration:       "configuration",
	KindConnectivity:        "connectivity",
	KindTransactionRejected: "transaction_rejected",
	KindTimeout:             "timeout",
	KindPersistence:         "persistence",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Sentinels for errors.Is; every *Error unwraps to the sentinel of its kind.
var (
	ErrConfiguration       = errors.New("configuration error")
	ErrConnectivity        = errors.New("connectivity error")
	ErrTransactionRejected = errors.New("transaction rejected")
	ErrTimeout             = errors.New("confirmation timeout")
	ErrPersistence         = errors.New("persistence error")
)

var kindSentinels = map[Kind]error{
	KindConfiguration:       ErrConfiguration,
	KindConnectivity:        ErrConnectivity,
	KindTransactionRejected: ErrTransactionRejected,
	KindTimeout:             ErrTimeout,
	KindPersistence:         ErrPersistence,
}

// Error is a structured deployment error. Contract is empty for errors that
// are not tied to a single artifact.
type Error struct {
	Kind     Kind   `json:"kind" yaml:"kind"`
	Contract string `json:"contract,omitempty" yaml:"contract,omitempty"`
	Message  string `json:"message" yaml:"message"`
	Err      error  `json:"-" yaml:"-"`
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Contract != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Contract, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() []error {
	errs := []error{kindSentinels[e.Kind]}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func newError(kind Kind, contract, message string, err error) *Error {
	return &Error{Kind: kind, Contract: contract, Message: message, Err: err}
}

// AsError extracts the structured error from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
