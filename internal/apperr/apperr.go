// Package apperr defines the typed error families surfaced by the core
// (spec §7): input errors, data errors, model errors, consistency errors
// and resource errors. Each is a Kind carried inside a wrapped *Error so
// callers can branch with Of(err, kind) (or errors.Is against an *Error
// built by New) while
// still getting a %w-wrapped chain for logging, the same way the teacher
// wraps driver errors in internal/database/db.go.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is a closed enumeration of the error families named in spec §7.
type Kind string

const (
	// Input errors — returned to the caller, no state mutation.
	InvalidSymbol         Kind = "InvalidSymbol"
	InvalidOrder          Kind = "InvalidOrder"
	InsufficientHistory   Kind = "InsufficientHistory"
	ConfirmationRequired  Kind = "ConfirmationRequired"

	// Data errors — transient kinds retried internally, permanent bubble up.
	UpstreamTransient Kind = "UpstreamTransient"
	UpstreamPermanent Kind = "UpstreamPermanent"
	RateLimited       Kind = "RateLimited"

	// Model errors — exclude offending model from the current call.
	InsufficientData  Kind = "InsufficientData"
	TrainingFailed    Kind = "TrainingFailed"
	TrainingTimedOut  Kind = "TrainingTimedOut"
	PredictionFailed  Kind = "PredictionFailed"
	SchemaMismatch    Kind = "SchemaMismatch"

	// Consistency errors — programmer errors, fail loudly.
	StaleWrite        Kind = "StaleWrite"
	RegistryCorruption Kind = "RegistryCorruption"
	InvalidLevels     Kind = "InvalidLevels"

	// Resource errors — callers decide whether to degrade or retry.
	Timeout             Kind = "Timeout"
	Cancelled           Kind = "Cancelled"
	NoActivePredictors  Kind = "NoActivePredictors"
	InsufficientSamples Kind = "InsufficientSamples"

	// Registry-specific input errors.
	NotFound       Kind = "NotFound"
	AlreadyExists  Kind = "AlreadyExists"
	UnknownVersion Kind = "UnknownFeatureSetVersion"
)

// Error carries a Kind plus diagnostic context: which stage, which symbol,
// which model, per spec §7's propagation policy.
type Error struct {
	Kind    Kind
	Op      string // which stage, e.g. "features.Compute", "registry.Register"
	Symbol  string
	ModelID string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Symbol != "" {
		msg += fmt.Sprintf(" symbol=%s", e.Symbol)
	}
	if e.ModelID != "" {
		msg += fmt.Sprintf(" model=%s", e.ModelID)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, SomeKind) by comparing against a bare Kind value
// wrapped as an error via New(kind, "", nil).
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New builds an *Error for the given kind and stage.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// WithSymbol attaches a symbol to the error for diagnostics.
func (e *Error) WithSymbol(symbol string) *Error {
	e.Symbol = symbol
	return e
}

// WithModel attaches a model ID to the error for diagnostics.
func (e *Error) WithModel(modelID string) *Error {
	e.ModelID = modelID
	return e
}

// Of reports whether err (or any error it wraps) has the given Kind.
func Of(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
