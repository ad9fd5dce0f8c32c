package digest

import "errors"

// Kind is a stable category for programmatic error handling.
//
// Callers should branch on Kind/RuleID rather than matching error strings.
// Use errors.As to extract *Error for structured handling.
type Kind string

const (
	KindLengthMismatch      Kind = "LengthMismatch"
	KindImmutableField      Kind = "ImmutableField"
	KindNullData            Kind = "NullData"
	KindMissingCertificate  Kind = "MissingCertificate"
	KindNoPrivateKey        Kind = "NoPrivateKey"
	KindUnsupportedProvider Kind = "UnsupportedProvider"
	KindUnsupportedKey      Kind = "UnsupportedKey"
	KindMissingPassword     Kind = "MissingPassword"
	KindEncoding            Kind = "Encoding"
	KindCrypto              Kind = "Crypto"
	KindInternal            Kind = "Internal"
)

// Error is the structured error type shared by digest and identity.
//
// RuleID is a stable identifier (e.g. SIG-DIGEST-101) naming the violated
// precondition. Message is intended for humans; do not match on it.
type Error struct {
	Kind    Kind
	RuleID  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewError builds a structured error. It is exported so packages layered on top
// of digest (identity, hashable) report failures in the same taxonomy.
func NewError(kind Kind, ruleID, msg string) error {
	return &Error{Kind: kind, RuleID: ruleID, Message: msg}
}

// WrapError is NewError with an underlying cause.
func WrapError(kind Kind, ruleID, msg string, cause error) error {
	if cause == nil {
		return NewError(kind, ruleID, msg)
	}
	return &Error{Kind: kind, RuleID: ruleID, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// RuleID returns the stable RuleID for a structured error, or "" if unknown.
func RuleID(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.RuleID
}
