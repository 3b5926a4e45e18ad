package model

import "errors"

// Kind is the error taxonomy the core classifies failures by, rather
// than by concrete type, so that callers at every layer (local store,
// peer RPC, replicator, read-repair) can apply the same policy table.
type Kind uint8

const (
	KindNone Kind = iota
	KindNotFound
	KindUnavailable
	KindTimeout
	KindNoRedundancy
	KindNotSatisfyQuorum
	KindRecoverFailure
	KindReplicateFailure
	KindInvalidData
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindUnavailable:
		return "Unavailable"
	case KindTimeout:
		return "Timeout"
	case KindNoRedundancy:
		return "NoRedundancy"
	case KindNotSatisfyQuorum:
		return "NotSatisfyQuorum"
	case KindRecoverFailure:
		return "RecoverFailure"
	case KindReplicateFailure:
		return "ReplicateFailure"
	case KindInvalidData:
		return "InvalidData"
	default:
		return "None"
	}
}

// Error wraps a Kind with the node/cause that produced it, so
// peer-side errors can be attributed: wrapped as {Err, node, cause}
// rather than surfaced as a bare error.
type Error struct {
	Kind  Kind
	Node  string
	Cause error
}

func (e *Error) Error() string {
	if e.Node != "" {
		if e.Cause != nil {
			return e.Kind.String() + " from " + e.Node + ": " + e.Cause.Error()
		}
		return e.Kind.String() + " from " + e.Node
	}
	if e.Cause != nil {
		return e.Kind.String() + ": " + e.Cause.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Cause }

func NewError(kind Kind, node string, cause error) *Error {
	return &Error{Kind: kind, Node: node, Cause: cause}
}

// KindOf extracts the Kind from err, defaulting to KindReplicateFailure
// for unrecognized errors (a generic failure, never a false NotFound).
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindReplicateFailure
}

var (
	ErrNotFound          = NewError(KindNotFound, "", nil)
	ErrUnavailable       = NewError(KindUnavailable, "", nil)
	ErrTimeout           = NewError(KindTimeout, "", nil)
	ErrNoRedundancy      = NewError(KindNoRedundancy, "", nil)
	ErrNotSatisfyQuorum  = NewError(KindNotSatisfyQuorum, "", nil)
	ErrRecoverFailure    = NewError(KindRecoverFailure, "", nil)
	ErrReplicateFailure  = NewError(KindReplicateFailure, "", nil)
	ErrInvalidData       = NewError(KindInvalidData, "", nil)
)
