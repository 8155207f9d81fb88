package rag

import "fmt"

// Dependency names reported in unavailable errors.
const (
	DependencySearch     = "search"
	DependencyGeneration = "generation"
)

// Kind classifies a failed orchestration run.
type Kind int

const (
	// KindUnavailable means a backend handle was never constructed.
	KindUnavailable Kind = iota + 1
	// KindUpstream means a backend call failed.
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindUpstream:
		return "upstream"
	default:
		return "unknown"
	}
}

// Error is returned by Pipeline.Answer.
type Error struct {
	Kind       Kind
	Dependency string
	Err        error
}

func (e *Error) Error() string {
	if e.Kind == KindUnavailable {
		return fmt.Sprintf("%s service not available", e.Dependency)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func unavailable(dependency string) *Error {
	return &Error{Kind: KindUnavailable, Dependency: dependency}
}

func upstream(dependency string, err error) *Error {
	return &Error{Kind: KindUpstream, Dependency: dependency, Err: err}
}
