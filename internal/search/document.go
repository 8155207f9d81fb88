// Package search holds the clients for the hosted search backends.
//
// Every backend returns a lazy, single-pass sequence of scored documents: the remote call
// happens when iteration starts, and ranging over the same sequence twice yields ErrConsumed.
package search

import (
	"errors"
	"iter"
	"sync/atomic"
)

// DefaultTitle is used when an indexed document carries no title.
const DefaultTitle = "Unknown"

// ErrConsumed is yielded when a result sequence is iterated a second time.
var ErrConsumed = errors.New("search results already consumed")

// Document is one scored search hit.
type Document struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// once restricts seq to a single iteration.
func once(seq iter.Seq2[Document, error]) iter.Seq2[Document, error] {
	var used atomic.Bool
	return func(yield func(Document, error) bool) {
		if used.Swap(true) {
			yield(Document{}, ErrConsumed)
			return
		}
		seq(yield)
	}
}

// failed returns a sequence yielding only err.
func failed(err error) iter.Seq2[Document, error] {
	return func(yield func(Document, error) bool) {
		yield(Document{}, err)
	}
}
