// Package replay drives a cache model with the records of a trace.
package replay

import (
	"context"
	"errors"
	"io"

	"github.com/sarchlab/csim/cache"
	"github.com/sarchlab/csim/trace"
)

// Source yields trace records in order and io.EOF at the end.
type Source interface {
	Next() (trace.Record, error)
}

// Event describes the replay of one trace record.
type Event struct {
	// Seq is the 1-based position of the record among replayed records.
	Seq uint64
	// Record is the replayed record.
	Record trace.Record
	// Outcomes holds one outcome per cache access, two for a modify.
	Outcomes []cache.Outcome
}

// Observer is notified after every replayed record.
type Observer interface {
	Observe(event Event)
}

// ObserverFunc adapts a function to an Observer.
type ObserverFunc func(event Event)

// Observe calls f(event).
func (f ObserverFunc) Observe(event Event) {
	f(event)
}

// Option is a functional option for configuring the Replayer.
type Option func(*Replayer)

// WithObserver adds an observer. Observers are called in the order added.
func WithObserver(o Observer) Option {
	return func(r *Replayer) {
		r.observers = append(r.observers, o)
	}
}

// Replayer feeds trace records to a classifier.
type Replayer struct {
	classifier cache.Classifier
	observers  []Observer
	records    uint64
}

// New creates a Replayer for the given cache model.
func New(classifier cache.Classifier, opts ...Option) *Replayer {
	r := &Replayer{classifier: classifier}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Records returns the number of records replayed so far.
func (r *Replayer) Records() uint64 {
	return r.records
}

// ReplayRecord performs the cache accesses of a single record. Loads and
// stores access the cache once, modifies twice in a row at the same address
// and instruction fetches not at all.
func (r *Replayer) ReplayRecord(rec trace.Record) []cache.Outcome {
	n := rec.Op.Accesses()
	if n == 0 {
		return nil
	}

	outcomes := make([]cache.Outcome, n)
	for i := range outcomes {
		outcomes[i] = r.classifier.Access(rec.Address)
	}

	r.records++
	event := Event{Seq: r.records, Record: rec, Outcomes: outcomes}
	for _, o := range r.observers {
		o.Observe(event)
	}

	return outcomes
}

// Run replays src until it is exhausted and returns the final statistics.
// The context is checked between records.
func (r *Replayer) Run(ctx context.Context, src Source) (cache.Statistics, error) {
	for {
		if err := ctx.Err(); err != nil {
			return r.classifier.Stats(), err
		}

		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			return r.classifier.Stats(), nil
		}
		if err != nil {
			return r.classifier.Stats(), err
		}

		r.ReplayRecord(rec)
	}
}
