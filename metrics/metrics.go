// Package metrics records document-store operation counts and latencies.
//
// Bindings call a Collector after every contract operation. Use Noop when
// metrics are not needed, Basic for in-process counters and Prometheus to
// export them.
package metrics

import (
	"sync/atomic"
	"time"
)

// Collector receives one call per completed operation.
type Collector interface {
	// RecordSave is called after each save batch. docs is the batch size,
	// failed the number of documents that did not become visible.
	RecordSave(engine string, docs, failed int, duration time.Duration)

	// RecordGet is called after each lookup; batch reads report the number
	// of records delivered to the callback.
	RecordGet(engine string, docs int, duration time.Duration, err error)

	// RecordCommit is called after each commit.
	RecordCommit(engine string, duration time.Duration, err error)

	// RecordCompact is called after each compaction request.
	RecordCompact(engine string, duration time.Duration, err error)
}

// Noop discards every measurement.
type Noop struct{}

func (Noop) RecordSave(string, int, int, time.Duration)  {}
func (Noop) RecordGet(string, int, time.Duration, error) {}
func (Noop) RecordCommit(string, time.Duration, error)   {}
func (Noop) RecordCompact(string, time.Duration, error)  {}

// Basic keeps process-local totals. The zero value is ready to use.
type Basic struct {
	SaveBatches   atomic.Int64
	SavedDocs     atomic.Int64
	FailedDocs    atomic.Int64
	SaveNanos     atomic.Int64
	Gets          atomic.Int64
	GotDocs       atomic.Int64
	GetErrors     atomic.Int64
	Commits       atomic.Int64
	CommitErrors  atomic.Int64
	Compactions   atomic.Int64
	CompactErrors atomic.Int64
}

func (b *Basic) RecordSave(_ string, docs, failed int, d time.Duration) {
	b.SaveBatches.Add(1)
	b.SavedDocs.Add(int64(docs - failed))
	b.FailedDocs.Add(int64(failed))
	b.SaveNanos.Add(d.Nanoseconds())
}

func (b *Basic) RecordGet(_ string, docs int, _ time.Duration, err error) {
	b.Gets.Add(1)
	b.GotDocs.Add(int64(docs))
	if err != nil {
		b.GetErrors.Add(1)
	}
}

func (b *Basic) RecordCommit(_ string, _ time.Duration, err error) {
	b.Commits.Add(1)
	if err != nil {
		b.CommitErrors.Add(1)
	}
}

func (b *Basic) RecordCompact(_ string, _ time.Duration, err error) {
	b.Compactions.Add(1)
	if err != nil {
		b.CompactErrors.Add(1)
	}
}

// SaveThroughput returns saved documents per second over all recorded
// batches, or 0 before any save.
func (b *Basic) SaveThroughput() float64 {
	nanos := b.SaveNanos.Load()
	if nanos == 0 {
		return 0
	}
	return float64(b.SavedDocs.Load()) / time.Duration(nanos).Seconds()
}

// Fanout forwards every measurement to each of its collectors in order.
type Fanout []Collector

func (f Fanout) RecordSave(engine string, docs, failed int, d time.Duration) {
	for _, c := range f {
		c.RecordSave(engine, docs, failed, d)
	}
}

func (f Fanout) RecordGet(engine string, docs int, d time.Duration, err error) {
	for _, c := range f {
		c.RecordGet(engine, docs, d, err)
	}
}

func (f Fanout) RecordCommit(engine string, d time.Duration, err error) {
	for _, c := range f {
		c.RecordCommit(engine, d, err)
	}
}

func (f Fanout) RecordCompact(engine string, d time.Duration, err error) {
	for _, c := range f {
		c.RecordCompact(engine, d, err)
	}
}
