package blob

import "time"

// Metrics receives blob store observations. A nil Metrics disables
// collection with no overhead.
type Metrics interface {
	// ObservePut records a completed put. deduplicated is true when no bytes
	// were written because the content was already stored.
	ObservePut(bytes uint64, deduplicated bool, duration time.Duration, err error)

	// ObserveGet records an opened read.
	ObserveGet(bytes uint64, duration time.Duration, err error)

	// ObserveDelete records a physical deletion driven by the collector.
	ObserveDelete(bytes uint64, err error)

	// SetRecords reports the current registry size.
	SetRecords(count int)
}

func (s *Store) observePut(bytes uint64, dedup bool, d time.Duration, err error) {
	if s.metrics != nil {
		s.metrics.ObservePut(bytes, dedup, d, err)
	}
}

func (s *Store) observeGet(bytes uint64, d time.Duration, err error) {
	if s.metrics != nil {
		s.metrics.ObserveGet(bytes, d, err)
	}
}

func (s *Store) observeDelete(bytes uint64, err error) {
	if s.metrics != nil {
		s.metrics.ObserveDelete(bytes, err)
	}
}

// setRecords must be called with s.mu held.
func (s *Store) setRecords() {
	if s.metrics != nil {
		s.metrics.SetRecords(len(s.records))
	}
}
