package s3

import "time"

// Metrics observes S3 calls. Optional; nil disables collection.
type Metrics interface {
	// ObserveOperation records one S3 API call.
	ObserveOperation(operation string, duration time.Duration, err error)

	// RecordBytes records payload bytes moved by an operation.
	RecordBytes(operation string, bytes int64)
}

func (s *Store) observe(op string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.ObserveOperation(op, time.Since(start), err)
	}
}

func (s *Store) recordBytes(op string, n int64) {
	if s.metrics != nil && n > 0 {
		s.metrics.RecordBytes(op, n)
	}
}
