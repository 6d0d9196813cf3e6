package api

import "time"

// Metrics observes served requests. Optional; nil disables collection.
type Metrics interface {
	// RequestStarted is called when a request enters the router.
	RequestStarted()

	// ObserveRequest records a finished request. route is the matched chi
	// pattern, never the raw path.
	ObserveRequest(method, route string, status int, duration time.Duration, bytes int64)
}
