package gc

// Metrics receives collector observations. A nil Metrics disables collection.
type Metrics interface {
	// ObservePhase reports a phase change.
	ObservePhase(phase Phase)

	// ObserveSource reports one source enumeration.
	ObserveSource(r SourceReport)

	// ObserveRun reports a completed run.
	ObserveRun(r *Report)
}

func (c *Collector) observePhase(p Phase) {
	if c.metrics != nil {
		c.metrics.ObservePhase(p)
	}
}

func (c *Collector) observeSource(r SourceReport) {
	if c.metrics != nil {
		c.metrics.ObserveSource(r)
	}
}

func (c *Collector) observeRun(r *Report) {
	if c.metrics != nil {
		c.metrics.ObserveRun(r)
	}
}
