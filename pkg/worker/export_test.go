package worker

import "time"

// SetNow replaces the processor clock for tests in package worker_test.
func SetNow(p *OutboxProcessor, now func() time.Time) { p.now = now }
