package pipeline

import "time"

// Observer receives counts from the executor, e.g. for metrics.
type Observer interface {
	ObserveItem(pipeline string, ok bool, attempts int)
	ObservePipeline(pipeline string, success bool, elapsed time.Duration)
	ObserveRollback(pipeline string, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveItem(string, bool, int)               {}
func (nopObserver) ObservePipeline(string, bool, time.Duration) {}
func (nopObserver) ObserveRollback(string, error)               {}
