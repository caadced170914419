package metrics

import "time"

// Recorder receives payment pipeline and gate events. The event name carries
// the outcome (payment_succeeded, gate_denied, ...); the single label key
// used by cygnus is "kind".
type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}
