package core

// Metrics records domain state transitions.
type Metrics interface {
	PaymentTransition(status string)
	SubscriptionTransition(status string)
	LockToggled(locked bool)
}

type nopMetrics struct{}

var NopMetrics Metrics = &nopMetrics{}

func (*nopMetrics) PaymentTransition(string)      {}
func (*nopMetrics) SubscriptionTransition(string) {}
func (*nopMetrics) LockToggled(bool)              {}
