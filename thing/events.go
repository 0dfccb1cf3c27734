package thing

// EventPublisher receives the operation events below. state.EventBus
// satisfies it; a nil publisher on a Client discards events.
type EventPublisher interface {
	Publish(any)
}

type PropertyRead struct{ Result }
type PropertyReadError struct{ Result }

type PropertyWritten struct{ Result }
type PropertyWrittenError struct{ Result }

type PropertyObserved struct{ Result }
type PropertyObservedError struct{ Result }

type ActionInvoked struct{ Result }
type ActionInvokedError struct{ Result }
