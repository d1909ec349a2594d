package bus

import "time"

// Event is a domain event published in-process.
//
// Kind uses dotted namespaces: "push." for backend push-channel events,
// "chat." for session store changes, "conn." for link status, "roster."
// for user-list changes.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
