package domain

import (
	"fmt"
	"time"
)

type EventKind string

const (
	EventLogin      EventKind = "login"
	EventBorrow     EventKind = "borrow"
	EventReturn     EventKind = "return"
	EventWait       EventKind = "wait"
	EventDisconnect EventKind = "disconnect"
)

// Event is one activity-log record. Delivery is fire-and-forget; sinks get
// a best-effort copy and must not assume ordering or durability.
type Event struct {
	ID         string
	Kind       EventKind
	ItemID     int
	Username   string
	RemoteAddr string
	At         time.Time
}

// String renders the human-readable line written to the activity log file.
func (e Event) String() string {
	switch e.Kind {
	case EventBorrow, EventReturn, EventWait:
		return fmt.Sprintf("%s %s user=%s item=%d addr=%s",
			e.At.Format(time.RFC3339), e.Kind, e.Username, e.ItemID, e.RemoteAddr)
	default:
		return fmt.Sprintf("%s %s user=%s addr=%s",
			e.At.Format(time.RFC3339), e.Kind, e.Username, e.RemoteAddr)
	}
}
