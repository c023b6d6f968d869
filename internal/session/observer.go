package session

import (
	"time"

	"goftpd/util"
)

// EventKind identifies what an Event reports.
type EventKind int

const (
	EventConnect EventKind = iota
	EventCommand
	EventError
	EventDisconnect
)

func (k EventKind) String() string {
	switch k {
	case EventConnect:
		return "connect"
	case EventCommand:
		return "command"
	case EventError:
		return "error"
	case EventDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// Event describes something that happened on a session.
type Event struct {
	Kind      EventKind
	SessionID string
	Remote    string
	Verb      Verb
	Name      string        // verb token as sent, for unknown commands
	Code      int           // final reply code (EventCommand)
	Duration  time.Duration // dispatch time, or session lifetime on disconnect
	Err       error         // filesystem cause or transport failure
}

// Observer receives session events.  Observe is called synchronously by
// whoever drives the session: under Serve, always the goroutine running
// Serve, so calls for one session never overlap.  It must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

// Observers fans an event out to every non-nil member.
type Observers []Observer

func (obs Observers) Observe(e Event) {
	for _, o := range obs {
		if o != nil {
			o.Observe(e)
		}
	}
}

// LogObserver writes session events to a Logger.
type LogObserver struct {
	Logger *util.Logger
}

func (l LogObserver) Observe(e Event) {
	if l.Logger == nil {
		return
	}
	log := l.Logger.With("session " + shortID(e.SessionID))
	switch e.Kind {
	case EventConnect:
		log.Info("connected from %s", e.Remote)
	case EventCommand:
		name := e.Name
		if name == "" {
			name = e.Verb.String()
		}
		if e.Err != nil {
			log.Verbose("%s -> %d (%v) in %s", name, e.Code, e.Err, e.Duration)
		} else {
			log.Verbose("%s -> %d in %s", name, e.Code, e.Duration)
		}
	case EventError:
		log.Warn("connection error: %v", e.Err)
	case EventDisconnect:
		log.Info("closed after %s", e.Duration.Truncate(time.Millisecond))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
