// Package metrics provides lightweight counters for tracking the runtime
// behaviour of the control-channel server.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"goftpd/internal/session"
)

// Collector tracks server-wide metrics.  It implements session.Observer,
// so it can be plugged straight into a session's observer chain.
// A nil Collector is safe to use; all methods become no-ops.
type Collector struct {
	sessionsActive   atomic.Int64
	sessionsTotal    atomic.Int64
	commandsTotal    atomic.Int64
	failedCommands   atomic.Int64 // replies with a 4xx or 5xx code
	bytesIn          atomic.Int64
	bytesOut         atomic.Int64
	tunnelReconnects atomic.Int64
	errorsTotal      atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	byVerb       map[string]int64
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now(), byVerb: make(map[string]int64)}
}

// Observe folds a session event into the counters.
func (c *Collector) Observe(e session.Event) {
	if c == nil {
		return
	}
	switch e.Kind {
	case session.EventConnect:
		c.SessionOpened()
	case session.EventDisconnect:
		c.SessionClosed()
	case session.EventCommand:
		c.RecordCommand(commandName(e), e.Code)
	case session.EventError:
		if e.Err != nil {
			c.RecordError(e.Err.Error())
		} else {
			c.RecordError("connection error")
		}
	}
}

func commandName(e session.Event) string {
	if e.Verb != session.VerbUnknown {
		return e.Verb.String()
	}
	return "UNKNOWN"
}

// ── Session metrics ──────────────────────────────────────────────────

// SessionOpened increments both the active and total counters.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(1)
	c.sessionsTotal.Add(1)
}

// SessionClosed decrements the active session counter.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(-1)
}

// ActiveSessions returns the current number of open sessions.
func (c *Collector) ActiveSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsActive.Load()
}

// TotalSessions returns the lifetime session count.
func (c *Collector) TotalSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsTotal.Load()
}

// ── Command metrics ──────────────────────────────────────────────────

// RecordCommand counts one dispatched command and its reply code.
// Unsupported verbs are grouped under "UNKNOWN" so clients cannot grow
// the map without bound.
func (c *Collector) RecordCommand(verb string, code int) {
	if c == nil {
		return
	}
	c.commandsTotal.Add(1)
	if code >= 400 {
		c.failedCommands.Add(1)
	}
	c.mu.Lock()
	c.byVerb[verb]++
	c.mu.Unlock()
}

// TotalCommands returns the number of commands dispatched.
func (c *Collector) TotalCommands() int64 {
	if c == nil {
		return 0
	}
	return c.commandsTotal.Load()
}

// FailedCommands returns the number of commands answered with 4xx/5xx.
func (c *Collector) FailedCommands() int64 {
	if c == nil {
		return 0
	}
	return c.failedCommands.Load()
}

// CommandCount returns how many times verb was dispatched.
func (c *Collector) CommandCount(verb string) int64 {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byVerb[verb]
}

// ── I/O metrics ──────────────────────────────────────────────────────

// BytesReceived records n bytes read from clients.
func (c *Collector) BytesReceived(n int64) {
	if c == nil {
		return
	}
	c.bytesIn.Add(n)
}

// BytesSent records n bytes written to clients.
func (c *Collector) BytesSent(n int64) {
	if c == nil {
		return
	}
	c.bytesOut.Add(n)
}

// TotalBytesIn returns total bytes received.
func (c *Collector) TotalBytesIn() int64 {
	if c == nil {
		return 0
	}
	return c.bytesIn.Load()
}

// TotalBytesOut returns total bytes sent.
func (c *Collector) TotalBytesOut() int64 {
	if c == nil {
		return 0
	}
	return c.bytesOut.Load()
}

// ── Tunnel metrics ───────────────────────────────────────────────────

// TunnelReconnect records a gateway re-establishment.
func (c *Collector) TunnelReconnect() {
	if c == nil {
		return
	}
	c.tunnelReconnects.Add(1)
}

// TunnelReconnects returns the total gateway reconnection count.
func (c *Collector) TunnelReconnects() int64 {
	if c == nil {
		return 0
	}
	return c.tunnelReconnects.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// VerbCount is one row of the per-verb breakdown.
type VerbCount struct {
	Verb  string `json:"verb"`
	Count int64  `json:"count"`
}

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime           string      `json:"uptime"`
	SessionsActive   int64       `json:"sessions_active"`
	SessionsTotal    int64       `json:"sessions_total"`
	CommandsTotal    int64       `json:"commands_total"`
	CommandsFailed   int64       `json:"commands_failed"`
	Commands         []VerbCount `json:"commands,omitempty"`
	BytesIn          int64       `json:"bytes_in"`
	BytesOut         int64       `json:"bytes_out"`
	TunnelReconnects int64       `json:"tunnel_reconnects"`
	ErrorsTotal      int64       `json:"errors_total"`
	LastError        string      `json:"last_error,omitempty"`
	LastErrorMessage string      `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.  Commands is sorted
// by verb.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:           time.Since(c.startTime).Truncate(time.Second).String(),
		SessionsActive:   c.sessionsActive.Load(),
		SessionsTotal:    c.sessionsTotal.Load(),
		CommandsTotal:    c.commandsTotal.Load(),
		CommandsFailed:   c.failedCommands.Load(),
		BytesIn:          c.bytesIn.Load(),
		BytesOut:         c.bytesOut.Load(),
		TunnelReconnects: c.tunnelReconnects.Load(),
		ErrorsTotal:      c.errorsTotal.Load(),
	}
	for verb, n := range c.byVerb {
		s.Commands = append(s.Commands, VerbCount{Verb: verb, Count: n})
	}
	sort.Slice(s.Commands, func(i, j int) bool { return s.Commands[i].Verb < s.Commands[j].Verb })
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
