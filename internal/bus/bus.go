package bus

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// EventType discriminates progress events.
type EventType string

const (
	StageStart    EventType = "stage_start"
	StageComplete EventType = "stage_complete"
	StageFailed   EventType = "stage_failed"
	StepProgress  EventType = "step_progress"
	Heartbeat     EventType = "heartbeat"
	Done          EventType = "done"
)

// Terminal reports whether the event ends a run's progress stream.
func (t EventType) Terminal() bool {
	return t == Done || t == StageFailed
}

// Event is an immutable, timestamped progress notification. Fire-and-forget:
// no acknowledgment, no replay for late subscribers except the single most
// recent heartbeat on connect.
type Event struct {
	Type      EventType       `json:"type"`
	Stage     string          `json:"stage,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"` // unix milliseconds
}

// NewEvent stamps an event with the current time.
func NewEvent(t EventType, stage string, payload any) Event {
	var raw json.RawMessage
	if payload != nil {
		raw, _ = json.Marshal(payload)
	}
	return Event{Type: t, Stage: stage, Payload: raw, Timestamp: time.Now().UnixMilli()}
}

// subscriberBuffer bounds each subscriber's queue. A full queue drops events
// for that subscriber instead of stalling the publisher.
const subscriberBuffer = 64

type subscriber struct {
	ch chan Event
}

type topic struct {
	subs          map[*subscriber]struct{}
	lastHeartbeat *Event
}

// Bus is the per-job publish/subscribe channel for progress events. The
// topic map is the only structure shared between the orchestrator and its
// observers; all access is lock-guarded and publishing never blocks.
type Bus struct {
	mu     sync.Mutex
	topics map[string]*topic
	log    *slog.Logger
}

func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{topics: map[string]*topic{}, log: logger}
}

// Publish delivers event to every current subscriber of jobID, best-effort.
// A slow or absent subscriber never stalls the publisher. A terminal event
// closes every subscriber channel and tears the topic down.
func (b *Bus) Publish(jobID string, event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tp := b.topics[jobID]
	if tp == nil {
		if event.Type.Terminal() {
			return // nobody ever watched; nothing to tear down
		}
		tp = &topic{subs: map[*subscriber]struct{}{}}
		b.topics[jobID] = tp
	}

	if event.Type == Heartbeat {
		tp.lastHeartbeat = &event
	}

	dropped := 0
	for s := range tp.subs {
		select {
		case s.ch <- event:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		b.log.Warn("bus.publish.dropped", "job_id", jobID, "type", event.Type, "subscribers", dropped)
	}

	if event.Type.Terminal() {
		for s := range tp.subs {
			close(s.ch)
		}
		delete(b.topics, jobID)
	}
}

// Subscribe attaches a new observer to jobID and returns a live, ordered
// event channel plus a cancel function. History is not replayed; the most
// recent heartbeat, if any, is delivered first so a freshly attached client
// sees the connection is alive. The channel closes on terminal event or
// cancel.
func (b *Bus) Subscribe(jobID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tp := b.topics[jobID]
	if tp == nil {
		tp = &topic{subs: map[*subscriber]struct{}{}}
		b.topics[jobID] = tp
	}

	s := &subscriber{ch: make(chan Event, subscriberBuffer)}
	tp.subs[s] = struct{}{}
	if tp.lastHeartbeat != nil {
		s.ch <- *tp.lastHeartbeat
	}

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		tp, ok := b.topics[jobID]
		if !ok {
			return // topic already torn down by a terminal event
		}
		if _, live := tp.subs[s]; !live {
			return
		}
		delete(tp.subs, s)
		close(s.ch)
		// Publish recreates topics on demand, so an empty one is pure
		// garbage; dropping it here keeps late attaches to finished jobs
		// from pinning entries for the process lifetime.
		if len(tp.subs) == 0 {
			delete(b.topics, jobID)
		}
	}
	return s.ch, cancel
}

// Topics reports the number of live topics. Used by tests and diagnostics.
func (b *Bus) Topics() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics)
}
