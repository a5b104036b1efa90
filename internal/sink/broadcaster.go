// Package sink delivers scheduler output to observers: a subscriber
// fan-out feeding the SSE debug stream, a log sink and a tee.
package sink

import (
	crand "crypto/rand"
	"encoding/hex"
	"sync"

	"github.com/banshee-data/stepup.report/internal/pose"
	"github.com/banshee-data/stepup.report/internal/scheduler"
)

// subscriberBuffer is the per-subscriber queue. Events beyond it are
// dropped for that subscriber.
const subscriberBuffer = 32

// EventType names the kind of Event.
type EventType string

const (
	EventSnapshot  EventType = "snapshot"
	EventLandmarks EventType = "landmarks"
	EventDone      EventType = "done"
)

// LegFrame is the overlay payload for one processed frame: the leg
// keypoints that were detected, the skeleton pairs joining them and the
// detected key joints to highlight.
type LegFrame struct {
	SessionID string                `json:"session_id"`
	Frame     scheduler.Frame       `json:"frame"`
	Points    map[int]pose.Landmark `json:"points"`
	Pairs     [][2]int              `json:"pairs"`
	Joints    []int                 `json:"joints"`
}

// Event is one message delivered to subscribers.
type Event struct {
	Type      EventType           `json:"type"`
	Snapshot  *scheduler.Snapshot `json:"snapshot,omitempty"`
	Landmarks *LegFrame           `json:"landmarks,omitempty"`
	Message   string              `json:"message,omitempty"`
}

// legIndices are the keypoints drawn in the overlay.
var legIndices = func() []int {
	var idx []int
	for i := pose.LeftHip; i <= pose.RightFootIndex; i++ {
		idx = append(idx, i)
	}
	return idx
}()

// NewLegFrame extracts the overlay payload from a frame's landmarks.
func NewLegFrame(fl scheduler.FrameLandmarks) *LegFrame {
	joints := make([]int, 0, len(pose.KeyJoints))
	for _, j := range pose.KeyJoints {
		if fl.Landmarks.Has(j) {
			joints = append(joints, j)
		}
	}
	return &LegFrame{
		SessionID: fl.SessionID,
		Frame:     fl.Frame,
		Points:    fl.Landmarks.Subset(legIndices),
		Pairs:     pose.LegPairs,
		Joints:    joints,
	}
}

// Broadcaster fans scheduler output out to any number of subscribers and
// remembers the latest snapshot. Sends never block: a subscriber that
// falls behind misses events.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[string]chan Event
	latest      scheduler.Snapshot
	hasLatest   bool
	closed      bool
}

// NewBroadcaster returns an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subscribers: make(map[string]chan Event)}
}

// randomID generates a random subscriber ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe registers a new subscriber. The ID is used to Unsubscribe. The
// channel is closed on Unsubscribe or Close.
func (b *Broadcaster) Subscribe() (string, chan Event) {
	id := randomID()
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return id, ch
	}
	b.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
}

// Subscribers returns the number of active subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Latest returns the most recent snapshot, if any has been published.
func (b *Broadcaster) Latest() (scheduler.Snapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest, b.hasLatest
}

// Close closes every subscriber channel. Later events are discarded.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}

// PublishLandmarks implements scheduler.Sink.
func (b *Broadcaster) PublishLandmarks(fl scheduler.FrameLandmarks) {
	b.send(Event{Type: EventLandmarks, Landmarks: NewLegFrame(fl)})
}

// PublishSnapshot implements scheduler.Sink.
func (b *Broadcaster) PublishSnapshot(s scheduler.Snapshot) {
	b.mu.Lock()
	b.latest, b.hasLatest = s, true
	b.mu.Unlock()
	b.send(Event{Type: EventSnapshot, Snapshot: &s})
}

// SessionComplete implements scheduler.Sink.
func (b *Broadcaster) SessionComplete(s scheduler.Snapshot) {
	b.mu.Lock()
	b.latest, b.hasLatest = s, true
	b.mu.Unlock()
	b.send(Event{Type: EventDone, Snapshot: &s, Message: CompletionMessage(s.RepCount)})
}

func (b *Broadcaster) send(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			// subscriber is behind; skip rather than stall the scheduler
		}
	}
}
