package backup

import (
	"sync"
	"time"

	"backup-orchestrator/internal/logging"
)

// JobEventType identifies a job lifecycle transition
type JobEventType string

const (
	JobEventStarted   JobEventType = "started"
	JobEventProgress  JobEventType = "progress"
	JobEventCompleted JobEventType = "completed"
	JobEventFailed    JobEventType = "failed"
	JobEventCancelled JobEventType = "cancelled"
)

// JobEvent is one published lifecycle notification. Job is a snapshot taken
// at publish time; subscribers must treat it as read-only.
type JobEvent struct {
	Type      JobEventType `json:"type"`
	Job       *BackupJob   `json:"job"`
	Timestamp time.Time    `json:"timestamp"`
}

// defaultSubscriberBuffer is used when Subscribe is called with a
// non-positive buffer size
const defaultSubscriberBuffer = 16

// NotificationHub fans job events out to subscribers. Delivery is
// one-directional and strictly non-blocking for the publisher: when a
// subscriber's buffer is full, the oldest buffered event is dropped to make
// room. A slow consumer can therefore miss events but can never stall a
// backup job.
type NotificationHub struct {
	logger *logging.Logger

	mu          sync.Mutex
	subscribers map[int]*hubSubscriber
	nextID      int
	closed      bool
}

type hubSubscriber struct {
	id      int
	ch      chan JobEvent
	dropped uint64
}

// NewNotificationHub creates an empty hub
func NewNotificationHub(logger *logging.Logger) *NotificationHub {
	return &NotificationHub{
		logger:      logger,
		subscribers: make(map[int]*hubSubscriber),
	}
}

// Subscribe registers a consumer and returns its event channel together
// with a cancel function. The cancel function removes the subscription and
// closes the channel; it is safe to call more than once.
func (nh *NotificationHub) Subscribe(buffer int) (<-chan JobEvent, func()) {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}

	nh.mu.Lock()
	defer nh.mu.Unlock()

	if nh.closed {
		ch := make(chan JobEvent)
		close(ch)
		return ch, func() {}
	}

	sub := &hubSubscriber{
		id: nh.nextID,
		ch: make(chan JobEvent, buffer),
	}
	nh.nextID++
	nh.subscribers[sub.id] = sub

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			nh.mu.Lock()
			defer nh.mu.Unlock()
			if _, ok := nh.subscribers[sub.id]; ok {
				delete(nh.subscribers, sub.id)
				close(sub.ch)
			}
		})
	}

	return sub.ch, cancel
}

// Publish snapshots the job and delivers the event to every subscriber
// without blocking
func (nh *NotificationHub) Publish(eventType JobEventType, job *BackupJob) {
	event := JobEvent{
		Type:      eventType,
		Job:       job.Clone(),
		Timestamp: time.Now().UTC(),
	}

	nh.mu.Lock()
	defer nh.mu.Unlock()

	if nh.closed {
		return
	}

	for _, sub := range nh.subscribers {
		nh.deliver(sub, event)
	}
}

// deliver sends one event to one subscriber, dropping the oldest buffered
// event if the buffer is full. Called with nh.mu held, which makes this the
// only sender on the channel.
func (nh *NotificationHub) deliver(sub *hubSubscriber, event JobEvent) {
	select {
	case sub.ch <- event:
		return
	default:
	}

	select {
	case <-sub.ch:
		sub.dropped++
		if nh.logger != nil {
			nh.logger.WithFields(map[string]interface{}{
				"subscriber":    sub.id,
				"dropped_total": sub.dropped,
				"event_type":    string(event.Type),
			}).Debug("Dropped oldest event for slow subscriber")
		}
	default:
	}

	select {
	case sub.ch <- event:
	default:
		sub.dropped++
	}
}

// SubscriberCount returns the number of active subscriptions
func (nh *NotificationHub) SubscriberCount() int {
	nh.mu.Lock()
	defer nh.mu.Unlock()
	return len(nh.subscribers)
}

// Close closes every subscriber channel and rejects further publishes.
// Subscriptions created after Close receive an already-closed channel.
func (nh *NotificationHub) Close() {
	nh.mu.Lock()
	defer nh.mu.Unlock()

	if nh.closed {
		return
	}
	nh.closed = true

	for id, sub := range nh.subscribers {
		close(sub.ch)
		delete(nh.subscribers, id)
	}
}
