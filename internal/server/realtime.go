package server

import (
	"context"
	"sync"
	"time"
)

// Dispatcher topics mirror the mutable table names.
const (
	TopicExercises   = "exercises"
	TopicWorkouts    = "workouts"
	TopicSchedules   = "schedules"
	TopicOverrides   = "overrides"
	TopicCompletions = "completions"

	topicWildcard          = "*"
	realtimeEventHeartbeat = "heartbeat"
)

// RealtimeMessage announces that rows under a topic changed. Clients refetch;
// the message carries identifiers, not payloads.
type RealtimeMessage struct {
	Topic     string
	EventType string
	IDs       []string
	Timestamp time.Time
}

// RealtimeDispatcher fans change notifications out to subscribers by topic.
// Delivery is best effort: a subscriber with a full buffer misses messages.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers for the given topics, or every topic when none are
// named. The subscription ends when ctx is cancelled or cleanup is called.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, topics ...string) (<-chan RealtimeMessage, func()) {
	if len(topics) == 0 {
		topics = []string{topicWildcard}
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	for _, topic := range topics {
		d.registerSubscriber(topic, subscriber)
	}
	cleanup := func() {
		for _, topic := range topics {
			d.unregisterSubscriber(topic, subscriber.id)
		}
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.Topic == "" || message.EventType == "" {
		return
	}
	d.mu.RLock()
	copies := make([]*realtimeSubscriber, 0, len(d.subscribers[message.Topic])+len(d.subscribers[topicWildcard]))
	for _, subscriber := range d.subscribers[message.Topic] {
		copies = append(copies, subscriber)
	}
	for _, subscriber := range d.subscribers[topicWildcard] {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(topic string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[topic]; !ok {
		d.subscribers[topic] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[topic][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(topic string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[topic]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, topic)
		}
	}
	d.mu.Unlock()
}
