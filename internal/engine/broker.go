package engine

import (
	"sync"

	"github.com/pointcloud/backend/internal/model"
)

// subscriberBufferSize is the channel buffer for each job subscriber.
// A full buffer drops the oldest pending snapshot so the newest always fits.
const subscriberBufferSize = 16

// Broker fans out persisted job snapshots to per-job subscribers.
// It is safe for concurrent use.
//
// Topics exist only while a job has subscribers or a running task. Close
// forgets the job entirely; a subscriber arriving after Close learns the
// outcome from the store, not from the broker.
type Broker struct {
	mu     sync.Mutex
	topics map[string]*jobTopic
}

type jobTopic struct {
	subs   map[int]chan model.Job
	nextID int
}

// NewBroker creates a new job event broker.
func NewBroker() *Broker {
	return &Broker{
		topics: make(map[string]*jobTopic),
	}
}

// Subscribe returns a channel of snapshots for jobID and an unsubscribe
// function. The channel is closed when the job's task calls Close.
func (b *Broker) Subscribe(jobID string) (<-chan model.Job, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[jobID]
	if !ok {
		t = &jobTopic{subs: make(map[int]chan model.Job)}
		b.topics[jobID] = t
	}

	ch := make(chan model.Job, subscriberBufferSize)
	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, id)
		if len(t.subs) == 0 && b.topics[jobID] == t {
			delete(b.topics, jobID)
		}
	}
}

// Publish sends a snapshot to all subscribers of its job.
func (b *Broker) Publish(j model.Job) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[j.ID]
	if !ok {
		return
	}

	for _, ch := range t.subs {
		select {
		case ch <- j:
		default:
			// Slow subscriber: evict the oldest snapshot, keep the newest.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- j:
			default:
			}
		}
	}
}

// Close signals that no more snapshots will be published for jobID, closes
// its subscribers' channels and drops the topic.
func (b *Broker) Close(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[jobID]
	if !ok {
		return
	}
	delete(b.topics, jobID)
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
}

// Topics returns the number of jobs the broker currently tracks.
func (b *Broker) Topics() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics)
}
