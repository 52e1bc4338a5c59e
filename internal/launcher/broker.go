package launcher

import "sync"

// subscriberBuffer is the channel buffer for each output subscriber. Lines
// are dropped for a subscriber that falls this far behind.
const subscriberBuffer = 128

// Broker fans worker output out to live subscribers, one stream per worker.
// It is safe for concurrent use.
//
// Finished streams are kept as closed markers so a subscriber arriving after
// the worker exited gets a closed channel instead of blocking forever.
type Broker struct {
	mu      sync.Mutex
	streams map[string]*stream
}

type stream struct {
	subs   map[int]chan string
	nextID int
	closed bool
}

// NewBroker creates an empty output broker.
func NewBroker() *Broker {
	return &Broker{
		streams: make(map[string]*stream),
	}
}

// Subscribe returns a channel receiving output lines for the given worker
// and an unsubscribe function. If the worker already finished, the returned
// channel is closed.
func (b *Broker) Subscribe(workerID string) (<-chan string, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.streams[workerID]
	if !ok {
		st = &stream{subs: make(map[int]chan string)}
		b.streams[workerID] = st
	}

	ch := make(chan string, subscriberBuffer)
	if st.closed {
		close(ch)
		return ch, func() {}
	}

	id := st.nextID
	st.nextID++
	st.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(st.subs, id)
	}
}

// Publish delivers a line to every subscriber of the worker. Slow subscribers
// lose lines rather than slowing the worker down.
func (b *Broker) Publish(workerID, line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.streams[workerID]
	if !ok || st.closed {
		return
	}

	for _, ch := range st.subs {
		select {
		case ch <- line:
		default:
		}
	}
}

// Close marks the worker's stream finished and closes all subscriber channels.
func (b *Broker) Close(workerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.streams[workerID]
	if !ok {
		b.streams[workerID] = &stream{subs: make(map[int]chan string), closed: true}
		return
	}

	st.closed = true
	for id, ch := range st.subs {
		close(ch)
		delete(st.subs, id)
	}
}
