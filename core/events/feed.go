package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultHistory is the number of records retained by a Feed when no
// capacity is supplied.
const DefaultHistory = 1024

// Record is an event stamped with its position in the feed.
type Record struct {
	ID         string            `json:"id"`
	Sequence   uint64            `json:"sequence"`
	Time       time.Time         `json:"time"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Sink persists records synchronously as they are emitted.
type Sink interface {
	Store(rec Record) error
}

// Feed sequences emitted events, keeps a bounded history and fans records out
// to sinks and live subscribers. Slow subscribers lose records rather than
// block emitters.
type Feed struct {
	mu       sync.RWMutex
	seq      uint64
	history  []Record
	capacity int
	subs     map[*Subscription]struct{}
	sinks    []Sink
	onError  func(Record, error)
	nowFn    func() time.Time
}

// NewFeed constructs a feed retaining up to capacity records.
func NewFeed(capacity int) *Feed {
	if capacity <= 0 {
		capacity = DefaultHistory
	}
	return &Feed{
		capacity: capacity,
		subs:     make(map[*Subscription]struct{}),
		nowFn:    time.Now,
	}
}

// SetNowFunc overrides the clock used to stamp records.
func (f *Feed) SetNowFunc(now func() time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if now == nil {
		now = time.Now
	}
	f.nowFn = now
}

// Resume continues numbering after seq, typically the last sequence persisted
// by a sink before a restart.
func (f *Feed) Resume(seq uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if seq > f.seq {
		f.seq = seq
	}
}

// AddSink registers a sink. onError, when set, observes failed stores.
func (f *Feed) AddSink(sink Sink, onError func(Record, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, sink)
	if onError != nil {
		f.onError = onError
	}
}

// Emit implements the Emitter interface.
func (f *Feed) Emit(evt Event) {
	raw := Materialize(evt)
	if raw == nil {
		return
	}
	f.mu.Lock()
	f.seq++
	attrs := make(map[string]string, len(raw.Attributes))
	for k, v := range raw.Attributes {
		attrs[k] = v
	}
	rec := Record{
		ID:         uuid.NewString(),
		Sequence:   f.seq,
		Time:       f.nowFn().UTC(),
		Type:       raw.Type,
		Attributes: attrs,
	}
	f.history = append(f.history, rec)
	if len(f.history) > f.capacity {
		f.history = append([]Record(nil), f.history[len(f.history)-f.capacity:]...)
	}
	subs := make([]*Subscription, 0, len(f.subs))
	for sub := range f.subs {
		subs = append(subs, sub)
	}
	sinks := append([]Sink(nil), f.sinks...)
	onError := f.onError
	f.mu.Unlock()

	for _, sink := range sinks {
		if err := sink.Store(rec); err != nil && onError != nil {
			onError(rec, err)
		}
	}

	for _, sub := range subs {
		sub.deliver(rec)
	}
}

// Since returns up to limit retained records with a sequence greater than after.
// A non-empty eventType restricts the result to that type.
func (f *Feed) Since(after uint64, eventType string, limit int) []Record {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Record, 0)
	for _, rec := range f.history {
		if rec.Sequence <= after {
			continue
		}
		if eventType != "" && rec.Type != eventType {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Subscribe registers a live subscriber with the given channel buffer.
func (f *Feed) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 64
	}
	sub := &Subscription{feed: f, ch: make(chan Record, buffer)}
	f.mu.Lock()
	f.subs[sub] = struct{}{}
	f.mu.Unlock()
	return sub
}

// Subscribers reports the number of live subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// Subscription receives records emitted after it was created.
type Subscription struct {
	feed    *Feed
	mu      sync.Mutex
	ch      chan Record
	closed  bool
	dropped uint64
}

// C returns the delivery channel. It is closed by Close.
func (s *Subscription) C() <-chan Record { return s.ch }

// Dropped reports how many records were discarded because the buffer was full.
func (s *Subscription) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close detaches the subscription from its feed.
func (s *Subscription) Close() {
	s.feed.mu.Lock()
	delete(s.feed.subs, s)
	s.feed.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

func (s *Subscription) deliver(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- rec:
	default:
		s.dropped++
	}
}

// Buffer holds events until Flush so that callers can drop the events of a
// reverted operation.
type Buffer struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(evt Event) {
	if evt == nil {
		return
	}
	b.mu.Lock()
	b.events = append(b.events, evt)
	b.mu.Unlock()
}

// Len reports the number of buffered events.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Flush forwards every buffered event to dst and empties the buffer.
func (b *Buffer) Flush(dst Emitter) {
	b.mu.Lock()
	pending := b.events
	b.events = nil
	b.mu.Unlock()
	if dst == nil {
		return
	}
	for _, evt := range pending {
		dst.Emit(evt)
	}
}

// Discard drops every buffered event.
func (b *Buffer) Discard() {
	b.mu.Lock()
	b.events = nil
	b.mu.Unlock()
}
