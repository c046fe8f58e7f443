package eventstore

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"
)

// DefaultMaxEventsPerStream bounds a single stream's backlog.
const DefaultMaxEventsPerStream = 1000

var (
	// ErrReleased is returned by Append once the store has been released.
	ErrReleased = errors.New("event store released")

	// ErrEmptyStreamID is returned by Append for an empty stream identifier.
	ErrEmptyStreamID = errors.New("stream id must not be empty")
)

// Event is one stored outbound message.
type Event struct {
	ID       string
	StreamID string
	Payload  json.RawMessage
	seq      uint64
}

// Sink receives replayed events in order. Returning an error stops the replay.
type Sink func(eventID string, payload json.RawMessage) error

// Options configures a Store.
type Options struct {
	// MaxEventsPerStream caps each stream's backlog; the oldest events are
	// dropped first. Zero means DefaultMaxEventsPerStream, negative means
	// unbounded.
	MaxEventsPerStream int
}

// Store is an in-memory, per-stream, append-only event log. It is owned by a
// single session and is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	seq      uint64
	streams  map[string][]Event
	limit    int
	released bool
}

// New creates an empty Store.
func New(opts Options) *Store {
	limit := opts.MaxEventsPerStream
	if limit == 0 {
		limit = DefaultMaxEventsPerStream
	}
	return &Store{
		streams: make(map[string][]Event),
		limit:   limit,
	}
}

// Append records payload on streamID and returns its event identifier.
func (s *Store) Append(streamID string, payload json.RawMessage) (string, error) {
	if streamID == "" {
		return "", ErrEmptyStreamID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return "", ErrReleased
	}

	s.seq++
	ev := Event{
		ID:       FormatEventID(streamID, s.seq),
		StreamID: streamID,
		Payload:  append(json.RawMessage(nil), payload...),
		seq:      s.seq,
	}

	events := append(s.streams[streamID], ev)
	if s.limit > 0 && len(events) > s.limit {
		drop := len(events) - s.limit
		// Copy so the dropped prefix can be collected.
		events = append([]Event(nil), events[drop:]...)
	}
	s.streams[streamID] = events

	return ev.ID, nil
}

// ReplayAfter delivers every event of lastEventID's stream that was appended
// after it, in order, and returns that stream's identifier.
//
// An empty, malformed or unknown lastEventID is not an error: ReplayAfter
// returns "" and the caller should start a fresh stream. The only error
// returned is the one produced by sink.
func (s *Store) ReplayAfter(lastEventID string, sink Sink) (string, error) {
	streamID, seq, ok := ParseEventID(lastEventID)
	if !ok {
		return "", nil
	}

	s.mu.RLock()
	if s.released {
		s.mu.RUnlock()
		return "", nil
	}
	events := s.streams[streamID]
	i := sort.Search(len(events), func(i int) bool { return events[i].seq >= seq })
	if i == len(events) || events[i].ID != lastEventID {
		s.mu.RUnlock()
		return "", nil
	}
	// Events are immutable and the slice is never written in place, so the
	// backlog can be delivered without holding the lock.
	backlog := events[i+1:]
	s.mu.RUnlock()

	for _, ev := range backlog {
		if err := sink(ev.ID, ev.Payload); err != nil {
			return streamID, err
		}
	}
	return streamID, nil
}

// Events returns a copy of streamID's backlog.
func (s *Store) Events(streamID string) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event(nil), s.streams[streamID]...)
}

// Len returns the total number of stored events across all streams.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, events := range s.streams {
		n += len(events)
	}
	return n
}

// Release drops every stored event. Further appends fail with ErrReleased and
// replays behave as if the reference event were unknown. Release is idempotent.
func (s *Store) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
	s.streams = nil
}
