package eventstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	id      string
	payload string
}

func collect(out *[]recorded) Sink {
	return func(eventID string, payload json.RawMessage) error {
		*out = append(*out, recorded{id: eventID, payload: string(payload)})
		return nil
	}
}

func msg(n int) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"n":%d}`, n))
}

func TestStore_ReplayAfter(t *testing.T) {
	s := New(Options{})
	stream := NewStreamID()

	e1, err := s.Append(stream, msg(1))
	require.NoError(t, err)
	e2, err := s.Append(stream, msg(2))
	require.NoError(t, err)
	e3, err := s.Append(stream, msg(3))
	require.NoError(t, err)

	var got []recorded
	streamID, err := s.ReplayAfter(e1, collect(&got))
	require.NoError(t, err)
	assert.Equal(t, stream, streamID)
	assert.Equal(t, []recorded{{e2, `{"n":2}`}, {e3, `{"n":3}`}}, got)

	got = nil
	streamID, err = s.ReplayAfter(e3, collect(&got))
	require.NoError(t, err)
	assert.Equal(t, stream, streamID)
	assert.Empty(t, got)
}

func TestStore_ReplayAfterUnknown(t *testing.T) {
	s := New(Options{})
	stream := NewStreamID()
	_, err := s.Append(stream, msg(1))
	require.NoError(t, err)

	tests := []struct {
		name string
		id   string
	}{
		{"empty", ""},
		{"garbage", "not-an-event-id"},
		{"unknown stream", FormatEventID(NewStreamID(), 1)},
		{"unknown seq", FormatEventID(stream, 42)},
		{"bad hex", stream + "_zzzzzzzzzzzzzzzz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			streamID, err := s.ReplayAfter(tt.id, func(string, json.RawMessage) error {
				called = true
				return nil
			})
			require.NoError(t, err)
			assert.Empty(t, streamID)
			assert.False(t, called)
		})
	}
}

func TestStore_CrossStreamIsolation(t *testing.T) {
	s := New(Options{})
	s1, s2 := NewStreamID(), NewStreamID()

	first, err := s.Append(s1, msg(1))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := s.Append(s2, msg(100+i))
		require.NoError(t, err)
		_, err = s.Append(s1, msg(2+i))
		require.NoError(t, err)
	}

	var got []recorded
	streamID, err := s.ReplayAfter(first, collect(&got))
	require.NoError(t, err)
	assert.Equal(t, s1, streamID)
	require.Len(t, got, 5)
	for i, r := range got {
		assert.Equal(t, fmt.Sprintf(`{"n":%d}`, 2+i), r.payload)
		gotStream, _, ok := ParseEventID(r.id)
		require.True(t, ok)
		assert.Equal(t, s1, gotStream)
	}
}

func TestStore_EventIDsSortInEmissionOrder(t *testing.T) {
	s := New(Options{MaxEventsPerStream: -1})
	stream := NewStreamID()

	var prev string
	for i := 0; i < 300; i++ {
		id, err := s.Append(stream, msg(i))
		require.NoError(t, err)
		if prev != "" {
			assert.Less(t, prev, id)
		}
		prev = id
	}
}

func TestStore_SinkErrorStopsReplay(t *testing.T) {
	s := New(Options{})
	stream := NewStreamID()
	first, _ := s.Append(stream, msg(1))
	_, _ = s.Append(stream, msg(2))
	_, _ = s.Append(stream, msg(3))

	boom := errors.New("write failed")
	calls := 0
	streamID, err := s.ReplayAfter(first, func(string, json.RawMessage) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, stream, streamID)
	assert.Equal(t, 1, calls)
}

func TestStore_Cap(t *testing.T) {
	s := New(Options{MaxEventsPerStream: 3})
	stream := NewStreamID()

	var ids []string
	for i := 1; i <= 5; i++ {
		id, err := s.Append(stream, msg(i))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	assert.Len(t, s.Events(stream), 3)

	// The first two events were dropped and can no longer anchor a resume.
	streamID, err := s.ReplayAfter(ids[0], collect(new([]recorded)))
	require.NoError(t, err)
	assert.Empty(t, streamID)

	var got []recorded
	streamID, err = s.ReplayAfter(ids[2], collect(&got))
	require.NoError(t, err)
	assert.Equal(t, stream, streamID)
	assert.Equal(t, []recorded{{ids[3], `{"n":4}`}, {ids[4], `{"n":5}`}}, got)
}

func TestStore_Release(t *testing.T) {
	s := New(Options{})
	stream := NewStreamID()
	id, err := s.Append(stream, msg(1))
	require.NoError(t, err)

	s.Release()
	s.Release()

	_, err = s.Append(stream, msg(2))
	assert.ErrorIs(t, err, ErrReleased)

	streamID, err := s.ReplayAfter(id, collect(new([]recorded)))
	require.NoError(t, err)
	assert.Empty(t, streamID)
	assert.Zero(t, s.Len())
}

func TestStore_AppendEmptyStream(t *testing.T) {
	s := New(Options{})
	_, err := s.Append("", msg(1))
	assert.ErrorIs(t, err, ErrEmptyStreamID)
}

func TestStore_ConcurrentAppendUniqueIDs(t *testing.T) {
	s := New(Options{MaxEventsPerStream: -1})
	streams := []string{NewStreamID(), NewStreamID(), NewStreamID()}

	var (
		mu  sync.Mutex
		ids = make(map[string]struct{})
		wg  sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				id, err := s.Append(streams[(w+i)%len(streams)], msg(i))
				if err != nil {
					t.Errorf("Append: %v", err)
					return
				}
				mu.Lock()
				ids[id] = struct{}{}
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	assert.Len(t, ids, 800)
	assert.Equal(t, 800, s.Len())

	for _, stream := range streams {
		events := s.Events(stream)
		for i := 1; i < len(events); i++ {
			assert.Less(t, events[i-1].ID, events[i].ID)
		}
	}
}

func TestParseEventID(t *testing.T) {
	stream := NewStreamID()
	id := FormatEventID(stream, 255)

	gotStream, seq, ok := ParseEventID(id)
	require.True(t, ok)
	assert.Equal(t, stream, gotStream)
	assert.Equal(t, uint64(255), seq)
	assert.Equal(t, stream+"_00000000000000ff", id)

	_, _, ok = ParseEventID("_00000000000000ff")
	assert.False(t, ok)
	_, _, ok = ParseEventID(stream + "_ff")
	assert.False(t, ok)
}
