package eventstore

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/oklog/ulid/v2"
)

const (
	idSeparator = "_"
	seqWidth    = 16
)

// NewStreamID returns a fresh, globally unique stream identifier.
// ULIDs never contain the event id separator.
func NewStreamID() string {
	return ulid.Make().String()
}

// FormatEventID builds the identifier of the seq-th event of streamID.
func FormatEventID(streamID string, seq uint64) string {
	return fmt.Sprintf("%s%s%0*x", streamID, idSeparator, seqWidth, seq)
}

// ParseEventID splits an event identifier into its stream and sequence parts.
func ParseEventID(eventID string) (streamID string, seq uint64, ok bool) {
	i := strings.LastIndex(eventID, idSeparator)
	if i <= 0 || len(eventID)-i-1 != seqWidth {
		return "", 0, false
	}
	seq, err := strconv.ParseUint(eventID[i+1:], 16, 64)
	if err != nil {
		return "", 0, false
	}
	return eventID[:i], seq, true
}
