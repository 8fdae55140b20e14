package mcp

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/lionkeng/mapbox-mcp-server/internal/metrics"
)

// Event is one incremental unit of a streamed response. Type and ID are
// the optional SSE event and id fields; Data is the event payload, already
// validated as JSON.
type Event struct {
	Type string
	ID   string
	Data json.RawMessage
}

// Stream is a lazy, forward-only sequence of server-sent events produced
// by Client.Stream. It is not restartable: once the server closes the
// connection the sequence is over. Iteration follows the bufio.Scanner
// shape:
//
//	stream, err := c.Stream(ctx, "tools/call", params)
//	if err != nil { ... }
//	defer stream.Close()
//	for stream.Next() {
//	    ev := stream.Event()
//	    ...
//	}
//	if err := stream.Err(); err != nil { ... }
//
// Events with malformed JSON data are logged and skipped; they never
// terminate the sequence. No events are buffered beyond the one returned
// by Event.
type Stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	logger  *zap.Logger

	cur Event
	err error
}

func newStream(body io.ReadCloser, logger *zap.Logger) *Stream {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	return &Stream{body: body, scanner: sc, logger: logger}
}

// Next advances to the next event with a valid, non-empty data payload.
// It returns false when the server closes the connection or a read error
// occurs; check Err after iteration ends.
func (s *Stream) Next() bool {
	var (
		eventType string
		eventID   string
		data      []string
	)

	dispatch := func() bool {
		typ, id, lines := eventType, eventID, data
		eventType, eventID, data = "", "", nil
		if len(lines) == 0 {
			return false
		}
		raw := strings.Join(lines, "\n")

		if !json.Valid([]byte(raw)) {
			metrics.RecordStreamEvent(false)
			s.logger.Warn("skipping malformed stream event",
				zap.String("event", typ),
				zap.String("raw_data", raw),
			)
			return false
		}
		metrics.RecordStreamEvent(true)
		s.cur = Event{Type: typ, ID: id, Data: json.RawMessage(raw)}
		return true
	}

	for s.scanner.Scan() {
		line := s.scanner.Text()

		// A blank line terminates the current frame.
		if line == "" {
			if dispatch() {
				return true
			}
			continue
		}
		// Comment line.
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			eventType = value
		case "id":
			eventID = value
		case "data":
			data = append(data, value)
		}
	}

	// A final frame not followed by a blank line before EOF.
	if dispatch() {
		return true
	}
	s.err = s.scanner.Err()
	return false
}

// Event returns the event produced by the most recent successful Next.
func (s *Stream) Event() Event { return s.cur }

// Err returns the first read error encountered. It is nil when the stream
// ended because the server closed the connection normally.
func (s *Stream) Err() error { return s.err }

// Close releases the underlying HTTP connection. It is safe to call at
// any point, including mid-iteration, and must be called on every path.
func (s *Stream) Close() error { return s.body.Close() }
