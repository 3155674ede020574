package agent

import (
	"encoding/json"
	"errors"
	"io"
	"iter"
	"log/slog"
	"time"

	"github.com/ashureev/spendchat/internal/adk"
	"github.com/ashureev/spendchat/internal/domain"
	"github.com/ashureev/spendchat/internal/sse"
)

const streamInterruptedMessage = "agent stream interrupted"

// Transcoder turns the upstream event stream into outbound stream events.
type Transcoder struct {
	maxLineSize int
	now         func() time.Time
	logger      *slog.Logger
}

// NewTranscoder creates a transcoder. maxLineSize bounds a single upstream
// line; zero selects the sse package default.
func NewTranscoder(maxLineSize int, logger *slog.Logger) *Transcoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transcoder{maxLineSize: maxLineSize, now: time.Now, logger: logger}
}

// Events yields the session event, then one content event per non-empty
// text fragment in upstream order. Records that fail to decode are skipped.
// A read error yields a single error event and ends the sequence; a clean
// end of the upstream ends it without a terminal event.
//
// The sequence is pull driven: upstream is only read again once the
// consumer has accepted the previous event, and stopping the range stops
// reading.
func (t *Transcoder) Events(sessionID string, upstream io.Reader) iter.Seq[Event] {
	return t.EventsWithStats(sessionID, upstream, nil)
}

// EventsWithStats is Events with a summary written to stats, if non-nil,
// once the sequence ends.
func (t *Transcoder) EventsWithStats(sessionID string, upstream io.Reader, stats *TurnStats) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		var st TurnStats
		defer func() {
			if stats != nil {
				*stats = st
			}
			t.logger.Debug("Agent stream finished",
				"session_id", sessionID,
				"content_events", st.ContentEvents,
				"text_bytes", st.TextBytes,
				"skipped_records", st.SkippedRecords,
				"read_error", st.ReadError != nil,
			)
		}()

		if sessionID != "" {
			if !yield(domain.SessionEvent(sessionID)) {
				return
			}
		}

		reader := sse.NewReader(upstream, t.maxLineSize)
		for {
			payload, err := reader.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				st.ReadError = err
				t.logger.Error("Agent stream read failed", "session_id", sessionID, "error", err)
				yield(domain.ErrorEvent(streamInterruptedMessage + ": " + err.Error()))
				return
			}

			var record adk.Event
			if err := json.Unmarshal([]byte(payload), &record); err != nil {
				st.SkippedRecords++
				t.logger.Warn("Could not parse agent event, skipping",
					"session_id", sessionID,
					"payload_preview", preview(payload, 100),
					"error", err,
				)
				continue
			}

			for _, text := range record.Texts() {
				st.ContentEvents++
				st.TextBytes += len(text)
				if !yield(domain.ContentEvent(text, t.now())) {
					return
				}
			}
		}
	}
}
