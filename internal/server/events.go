package server

import (
	"time"

	"github.com/mhutter/notewire/internal/engine"
	"github.com/mhutter/notewire/internal/transcript"
)

const EventVersion = 1

type Event struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	Timestamp string `json:"timestamp"`
}

type SegmentEvent struct {
	Event
	Segment transcript.Segment `json:"segment"`
}

type SpeakerAssignedEvent struct {
	Event
	SegmentID string `json:"segment_id"`
	Speaker   string `json:"speaker"`
}

type CorrectionAppliedEvent struct {
	Event
	Correction transcript.Correction `json:"correction"`
}

type SessionStartedEvent struct {
	Event
	MeetingID string `json:"meeting_id"`
}

type SessionEndedEvent struct {
	Event
	MeetingID string  `json:"meeting_id"`
	Duration  float64 `json:"duration"`
}

type DiarizationStatusEvent struct {
	Event
	State        transcript.StreamState `json:"state"`
	SpeakerCount int                    `json:"speaker_count"`
	AudioSeconds float64                `json:"audio_seconds"`
	Calibrated   bool                   `json:"calibrated"`
}

type FlushCompletedEvent struct {
	Event
	MeetingID string `json:"meeting_id"`
	Count     int    `json:"count"`
}

// StateSnapshotEvent is sent once per websocket connection so a client
// joining mid-session can render current state before incremental events.
type StateSnapshotEvent struct {
	Event
	Session     engine.SessionInfo          `json:"session"`
	Diarization transcript.DiarizationState `json:"diarization"`
}

func newEvent(eventType string, now time.Time) Event {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return Event{
		Type:      eventType,
		Version:   EventVersion,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}
