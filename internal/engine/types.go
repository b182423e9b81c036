package engine

import (
	"context"
	"time"

	"github.com/mhutter/notewire/internal/storage"
	"github.com/mhutter/notewire/internal/transcript"
)

// TranscriptStore is the durable-storage collaborator. CreateTranscripts
// must reject (not silently drop) any record lacking a speaker identity
// when requireSpeaker is set.
type TranscriptStore interface {
	CreateTranscripts(ctx context.Context, records []storage.TranscriptRecord, requireSpeaker bool) error
}

// AuditLog receives append-only records of speaker changes and corrections.
type AuditLog interface {
	AppendChange(ev transcript.SpeakerChangeEvent) error
	AppendCorrection(c transcript.Correction) error
}

// EventBroadcaster pushes engine state changes out to the presentation layer.
type EventBroadcaster interface {
	BroadcastSessionStarted(meetingID string)
	BroadcastSessionEnded(meetingID string, duration time.Duration)
	BroadcastSegment(seg transcript.Segment)
	BroadcastSpeakerAssigned(segmentID, speaker string)
	BroadcastCorrectionApplied(c transcript.Correction)
	BroadcastDiarizationStatus(st transcript.DiarizationState)
	BroadcastFlushCompleted(meetingID string, count int)
}

// SessionInfo is a read-only snapshot of the current session.
type SessionInfo struct {
	MeetingID           string                   `json:"meeting_id"`
	Status              transcript.SessionStatus `json:"status"`
	StartedAt           time.Time                `json:"started_at"`
	UpdatedAt           time.Time                `json:"updated_at"`
	Enabled             bool                     `json:"enabled"`
	Error               string                   `json:"error,omitempty"`
	SegmentCount        int                      `json:"segment_count"`
	SpeakerSegmentCount int                      `json:"speaker_segment_count"`
	CorrectionCount     int                      `json:"correction_count"`
	FlushedCount        int                      `json:"flushed_count"`
}
