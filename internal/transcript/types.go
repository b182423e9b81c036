package transcript

import (
	"fmt"
	"strings"
)

// SessionStatus is the lifecycle state of a recording session.
type SessionStatus string

const (
	StatusIdle       SessionStatus = "idle"
	StatusStarting   SessionStatus = "starting"
	StatusActive     SessionStatus = "active"
	StatusPaused     SessionStatus = "paused"
	StatusProcessing SessionStatus = "processing"
	StatusError      SessionStatus = "error"
)

// Segment is one unit of recognized speech. Start and end times are
// milliseconds relative to session start. The ID is stable across
// interim→final revisions: receiving a known ID again is an update,
// never a new entry.
type Segment struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	StartMS    int64   `json:"start_ms"`
	EndMS      int64   `json:"end_ms"`
	Confidence float64 `json:"confidence"`
	IsFinal    bool    `json:"is_final"`

	// SpeakerID is a persistent cross-session speaker identity.
	SpeakerID string `json:"speaker_id,omitempty"`
	// Speaker is the session-local diarization label, e.g. "Speaker_0".
	Speaker string `json:"speaker,omitempty"`
}

// SegmentPatch merges onto an existing Segment. Nil fields are left alone.
type SegmentPatch struct {
	Text       *string
	StartMS    *int64
	EndMS      *int64
	Confidence *float64
	IsFinal    *bool
	Speaker    *string
	SpeakerID  *string
}

// SpeakerSegment is a diarization assertion that a speaker label was active
// over a time interval. Times are seconds relative to session start.
type SpeakerSegment struct {
	ID         string  `json:"id"`
	Speaker    string  `json:"speaker"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
	IsFinal    bool    `json:"is_final"`
	Corrected  bool    `json:"corrected"`
}

// SpeakerChangeEvent records a detected change of active speaker.
// PreviousSpeaker is empty for the first speaker of a session.
type SpeakerChangeEvent struct {
	Time            float64 `json:"time"`
	PreviousSpeaker string  `json:"previous_speaker,omitempty"`
	NewSpeaker      string  `json:"new_speaker"`
	Confidence      float64 `json:"confidence"`
}

// Correction describes a retroactive revision of an earlier speaker
// assignment over a bounded time range (seconds).
type Correction struct {
	ID                 string   `json:"id"`
	OriginalSpeaker    string   `json:"original_speaker"`
	CorrectedSpeaker   string   `json:"corrected_speaker"`
	Start              float64  `json:"start"`
	End                float64  `json:"end"`
	AffectedSegmentIDs []string `json:"affected_segment_ids"`
	Reason             string   `json:"reason"`
}

// DiarizationAvailability is the diarization engine's one-time self-report
// on whether true speaker separation is possible this session.
type DiarizationAvailability struct {
	Available    bool     `json:"available"`
	Reason       string   `json:"reason,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
	Message      string   `json:"message,omitempty"`
}

// StreamState is the operational state of the diarization engine.
type StreamState string

const (
	StreamIdle         StreamState = "idle"
	StreamInitializing StreamState = "initializing"
	StreamReady        StreamState = "ready"
	StreamActive       StreamState = "active"
	StreamPaused       StreamState = "paused"
	StreamStopping     StreamState = "stopping"
	StreamError        StreamState = "error"
)

// DiarizationState is a periodic status update from the diarization engine.
type DiarizationState struct {
	State        StreamState `json:"state"`
	SpeakerCount int         `json:"speaker_count"`
	AudioSeconds float64     `json:"audio_seconds"`
	Calibrated   bool        `json:"calibrated"`
}

// SpeakerMatch is the result of an on-demand speaker lookup. Overlap is the
// shared extent in seconds; it is zero for nearest-neighbor matches.
type SpeakerMatch struct {
	Speaker    string  `json:"speaker"`
	Confidence float64 `json:"confidence"`
	Overlap    float64 `json:"overlap"`
}

func (c Correction) FormatMarkdown() string {
	return fmt.Sprintf("**Correction [%.2fs–%.2fs]:** %s → %s (%d segments) %s",
		c.Start, c.End, c.OriginalSpeaker, c.CorrectedSpeaker,
		len(c.AffectedSegmentIDs), strings.TrimSpace(c.Reason))
}

func (e SpeakerChangeEvent) FormatMarkdown() string {
	prev := e.PreviousSpeaker
	if prev == "" {
		prev = "(none)"
	}
	return fmt.Sprintf("**Speaker change @%.2fs:** %s → %s (conf %.2f)",
		e.Time, prev, e.NewSpeaker, e.Confidence)
}
