// Package engine holds the live transcript and speaker-attribution state for
// one recording session: the session lifecycle, the append-only segment log,
// temporal-overlap speaker attribution, retroactive corrections, and the
// at-most-once persistence synchronizer.
//
// All mutable state is owned by a single Engine value and guarded by one
// mutex; every public operation is transactional with respect to that state.
// The external flush call in SaveToDatabase runs outside the state mutex so
// ingestion never blocks on storage I/O.
package engine

import (
	"sync"
	"time"

	"github.com/mhutter/notewire/internal/transcript"
)

type Engine struct {
	store         TranscriptStore
	audit         AuditLog
	hub           EventBroadcaster
	speakerPolicy bool

	mu         sync.Mutex
	generation uint64
	meetingID  string
	status     transcript.SessionStatus
	startedAt  time.Time
	updatedAt  time.Time
	enabled    bool
	lastErr    error

	segments        []*transcript.Segment
	byID            map[string]*transcript.Segment
	speakerSegments []*transcript.SpeakerSegment
	changes         []transcript.SpeakerChangeEvent
	corrections     []transcript.Correction
	availability    *transcript.DiarizationAvailability
	diarization     transcript.DiarizationState
	flushed         map[string]struct{}

	// flushMu serializes SaveToDatabase calls without blocking ingestion.
	flushMu sync.Mutex
}

// New creates an engine in the idle state. audit and hub may be nil.
// requireSpeaker is the "speaker required" persistence policy; it only takes
// effect while diarization reports itself available.
func New(store TranscriptStore, audit AuditLog, hub EventBroadcaster, requireSpeaker bool) *Engine {
	return &Engine{
		store:         store,
		audit:         audit,
		hub:           hub,
		speakerPolicy: requireSpeaker,
		status:        transcript.StatusIdle,
		byID:          make(map[string]*transcript.Segment),
		flushed:       make(map[string]struct{}),
	}
}

// StartSession binds the engine to a meeting and discards all state from any
// prior session, flushed or not. Starting fully supersedes the previous
// session.
func (e *Engine) StartSession(meetingID string) {
	e.mu.Lock()
	e.generation++
	e.meetingID = meetingID
	e.status = transcript.StatusStarting
	e.startedAt = time.Now().UTC()
	e.updatedAt = e.startedAt
	e.enabled = true
	e.lastErr = nil

	e.segments = nil
	e.byID = make(map[string]*transcript.Segment)
	e.speakerSegments = nil
	e.changes = nil
	e.corrections = nil
	e.availability = nil
	e.diarization = transcript.DiarizationState{State: transcript.StreamIdle}
	e.flushed = make(map[string]struct{})
	e.mu.Unlock()

	if e.hub != nil {
		e.hub.BroadcastSessionStarted(meetingID)
	}
}

// PauseSession transitions active→paused. It reports false and changes
// nothing from any other state.
func (e *Engine) PauseSession() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != transcript.StatusActive {
		return false
	}
	e.status = transcript.StatusPaused
	e.updatedAt = time.Now().UTC()
	return true
}

// ResumeSession transitions paused→active. It reports false and changes
// nothing from any other state.
func (e *Engine) ResumeSession() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != transcript.StatusPaused {
		return false
	}
	e.status = transcript.StatusActive
	e.updatedAt = time.Now().UTC()
	return true
}

// StopSession returns the engine to idle. Ingested segments, attributions,
// and the flushed set survive; only transient progress (error, diarization
// runtime state) is cleared. Always permitted.
func (e *Engine) StopSession() {
	e.mu.Lock()
	if e.meetingID == "" && e.status == transcript.StatusIdle {
		e.mu.Unlock()
		return
	}

	meetingID := e.meetingID
	duration := time.Since(e.startedAt)
	e.lastErr = nil
	e.enabled = false
	e.diarization = transcript.DiarizationState{State: transcript.StreamIdle}
	// Finalization here is synchronous, so the processing phase collapses
	// into this call and the engine lands back on idle.
	e.status = transcript.StatusIdle
	e.updatedAt = time.Now().UTC()
	e.mu.Unlock()

	if e.hub != nil && meetingID != "" {
		e.hub.BroadcastSessionEnded(meetingID, duration)
	}
}

// SetError forces the error status when err is non-nil. Clearing the error
// (err == nil) does not restore the previous status; callers must resume or
// restart explicitly.
func (e *Engine) SetError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.lastErr = err
	if err != nil {
		e.status = transcript.StatusError
	}
	e.updatedAt = time.Now().UTC()
}

// Err returns the last error set via SetError, if any.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// Status returns the current lifecycle status.
func (e *Engine) Status() transcript.SessionStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Session returns a snapshot of the current session.
func (e *Engine) Session() SessionInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	info := SessionInfo{
		MeetingID:           e.meetingID,
		Status:              e.status,
		StartedAt:           e.startedAt,
		UpdatedAt:           e.updatedAt,
		Enabled:             e.enabled,
		SegmentCount:        len(e.segments),
		SpeakerSegmentCount: len(e.speakerSegments),
		CorrectionCount:     len(e.corrections),
		FlushedCount:        len(e.flushed),
	}
	if e.lastErr != nil {
		info.Error = e.lastErr.Error()
	}
	return info
}

// AddSegment appends a transcript segment, or updates the existing one when
// the ID is already known. The first arrival while starting promotes the
// session to active. Finality is monotonic: a segment never reverts from
// final to interim.
func (e *Engine) AddSegment(seg transcript.Segment) {
	e.mu.Lock()
	updated := e.upsertSegment(seg)
	e.mu.Unlock()

	if e.hub != nil {
		e.hub.BroadcastSegment(updated)
	}
}

// AddSegments appends a batch of transcript segments in order.
func (e *Engine) AddSegments(segs []transcript.Segment) {
	for _, seg := range segs {
		e.AddSegment(seg)
	}
}

// upsertSegment requires e.mu.
func (e *Engine) upsertSegment(seg transcript.Segment) transcript.Segment {
	if e.status == transcript.StatusStarting {
		e.status = transcript.StatusActive
	}
	e.updatedAt = time.Now().UTC()

	if existing, ok := e.byID[seg.ID]; ok {
		existing.Text = seg.Text
		existing.StartMS = seg.StartMS
		existing.EndMS = seg.EndMS
		existing.Confidence = seg.Confidence
		existing.IsFinal = existing.IsFinal || seg.IsFinal
		// A revision without attribution must not erase one already made.
		if seg.Speaker != "" {
			existing.Speaker = seg.Speaker
		}
		if seg.SpeakerID != "" {
			existing.SpeakerID = seg.SpeakerID
		}
		e.attributeLocked(existing)
		return *existing
	}

	stored := seg
	e.segments = append(e.segments, &stored)
	e.byID[stored.ID] = &stored
	e.attributeLocked(&stored)
	return stored
}

// UpdateSegment merges the patch onto the segment with the given ID. It
// reports false if the ID is unknown. A patch cannot revert finality.
func (e *Engine) UpdateSegment(id string, patch transcript.SegmentPatch) bool {
	e.mu.Lock()
	seg, ok := e.byID[id]
	if !ok {
		e.mu.Unlock()
		return false
	}

	if patch.Text != nil {
		seg.Text = *patch.Text
	}
	if patch.StartMS != nil {
		seg.StartMS = *patch.StartMS
	}
	if patch.EndMS != nil {
		seg.EndMS = *patch.EndMS
	}
	if patch.Confidence != nil {
		seg.Confidence = *patch.Confidence
	}
	if patch.IsFinal != nil && *patch.IsFinal {
		seg.IsFinal = true
	}
	if patch.Speaker != nil {
		seg.Speaker = *patch.Speaker
	}
	if patch.SpeakerID != nil {
		seg.SpeakerID = *patch.SpeakerID
	}
	e.updatedAt = time.Now().UTC()
	updated := *seg
	e.mu.Unlock()

	if e.hub != nil {
		e.hub.BroadcastSegment(updated)
	}
	return true
}

// ClearSegments empties the segment log and the flushed set without touching
// the session status. Used for operator-initiated resets, distinct from
// StopSession.
func (e *Engine) ClearSegments() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.segments = nil
	e.byID = make(map[string]*transcript.Segment)
	e.flushed = make(map[string]struct{})
	e.updatedAt = time.Now().UTC()
}

// Segments returns a copy of the log in insertion order. Consumers needing
// temporal order must sort by StartMS themselves.
func (e *Engine) Segments() []transcript.Segment {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]transcript.Segment, len(e.segments))
	for i, seg := range e.segments {
		out[i] = *seg
	}
	return out
}
