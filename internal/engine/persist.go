package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/mhutter/notewire/internal/storage"
	"github.com/mhutter/notewire/internal/transcript"
)

// SetDiarizationAvailability records the diarization engine's one-time
// self-report for this session. Later announcements in the same session are
// ignored.
func (e *Engine) SetDiarizationAvailability(av transcript.DiarizationAvailability) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.availability != nil {
		return
	}
	stored := av
	e.availability = &stored
	e.updatedAt = time.Now().UTC()
}

// DiarizationAvailability returns the announced availability, if any.
func (e *Engine) DiarizationAvailability() (transcript.DiarizationAvailability, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.availability == nil {
		return transcript.DiarizationAvailability{}, false
	}
	return *e.availability, true
}

// UpdateDiarizationState records a periodic diarization status update.
func (e *Engine) UpdateDiarizationState(st transcript.DiarizationState) {
	e.mu.Lock()
	e.diarization = st
	e.updatedAt = time.Now().UTC()
	e.mu.Unlock()

	if e.hub != nil {
		e.hub.BroadcastDiarizationStatus(st)
	}
}

// DiarizationState returns the latest diarization status.
func (e *Engine) DiarizationState() transcript.DiarizationState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.diarization
}

// TranscriptsForSave projects every finalized segment into its persistence
// shape, regardless of flush history. Used for inspection and testing.
func (e *Engine) TranscriptsForSave() []storage.TranscriptRecord {
	e.mu.Lock()
	defer e.mu.Unlock()

	records := make([]storage.TranscriptRecord, 0, len(e.segments))
	for _, seg := range e.segments {
		if !seg.IsFinal {
			continue
		}
		records = append(records, e.recordLocked(seg))
	}
	return records
}

// recordLocked requires e.mu.
func (e *Engine) recordLocked(seg *transcript.Segment) storage.TranscriptRecord {
	return storage.TranscriptRecord{
		MeetingID:  e.meetingID,
		SegmentID:  seg.ID,
		SpeakerID:  seg.SpeakerID,
		Content:    seg.Text,
		StartMS:    seg.StartMS,
		EndMS:      seg.EndMS,
		Confidence: seg.Confidence,
		IsFinal:    seg.IsFinal,
	}
}

// SaveToDatabase flushes finalized, not-yet-persisted segments to the store
// and returns how many were written. Each segment is written at most once
// per session. The speaker-required policy is enforced only while
// diarization reports itself available. The store call runs outside the
// state mutex, bounded by the caller's ctx; on failure or timeout the
// flushed set is left unchanged and no retry is attempted here.
//
// Calling with nothing new to flush is a no-op returning zero.
func (e *Engine) SaveToDatabase(ctx context.Context) (int, error) {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	e.mu.Lock()
	gen := e.generation
	meetingID := e.meetingID
	requireSpeaker := e.speakerPolicy && e.availability != nil && e.availability.Available

	var records []storage.TranscriptRecord
	for _, seg := range e.segments {
		if !seg.IsFinal {
			continue
		}
		if _, done := e.flushed[seg.ID]; done {
			continue
		}
		records = append(records, e.recordLocked(seg))
	}
	e.mu.Unlock()

	if len(records) == 0 {
		return 0, nil
	}

	if err := e.store.CreateTranscripts(ctx, records, requireSpeaker); err != nil {
		return 0, fmt.Errorf("save transcripts: %w", err)
	}

	e.mu.Lock()
	// A session started while the write was in flight owns a fresh flushed
	// set; the confirmed rows belong to the superseded session.
	if e.generation == gen {
		for _, rec := range records {
			e.flushed[rec.SegmentID] = struct{}{}
		}
		e.updatedAt = time.Now().UTC()
	}
	e.mu.Unlock()

	if e.hub != nil {
		e.hub.BroadcastFlushCompleted(meetingID, len(records))
	}
	return len(records), nil
}
