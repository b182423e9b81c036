package engine

import (
	"log"
	"time"

	"github.com/mhutter/notewire/internal/transcript"
)

// nearbyThreshold is how far (seconds) a query midpoint may sit from a
// speaker segment's nearest endpoint and still count as a fallback match.
const nearbyThreshold = 1.0

// nearbyDiscount is applied to the confidence of a non-overlapping
// nearest-neighbor match.
const nearbyDiscount = 0.8

// AddSpeakerSegment appends a diarization speaker segment and attaches its
// label to every transcript segment that overlaps it in time and has no
// speaker yet. Segments already attributed are left alone; only a
// retroactive correction may reassign them.
func (e *Engine) AddSpeakerSegment(seg transcript.SpeakerSegment) {
	e.mu.Lock()
	stored := seg
	e.speakerSegments = append(e.speakerSegments, &stored)
	e.updatedAt = time.Now().UTC()

	var assigned []transcript.Segment
	for _, ts := range e.segments {
		if ts.Speaker != "" || ts.SpeakerID != "" {
			continue
		}
		start, end := ts.Seconds()
		if transcript.Overlap(start, end, stored.Start, stored.End) > 0 {
			ts.Speaker = stored.Speaker
			assigned = append(assigned, *ts)
		}
	}
	e.mu.Unlock()

	if e.hub != nil {
		for _, ts := range assigned {
			e.hub.BroadcastSpeakerAssigned(ts.ID, ts.Speaker)
		}
	}
}

// attributeLocked assigns the best-overlapping known speaker segment to a
// newly arrived or revised transcript segment. Requires e.mu. No fallback:
// stored assignments come only from positive overlap.
func (e *Engine) attributeLocked(ts *transcript.Segment) {
	if ts.Speaker != "" || ts.SpeakerID != "" {
		return
	}

	start, end := ts.Seconds()
	var best *transcript.SpeakerSegment
	bestOverlap := 0.0
	for _, ss := range e.speakerSegments {
		ov := transcript.Overlap(start, end, ss.Start, ss.End)
		if ov > bestOverlap || (ov > 0 && ov == bestOverlap && best != nil && ss.Start < best.Start) {
			best = ss
			bestOverlap = ov
		}
	}
	if best != nil {
		ts.Speaker = best.Speaker
	}
}

// RecordSpeakerChange appends a speaker-change event to the session's
// immutable change log and the audit file.
func (e *Engine) RecordSpeakerChange(ev transcript.SpeakerChangeEvent) {
	e.mu.Lock()
	e.changes = append(e.changes, ev)
	e.updatedAt = time.Now().UTC()
	e.mu.Unlock()

	if e.audit != nil {
		if err := e.audit.AppendChange(ev); err != nil {
			log.Printf("audit speaker change: %v", err)
		}
	}
}

// SpeakerChanges returns a copy of the speaker-change log.
func (e *Engine) SpeakerChanges() []transcript.SpeakerChangeEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]transcript.SpeakerChangeEvent(nil), e.changes...)
}

// SpeakerForRange answers an on-demand lookup for [startMS, endMS] without
// storing an assignment. The speaker segment with maximum overlap wins;
// ties break to the earliest segment start. With no overlap at all, the
// segment whose endpoint is nearest the query midpoint is accepted if it is
// within nearbyThreshold seconds, with its confidence discounted.
func (e *Engine) SpeakerForRange(startMS, endMS int64) (transcript.SpeakerMatch, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := float64(startMS) / 1000.0
	end := float64(endMS) / 1000.0

	var best *transcript.SpeakerSegment
	bestOverlap := 0.0
	for _, ss := range e.speakerSegments {
		ov := transcript.Overlap(start, end, ss.Start, ss.End)
		if ov == 0 {
			continue
		}
		if ov > bestOverlap || (ov == bestOverlap && best != nil && ss.Start < best.Start) {
			best = ss
			bestOverlap = ov
		}
	}
	if best != nil {
		return transcript.SpeakerMatch{
			Speaker:    best.Speaker,
			Confidence: best.Confidence,
			Overlap:    bestOverlap,
		}, true
	}

	mid := (start + end) / 2
	var nearest *transcript.SpeakerSegment
	nearestDist := 0.0
	for _, ss := range e.speakerSegments {
		d := ss.EndpointDistance(mid)
		if nearest == nil || d < nearestDist {
			nearest = ss
			nearestDist = d
		}
	}
	if nearest != nil && nearestDist <= nearbyThreshold {
		return transcript.SpeakerMatch{
			Speaker:    nearest.Speaker,
			Confidence: nearest.Confidence * nearbyDiscount,
		}, true
	}

	return transcript.SpeakerMatch{}, false
}

// SpeakerSegments returns a copy of the speaker-segment log.
func (e *Engine) SpeakerSegments() []transcript.SpeakerSegment {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]transcript.SpeakerSegment, len(e.speakerSegments))
	for i, ss := range e.speakerSegments {
		out[i] = *ss
	}
	return out
}
