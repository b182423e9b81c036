package engine

import (
	"log"
	"time"

	"github.com/mhutter/notewire/internal/transcript"
)

// ApplyCorrection rewrites earlier speaker assignments inside the
// correction's time range. Only segments lying fully within the range are
// eligible; a segment straddling the boundary may also belong to an
// adjacent, uncorrected interval and is left untouched.
//
// A correction identical to one already logged (same labels and range) is
// re-applied to state but not appended again, so reapplication is
// idempotent. The returned correction carries the affected transcript
// segment IDs, which may be empty: a correction matching nothing is a
// logged no-op, not an error.
func (e *Engine) ApplyCorrection(c transcript.Correction) transcript.Correction {
	e.mu.Lock()

	duplicate := false
	for _, prev := range e.corrections {
		if prev.OriginalSpeaker == c.OriginalSpeaker &&
			prev.CorrectedSpeaker == c.CorrectedSpeaker &&
			prev.Start == c.Start && prev.End == c.End {
			duplicate = true
			break
		}
	}

	for _, ss := range e.speakerSegments {
		if ss.Speaker == c.OriginalSpeaker && ss.Within(c.Start, c.End) {
			ss.Speaker = c.CorrectedSpeaker
			ss.Corrected = true
		}
	}

	affected := make([]string, 0, 4)
	for _, ts := range e.segments {
		if ts.Speaker == c.OriginalSpeaker && ts.Within(c.Start, c.End) {
			ts.Speaker = c.CorrectedSpeaker
			affected = append(affected, ts.ID)
		}
	}
	c.AffectedSegmentIDs = affected

	if !duplicate {
		e.corrections = append(e.corrections, c)
	}
	e.updatedAt = time.Now().UTC()
	e.mu.Unlock()

	if duplicate {
		return c
	}

	if e.audit != nil {
		if err := e.audit.AppendCorrection(c); err != nil {
			log.Printf("audit correction: %v", err)
		}
	}
	if e.hub != nil {
		e.hub.BroadcastCorrectionApplied(c)
	}
	return c
}

// Corrections returns a copy of the immutable correction log.
func (e *Engine) Corrections() []transcript.Correction {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]transcript.Correction(nil), e.corrections...)
}
