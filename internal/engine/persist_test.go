package engine

import (
	"context"
	"testing"
	"time"

	"github.com/mhutter/notewire/internal/transcript"
)

func TestSaveToDatabaseAtMostOnce(t *testing.T) {
	e, store, hub := newTestEngine(t)
	e.StartSession("meeting-1")

	e.AddSegment(transcript.Segment{ID: "t1", Text: "one", IsFinal: true, SpeakerID: "alice"})
	e.AddSegment(transcript.Segment{ID: "t2", Text: "two", SpeakerID: "bob"}) // interim, not eligible

	n, err := e.SaveToDatabase(context.Background())
	if err != nil {
		t.Fatalf("SaveToDatabase failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 written, got %d", n)
	}

	// Re-invocation with nothing new is a zero-count success.
	n, err = e.SaveToDatabase(context.Background())
	if err != nil {
		t.Fatalf("second SaveToDatabase failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 on second call, got %d", n)
	}

	written := store.written()
	if len(written) != 1 || written[0].SegmentID != "t1" {
		t.Fatalf("expected only t1 passed to the store once, got %#v", written)
	}
	if written[0].MeetingID != "meeting-1" {
		t.Fatalf("expected meeting id on record, got %q", written[0].MeetingID)
	}

	// Finalizing t2 later flushes just t2.
	final := true
	e.UpdateSegment("t2", transcript.SegmentPatch{IsFinal: &final})
	n, err = e.SaveToDatabase(context.Background())
	if err != nil {
		t.Fatalf("third SaveToDatabase failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 newly flushed, got %d", n)
	}
	if got := store.written(); len(got) != 2 {
		t.Fatalf("expected 2 total records written, got %d", len(got))
	}

	hub.mu.Lock()
	defer hub.mu.Unlock()
	if len(hub.flushCounts) != 2 {
		t.Fatalf("expected 2 flush broadcasts, got %#v", hub.flushCounts)
	}
}

func TestSaveRelaxesSpeakerPolicyWhenDiarizationUnavailable(t *testing.T) {
	// Scenario: diarization reports unavailable; a final segment lacking a
	// speaker id must still be persisted.
	e, store, _ := newTestEngine(t)
	e.StartSession("meeting-1")
	e.SetDiarizationAvailability(transcript.DiarizationAvailability{
		Available: false,
		Reason:    "single channel audio",
		Message:   "Speaker separation not available for this session",
	})

	e.AddSegment(transcript.Segment{ID: "t1", Text: "unattributed", IsFinal: true})

	n, err := e.SaveToDatabase(context.Background())
	if err != nil {
		t.Fatalf("SaveToDatabase failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 written, got %d", n)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.requireFlags) != 1 || store.requireFlags[0] {
		t.Fatalf("expected requireSpeaker=false passed to store, got %#v", store.requireFlags)
	}
}

func TestSaveEnforcesSpeakerPolicyWhenDiarizationAvailable(t *testing.T) {
	e, store, _ := newTestEngine(t)
	e.StartSession("meeting-1")
	e.SetDiarizationAvailability(transcript.DiarizationAvailability{Available: true})

	e.AddSegment(transcript.Segment{ID: "t1", IsFinal: true, SpeakerID: "alice"})

	if _, err := e.SaveToDatabase(context.Background()); err != nil {
		t.Fatalf("SaveToDatabase failed: %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.requireFlags) != 1 || !store.requireFlags[0] {
		t.Fatalf("expected requireSpeaker=true passed to store, got %#v", store.requireFlags)
	}
}

func TestSaveFailureLeavesFlushedSetUnchanged(t *testing.T) {
	e, store, _ := newTestEngine(t)
	e.StartSession("meeting-1")
	e.AddSegment(transcript.Segment{ID: "t1", IsFinal: true, SpeakerID: "alice"})

	store.mu.Lock()
	store.err = errBoom
	store.mu.Unlock()

	if _, err := e.SaveToDatabase(context.Background()); err == nil {
		t.Fatal("expected flush failure to surface")
	}

	store.mu.Lock()
	store.err = nil
	store.mu.Unlock()

	// The failed segment is still unflushed and is retried by the caller.
	n, err := e.SaveToDatabase(context.Background())
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected failed segment to flush on retry, got %d", n)
	}
}

func TestSaveTimeoutIsAFailedFlush(t *testing.T) {
	e, store, _ := newTestEngine(t)
	store.started = make(chan struct{}, 1)
	store.release = make(chan struct{})

	e.StartSession("meeting-1")
	e.AddSegment(transcript.Segment{ID: "t1", IsFinal: true, SpeakerID: "alice"})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := e.SaveToDatabase(ctx); err == nil {
		t.Fatal("expected timeout to fail the flush")
	}

	// Nothing was marked flushed; the next attempt carries the segment.
	close(store.release)
	store.release = nil
	store.started = nil
	n, err := e.SaveToDatabase(context.Background())
	if err != nil {
		t.Fatalf("retry after timeout failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 flushed after timeout retry, got %d", n)
	}
}

func TestIngestionContinuesDuringInFlightFlush(t *testing.T) {
	e, store, _ := newTestEngine(t)
	store.started = make(chan struct{}, 1)
	store.release = make(chan struct{})

	e.StartSession("meeting-1")
	e.AddSegment(transcript.Segment{ID: "t1", IsFinal: true, SpeakerID: "alice"})

	done := make(chan error, 1)
	go func() {
		_, err := e.SaveToDatabase(context.Background())
		done <- err
	}()

	<-store.started

	// New segments arrive while the write is in flight and must be accepted
	// without blocking on it.
	accepted := make(chan struct{})
	go func() {
		e.AddSegment(transcript.Segment{ID: "t2", IsFinal: true, SpeakerID: "bob"})
		close(accepted)
	}()

	select {
	case <-accepted:
	case <-time.After(time.Second):
		t.Fatal("ingestion blocked on in-flight flush")
	}

	close(store.release)
	if err := <-done; err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	// The segment that arrived mid-flush is still pending.
	n, err := e.SaveToDatabase(context.Background())
	if err != nil {
		t.Fatalf("follow-up flush failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected t2 flushed separately, got %d", n)
	}
}

func TestSessionRestartDuringFlightDiscardsBookkeeping(t *testing.T) {
	e, store, _ := newTestEngine(t)
	store.started = make(chan struct{}, 1)
	store.release = make(chan struct{})

	e.StartSession("meeting-1")
	e.AddSegment(transcript.Segment{ID: "t1", IsFinal: true, SpeakerID: "alice"})

	done := make(chan struct{})
	go func() {
		_, _ = e.SaveToDatabase(context.Background())
		close(done)
	}()

	<-store.started
	e.StartSession("meeting-2")
	close(store.release)
	<-done

	// The confirmed write belonged to the superseded session; the new
	// session's flushed set stays empty.
	if got := e.Session().FlushedCount; got != 0 {
		t.Fatalf("expected empty flushed set after restart, got %d", got)
	}
}

func TestTranscriptsForSaveIgnoresFlushHistory(t *testing.T) {
	e, _, _ := newTestEngine(t)
	e.StartSession("meeting-1")
	e.AddSegment(transcript.Segment{ID: "t1", Text: "one", IsFinal: true, SpeakerID: "alice"})
	e.AddSegment(transcript.Segment{ID: "t2", Text: "two"})

	if _, err := e.SaveToDatabase(context.Background()); err != nil {
		t.Fatalf("SaveToDatabase failed: %v", err)
	}

	// The projection still contains the flushed segment.
	records := e.TranscriptsForSave()
	if len(records) != 1 || records[0].SegmentID != "t1" {
		t.Fatalf("expected projection [t1], got %#v", records)
	}
}

func TestDiarizationAvailabilitySetOnce(t *testing.T) {
	e, _, _ := newTestEngine(t)
	e.StartSession("meeting-1")

	e.SetDiarizationAvailability(transcript.DiarizationAvailability{Available: false, Reason: "first"})
	e.SetDiarizationAvailability(transcript.DiarizationAvailability{Available: true, Reason: "second"})

	av, ok := e.DiarizationAvailability()
	if !ok {
		t.Fatal("expected availability to be set")
	}
	if av.Available || av.Reason != "first" {
		t.Fatalf("expected first announcement to win, got %+v", av)
	}

	// A new session accepts a fresh announcement.
	e.StartSession("meeting-2")
	if _, ok := e.DiarizationAvailability(); ok {
		t.Fatal("expected availability cleared on restart")
	}
}

func TestUpdateDiarizationState(t *testing.T) {
	e, _, hub := newTestEngine(t)
	e.StartSession("meeting-1")

	e.UpdateDiarizationState(transcript.DiarizationState{
		State:        transcript.StreamActive,
		SpeakerCount: 2,
		AudioSeconds: 42.5,
		Calibrated:   true,
	})

	st := e.DiarizationState()
	if st.State != transcript.StreamActive || st.SpeakerCount != 2 || !st.Calibrated {
		t.Fatalf("unexpected diarization state %+v", st)
	}

	hub.mu.Lock()
	defer hub.mu.Unlock()
	if hub.statusCount != 1 {
		t.Fatalf("expected 1 status broadcast, got %d", hub.statusCount)
	}
}
