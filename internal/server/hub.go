package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/mhutter/notewire/internal/transcript"
)

// Hub fans engine events out to connected websocket clients. It satisfies
// the engine's EventBroadcaster interface.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[chan []byte]struct{})}
}

func (h *Hub) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (h *Hub) BroadcastSessionStarted(meetingID string) {
	h.broadcastEvent(SessionStartedEvent{
		Event:     newEvent("session_started", time.Now().UTC()),
		MeetingID: meetingID,
	})
}

func (h *Hub) BroadcastSessionEnded(meetingID string, duration time.Duration) {
	h.broadcastEvent(SessionEndedEvent{
		Event:     newEvent("session_ended", time.Now().UTC()),
		MeetingID: meetingID,
		Duration:  duration.Seconds(),
	})
}

func (h *Hub) BroadcastSegment(seg transcript.Segment) {
	h.broadcastEvent(SegmentEvent{
		Event:   newEvent("transcript_segment", time.Now().UTC()),
		Segment: seg,
	})
}

func (h *Hub) BroadcastSpeakerAssigned(segmentID, speaker string) {
	h.broadcastEvent(SpeakerAssignedEvent{
		Event:     newEvent("speaker_assigned", time.Now().UTC()),
		SegmentID: segmentID,
		Speaker:   speaker,
	})
}

func (h *Hub) BroadcastCorrectionApplied(c transcript.Correction) {
	h.broadcastEvent(CorrectionAppliedEvent{
		Event:      newEvent("correction_applied", time.Now().UTC()),
		Correction: c,
	})
}

func (h *Hub) BroadcastDiarizationStatus(st transcript.DiarizationState) {
	h.broadcastEvent(DiarizationStatusEvent{
		Event:        newEvent("diarization_status", time.Now().UTC()),
		State:        st.State,
		SpeakerCount: st.SpeakerCount,
		AudioSeconds: st.AudioSeconds,
		Calibrated:   st.Calibrated,
	})
}

func (h *Hub) BroadcastFlushCompleted(meetingID string, count int) {
	h.broadcastEvent(FlushCompletedEvent{
		Event:     newEvent("flush_completed", time.Now().UTC()),
		MeetingID: meetingID,
		Count:     count,
	})
}

func (h *Hub) broadcastEvent(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("event marshal error: %v", err)
		return
	}
	h.Broadcast(payload)
}
