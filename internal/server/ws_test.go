package server

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mhutter/notewire/internal/transcript"
)

func TestWSSendsStateSnapshotOnConnect(t *testing.T) {
	srv, eng, _ := newTestServer(t)

	eng.StartSession("standup-42")
	eng.AddSegment(transcript.Segment{ID: "t1", Text: "hello", StartMS: 0, EndMS: 900})
	eng.UpdateDiarizationState(transcript.DiarizationState{State: transcript.StreamActive, SpeakerCount: 2})

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("ws dial failed: %v", err)
	}
	defer func() { _ = conn.Close() }()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read snapshot failed: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(msg, &payload); err != nil {
		t.Fatalf("unmarshal snapshot failed: %v", err)
	}
	if payload["type"] != "state_snapshot" {
		t.Fatalf("expected state_snapshot first, got %#v", payload["type"])
	}

	session, ok := payload["session"].(map[string]any)
	if !ok || session["meeting_id"] != "standup-42" {
		t.Fatalf("expected session info in snapshot, got %s", string(msg))
	}
	if session["status"] != string(transcript.StatusActive) {
		t.Fatalf("expected active status in snapshot, got %#v", session["status"])
	}

	diarization, ok := payload["diarization"].(map[string]any)
	if !ok || diarization["state"] != string(transcript.StreamActive) {
		t.Fatalf("expected diarization state in snapshot, got %s", string(msg))
	}
}

func TestWSBroadcastEventShape(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	hub.BroadcastSegment(transcript.Segment{
		ID:      "t1",
		Text:    "test line",
		StartMS: 500,
		EndMS:   1100,
		Speaker: "Speaker_2",
	})

	select {
	case msg := <-ch:
		var payload map[string]any
		if err := json.Unmarshal(msg, &payload); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		if payload["type"] != "transcript_segment" {
			t.Fatalf("expected event type transcript_segment, got %#v", payload["type"])
		}
		if payload["version"] == nil {
			t.Fatalf("expected version field in payload: %s", string(msg))
		}
		segment, ok := payload["segment"].(map[string]any)
		if !ok || segment["id"] != "t1" {
			t.Fatalf("expected embedded segment, got %s", string(msg))
		}
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for websocket broadcast")
	}
}
