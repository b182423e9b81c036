package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/mhutter/notewire/internal/engine"
	"github.com/mhutter/notewire/internal/storage"
	"github.com/mhutter/notewire/internal/transcript"
)

var meetingIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// SessionEngine is the slice of the engine the API needs.
type SessionEngine interface {
	StartSession(meetingID string)
	StopSession()
	PauseSession() bool
	ResumeSession() bool
	Session() engine.SessionInfo
	Segments() []transcript.Segment
	ApplyCorrection(c transcript.Correction) transcript.Correction
	Corrections() []transcript.Correction
	SpeakerForRange(startMS, endMS int64) (transcript.SpeakerMatch, bool)
	DiarizationState() transcript.DiarizationState
	DiarizationAvailability() (transcript.DiarizationAvailability, bool)
	SaveToDatabase(ctx context.Context) (int, error)
}

// TranscriptReader reads back durably persisted transcripts.
type TranscriptReader interface {
	GetTranscripts(meetingID string) ([]storage.TranscriptRecord, error)
	GetMeetings() ([]string, error)
}

// Options carries handler wiring that is not a collaborator: the bound on
// on-demand flushes and the config warnings surfaced over /api/status.
type Options struct {
	SaveTimeout time.Duration
	Warnings    func() []string
}

func registerAPIRoutes(mux *http.ServeMux, eng SessionEngine, reader TranscriptReader, opts Options) {
	saveTimeout := opts.SaveTimeout
	if saveTimeout <= 0 {
		saveTimeout = 10 * time.Second
	}

	mux.HandleFunc("GET /api/state", func(w http.ResponseWriter, r *http.Request) {
		availability, announced := eng.DiarizationAvailability()
		payload := map[string]any{
			"session":     eng.Session(),
			"diarization": eng.DiarizationState(),
		}
		if announced {
			payload["diarization_availability"] = availability
		}
		writeJSON(w, http.StatusOK, payload)
	})

	mux.HandleFunc("GET /api/segments", func(w http.ResponseWriter, r *http.Request) {
		segments := eng.Segments()
		if segments == nil {
			segments = []transcript.Segment{}
		}
		writeJSON(w, http.StatusOK, segments)
	})

	mux.HandleFunc("POST /api/session/start", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			MeetingID string `json:"meeting_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
			return
		}
		if !validMeetingID(body.MeetingID) {
			writeJSONError(w, http.StatusBadRequest, "invalid meeting id")
			return
		}

		eng.StartSession(body.MeetingID)
		writeJSON(w, http.StatusOK, eng.Session())
	})

	mux.HandleFunc("POST /api/session/stop", func(w http.ResponseWriter, r *http.Request) {
		eng.StopSession()
		writeJSON(w, http.StatusOK, eng.Session())
	})

	mux.HandleFunc("POST /api/session/pause", func(w http.ResponseWriter, r *http.Request) {
		if !eng.PauseSession() {
			writeJSONError(w, http.StatusConflict, "session is not active")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /api/session/resume", func(w http.ResponseWriter, r *http.Request) {
		if !eng.ResumeSession() {
			writeJSONError(w, http.StatusConflict, "session is not paused")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /api/corrections", func(w http.ResponseWriter, r *http.Request) {
		var c transcript.Correction
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
			return
		}
		if c.OriginalSpeaker == "" || c.CorrectedSpeaker == "" || c.End <= c.Start {
			writeJSONError(w, http.StatusBadRequest, "correction needs both speaker labels and a positive time range")
			return
		}
		writeJSON(w, http.StatusOK, eng.ApplyCorrection(c))
	})

	mux.HandleFunc("GET /api/corrections", func(w http.ResponseWriter, r *http.Request) {
		corrections := eng.Corrections()
		if corrections == nil {
			corrections = []transcript.Correction{}
		}
		writeJSON(w, http.StatusOK, corrections)
	})

	mux.HandleFunc("GET /api/speaker", func(w http.ResponseWriter, r *http.Request) {
		startMS, err1 := strconv.ParseInt(r.URL.Query().Get("start_ms"), 10, 64)
		endMS, err2 := strconv.ParseInt(r.URL.Query().Get("end_ms"), 10, 64)
		if err1 != nil || err2 != nil || endMS < startMS {
			writeJSONError(w, http.StatusBadRequest, "start_ms and end_ms must be integers with end_ms >= start_ms")
			return
		}

		match, ok := eng.SpeakerForRange(startMS, endMS)
		if !ok {
			writeJSONError(w, http.StatusNotFound, "no speaker matches the range")
			return
		}
		writeJSON(w, http.StatusOK, match)
	})

	mux.HandleFunc("POST /api/flush", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), saveTimeout)
		defer cancel()

		written, err := eng.SaveToDatabase(ctx)
		if err != nil {
			writeJSONError(w, http.StatusBadGateway, fmt.Sprintf("flush: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"written": written})
	})

	mux.HandleFunc("GET /api/meetings", func(w http.ResponseWriter, r *http.Request) {
		meetings, err := reader.GetMeetings()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list meetings: %v", err))
			return
		}
		if meetings == nil {
			meetings = []string{}
		}
		writeJSON(w, http.StatusOK, meetings)
	})

	mux.HandleFunc("GET /api/meetings/{id}/transcripts", func(w http.ResponseWriter, r *http.Request) {
		meetingID := r.PathValue("id")
		if !validMeetingID(meetingID) {
			writeJSONError(w, http.StatusForbidden, "invalid meeting id")
			return
		}

		records, err := reader.GetTranscripts(meetingID)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get transcripts: %v", err))
			return
		}
		if records == nil {
			records = []storage.TranscriptRecord{}
		}
		writeJSON(w, http.StatusOK, records)
	})

	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		var warnings []string
		if opts.Warnings != nil {
			warnings = opts.Warnings()
		}
		if warnings == nil {
			warnings = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":   eng.Session().Status,
			"warnings": warnings,
		})
	})
}

func validMeetingID(id string) bool {
	return meetingIDPattern.MatchString(id)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
