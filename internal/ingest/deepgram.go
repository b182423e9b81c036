// Package ingest adapts the Deepgram live-transcription stream into engine
// events. Transcription and diarization arrive interleaved on one websocket;
// the adapter splits them into transcript segments, speaker segments, and
// speaker-change events at the boundary, so the engine only ever sees its
// own closed event vocabulary.
package ingest

import (
	"fmt"
	"log"
	"strings"
	"sync"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	"github.com/google/uuid"

	"github.com/mhutter/notewire/internal/transcript"
)

// calibrationWindow is how much audio the diarizer needs before speaker
// identities are considered stable.
const calibrationWindow = 10.0

// Engine is the slice of the engine the adapter drives.
type Engine interface {
	AddSegment(seg transcript.Segment)
	AddSpeakerSegment(seg transcript.SpeakerSegment)
	RecordSpeakerChange(ev transcript.SpeakerChangeEvent)
	SetDiarizationAvailability(av transcript.DiarizationAvailability)
	UpdateDiarizationState(st transcript.DiarizationState)
	SetError(err error)
}

type word struct {
	speaker *int
	text    string
	start   float64
	end     float64
}

// Callback receives Deepgram websocket events. It implements the SDK's
// live-transcription callback interface.
type Callback struct {
	engine  Engine
	diarize bool

	mu           sync.Mutex
	interimID    string
	lastSpeaker  string
	announced    bool
	audioSeconds float64
	speakers     map[string]struct{}
}

// NewCallback builds an adapter for the given engine. diarize mirrors the
// Deepgram connection option; with it off, the adapter announces that
// speaker separation is unavailable for the session.
func NewCallback(engine Engine, diarize bool) *Callback {
	return &Callback{
		engine:   engine,
		diarize:  diarize,
		speakers: make(map[string]struct{}),
	}
}

func (c *Callback) Open(*api.OpenResponse) error {
	log.Println("connected to Deepgram")
	c.engine.UpdateDiarizationState(transcript.DiarizationState{State: transcript.StreamReady})
	c.announceAvailability()
	return nil
}

// Message handles one transcription result. Interim results reuse a single
// segment ID until a final result settles the window, matching the engine's
// upsert-by-ID contract.
func (c *Callback) Message(mr *api.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}

	alt := mr.Channel.Alternatives[0]
	sentence := strings.TrimSpace(alt.Transcript)
	if sentence == "" {
		return nil
	}

	words := make([]word, 0, len(alt.Words))
	for _, w := range alt.Words {
		words = append(words, word{
			speaker: w.Speaker,
			text:    w.PunctuatedWord,
			start:   w.Start,
			end:     w.End,
		})
	}
	if len(words) == 0 {
		return nil
	}

	c.mu.Lock()
	if c.interimID == "" {
		c.interimID = uuid.NewString()
	}
	segID := c.interimID
	if mr.IsFinal {
		c.interimID = ""
	}
	c.mu.Unlock()

	c.engine.AddSegment(transcript.Segment{
		ID:         segID,
		Text:       sentence,
		StartMS:    int64(words[0].start * 1000),
		EndMS:      int64(words[len(words)-1].end * 1000),
		Confidence: alt.Confidence,
		IsFinal:    mr.IsFinal,
	})

	if mr.IsFinal {
		c.emitSpeakerRuns(words, alt.Confidence)
	}
	return nil
}

// emitSpeakerRuns turns the diarized word stream of a final result into
// speaker segments and change events.
func (c *Callback) emitSpeakerRuns(words []word, confidence float64) {
	type run struct {
		label      string
		start, end float64
	}

	var runs []run
	for _, w := range words {
		if w.speaker == nil {
			continue
		}
		label := SpeakerLabel(*w.speaker)
		if len(runs) > 0 && runs[len(runs)-1].label == label {
			runs[len(runs)-1].end = w.end
			continue
		}
		runs = append(runs, run{label: label, start: w.start, end: w.end})
	}

	c.mu.Lock()
	last := c.lastSpeaker
	for _, r := range runs {
		c.speakers[r.label] = struct{}{}
		if r.end > c.audioSeconds {
			c.audioSeconds = r.end
		}
	}
	if len(runs) > 0 {
		c.lastSpeaker = runs[len(runs)-1].label
	}
	speakerCount := len(c.speakers)
	audioSeconds := c.audioSeconds
	c.mu.Unlock()

	for _, r := range runs {
		c.engine.AddSpeakerSegment(transcript.SpeakerSegment{
			ID:         uuid.NewString(),
			Speaker:    r.label,
			Start:      r.start,
			End:        r.end,
			Confidence: confidence,
			IsFinal:    true,
		})
		if r.label != last {
			c.engine.RecordSpeakerChange(transcript.SpeakerChangeEvent{
				Time:            r.start,
				PreviousSpeaker: last,
				NewSpeaker:      r.label,
				Confidence:      confidence,
			})
		}
		last = r.label
	}

	if len(runs) > 0 {
		c.engine.UpdateDiarizationState(transcript.DiarizationState{
			State:        transcript.StreamActive,
			SpeakerCount: speakerCount,
			AudioSeconds: audioSeconds,
			Calibrated:   audioSeconds >= calibrationWindow,
		})
	}
}

func (c *Callback) announceAvailability() {
	c.mu.Lock()
	if c.announced {
		c.mu.Unlock()
		return
	}
	c.announced = true
	c.mu.Unlock()

	if c.diarize {
		c.engine.SetDiarizationAvailability(transcript.DiarizationAvailability{
			Available:    true,
			Capabilities: []string{"speaker_segments", "speaker_changes", "retroactive_corrections"},
			Message:      "Speaker separation active",
		})
		return
	}
	c.engine.SetDiarizationAvailability(transcript.DiarizationAvailability{
		Available: false,
		Reason:    "diarization disabled",
		Message:   "Transcript will not distinguish speakers",
	})
}

func (c *Callback) Metadata(*api.MetadataResponse) error { return nil }

func (c *Callback) SpeechStarted(*api.SpeechStartedResponse) error { return nil }

func (c *Callback) UtteranceEnd(*api.UtteranceEndResponse) error {
	// The window since the last final result is settled; a fresh interim ID
	// starts with the next message.
	c.mu.Lock()
	c.interimID = ""
	c.mu.Unlock()
	return nil
}

func (c *Callback) Close(*api.CloseResponse) error {
	log.Println("disconnected from Deepgram")
	c.engine.UpdateDiarizationState(transcript.DiarizationState{State: transcript.StreamIdle})
	return nil
}

func (c *Callback) Error(er *api.ErrorResponse) error {
	log.Printf("deepgram error %s: %s", er.ErrCode, er.Description)
	c.engine.SetError(fmt.Errorf("deepgram: %s: %s", er.ErrCode, er.Description))
	return nil
}

func (c *Callback) UnhandledEvent([]byte) error { return nil }

// SpeakerLabel formats a diarization speaker index as a session-local label.
func SpeakerLabel(idx int) string {
	return fmt.Sprintf("Speaker_%d", idx)
}
