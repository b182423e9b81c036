package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/mhutter/notewire/internal/config"
	"github.com/mhutter/notewire/internal/engine"
	"github.com/mhutter/notewire/internal/gdrive"
	"github.com/mhutter/notewire/internal/ingest"
	"github.com/mhutter/notewire/internal/server"
	"github.com/mhutter/notewire/internal/storage"
)

func main() {
	log.Println("notewire: starting")

	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, warnings, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	for _, w := range warnings {
		log.Printf("warning: %s", w)
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("storage init failed: %v", err)
	}

	audit := storage.NewAuditWriter(cfg.AuditDir)
	hub := server.NewHub()
	eng := engine.New(store, audit, hub, cfg.SpeakerRequired)

	handler := server.Handler(hub, eng, store, server.Options{
		SaveTimeout: cfg.ParsedSaveTimeout(),
		Warnings:    func() []string { return warnings },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer func() { _ = store.Close() }()

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: handler}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http server error: %v", err)
		}
	}()

	go runFlushLoop(ctx, eng, cfg.ParsedFlushInterval(), cfg.ParsedSaveTimeout())

	if cfg.GDriveFolderID != "" {
		syncer, syncErr := gdrive.NewSyncer(ctx, cfg.GoogleCredentialsFile, cfg.GDriveFolderID)
		if syncErr != nil {
			log.Printf("warning: gdrive sync disabled: %v", syncErr)
		} else {
			go runSyncLoop(ctx, syncer, store)
		}
	}

	var dgStop func()
	if cfg.DeepgramAPIKey != "" {
		dgStop = startIngestion(ctx, cfg, eng)
	}

	log.Printf("notewire: API on http://%s", cfg.ListenAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("notewire: shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if dgStop != nil {
		dgStop()
	}

	eng.StopSession()
	if n, err := eng.SaveToDatabase(shutdownCtx); err != nil {
		log.Printf("warning: final flush failed: %v", err)
	} else if n > 0 {
		log.Printf("final flush wrote %d segments", n)
	}

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("warning: http shutdown failed: %v", err)
	}
}

// startIngestion connects to Deepgram and feeds it audio from the configured
// input. It returns a stop function, or nil when the connection could not be
// established.
func startIngestion(ctx context.Context, cfg config.Config, eng *engine.Engine) func() {
	client.Init(client.InitLib{LogLevel: client.LogLevelDefault})

	cOptions := &interfaces.ClientOptions{
		APIKey:          cfg.DeepgramAPIKey,
		EnableKeepAlive: true,
	}
	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:       cfg.Model,
		Language:    cfg.Language,
		Diarize:     cfg.Diarize,
		Punctuate:   true,
		SmartFormat: true,
		Encoding:    "linear16",
		SampleRate:  cfg.SampleRate,
		Channels:    1,
	}

	callback := ingest.NewCallback(eng, cfg.Diarize)

	dgClient, err := client.NewWSUsingCallback(ctx, "", cOptions, tOptions, callback)
	if err != nil {
		log.Printf("warning: deepgram client unavailable, running API only: %v", err)
		return nil
	}
	if ok := dgClient.Connect(); !ok {
		log.Printf("warning: deepgram connect failed, running API only")
		return nil
	}

	audioIn, closeAudio, err := openAudioInput(cfg.AudioInput)
	if err != nil {
		log.Printf("warning: audio input unavailable, running API only: %v", err)
		dgClient.Stop()
		return nil
	}

	go func() {
		defer closeAudio()
		if err := streamAudio(ctx, dgClient, audioIn); err != nil {
			log.Printf("audio stream error: %v", err)
		}
	}()

	return dgClient.Stop
}

// openAudioInput opens the configured audio source. "-" means stdin; anything
// else is treated as a path (regular file or FIFO).
func openAudioInput(source string) (io.Reader, func(), error) {
	if source == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(source)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

// streamAudio copies raw PCM from the input to the Deepgram socket until the
// input is exhausted or the context is cancelled.
func streamAudio(ctx context.Context, w io.Writer, r io.Reader) error {
	buf := make([]byte, 4096)
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				if ctx.Err() != nil {
					return nil
				}
				return werr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func runFlushLoop(ctx context.Context, eng *engine.Engine, interval, timeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			flushCtx, flushCancel := context.WithTimeout(ctx, timeout)
			n, err := eng.SaveToDatabase(flushCtx)
			flushCancel()
			if err != nil {
				log.Printf("flush error: %v", err)
			} else if n > 0 {
				log.Printf("flushed %d segments", n)
			}
		}
	}
}

func runSyncLoop(ctx context.Context, syncer *gdrive.Syncer, store *storage.SQLiteStore) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := syncOnce(ctx, syncer, store); err != nil {
				log.Printf("gdrive sync error: %v", err)
			}
		}
	}
}

// syncOnce uploads a consistent snapshot of the database. The live file is
// in WAL mode and must never be copied directly.
func syncOnce(ctx context.Context, syncer *gdrive.Syncer, store *storage.SQLiteStore) error {
	snapPath := filepath.Join(os.TempDir(), "notewire-backup.db")
	if err := store.SnapshotTo(ctx, snapPath); err != nil {
		return err
	}
	defer func() { _ = os.Remove(snapPath) }()

	return syncer.Sync(snapPath, time.Now().UTC().Format("2006-01-02"))
}
