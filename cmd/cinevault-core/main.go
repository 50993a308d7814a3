// Command cinevault-core is the composition root: it wires config, the
// Postgres-backed store, the object graph in internal/engine, an asynq
// job queue, and a robfig/cron maintenance scheduler, then blocks running
// the job worker. Adapted from the teacher's cmd/cinevault/main.go, trimmed
// to what this spec's scope owns (spec.md §1: the HTTP/GraphQL API surface,
// auth, and the web client are external collaborators, not built here).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/cinevault/core/internal/config"
	"github.com/cinevault/core/internal/db"
	"github.com/cinevault/core/internal/engine"
	"github.com/cinevault/core/internal/jobs"
	"github.com/cinevault/core/internal/logging"
	"github.com/cinevault/core/internal/models"
	"github.com/cinevault/core/internal/scheduler"
	"github.com/cinevault/core/internal/store"
	"github.com/cinevault/core/internal/trickplay"
	"github.com/cinevault/core/internal/version"
)

const bannerArt = `
   _____ _            __      __          _ _
  / ____(_)           \ \    / /         | | |
 | |     _ _ __   ___  \ \  / /_ _ _   _| | |_
 | |    | | '_ \ / _ \  \ \/ / _' | | | | | __|
 | |____| | | | |  __/   \  / (_| | |_| | | |_
  \_____|_|_| |_|\___|    \/ \__,_|\__,_|_|\__|
`

// scanFlags are an optional one-shot library scan enqueued at startup —
// this repo owns no LibrarySection store (spec.md §1 scopes library
// administration to the external API/DB layer), so the caller supplies
// the section inline rather than looking it up.
type scanFlags struct {
	libraryID string
	kind      string
	roots     string
}

func main() {
	var sf scanFlags
	flag.StringVar(&sf.libraryID, "scan-library-id", "", "if set, enqueue a one-shot scan for this library id (UUID) at startup")
	flag.StringVar(&sf.kind, "scan-kind", "movies", "library kind for -scan-library-id (movies|tv_shows|music|photos|pictures|books|games)")
	flag.StringVar(&sf.roots, "scan-roots", "", "comma-separated filesystem roots for -scan-library-id")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Caller: cfg.Logging.Caller})
	log := logging.Logger()

	v := version.Get()
	fmt.Println(bannerArt)
	fmt.Printf("  Self-hosted media server core engines\n")
	fmt.Printf("  Version %s (%s)\n\n", v.Version, v.Commit)

	conn, err := db.Connect(db.Conn{
		URL:          cfg.Database.URL,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer conn.Close()

	if err := db.Migrate(conn, cfg.Database.MigrationsDir); err != nil {
		log.Fatal().Err(err).Msg("failed to apply migrations")
	}

	st := store.NewPostgres(conn)
	eng := engine.New(cfg, st)
	trick := trickplay.NewGenerator(cfg.FFmpeg.FFmpegPath, cfg.Paths.Preview, trickplay.DefaultInterval)

	queue := jobs.NewQueue(cfg.Redis.Address())
	jobs.RegisterHandlers(queue, eng, trick, cfg.Paths.Trickplay)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// asynq's Server.Start returns as soon as its processor goroutines are
	// running, not when they stop, so a failure here is logged rather than
	// treated as a shutdown trigger (mirrors the teacher's own
	// fire-and-forget jobQueue.Start goroutine in cmd/cinevault/main.go).
	go func() {
		if err := queue.Start(ctx); err != nil {
			log.Error().Err(err).Msg("job queue worker failed to start")
		}
	}()
	defer queue.Stop()

	sched := scheduler.New()
	if err := sched.ScheduleEvery(cfg.Playback.TranscodeReapEvery, "transcode-reap", func(ctx context.Context) error {
		_, err := queue.Enqueue(jobs.TaskTranscodeReap, struct{}{})
		return err
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule transcode reap")
	}
	if err := sched.ScheduleEvery(cfg.Playback.HeartbeatInterval*6, "session-expire", func(ctx context.Context) error {
		_, err := queue.Enqueue(jobs.TaskExpireSessions, struct{}{})
		return err
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule session expiry")
	}
	sched.Start()
	defer sched.Stop()

	if sf.libraryID != "" {
		if err := enqueueStartupScan(queue, sf); err != nil {
			log.Error().Err(err).Msg("failed to enqueue startup scan")
		}
	}

	log.Info().Msg("cinevault-core running; awaiting jobs")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	log.Info().Msg("shutdown signal received")
	cancel()
}

func enqueueStartupScan(queue *jobs.Queue, sf scanFlags) error {
	libraryID, err := uuid.Parse(sf.libraryID)
	if err != nil {
		return fmt.Errorf("parse -scan-library-id: %w", err)
	}
	var roots []string
	for _, r := range strings.Split(sf.roots, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roots = append(roots, r)
		}
	}
	payload := jobs.ScanLibraryPayload{
		LibraryID: libraryID,
		Kind:      models.LibraryKind(sf.kind),
		Roots:     roots,
	}
	_, err = queue.EnqueueUnique(jobs.TaskScanLibrary, payload, "startup-scan-"+libraryID.String())
	return err
}
