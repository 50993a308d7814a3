// Package engine is the composition root's object graph: every core
// engine wired over one *store.Store, mirroring the teacher's
// internal/api.Server (one struct holding every repository, scanner, and
// transcoder the HTTP layer needs) but built around background job
// processing instead of an HTTP router, since spec.md frames this system
// as engines, not endpoints.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cinevault/core/internal/artwork"
	"github.com/cinevault/core/internal/config"
	"github.com/cinevault/core/internal/fsprobe"
	"github.com/cinevault/core/internal/logging"
	"github.com/cinevault/core/internal/merge"
	"github.com/cinevault/core/internal/models"
	"github.com/cinevault/core/internal/parts"
	"github.com/cinevault/core/internal/playlist"
	"github.com/cinevault/core/internal/resolve"
	"github.com/cinevault/core/internal/scanpipe"
	"github.com/cinevault/core/internal/sidecar"
	"github.com/cinevault/core/internal/store"
	"github.com/cinevault/core/internal/stream/hls"
	"github.com/cinevault/core/internal/transcode"
)

// Engine holds every component the composition root constructs once at
// startup and shares across job handlers.
type Engine struct {
	Config *config.Config
	Store  store.Store

	Registry *parts.Registry
	Prober   *fsprobe.Prober
	Pipeline *scanpipe.Pipeline
	Scanner  *scanpipe.Scanner

	Artwork    *artwork.Store
	Transcode  *transcode.Supervisor
	Playlist   *playlist.Engine

	deduper *merge.Deduper
}

// identityAdapter satisfies merge.IdentityStore over store.MetadataStore:
// Insert is UpsertMetadataItem by another name (both are a keyed upsert),
// kept separate because merge.Deduper only ever inserts brand-new items.
type identityAdapter struct {
	store.MetadataStore
}

func (a identityAdapter) Insert(ctx context.Context, item models.MetadataItem) (models.MetadataItem, error) {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	err := a.UpsertMetadataItem(ctx, &item)
	return item, err
}

// flatContentRatings resolves a handful of common MPAA/TV ratings to a
// minimum age without reaching for a remote ratings board API — the
// example pack carries no such client, and the mapping itself is public,
// static data, not something worth a library for.
type flatContentRatings struct{}

var movieRatingAges = map[string]int{"G": 0, "PG": 0, "PG-13": 13, "R": 17, "NC-17": 18}
var tvRatingAges = map[string]int{"TV-Y": 0, "TV-Y7": 7, "TV-G": 0, "TV-PG": 0, "TV-14": 14, "TV-MA": 17}

func (flatContentRatings) ResolveAge(rating string, isTelevision bool) (int, bool) {
	table := movieRatingAges
	if isTelevision {
		table = tvRatingAges
	}
	age, ok := table[rating]
	return age, ok
}

// New builds the full object graph over an already-connected store. The
// parts.Registry is assembled and frozen here, the way the teacher wires a
// fixed extension map once in NewServer rather than per-request.
func New(cfg *config.Config, st store.Store) *Engine {
	registry := parts.NewRegistry().
		WithItemResolver(resolve.MovieResolver{}).
		WithItemResolver(resolve.ExtrasResolver{}).
		WithItemResolver(resolve.ArtistResolver{}).
		WithItemResolver(resolve.AlbumResolver{}).
		WithItemResolver(resolve.TrackResolver{}).
		WithItemResolver(resolve.PhotoResolver{}).
		WithSidecarParser(sidecar.NFOParser{}).
		WithSidecarParser(sidecar.JSONSidecarParser{}).
		WithSidecarParser(sidecar.LocalArtworkParser{}).
		WithEmbeddedExtractor(sidecar.NewFFprobeExtractor(cfg.FFmpeg.FFprobePath)).
		Freeze()

	prober := fsprobe.NewProber(
		fsprobe.NamedIgnoreDirRule("@eaDir", "lost+found", ".Trash-1000", "#recycle"),
	)

	e := &Engine{
		Config:   cfg,
		Store:    st,
		Registry: registry,
		Prober:   prober,
		Artwork:  artwork.NewStore(cfg.Paths.Artwork),
		deduper:  merge.NewDeduper(identityAdapter{st}),
	}
	e.Transcode = transcode.NewSupervisor(st, cfg.FFmpeg.FFmpegPath, cfg.Paths.Data)
	e.Transcode.NormalizeAudio = cfg.Playback.NormalizeAudio
	if cfg.Playback.TranscodeHeartbeatTimeout > 0 {
		e.Transcode.HeartbeatTimeout = cfg.Playback.TranscodeHeartbeatTimeout
	}
	e.Playlist = playlist.NewEngine(st)

	e.Pipeline = scanpipe.NewPipeline(registry, prober, e.persist)
	e.Scanner = scanpipe.NewScanner(st, e.Pipeline)
	return e
}

// RunScan drives a single library section's scan to completion, including
// the post-pipeline orphan reconciliation (spec.md §4.E).
func (e *Engine) RunScan(ctx context.Context, section models.LibrarySection) error {
	scanID := uuid.New()
	scan := &models.LibraryScan{
		ID:        scanID,
		LibraryID: section.ID,
		Status:    models.ScanRunning,
	}
	if err := e.Store.CreateScan(ctx, scan); err != nil {
		return fmt.Errorf("create scan for library %s: %w", section.ID, err)
	}

	runErr := e.Scanner.RunScan(ctx, scanID, section.ID, section.Roots, section.Kind)

	status := models.ScanCompleted
	var errs []string
	if runErr != nil {
		status = models.ScanFailed
		errs = []string{runErr.Error()}
	}
	if err := e.Store.CompleteScan(ctx, scanID, status, errs); err != nil {
		logging.Logger().Error().Err(err).Str("scan_id", scanID.String()).Msg("failed to record scan completion")
	}
	return runErr
}

// persist is the pipeline's PersistFunc (spec.md §4.E stage 5 / §4.F in
// full): it resolves identity, layers the overlay, then writes the
// metadata graph, physical parts, streams, and any sidecar-hinted artwork.
func (e *Engine) persist(ctx context.Context, item scanpipe.ScanWorkItem) error {
	if item.Resolution == nil || item.IsUnchanged {
		return nil
	}
	res := *item.Resolution

	libraryID := res.Item.LibraryID

	existing, err := e.deduper.FindOrCreateByExternalID(ctx, res.Kind, res.Item.PendingExternalIDs, libraryID,
		func() models.MetadataItem { return res.Item })
	if err != nil {
		return fmt.Errorf("resolve identity for %s: %w", item.Location, err)
	}

	layers := []merge.Layer{{Source: "resolved", Item: res.Item}}
	for _, sc := range item.SidecarResults {
		layers = append(layers, merge.Layer{Source: sc.Source, Item: sc.Item})
	}

	isTV := res.Kind == models.KindShow || res.Kind == models.KindSeason || res.Kind == models.KindEpisode
	merged := merge.ApplyOverlay(existing, flatContentRatings{}, isTV, layers...)
	merged.ID = existing.ID
	merged.LibraryID = libraryID

	if err := e.Store.UpsertMetadataItem(ctx, &merged); err != nil {
		return fmt.Errorf("upsert metadata item %s: %w", item.Location, err)
	}
	if len(merged.PendingExternalIDs) > 0 {
		if err := e.Store.AddExternalIDs(ctx, merged.ID, merged.PendingExternalIDs); err != nil {
			return err
		}
	}
	if err := e.Store.SetGenres(ctx, merged.ID, merged.Genres); err != nil {
		return err
	}
	if err := e.Store.SetTags(ctx, merged.ID, merged.Tags); err != nil {
		return err
	}
	for _, rel := range res.Relations {
		if err := e.Store.AddRelation(ctx, merged.ID, rel); err != nil {
			return err
		}
	}

	if len(res.ClaimedPaths) == 0 {
		return nil
	}
	if err := e.persistMediaParts(ctx, merged.ID, res.ClaimedPaths, item); err != nil {
		return err
	}

	for hintKey, uri := range collectArtworkHints(item.SidecarResults) {
		if _, err := e.Artwork.Ingest(ctx, merged.ID.String(), artwork.Kind(hintKey), uri); err != nil {
			logging.Logger().Warn().Err(err).Str("item_id", merged.ID.String()).Str("kind", hintKey).Msg("artwork ingest failed")
		}
	}
	return nil
}

func (e *Engine) persistMediaParts(ctx context.Context, metadataItemID uuid.UUID, paths []string, item scanpipe.ScanWorkItem) error {
	mediaItem, err := e.Store.GetMediaItem(ctx, metadataItemID)
	if err != nil {
		mediaItem = &models.MediaItem{ID: uuid.New(), MetadataItemID: metadataItemID}
	}
	if item.Embedded != nil {
		applyEmbeddedToMediaItem(mediaItem, item.Embedded.Streams)
	}
	if err := e.Store.UpsertMediaItem(ctx, mediaItem); err != nil {
		return fmt.Errorf("upsert media item for %s: %w", metadataItemID, err)
	}

	for i, path := range paths {
		part := &models.MediaPart{
			ID:          uuid.New(),
			MediaItemID: mediaItem.ID,
			PartIndex:   i,
			FilePath:    path,
			SizeBytes:   item.Entry.Size,
			ModifiedAt:  item.Entry.ModTime,
		}
		if err := e.Store.UpsertMediaPart(ctx, part); err != nil {
			return fmt.Errorf("upsert media part %s: %w", path, err)
		}
		if item.Embedded != nil {
			streams := make([]*models.MediaStream, len(item.Embedded.Streams))
			for j := range item.Embedded.Streams {
				s := item.Embedded.Streams[j]
				s.ID = uuid.New()
				streams[j] = &s
			}
			if err := e.Store.ReplaceMediaStreams(ctx, part.ID, streams); err != nil {
				return fmt.Errorf("replace streams for %s: %w", path, err)
			}
		}
	}
	return nil
}

func applyEmbeddedToMediaItem(mi *models.MediaItem, streams []models.MediaStream) {
	for _, s := range streams {
		switch s.Kind {
		case models.StreamVideo:
			mi.VideoCodec = s.Codec
			mi.Width, mi.Height = s.Width, s.Height
		case models.StreamAudio:
			if mi.AudioCodec == "" {
				mi.AudioCodec = s.Codec
			}
		}
	}
}

func collectArtworkHints(results []parts.SidecarResult) map[string]string {
	out := map[string]string{}
	for _, r := range results {
		for k, v := range r.Hints {
			const prefix = "artwork."
			if len(k) > len(prefix) && k[:len(prefix)] == prefix {
				out[k[len(prefix):]] = v
			}
		}
	}
	return out
}

// ReapTranscodes and ExpireSessions are the two periodic maintenance
// ticks the composition root schedules (spec.md §4.I heartbeat reaping,
// §4.H/§4.J session expiry).
func (e *Engine) ReapTranscodes(ctx context.Context) error {
	return e.Transcode.Tick(ctx)
}

func (e *Engine) ExpireSessions(ctx context.Context, olderThan time.Duration) ([]uuid.UUID, error) {
	return e.Store.ExpireStaleSessions(ctx, time.Now().Add(-olderThan))
}

// HLSMasterPlaylist builds the HLS-only fallback master playlist for a
// media item (spec.md §4.H/§4.J): DASH is this repo's primary transcode
// delivery format, but a client that never negotiates DASH still needs an
// ABR entry point.
func (e *Engine) HLSMasterPlaylist(mediaItemID uuid.UUID) string {
	return hls.BuildMasterPlaylistForItem(fmt.Sprintf("/api/stream/%s", mediaItemID), hls.DefaultLadder)
}
