// Package models holds the logical data model shared by the scan pipeline,
// merge/dedup, playback decision engine, and playlist/session engine.
//
// The teacher repo this was adapted from modeled each library kind
// (Movie, TVShow, Album, …) as its own struct with its own repository. This
// package instead flattens that hierarchy to a single tagged-variant
// MetadataItem: common fields live directly on the struct, kind-specific
// bits live on typed sibling structs keyed by the same id, and overlay/merge
// code dispatches on Kind rather than on Go type. See DESIGN.md.
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ItemKind enumerates every kind of node in the metadata graph.
type ItemKind string

const (
	KindMovie             ItemKind = "movie"
	KindShow              ItemKind = "show"
	KindSeason            ItemKind = "season"
	KindEpisode           ItemKind = "episode"
	KindAlbumReleaseGroup ItemKind = "album_release_group"
	KindAlbumRelease      ItemKind = "album_release"
	KindAlbumMedium       ItemKind = "album_medium"
	KindTrack             ItemKind = "track"
	KindRecording         ItemKind = "recording"
	KindAudioWork         ItemKind = "audio_work"
	KindPhoto             ItemKind = "photo"
	KindPhotoAlbum        ItemKind = "photo_album"
	KindPicture           ItemKind = "picture"
	KindPictureSet        ItemKind = "picture_set"
	KindBookSeries        ItemKind = "book_series"
	KindEdition           ItemKind = "edition"
	KindEditionItem       ItemKind = "edition_item"
	KindLiteraryWork      ItemKind = "literary_work"
	KindGame              ItemKind = "game"
	KindGameRelease       ItemKind = "game_release"
	KindPerson            ItemKind = "person"
	KindGroup             ItemKind = "group"
	KindCollection        ItemKind = "collection"
	KindPlaylist          ItemKind = "playlist"
	KindTrailer           ItemKind = "trailer"
	KindClip              ItemKind = "clip"
	KindBehindTheScenes   ItemKind = "behind_the_scenes"
	KindDeletedScene      ItemKind = "deleted_scene"
	KindFeaturette        ItemKind = "featurette"
	KindInterview         ItemKind = "interview"
	KindScene             ItemKind = "scene"
	KindShortForm         ItemKind = "short_form"
	KindExtraOther        ItemKind = "extra_other"
	KindOptimizedVersion  ItemKind = "optimized_version"
)

// IsExtra reports whether a kind is one of the "extra" kinds that must
// always carry an owner relation (spec invariant I4).
func (k ItemKind) IsExtra() bool {
	switch k {
	case KindTrailer, KindClip, KindBehindTheScenes, KindDeletedScene,
		KindFeaturette, KindInterview, KindScene, KindShortForm, KindExtraOther:
		return true
	}
	return false
}

// RelationType names a typed edge between two MetadataItems.
type RelationType string

const (
	RelationClipSupplements   RelationType = "clip_supplements_metadata"
	RelationTrailerPromotes   RelationType = "trailer_promotes_metadata"
	RelationFeaturetteBelongs RelationType = "featurette_belongs_to"
	RelationCollectionMember  RelationType = "collection_contains"
	RelationEditionOf         RelationType = "edition_of"
)

// Relation is one outgoing edge from an item.
type Relation struct {
	Type     RelationType `json:"type"`
	TargetID uuid.UUID    `json:"target_id"`
	// Pending is true while the target hasn't been resolved/persisted yet
	// (e.g. an extras resolver that fired before its owner folder was
	// created). The merge/dedup layer clears it once the target exists.
	Pending bool `json:"pending,omitempty"`
}

// ArtworkRef is one artwork slot with its rewritten content-addressed URI
// and a perceptual placeholder hash computed at ingestion time (§4.G).
type ArtworkRef struct {
	URI             string `json:"uri,omitempty"`
	PlaceholderHash string `json:"placeholder_hash,omitempty"`
}

// ExternalIdentifier is a provider-namespaced external id, unique per
// provider per item (spec invariant I3, §3).
type ExternalIdentifier struct {
	Provider string `json:"provider" db:"provider"`
	Value    string `json:"value" db:"value"`
}

// Key returns the dedup cache key used by the merge/dedup layer: see §4.F.
func (e ExternalIdentifier) Key(kind ItemKind) string {
	return string(kind) + ":" + e.Provider + ":" + e.Value
}

// GenreEdge / TagEdge are lightweight edges to shared genre/tag vocabularies.
type GenreEdge struct {
	Name string `json:"name"`
}

type TagEdge struct {
	Name string `json:"name"`
}

// CustomFieldValue is an admin-defined custom field's typed value. Only one
// of the pointer fields is set; Kind says which.
type CustomFieldValue struct {
	Kind string   `json:"kind"` // "string" | "number" | "bool"
	Str  *string  `json:"str,omitempty"`
	Num  *float64 `json:"num,omitempty"`
	Bool *bool    `json:"bool,omitempty"`
}

// MetadataItem is the central node of the metadata graph (spec.md §3).
type MetadataItem struct {
	ID   uuid.UUID `json:"id" db:"id"`
	Kind ItemKind  `json:"kind" db:"kind"`

	Title         string `json:"title" db:"title"`
	SortTitle     string `json:"sort_title,omitempty" db:"sort_title"`
	OriginalTitle string `json:"original_title,omitempty" db:"original_title"`
	Summary       string `json:"summary,omitempty" db:"summary"`
	Tagline       string `json:"tagline,omitempty" db:"tagline"`

	ContentRating    string `json:"content_rating,omitempty" db:"content_rating"`
	ContentRatingAge *int   `json:"content_rating_age,omitempty" db:"content_rating_age"`

	ReleaseDate *time.Time `json:"release_date,omitempty" db:"release_date"`
	Year        *int       `json:"year,omitempty" db:"year"`

	// Dual indices: position among siblings under the same parent, and
	// absolute position across the whole owning collection (e.g. an
	// episode's season-relative number vs. its overall series number).
	ParentIndex   *int `json:"parent_index,omitempty" db:"parent_index"`
	AbsoluteIndex *int `json:"absolute_index,omitempty" db:"absolute_index"`

	DurationMs *int64 `json:"duration_ms,omitempty" db:"duration_ms"`

	Poster   ArtworkRef `json:"poster,omitempty" db:"-"`
	Backdrop ArtworkRef `json:"backdrop,omitempty" db:"-"`
	Logo     ArtworkRef `json:"logo,omitempty" db:"-"`

	ParentID  *uuid.UUID `json:"parent_id,omitempty" db:"parent_id"`
	LibraryID uuid.UUID  `json:"library_id" db:"library_id"`

	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`

	// LockedFields names fields immune to automatic overlay refresh
	// (spec.md §4.F); "*" locks everything.
	LockedFields pq.StringArray `json:"locked_fields,omitempty" db:"locked_fields"`

	CustomFields map[string]CustomFieldValue `json:"custom_fields,omitempty" db:"-"`

	ExternalIDs []ExternalIdentifier `json:"external_ids,omitempty" db:"-"`
	// PendingExternalIDs holds ids discovered before this item was
	// persisted for the first time; flushed by the dedup protocol (§4.F).
	PendingExternalIDs []ExternalIdentifier `json:"-" db:"-"`

	Genres []GenreEdge `json:"genres,omitempty" db:"-"`
	Tags   []TagEdge   `json:"tags,omitempty" db:"-"`

	OutgoingRelations []Relation `json:"outgoing_relations,omitempty" db:"-"`
	IncomingRelations []Relation `json:"incoming_relations,omitempty" db:"-"`

	ChildIDs []uuid.UUID `json:"child_ids,omitempty" db:"-"`

	// Source documents the overlay provenance of the current field values,
	// e.g. "resolved+embedded+sidecar" (§4.D merge rule).
	Source string `json:"source,omitempty" db:"source"`
}

// IsFieldLocked reports whether the named field must skip overlay unless
// explicitly overridden (spec.md §4.F).
func (m *MetadataItem) IsFieldLocked(field string) bool {
	for _, f := range m.LockedFields {
		if f == "*" || f == field {
			return true
		}
	}
	return false
}

// IsVisible reports whether the item should be returned by ordinary query
// paths (spec invariant I5 — soft-deleted items are hidden except to the
// reconciler).
func (m *MetadataItem) IsVisible() bool {
	return m.DeletedAt == nil
}

// ──────────────────── Physical realization ────────────────────

// MediaItem is the playable rendition of a MetadataItem: an aggregate view
// over one or more MediaParts.
type MediaItem struct {
	ID             uuid.UUID `json:"id" db:"id"`
	MetadataItemID uuid.UUID `json:"metadata_item_id" db:"metadata_item_id"`

	Container    string `json:"container,omitempty" db:"container"`
	VideoCodec   string `json:"video_codec,omitempty" db:"video_codec"`
	AudioCodec   string `json:"audio_codec,omitempty" db:"audio_codec"`
	Resolution   string `json:"resolution,omitempty" db:"resolution"`
	Width        int    `json:"width,omitempty" db:"width"`
	Height       int    `json:"height,omitempty" db:"height"`
	DynamicRange string `json:"dynamic_range,omitempty" db:"dynamic_range"` // "SDR" | "HDR"
	HDRFormat    string `json:"hdr_format,omitempty" db:"hdr_format"`

	FileSizeBytes int64 `json:"file_size_bytes" db:"file_size_bytes"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// MediaPart is one file backing a MediaItem, ordered by PartIndex.
type MediaPart struct {
	ID          uuid.UUID `json:"id" db:"id"`
	MediaItemID uuid.UUID `json:"media_item_id" db:"media_item_id"`
	PartIndex   int       `json:"part_index" db:"part_index"`

	FilePath   string    `json:"file_path" db:"file_path"`
	SizeBytes  int64     `json:"size_bytes" db:"size_bytes"`
	ModifiedAt time.Time `json:"modified_at" db:"modified_at"`
	Hash       string    `json:"hash,omitempty" db:"hash"`

	DurationMs int64 `json:"duration_ms,omitempty" db:"duration_ms"`
	BitrateBps int64 `json:"bitrate_bps,omitempty" db:"bitrate_bps"`
}

// StreamKind enumerates the elementary-stream categories on a MediaPart.
type StreamKind string

const (
	StreamVideo    StreamKind = "video"
	StreamAudio    StreamKind = "audio"
	StreamSubtitle StreamKind = "subtitle"
)

// MediaStream describes a single elementary stream within a MediaPart.
type MediaStream struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	MediaPartID uuid.UUID  `json:"media_part_id" db:"media_part_id"`
	Kind        StreamKind `json:"kind" db:"kind"`
	StreamIndex int        `json:"stream_index" db:"stream_index"`

	Codec         string `json:"codec,omitempty" db:"codec"`
	Profile       string `json:"profile,omitempty" db:"profile"`
	Language      string `json:"language,omitempty" db:"language"`
	Title         string `json:"title,omitempty" db:"title"`
	Channels      int    `json:"channels,omitempty" db:"channels"`
	ChannelLayout string `json:"channel_layout,omitempty" db:"channel_layout"`
	SampleRateHz  int    `json:"sample_rate_hz,omitempty" db:"sample_rate_hz"`
	BitrateBps    int64  `json:"bitrate_bps,omitempty" db:"bitrate_bps"`
	Width         int    `json:"width,omitempty" db:"width"`
	Height        int    `json:"height,omitempty" db:"height"`

	IsDefault bool `json:"is_default,omitempty" db:"is_default"`
	IsForced  bool `json:"is_forced,omitempty" db:"is_forced"`
	IsSDH     bool `json:"is_sdh,omitempty" db:"is_sdh"`

	// ExternalFilePath is set for sidecar subtitle files (not embedded).
	ExternalFilePath string `json:"external_file_path,omitempty" db:"external_file_path"`
}

// ──────────────────── Library & scan ────────────────────

type LibraryKind string

const (
	LibraryMovies   LibraryKind = "movies"
	LibraryTVShows  LibraryKind = "tv_shows"
	LibraryMusic    LibraryKind = "music"
	LibraryPhotos   LibraryKind = "photos"
	LibraryPictures LibraryKind = "pictures"
	LibraryBooks    LibraryKind = "books"
	LibraryGames    LibraryKind = "games"
)

type EpisodeSortOrder string

const (
	SortAirDate       EpisodeSortOrder = "air_date"
	SortSeasonEpisode EpisodeSortOrder = "season_episode"
	SortProduction    EpisodeSortOrder = "production"
)

// LibrarySection is a top-level scope (spec.md §3).
type LibrarySection struct {
	ID    uuid.UUID   `json:"id" db:"id"`
	Name  string      `json:"name" db:"name"`
	Kind  LibraryKind `json:"kind" db:"kind"`
	Roots []string    `json:"roots" db:"-"`

	PreferredMetadataLanguage  string           `json:"preferred_metadata_language" db:"preferred_metadata_language"`
	MetadataAgentOrder         []string         `json:"metadata_agent_order,omitempty" db:"-"`
	PreferredAudioLanguages    []string         `json:"preferred_audio_languages,omitempty" db:"-"`
	PreferredSubtitleLanguages []string         `json:"preferred_subtitle_languages,omitempty" db:"-"`
	EpisodeSortOrder           EpisodeSortOrder `json:"episode_sort_order,omitempty" db:"episode_sort_order"`
	HideSeasonsForSingleSeason bool             `json:"hide_seasons_for_single_season_series" db:"hide_seasons_for_single_season_series"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type ScanStatus string

const (
	ScanRunning   ScanStatus = "running"
	ScanCompleted ScanStatus = "completed"
	ScanFailed    ScanStatus = "failed"
	ScanCancelled ScanStatus = "cancelled"
)

// ResumeCursor is persisted per-scan so a restarted pipeline can
// fast-forward the traversal stage to where it left off (spec.md §4.E).
type ResumeCursor struct {
	Stage            string `json:"stage"`
	StageLocalCursor string `json:"stage_local_cursor"`
	Version          int64  `json:"version"`
}

// LibraryScan is one run of the scan pipeline over a LibrarySection.
type LibraryScan struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	LibraryID uuid.UUID  `json:"library_id" db:"library_id"`
	Status    ScanStatus `json:"status" db:"status"`

	FilesFound   int `json:"files_found" db:"files_found"`
	FilesAdded   int `json:"files_added" db:"files_added"`
	FilesSkipped int `json:"files_skipped" db:"files_skipped"`

	Cursor            ResumeCursor `json:"cursor" db:"-"`
	CheckpointVersion int64        `json:"checkpoint_version" db:"checkpoint_version"`
	LastCheckpointAt  time.Time    `json:"last_checkpoint_at" db:"last_checkpoint_at"`

	StartedAt   time.Time  `json:"started_at" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`

	Errors []string `json:"errors,omitempty" db:"-"`
}

// LibraryScanSeenPath is one (scanId, filePath) pair recorded during a scan,
// used to compute orphans at reconcile time (spec.md §4.E).
type LibraryScanSeenPath struct {
	ScanID   uuid.UUID `db:"scan_id"`
	FilePath string    `db:"file_path"`
}

// ──────────────────── Playback ────────────────────

type SessionState string

const (
	SessionPlaying   SessionState = "playing"
	SessionPaused    SessionState = "paused"
	SessionBuffering SessionState = "buffering"
	SessionStopped   SessionState = "stopped"
)

// CapabilityProfile is the client's decoder/constraint declaration
// (spec.md §3).
type CapabilityProfile struct {
	Version int64 `json:"version"`

	SupportedContainers []string   `json:"supported_containers"`
	SupportedCodecs     []CodecCap `json:"supported_codecs"`

	MaxChannels   int `json:"max_channels"`
	MaxSampleRate int `json:"max_sample_rate"`

	SubtitleHandling   string `json:"subtitle_handling"` // "burn-in" | "sidecar" | "none"
	AcceptsToneMapping bool   `json:"accepts_tone_mapping"`
}

// CodecCap is one codec's resolution/bitrate/profile ceiling.
type CodecCap struct {
	Codec         string `json:"codec"`
	Profile       string `json:"profile,omitempty"`
	MaxLevel      string `json:"max_level,omitempty"`
	MaxBitrateBps int64  `json:"max_bitrate_bps,omitempty"`
	MaxWidth      int    `json:"max_width,omitempty"`
	MaxHeight     int    `json:"max_height,omitempty"`
	MaxBitDepth   int    `json:"max_bit_depth,omitempty"`
}

// PlaybackSession is a client's ongoing playback (spec.md §3).
type PlaybackSession struct {
	ID                  uuid.UUID         `json:"id" db:"id"`
	UserSessionID       string            `json:"user_session_id" db:"user_session_id"`
	Capability          CapabilityProfile `json:"capability" db:"-"`
	CurrentItemID       *uuid.UUID        `json:"current_item_id,omitempty" db:"current_item_id"`
	CurrentPartID       *uuid.UUID        `json:"current_part_id,omitempty" db:"current_part_id"`
	PlayheadMs          int64             `json:"playhead_ms" db:"playhead_ms"`
	State               SessionState      `json:"state" db:"state"`
	LastHeartbeatAt     time.Time         `json:"last_heartbeat_at" db:"last_heartbeat_at"`
	ExpiresAt           time.Time         `json:"expires_at" db:"expires_at"`
	PlaylistGeneratorID *uuid.UUID        `json:"playlist_generator_id,omitempty" db:"playlist_generator_id"`
}

// ──────────────────── Playlist ────────────────────

// PlaylistSeed names what generated the ordering: a library filter, a smart
// playlist definition, or an explicit id list (spec.md §4.M).
type PlaylistSeed struct {
	Kind        string      `json:"kind"` // "library" | "smart" | "explicit"
	LibraryID   *uuid.UUID  `json:"library_id,omitempty"`
	SmartFilter string      `json:"smart_filter,omitempty"`
	ItemIDs     []uuid.UUID `json:"item_ids,omitempty"`
}

// PlaylistGenerator is a server-owned cursor over a deterministic ordering
// of items (spec.md §3, §4.M).
type PlaylistGenerator struct {
	PublicID     uuid.UUID    `json:"public_id" db:"public_id"`
	SessionID    uuid.UUID    `json:"session_id" db:"session_id"`
	Seed         PlaylistSeed `json:"seed" db:"-"`
	Cursor       int          `json:"cursor" db:"cursor"`
	Repeat       bool         `json:"repeat" db:"repeat"`
	Shuffle      bool         `json:"shuffle" db:"shuffle"`
	ShuffleState string       `json:"shuffle_state,omitempty" db:"shuffle_state"`
	ExpiresAt    time.Time    `json:"expires_at" db:"expires_at"`
	ChunkSize    int          `json:"chunk_size" db:"chunk_size"`
	TotalCount   int          `json:"total_count" db:"total_count"`
}

// PlaylistGeneratorItem is one materialized slot in a generator's ordering.
type PlaylistGeneratorItem struct {
	GeneratorID    uuid.UUID  `json:"generator_id" db:"generator_id"`
	MetadataItemID uuid.UUID  `json:"metadata_item_id" db:"metadata_item_id"`
	MediaItemID    *uuid.UUID `json:"media_item_id,omitempty" db:"media_item_id"`
	MediaPartID    *uuid.UUID `json:"media_part_id,omitempty" db:"media_part_id"`
	SortOrder      int        `json:"sort_order" db:"sort_order"`
	Served         bool       `json:"served" db:"served"`
	Cohort         string     `json:"cohort,omitempty" db:"cohort"`
}

// ──────────────────── Transcode ────────────────────

type TranscodeState string

const (
	TranscodePending   TranscodeState = "pending"
	TranscodeRunning   TranscodeState = "running"
	TranscodeCompleted TranscodeState = "completed"
	TranscodeCancelled TranscodeState = "cancelled"
	TranscodeFailed    TranscodeState = "failed"
)

// TranscodeTarget is the effective output the supervisor asked FFmpeg for.
type TranscodeTarget struct {
	VideoCodec    string `json:"video_codec"`
	AudioCodec    string `json:"audio_codec"`
	BitrateBps    int64  `json:"bitrate_bps"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	Channels      int    `json:"channels"`
	HardwareAccel bool   `json:"hardware_accel"`
	ToneMapping   bool   `json:"tone_mapping"`
}

// TranscodeJob is bound to a playback session + media part (spec.md §3).
type TranscodeJob struct {
	ID          uuid.UUID      `json:"id" db:"id"`
	SessionID   uuid.UUID      `json:"session_id" db:"session_id"`
	MediaPartID uuid.UUID      `json:"media_part_id" db:"media_part_id"`
	State       TranscodeState `json:"state" db:"state"`

	Target    TranscodeTarget `json:"target" db:"-"`
	SeekMs    int64           `json:"seek_ms,omitempty" db:"seek_ms"`
	OutputDir string          `json:"output_dir" db:"output_dir"`
	Progress  float64         `json:"progress" db:"progress"`

	LastPingAt   time.Time `json:"last_ping_at" db:"last_ping_at"`
	ErrorMessage string    `json:"error_message,omitempty" db:"error_message"`

	StartedAt   time.Time  `json:"started_at" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}
