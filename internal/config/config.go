// Package config loads the core engines' configuration through Koanf v2,
// layering built-in defaults, an optional YAML file, and environment
// variables (highest priority), in the order cartographus's config package
// uses. Unlike the flat env-only struct this replaces, every concern gets
// its own nested group so components can be handed just the slice they own
// (cfg.FFmpeg to the transcode supervisor, cfg.Paths to artwork/BIF, etc).
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the default config file search.
const ConfigPathEnvVar = "CINEVAULT_CONFIG_PATH"

// DefaultConfigPaths is searched in order; the first existing file wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/cinevault/config.yaml",
}

type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	URL             string `koanf:"url"`
	MaxOpenConns    int    `koanf:"max_open_conns"`
	MaxIdleConns    int    `koanf:"max_idle_conns"`
	MigrationsDir   string `koanf:"migrations_dir"`
}

type RedisConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

func (r RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type FFmpegConfig struct {
	FFmpegPath  string `koanf:"ffmpeg_path"`
	FFprobePath string `koanf:"ffprobe_path"`
	HWAccel     string `koanf:"hw_accel"` // "cpu" | "nvenc" | "qsv" | "vaapi"

	MaxConcurrentTranscodes int           `koanf:"max_concurrent_transcodes"`
	SegmentDuration         time.Duration `koanf:"segment_duration"`
	TranscodeIdleTimeout    time.Duration `koanf:"transcode_idle_timeout"`
}

type PathsConfig struct {
	Data     string `koanf:"data"`
	Media    string `koanf:"media"`
	Preview  string `koanf:"preview"`
	Artwork  string `koanf:"artwork"`
	Trickplay string `koanf:"trickplay"`
}

type LibraryConfig struct {
	ScanWorkerMultiplier int           `koanf:"scan_worker_multiplier"`
	ScanWorkerMin        int           `koanf:"scan_worker_min"`
	ScanCheckpointEvery  int           `koanf:"scan_checkpoint_every"`
	ScanInterval         time.Duration `koanf:"scan_interval"`
}

type PlaybackConfig struct {
	SessionExpiry             time.Duration `koanf:"session_expiry"`
	HeartbeatInterval         time.Duration `koanf:"heartbeat_interval"`
	TranscodeReapEvery        time.Duration `koanf:"transcode_reap_every"`
	TranscodeHeartbeatTimeout time.Duration `koanf:"transcode_heartbeat_timeout"`
	PlaylistChunkSize         int           `koanf:"playlist_chunk_size"`
	NormalizeAudio            bool          `koanf:"normalize_audio"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Config is the root configuration object, unmarshaled from koanf's merged
// view of defaults → file → env.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	FFmpeg   FFmpegConfig   `koanf:"ffmpeg"`
	Paths    PathsConfig    `koanf:"paths"`
	Library  LibraryConfig  `koanf:"library"`
	Playback PlaybackConfig `koanf:"playback"`
	Logging  LoggingConfig  `koanf:"logging"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Database: DatabaseConfig{
			URL:           "postgres://cinevault:cinevault@db:5432/cinevault?sslmode=disable",
			MaxOpenConns:  25,
			MaxIdleConns:  5,
			MigrationsDir: "migrations",
		},
		Redis: RedisConfig{Host: "redis", Port: 6379},
		FFmpeg: FFmpegConfig{
			FFmpegPath:              "ffmpeg",
			FFprobePath:             "ffprobe",
			HWAccel:                 "cpu",
			MaxConcurrentTranscodes: 2,
			SegmentDuration:         6 * time.Second,
			TranscodeIdleTimeout:    90 * time.Second,
		},
		Paths: PathsConfig{
			Data:      "/data",
			Media:     "/media",
			Preview:   "/data/preview",
			Artwork:   "/data/artwork",
			Trickplay: "/data/trickplay",
		},
		Library: LibraryConfig{
			ScanWorkerMultiplier: 2,
			ScanWorkerMin:        4,
			ScanCheckpointEvery:  200,
			ScanInterval:         6 * time.Hour,
		},
		Playback: PlaybackConfig{
			SessionExpiry:             30 * time.Minute,
			HeartbeatInterval:         10 * time.Second,
			TranscodeReapEvery:        15 * time.Second,
			TranscodeHeartbeatTimeout: 60 * time.Second,
			PlaylistChunkSize:         50,
			NormalizeAudio:            false,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load layers defaults, an optional YAML file, then environment variables
// (CINEVAULT_ prefixed, "__" as the nesting separator, e.g.
// CINEVAULT_FFMPEG__HW_ACCEL=nvenc -> ffmpeg.hw_accel).
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider("CINEVAULT_", ".", envTransform)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envTransform turns CINEVAULT_FFMPEG__HW_ACCEL into ffmpeg.hw_accel.
func envTransform(s string) string {
	s = s[len("CINEVAULT_"):]
	out := make([]rune, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '_' && i+1 < len(s) && s[i+1] == '_':
			out = append(out, '.')
			i++
		case s[i] == '_':
			out = append(out, '_')
		default:
			out = append(out, rune(toLower(s[i])))
		}
	}
	return string(out)
}

func toLower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b - 'A' + 'a'
	}
	return b
}
