package transcode

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cinevault/core/internal/models"
	"github.com/cinevault/core/internal/store"
)

type fakeTranscodeStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*models.TranscodeJob
}

func newFakeTranscodeStore() *fakeTranscodeStore {
	return &fakeTranscodeStore{jobs: make(map[uuid.UUID]*models.TranscodeJob)}
}

func (f *fakeTranscodeStore) CreateJob(ctx context.Context, job *models.TranscodeJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job.StartedAt = time.Now()
	f.jobs[job.ID] = job
	return nil
}

func (f *fakeTranscodeStore) GetJob(ctx context.Context, id uuid.UUID) (*models.TranscodeJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copy := *job
	return &copy, nil
}

func (f *fakeTranscodeStore) GetRunningJobForPart(ctx context.Context, sessionID, mediaPartID uuid.UUID) (*models.TranscodeJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, job := range f.jobs {
		if job.SessionID == sessionID && job.MediaPartID == mediaPartID && job.State == models.TranscodeRunning {
			copy := *job
			return &copy, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeTranscodeStore) UpdateProgress(ctx context.Context, id uuid.UUID, progress float64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	job.Progress = progress
	job.LastPingAt = at
	return nil
}

func (f *fakeTranscodeStore) Transition(ctx context.Context, id uuid.UUID, state models.TranscodeState, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	job.State = state
	job.ErrorMessage = errMsg
	return nil
}

func (f *fakeTranscodeStore) ListStaleHeartbeats(ctx context.Context, olderThan time.Time) ([]*models.TranscodeJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.TranscodeJob
	for _, job := range f.jobs {
		if job.State == models.TranscodeRunning && job.LastPingAt.Before(olderThan) {
			copy := *job
			out = append(out, &copy)
		}
	}
	return out, nil
}

var _ store.TranscodeStore = (*fakeTranscodeStore)(nil)

func TestSameTarget(t *testing.T) {
	a := models.TranscodeTarget{VideoCodec: "h264", Width: 1280, Height: 720}
	b := models.TranscodeTarget{VideoCodec: "h264", Width: 1280, Height: 720}
	c := models.TranscodeTarget{VideoCodec: "hevc", Width: 1280, Height: 720}
	if !sameTarget(a, b) {
		t.Fatalf("expected a == b")
	}
	if sameTarget(a, c) {
		t.Fatalf("expected a != c")
	}
}

func TestBuildArgsIncludesSeekAndDASHOutput(t *testing.T) {
	s := NewSupervisor(newFakeTranscodeStore(), "/usr/bin/ffmpeg", "/tmp/out")
	args := s.buildArgs("/media/movie.mkv", "/tmp/out/job1", models.TranscodeTarget{
		VideoCodec: "h264", AudioCodec: "aac", Width: 1280, Height: 720, Channels: 2,
	}, 5000, "libx264", 0)

	joined := argsContain(args, "-ss") && argsContain(args, "-f") && argsContain(args, "dash")
	if !joined {
		t.Fatalf("expected seek and dash muxer args, got %v", args)
	}
	if args[len(args)-1] != "/tmp/out/job1/manifest.mpd" {
		t.Fatalf("expected manifest.mpd output, got %s", args[len(args)-1])
	}
}

func TestBuildArgsAppliesLoudnessGain(t *testing.T) {
	s := NewSupervisor(newFakeTranscodeStore(), "/usr/bin/ffmpeg", "/tmp/out")
	args := s.buildArgs("/media/album/track.flac", "/tmp/out/job1", models.TranscodeTarget{
		AudioCodec: "aac", Channels: 2,
	}, 0, "libx264", -3.2)

	if !argsContain(args, "-af") || !argsContain(args, "volume=-3.20dB") {
		t.Fatalf("expected a volume filter for the measured gain, got %v", args)
	}
}

func TestBuildArgsOmitsFilterWhenGainIsZero(t *testing.T) {
	s := NewSupervisor(newFakeTranscodeStore(), "/usr/bin/ffmpeg", "/tmp/out")
	args := s.buildArgs("/media/movie.mkv", "/tmp/out/job1", models.TranscodeTarget{
		AudioCodec: "aac", Channels: 2,
	}, 0, "libx264", 0)

	if argsContain(args, "-af") {
		t.Fatalf("expected no audio filter when gain is zero, got %v", args)
	}
}

func argsContain(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}

func TestTickReapsStaleHeartbeat(t *testing.T) {
	fs := newFakeTranscodeStore()
	job := &models.TranscodeJob{
		ID: uuid.New(), SessionID: uuid.New(), MediaPartID: uuid.New(),
		State: models.TranscodeRunning, LastPingAt: time.Now().Add(-time.Hour), OutputDir: t.TempDir(),
	}
	fs.jobs[job.ID] = job

	s := NewSupervisor(fs, "/usr/bin/ffmpeg", "/tmp/out")
	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	got, err := fs.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.State != models.TranscodeFailed {
		t.Fatalf("state = %v, want failed", got.State)
	}
}

func TestPingUpdatesProgress(t *testing.T) {
	fs := newFakeTranscodeStore()
	job := &models.TranscodeJob{ID: uuid.New(), State: models.TranscodeRunning}
	fs.jobs[job.ID] = job

	s := NewSupervisor(fs, "/usr/bin/ffmpeg", "/tmp/out")
	if err := s.Ping(context.Background(), job.ID, 0.42); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if fs.jobs[job.ID].Progress != 0.42 {
		t.Fatalf("progress = %v, want 0.42", fs.jobs[job.ID].Progress)
	}
}

func TestPingUnknownJobReturnsNotFound(t *testing.T) {
	s := NewSupervisor(newFakeTranscodeStore(), "/usr/bin/ffmpeg", "/tmp/out")
	err := s.Ping(context.Background(), uuid.New(), 0.1)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
