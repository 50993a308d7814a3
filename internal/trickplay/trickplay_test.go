package trickplay

import (
	"context"
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestNewGeneratorDefaultsInterval(t *testing.T) {
	is := is.New(t)

	g := NewGenerator("/usr/bin/ffmpeg", t.TempDir(), 0)
	is.Equal(g.Interval, DefaultInterval)

	g = NewGenerator("/usr/bin/ffmpeg", t.TempDir(), 5*time.Second)
	is.Equal(g.Interval, 5*time.Second)
}

func TestGenerateRejectsUnknownDuration(t *testing.T) {
	is := is.New(t)

	g := NewGenerator("/usr/bin/ffmpeg", t.TempDir(), DefaultInterval)
	_, err := g.Generate(context.Background(), "/media/movie.mkv", 0)
	is.True(err != nil)
}
