package bif

import (
	"bytes"
	"testing"

	"github.com/matryer/is"
)

func sampleEntries(n int) []Entry {
	entries := make([]Entry, n)
	for i := 0; i < n; i++ {
		entries[i] = Entry{
			TimestampMs: int32(i * 1000),
			Image:       bytes.Repeat([]byte{byte(i % 256)}, 16+i%8),
		}
	}
	return entries
}

// TestBIFRoundTrip_S4 exercises spec.md S4: read(write(bif)) == bif.
func TestBIFRoundTrip_S4(t *testing.T) {
	is := is.New(t)

	original := Bif{Entries: sampleEntries(250)}
	buf := &bytes.Buffer{}
	is.NoErr(Write(buf, original))

	r := bytes.NewReader(buf.Bytes())
	got, err := ReadAll(r, int64(buf.Len()))
	is.NoErr(err)
	is.Equal(len(got.Entries), len(original.Entries))

	for i, e := range got.Entries {
		is.Equal(e.TimestampMs, original.Entries[i].TimestampMs)
		is.True(bytes.Equal(e.Image, original.Entries[i].Image))
	}
}

func TestBIFReadOne_MatchesReadAll(t *testing.T) {
	is := is.New(t)

	original := Bif{Entries: sampleEntries(10800)}
	buf := &bytes.Buffer{}
	is.NoErr(Write(buf, original))

	r := bytes.NewReader(buf.Bytes())
	all, err := ReadAll(r, int64(buf.Len()))
	is.NoErr(err)

	one, err := ReadOne(r, int64(buf.Len()), 5000)
	is.NoErr(err)
	is.Equal(one.TimestampMs, all.Entries[5000].TimestampMs)
	is.True(bytes.Equal(one.Image, all.Entries[5000].Image))
}

func TestBIFReadOne_LastEntryUsesFileSize(t *testing.T) {
	is := is.New(t)

	original := Bif{Entries: sampleEntries(5)}
	buf := &bytes.Buffer{}
	is.NoErr(Write(buf, original))

	r := bytes.NewReader(buf.Bytes())
	last, err := ReadOne(r, int64(buf.Len()), 4)
	is.NoErr(err)
	is.True(bytes.Equal(last.Image, original.Entries[4].Image))
}

func TestBIFHeaderMagicAndSize(t *testing.T) {
	is := is.New(t)

	buf := &bytes.Buffer{}
	is.NoErr(Write(buf, Bif{Entries: sampleEntries(1)}))
	header := buf.Bytes()[:HeaderSize]
	is.Equal(len(header), 64)
	is.Equal(header[0], byte(0x89)) // big-endian magic high byte, start of "\x89BIF"
}

func TestBIFRejectsOversizedImage(t *testing.T) {
	is := is.New(t)

	big := Bif{Entries: []Entry{{TimestampMs: 0, Image: make([]byte, MaxImageSize+1)}}}
	buf := &bytes.Buffer{}
	is.NoErr(Write(buf, big))

	r := bytes.NewReader(buf.Bytes())
	_, err := ReadAll(r, int64(buf.Len()))
	is.True(err != nil)
}

func TestImageByTimestamp_NearestAtOrBefore(t *testing.T) {
	is := is.New(t)

	b := Bif{Entries: sampleEntries(5)} // timestamps 0,1000,2000,3000,4000
	e, ok := b.ImageByTimestamp(2500)
	is.True(ok)
	is.Equal(e.TimestampMs, int32(2000))
}

func TestStoragePath(t *testing.T) {
	is := is.New(t)

	is.Equal(StoragePath("/media", "abcdef12-0000-0000-0000-000000000000", 0),
		"/media/ab/abcdef12-0000-0000-0000-000000000000/index/index.bif")
	is.Equal(StoragePath("/media", "abcdef12-0000-0000-0000-000000000000", 2),
		"/media/ab/abcdef12-0000-0000-0000-000000000000/index/index-2.bif")
}
