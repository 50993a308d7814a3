// Package bif implements the Roku BIF (Base Index Frames) trickplay
// container: a 64-byte header, a fixed-width timestamp/offset index, and a
// trailing run of concatenated JPEG payloads (spec.md §4.K, §6).
//
// The magic is read big-endian so its on-disk bytes spell "\x89BIF"; every
// other integer (version, frame count, timestamp multiplier, index entries)
// is little-endian, unlike the big-endian atom framing idiomatic-mp4 uses
// for MP4 boxes — the fixed-width header/index parsing style
// (encoding/binary, one struct per record) is grounded on that example,
// with the endianness BIF itself requires.
package bif

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"
)

const (
	// Magic is the 4-byte BIF file signature, 0x89424946 read big-endian
	// ("\x89BIF"), but stored byte-for-byte at the start of the file.
	Magic uint32 = 0x89424946

	// HeaderSize is the fixed 64-byte BIF header.
	HeaderSize = 64

	// IndexEntrySize is the fixed width of one {timestampMs, offset} pair.
	IndexEntrySize = 8

	// DefaultVersion is written by Write when the caller doesn't set one.
	DefaultVersion = 0

	// DefaultTsMultiplier is the spec-mandated timestamp scale (ms).
	DefaultTsMultiplier = 1000

	// MaxImageSize rejects any single trickplay image larger than this
	// during ReadAll/ReadOne (spec.md §4.K).
	MaxImageSize = 10 * 1024 * 1024
)

// Entry is one trickplay frame: its timestamp and image payload.
type Entry struct {
	TimestampMs int32
	Image       []byte
}

// Bif is a fully decoded trickplay sprite sheet, sorted by timestamp.
type Bif struct {
	Version       int32
	TsMultiplier  int32
	Entries       []Entry
}

// indexRecord is the on-disk {timestampMs, offset} pair.
type indexRecord struct {
	TimestampMs int32
	Offset      int32
}

// Write serializes b to w: header, then the timestamp/offset index, then
// the JPEG payloads back to back. Entries are sorted by timestamp first so
// random-access reads can assume monotonic offsets.
func Write(w io.Writer, b Bif) error {
	entries := make([]Entry, len(b.Entries))
	copy(entries, b.Entries)
	sort.Slice(entries, func(i, j int) bool { return entries[i].TimestampMs < entries[j].TimestampMs })

	version := b.Version
	if version == 0 {
		version = DefaultVersion
	}
	tsMul := b.TsMultiplier
	if tsMul == 0 {
		tsMul = DefaultTsMultiplier
	}

	header := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(header[0:4], Magic)
	binary.LittleEndian.PutUint32(header[4:8], uint32(version))
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(entries)))
	binary.LittleEndian.PutUint32(header[12:16], uint32(tsMul))
	// bytes 16:64 are the reserved 48 zero bytes, already zeroed.

	indexBase := int64(HeaderSize) + int64(len(entries))*IndexEntrySize
	offsets := make([]int32, len(entries))
	cursor := indexBase
	for i, e := range entries {
		offsets[i] = int32(cursor)
		cursor += int64(len(e.Image))
	}

	buf := bytes.NewBuffer(nil)
	buf.Write(header)
	for i, e := range entries {
		rec := indexRecord{TimestampMs: e.TimestampMs, Offset: offsets[i]}
		if err := binary.Write(buf, binary.LittleEndian, rec); err != nil {
			return fmt.Errorf("encode index entry %d: %w", i, err)
		}
	}
	for _, e := range entries {
		buf.Write(e.Image)
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// WriteFile atomically writes a BIF file: it writes to a temp file in the
// same directory and renames over dest so a reader never observes a
// partially-written sprite sheet.
func WriteFile(dest string, b Bif) error {
	tmp := dest + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp bif: %w", err)
	}
	if err := Write(f, b); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp bif: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename bif into place: %w", err)
	}
	return nil
}

// readHeader validates the magic and returns {version, frameCount, tsMultiplier}.
func readHeader(r io.ReaderAt) (version, frameCount, tsMultiplier int32, err error) {
	header := make([]byte, HeaderSize)
	if _, err = r.ReadAt(header, 0); err != nil {
		return 0, 0, 0, fmt.Errorf("read header: %w", err)
	}
	if got := binary.BigEndian.Uint32(header[0:4]); got != Magic {
		return 0, 0, 0, fmt.Errorf("bad bif magic: got %#x want %#x", got, Magic)
	}
	version = int32(binary.LittleEndian.Uint32(header[4:8]))
	frameCount = int32(binary.LittleEndian.Uint32(header[8:12]))
	tsMultiplier = int32(binary.LittleEndian.Uint32(header[12:16]))
	return version, frameCount, tsMultiplier, nil
}

func readIndexEntry(r io.ReaderAt, i int32) (indexRecord, error) {
	buf := make([]byte, IndexEntrySize)
	off := int64(HeaderSize) + int64(i)*IndexEntrySize
	if _, err := r.ReadAt(buf, off); err != nil {
		return indexRecord{}, fmt.Errorf("read index entry %d: %w", i, err)
	}
	return indexRecord{
		TimestampMs: int32(binary.LittleEndian.Uint32(buf[0:4])),
		Offset:      int32(binary.LittleEndian.Uint32(buf[4:8])),
	}, nil
}

// ReadAll decodes every header, index entry, and image payload from r.
// fileSize is required to bound the last entry's image range.
func ReadAll(r io.ReaderAt, fileSize int64) (Bif, error) {
	version, frameCount, tsMul, err := readHeader(r)
	if err != nil {
		return Bif{}, err
	}

	records := make([]indexRecord, frameCount)
	for i := int32(0); i < frameCount; i++ {
		rec, err := readIndexEntry(r, i)
		if err != nil {
			return Bif{}, err
		}
		records[i] = rec
	}

	entries := make([]Entry, frameCount)
	for i, rec := range records {
		end := fileSize
		if i+1 < len(records) {
			end = int64(records[i+1].Offset)
		}
		length := end - int64(rec.Offset)
		if length < 0 {
			return Bif{}, fmt.Errorf("entry %d: negative image length", i)
		}
		if length > MaxImageSize {
			return Bif{}, fmt.Errorf("entry %d: image size %d exceeds max %d", i, length, MaxImageSize)
		}
		img := make([]byte, length)
		if _, err := r.ReadAt(img, int64(rec.Offset)); err != nil {
			return Bif{}, fmt.Errorf("read image %d: %w", i, err)
		}
		entries[i] = Entry{TimestampMs: rec.TimestampMs, Image: img}
	}

	return Bif{Version: version, TsMultiplier: tsMul, Entries: entries}, nil
}

// ReadOne performs an O(1)-disk-access random read of a single thumbnail by
// index: two 8-byte index reads (current + next, to derive the image's
// length) followed by exactly one image read (spec.md §4.K, scenario 6).
func ReadOne(r io.ReaderAt, fileSize int64, thumbnailIndex int32) (Entry, error) {
	_, frameCount, _, err := readHeader(r)
	if err != nil {
		return Entry{}, err
	}
	if thumbnailIndex < 0 || thumbnailIndex >= frameCount {
		return Entry{}, fmt.Errorf("thumbnail index %d out of range [0,%d)", thumbnailIndex, frameCount)
	}

	cur, err := readIndexEntry(r, thumbnailIndex)
	if err != nil {
		return Entry{}, err
	}

	end := fileSize
	if thumbnailIndex+1 < frameCount {
		next, err := readIndexEntry(r, thumbnailIndex+1)
		if err != nil {
			return Entry{}, err
		}
		end = int64(next.Offset)
	}

	length := end - int64(cur.Offset)
	if length < 0 {
		return Entry{}, fmt.Errorf("entry %d: negative image length", thumbnailIndex)
	}
	if length > MaxImageSize {
		return Entry{}, fmt.Errorf("entry %d: image size %d exceeds max %d", thumbnailIndex, length, MaxImageSize)
	}
	img := make([]byte, length)
	if _, err := r.ReadAt(img, int64(cur.Offset)); err != nil {
		return Entry{}, fmt.Errorf("read image %d: %w", thumbnailIndex, err)
	}
	return Entry{TimestampMs: cur.TimestampMs, Image: img}, nil
}

// ImageByTimestamp is a convenience lookup mirroring ReadAll's ImageData
// map described by spec.md S4: the nearest entry at or before targetMs.
func (b Bif) ImageByTimestamp(targetMs int32) (Entry, bool) {
	var best Entry
	found := false
	for _, e := range b.Entries {
		if e.TimestampMs <= targetMs && (!found || e.TimestampMs > best.TimestampMs) {
			best = e
			found = true
		}
	}
	return best, found
}

// StoragePath returns the content-addressed location of a part's BIF index
// under the media root, per spec.md §6: <root>/<uuid[0:2]>/<uuid>/index/index[-N].bif.
func StoragePath(mediaRoot, itemUUID string, partIndex int) string {
	shard := itemUUID
	if len(shard) >= 2 {
		shard = itemUUID[0:2]
	}
	name := "index.bif"
	if partIndex > 0 {
		name = fmt.Sprintf("index-%d.bif", partIndex)
	}
	return mediaRoot + "/" + shard + "/" + itemUUID + "/index/" + name
}
