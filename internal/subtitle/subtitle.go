// Package subtitle implements format conversion and time-window filtering
// for text subtitle cues, plus FFmpeg-assisted extraction for image-based
// subtitle codecs (spec.md §4.L).
//
// Grounded on the teacher's internal/stream/subtitle.go SRT/ASS -> WebVTT
// converters (regex-driven line scanning, ASS [Events] Format-field
// parsing) and player/subtitle.go's ffmpeg extraction invocation, reshaped
// into a registry of per-format Parsers instead of one switch statement.
package subtitle

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Format names a subtitle wire format, normalized to one of the spec's
// recognized keys (spec.md §4.L).
type Format string

const (
	FormatVTT   Format = "vtt"
	FormatSRT   Format = "srt"
	FormatASS   Format = "ass"
	FormatTTML  Format = "ttml"
	FormatSMI   Format = "smi"
	FormatSUB   Format = "sub"
)

// normalizeFormat maps the spec's format aliases onto the canonical keys.
func normalizeFormat(f string) Format {
	switch strings.ToLower(f) {
	case "vtt", "webvtt":
		return FormatVTT
	case "srt", "subrip":
		return FormatSRT
	case "ass", "ssa":
		return FormatASS
	case "ttml":
		return FormatTTML
	case "smi":
		return FormatSMI
	case "sub":
		return FormatSUB
	default:
		return Format(strings.ToLower(f))
	}
}

// Cue is one subtitle cue after parsing, before any time-window shift.
type Cue struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// Parser turns raw subtitle bytes into a list of cues. SelfIdentifies
// reports whether the first lines look like this parser's format, used by
// the registry to retry other formats when the caller's claimed format
// doesn't match the content (spec.md §4.L).
type Parser interface {
	Format() Format
	SelfIdentifies(head string) bool
	Parse(r io.Reader) ([]Cue, error)
}

// imageCodecs lists elementary-stream codecs that cannot be converted in
// text form and require an out-of-process FFmpeg extraction first
// (spec.md §4.L).
var imageCodecs = map[string]bool{
	"hdmv_pgs_subtitle": true,
	"pgssub":            true,
	"dvb_subtitle":      true,
	"dvd_subtitle":      true,
	"vobsub":            true,
	"xsub":               true,
}

// RequiresFFmpegExtraction reports whether codec is an image-based
// subtitle format that must be extracted via FFmpeg before conversion.
func RequiresFFmpegExtraction(codec string) bool {
	return imageCodecs[strings.ToLower(codec)]
}

// Registry holds every known Parser, keyed by format.
type Registry struct {
	parsers map[Format]Parser
	order   []Format
}

// NewRegistry returns a Registry pre-populated with the built-in VTT, SRT,
// and ASS/SSA parsers. No TTML, SMI or SUB parser is built in, so content
// in those formats parses only if a parser added via Register accepts it.
func NewRegistry() *Registry {
	reg := &Registry{parsers: make(map[Format]Parser)}
	reg.Register(vttParser{})
	reg.Register(srtParser{})
	reg.Register(assParser{})
	return reg
}

func (r *Registry) Register(p Parser) {
	if _, exists := r.parsers[p.Format()]; !exists {
		r.order = append(r.order, p.Format())
	}
	r.parsers[p.Format()] = p
}

// ErrNoParserMatched is returned when neither the claimed format nor any
// registered fallback can parse the content.
var ErrNoParserMatched = fmt.Errorf("subtitle: no parser matched content")

// Parse parses raw subtitle content, first trying the claimed format; if
// that format fails to self-identify on the first lines, every other
// registered format is tried in registration order (spec.md §4.L).
func (r *Registry) Parse(claimed string, data []byte) ([]Cue, Format, error) {
	head := firstLines(data, 5)
	fmtKey := normalizeFormat(claimed)

	if p, ok := r.parsers[fmtKey]; ok && p.SelfIdentifies(head) {
		cues, err := p.Parse(newReader(data))
		if err == nil {
			return cues, fmtKey, nil
		}
	}

	for _, key := range r.order {
		if key == fmtKey {
			continue
		}
		p := r.parsers[key]
		if !p.SelfIdentifies(head) {
			continue
		}
		cues, err := p.Parse(newReader(data))
		if err == nil {
			return cues, key, nil
		}
	}

	// Last resort: try the claimed parser even without self-identification,
	// matching the teacher's switch-with-ffmpeg-fallback shape.
	if p, ok := r.parsers[fmtKey]; ok {
		cues, err := p.Parse(newReader(data))
		if err == nil {
			return cues, fmtKey, nil
		}
	}

	return nil, "", ErrNoParserMatched
}

func newReader(data []byte) io.Reader { return strings.NewReader(string(data)) }

func firstLines(data []byte, n int) string {
	s := bufio.NewScanner(strings.NewReader(string(data)))
	var b strings.Builder
	for i := 0; i < n && s.Scan(); i++ {
		b.WriteString(s.Text())
		b.WriteByte('\n')
	}
	return b.String()
}

// Convert parses src in fromFmt, applies the optional [startTicks, endTicks)
// window (cues fully outside dropped, remaining shifted by -startTicks,
// clamped to zero and to the window length, then renumbered), and
// re-encodes as toFmt (spec.md §4.L, S5). Only WebVTT and SRT encoders
// exist; any other toFmt is encoded as WebVTT. Ticks are milliseconds.
func Convert(reg *Registry, claimedFromFmt string, src io.Reader, toFmt string, startTicks, endTicks *int64) (string, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return "", fmt.Errorf("read subtitle source: %w", err)
	}

	cues, _, err := reg.Parse(claimedFromFmt, data)
	if err != nil {
		return "", err
	}

	if startTicks != nil || endTicks != nil {
		cues = applyWindow(cues, startTicks, endTicks)
	}

	switch normalizeFormat(toFmt) {
	case FormatVTT:
		return encodeVTT(cues), nil
	case FormatSRT:
		return encodeSRT(cues), nil
	default:
		return encodeVTT(cues), nil
	}
}

// applyWindow drops cues fully outside [start,end), shifts remaining cues
// by -start (clamping negative times to zero and cue ends to the window
// length end-start), and renumbers by sorting
// on the shifted start time (spec.md S5: "cues touching the boundary are
// kept").
func applyWindow(cues []Cue, startTicks, endTicks *int64) []Cue {
	var start, end time.Duration
	if startTicks != nil {
		start = time.Duration(*startTicks) * time.Millisecond
	}
	hasEnd := endTicks != nil
	if hasEnd {
		end = time.Duration(*endTicks) * time.Millisecond
	}

	out := make([]Cue, 0, len(cues))
	for _, c := range cues {
		if hasEnd && c.Start > end {
			continue
		}
		if c.End < start {
			continue
		}
		shiftedStart := c.Start - start
		if shiftedStart < 0 {
			shiftedStart = 0
		}
		shiftedEnd := c.End - start
		if shiftedEnd < 0 {
			shiftedEnd = 0
		}
		if hasEnd && end >= start && shiftedEnd > end-start {
			shiftedEnd = end - start
		}
		out = append(out, Cue{Start: shiftedStart, End: shiftedEnd, Text: c.Text})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// ── Extraction for image-based subtitle codecs ──

// ExtractViaFFmpeg remuxes an embedded image-based subtitle stream to a
// text-convertible codec in a temp file, per spec.md §4.L
// (`-map 0:s:{index} -c:s {targetCodec}`). The temp file is always removed
// by the caller via the returned cleanup func, on every exit path.
func ExtractViaFFmpeg(ctx context.Context, ffmpegPath, mediaFile string, streamIndex int, targetCodec string) (path string, cleanup func(), err error) {
	tmp, err := os.CreateTemp("", "subtitle-extract-*."+targetCodec)
	if err != nil {
		return "", func() {}, fmt.Errorf("create temp subtitle file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	cleanup = func() { os.Remove(tmpPath) }

	args := []string{
		"-hide_banner", "-v", "error",
		"-i", mediaFile,
		"-map", fmt.Sprintf("0:s:%d", streamIndex),
		"-c:s", targetCodec,
		"-y", tmpPath,
	}
	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	if out, runErr := cmd.CombinedOutput(); runErr != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("ffmpeg subtitle extraction failed: %w (%s)", runErr, string(out))
	}

	return tmpPath, cleanup, nil
}

// ── Built-in parsers ──

type vttParser struct{}

func (vttParser) Format() Format                  { return FormatVTT }
func (vttParser) SelfIdentifies(head string) bool { return strings.HasPrefix(strings.TrimSpace(head), "WEBVTT") }

var vttTimeRegex = regexp.MustCompile(`(\d{2}:\d{2}:\d{2})\.(\d{3})\s*-->\s*(\d{2}:\d{2}:\d{2})\.(\d{3})`)

func (vttParser) Parse(r io.Reader) ([]Cue, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var cues []Cue
	var cur *Cue
	for scanner.Scan() {
		line := scanner.Text()
		if m := vttTimeRegex.FindStringSubmatch(line); m != nil {
			if cur != nil {
				cues = append(cues, *cur)
			}
			start := parseClock(m[1], m[2])
			end := parseClock(m[3], m[4])
			cur = &Cue{Start: start, End: end}
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.TrimSpace(line) == "WEBVTT" {
			continue
		}
		if cur != nil {
			if cur.Text != "" {
				cur.Text += "\n"
			}
			cur.Text += line
		}
	}
	if cur != nil {
		cues = append(cues, *cur)
	}
	return cues, scanner.Err()
}

type srtParser struct{}

func (srtParser) Format() Format { return FormatSRT }
func (srtParser) SelfIdentifies(head string) bool {
	return strings.Contains(head, "-->") && strings.Contains(head, ",")
}

var srtTimeRegex = regexp.MustCompile(`(\d{2}):(\d{2}):(\d{2}),(\d{3})\s*-->\s*(\d{2}):(\d{2}):(\d{2}),(\d{3})`)

func (srtParser) Parse(r io.Reader) ([]Cue, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var cues []Cue
	var cur *Cue
	for scanner.Scan() {
		line := strings.TrimPrefix(strings.TrimSpace(scanner.Text()), "\xef\xbb\xbf")
		if m := srtTimeRegex.FindStringSubmatch(line); m != nil {
			if cur != nil {
				cues = append(cues, *cur)
			}
			start := hmsToDuration(m[1], m[2], m[3], m[4])
			end := hmsToDuration(m[5], m[6], m[7], m[8])
			cur = &Cue{Start: start, End: end}
			continue
		}
		if line == "" {
			if cur != nil {
				cues = append(cues, *cur)
				cur = nil
			}
			continue
		}
		if _, err := strconv.Atoi(line); err == nil && cur == nil {
			continue // bare cue-number line before the timing line
		}
		if cur != nil {
			if cur.Text != "" {
				cur.Text += "\n"
			}
			cur.Text += line
		}
	}
	if cur != nil {
		cues = append(cues, *cur)
	}
	return cues, scanner.Err()
}

type assParser struct{}

func (assParser) Format() Format                  { return FormatASS }
func (assParser) SelfIdentifies(head string) bool { return strings.Contains(head, "[Script Info]") }

var assTagRegex = regexp.MustCompile(`\{[^}]*\}`)

func (assParser) Parse(r io.Reader) ([]Cue, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var cues []Cue
	inEvents := false
	var formatFields []string
	textIdx, startIdx, endIdx := -1, -1, -1

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if strings.HasPrefix(line, "[Events]") {
			inEvents = true
			continue
		}
		if strings.HasPrefix(line, "[") && inEvents {
			break
		}
		if !inEvents {
			continue
		}
		if strings.HasPrefix(line, "Format:") {
			fields := strings.Split(strings.TrimPrefix(line, "Format:"), ",")
			for i, f := range fields {
				switch strings.TrimSpace(f) {
				case "Text":
					textIdx = i
				case "Start":
					startIdx = i
				case "End":
					endIdx = i
				}
			}
			formatFields = fields
			continue
		}
		if !strings.HasPrefix(line, "Dialogue:") || len(formatFields) == 0 {
			continue
		}

		parts := strings.SplitN(strings.TrimPrefix(line, "Dialogue:"), ",", len(formatFields))
		if textIdx < 0 || startIdx < 0 || endIdx < 0 || len(parts) <= textIdx {
			continue
		}

		start := parseASSTime(strings.TrimSpace(parts[startIdx]))
		end := parseASSTime(strings.TrimSpace(parts[endIdx]))
		text := strings.TrimSpace(parts[textIdx])
		text = assTagRegex.ReplaceAllString(text, "")
		text = strings.ReplaceAll(text, `\N`, "\n")
		text = strings.ReplaceAll(text, `\n`, "\n")
		if text == "" {
			continue
		}
		cues = append(cues, Cue{Start: start, End: end, Text: text})
	}
	return cues, scanner.Err()
}

func parseASSTime(t string) time.Duration {
	parts := strings.Split(t, ":")
	if len(parts) != 3 {
		return 0
	}
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	secParts := strings.Split(parts[2], ".")
	s, _ := strconv.Atoi(secParts[0])
	cs := 0
	if len(secParts) > 1 {
		cs, _ = strconv.Atoi(secParts[1])
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second + time.Duration(cs)*10*time.Millisecond
}

func parseClock(hms, ms string) time.Duration {
	parts := strings.Split(hms, ":")
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	s, _ := strconv.Atoi(parts[2])
	millis, _ := strconv.Atoi(ms)
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second + time.Duration(millis)*time.Millisecond
}

func hmsToDuration(h, m, s, ms string) time.Duration {
	return parseClock(h+":"+m+":"+s, ms)
}

// ── Encoders ──

func encodeVTT(cues []Cue) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for _, c := range cues {
		b.WriteString(formatVTTClock(c.Start))
		b.WriteString(" --> ")
		b.WriteString(formatVTTClock(c.End))
		b.WriteString("\n")
		b.WriteString(c.Text)
		b.WriteString("\n\n")
	}
	return b.String()
}

func encodeSRT(cues []Cue) string {
	var b strings.Builder
	for i, c := range cues {
		fmt.Fprintf(&b, "%d\n", i+1)
		b.WriteString(formatSRTClock(c.Start))
		b.WriteString(" --> ")
		b.WriteString(formatSRTClock(c.End))
		b.WriteString("\n")
		b.WriteString(c.Text)
		b.WriteString("\n\n")
	}
	return b.String()
}

func formatVTTClock(d time.Duration) string {
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	ms := d / time.Millisecond
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

func formatSRTClock(d time.Duration) string {
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	ms := d / time.Millisecond
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
