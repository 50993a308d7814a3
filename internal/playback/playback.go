// Package playback implements the playback decision engine (spec.md §4.H):
// given a client's declared CapabilityProfile and a MediaItem's persisted
// MediaParts/MediaStreams, decide whether the part can be served as-is
// (DirectPlay), remuxed into a compatible container without re-encoding
// video (DirectStream), or must be transcoded to DASH.
//
// The three-tier decision is grounded on the teacher's player/handlers.go
// (stream vs. transcode endpoints) and stream/remux.go's ServeRemuxedMPEGTS
// — this package generalizes that binary choice into the reasoned,
// bitset-driven three-way decision spec.md §4.H calls for, and adds the
// tie-break and playlist hand-off steps the teacher's single-file-item
// player never needed.
package playback

import (
	"fmt"
	"math/bits"

	"github.com/cinevault/core/internal/models"
)

// Mode is the outcome of a playback decision.
type Mode int

const (
	// ModeDirectPlay serves the source file unmodified.
	ModeDirectPlay Mode = iota
	// ModeDirectStream remuxes the container without re-encoding any
	// elementary stream (spec.md §4.H, grounded on remux.go).
	ModeDirectStream
	// ModeTranscode hands off to the transcode job supervisor for a DASH
	// rendition.
	ModeTranscode
)

func (m Mode) String() string {
	switch m {
	case ModeDirectPlay:
		return "direct_play"
	case ModeDirectStream:
		return "direct_stream"
	case ModeTranscode:
		return "transcode"
	default:
		return "unknown"
	}
}

// Reason is one bit in a TranscodeReasons bitset: each names a specific
// incompatibility between the source and the client's declared
// CapabilityProfile (spec.md §4.H).
type Reason uint32

const (
	ReasonContainerUnsupported Reason = 1 << iota
	ReasonVideoCodecUnsupported
	ReasonAudioCodecUnsupported
	ReasonResolutionExceeds
	ReasonBitrateExceeds
	ReasonChannelsExceed
	ReasonBitDepthExceeds
	ReasonToneMappingRequired
	ReasonSubtitleBurnInRequired
)

var reasonNames = map[Reason]string{
	ReasonContainerUnsupported:   "container_unsupported",
	ReasonVideoCodecUnsupported:  "video_codec_unsupported",
	ReasonAudioCodecUnsupported:  "audio_codec_unsupported",
	ReasonResolutionExceeds:      "resolution_exceeds",
	ReasonBitrateExceeds:         "bitrate_exceeds",
	ReasonChannelsExceed:         "channels_exceed",
	ReasonBitDepthExceeds:        "bit_depth_exceeds",
	ReasonToneMappingRequired:    "tone_mapping_required",
	ReasonSubtitleBurnInRequired: "subtitle_burn_in_required",
}

// Names returns the set bits' human-readable names, in bit order, for
// logging and the stream-plan JSON response.
func (r Reason) Names() []string {
	var out []string
	for bit := Reason(1); bit != 0 && bit <= ReasonSubtitleBurnInRequired; bit <<= 1 {
		if r&bit != 0 {
			out = append(out, reasonNames[bit])
		}
	}
	return out
}

// remuxOnlyReasons is the subset of reasons DirectStream (container remux,
// no re-encode) can resolve on its own. Anything else forces a transcode.
const remuxOnlyReasons = ReasonContainerUnsupported

// StreamPlan is the decision engine's output for one MediaPart.
type StreamPlan struct {
	Mode               Mode
	Reasons            Reason
	PartID             string
	SubtitleBurnIn     bool
	ToneMapping        bool
	CapabilityVersion  int64
	// VersionMismatch is true when the plan was computed against a
	// CapabilityProfile.Version older than the one most recently declared
	// for this session, signalling the caller should recompute before
	// acting on a cached plan (spec.md §4.H).
	VersionMismatch bool
}

// Decide evaluates a single MediaPart (with its MediaItem for codec/format
// fields and its MediaStreams for per-track checks) against cap and
// returns the chosen mode plus every reason that ruled out a cheaper mode.
func Decide(item *models.MediaItem, streams []*models.MediaStream, cap models.CapabilityProfile) StreamPlan {
	reasons := evaluate(item, streams, cap)

	plan := StreamPlan{Reasons: reasons, CapabilityVersion: cap.Version}
	switch {
	case reasons == 0:
		plan.Mode = ModeDirectPlay
	case reasons&^remuxOnlyReasons == 0:
		plan.Mode = ModeDirectStream
	default:
		plan.Mode = ModeTranscode
		plan.ToneMapping = reasons&ReasonToneMappingRequired != 0
		plan.SubtitleBurnIn = reasons&ReasonSubtitleBurnInRequired != 0
	}
	return plan
}

func evaluate(item *models.MediaItem, streams []*models.MediaStream, cap models.CapabilityProfile) Reason {
	var reasons Reason

	if !contains(cap.SupportedContainers, item.Container) {
		reasons |= ReasonContainerUnsupported
	}

	videoCap, audioCap, ok := matchCodecCaps(item, cap.SupportedCodecs)
	if !ok {
		reasons |= ReasonVideoCodecUnsupported | ReasonAudioCodecUnsupported
	} else {
		if videoCap == nil {
			reasons |= ReasonVideoCodecUnsupported
		} else {
			if videoCap.MaxWidth > 0 && item.Width > videoCap.MaxWidth {
				reasons |= ReasonResolutionExceeds
			}
			if videoCap.MaxHeight > 0 && item.Height > videoCap.MaxHeight {
				reasons |= ReasonResolutionExceeds
			}
		}
		if audioCap == nil {
			reasons |= ReasonAudioCodecUnsupported
		}
	}

	if item.DynamicRange == "HDR" && !cap.AcceptsToneMapping {
		reasons |= ReasonToneMappingRequired
	}

	for _, s := range streams {
		if s.Kind != models.StreamAudio {
			continue
		}
		if cap.MaxChannels > 0 && s.Channels > cap.MaxChannels {
			reasons |= ReasonChannelsExceed
		}
		if cap.MaxSampleRate > 0 && s.SampleRateHz > cap.MaxSampleRate {
			reasons |= ReasonBitrateExceeds
		}
	}

	if cap.SubtitleHandling == "burn-in" {
		for _, s := range streams {
			if s.Kind == models.StreamSubtitle && s.IsDefault {
				reasons |= ReasonSubtitleBurnInRequired
				break
			}
		}
	}

	return reasons
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// matchCodecCaps finds the CodecCap entries (if any) matching the item's
// video and audio codecs. ok is false only when SupportedCodecs is empty
// (a client that declared nothing is assumed incompatible with everything,
// forcing a safe transcode rather than a DirectPlay guess).
func matchCodecCaps(item *models.MediaItem, caps []models.CodecCap) (video, audio *models.CodecCap, ok bool) {
	if len(caps) == 0 {
		return nil, nil, false
	}
	for i := range caps {
		c := &caps[i]
		if c.Codec == item.VideoCodec {
			video = c
		}
		if c.Codec == item.AudioCodec {
			audio = c
		}
	}
	return video, audio, true
}

// SelectPart applies spec.md §4.H's multi-part tie-break: prefer the part
// whose own Decide() result needs the least work (DirectPlay over
// DirectStream over Transcode); within a Mode tie, prefer the plan with
// fewer set Reasons bits (less work for the eventual remux/transcode); and
// within that tie, prefer the largest SizeBytes, since among otherwise
// equivalent parts the largest file is the least likely to be a sample or
// truncated copy.
func SelectPart(parts []*models.MediaPart, plans map[string]StreamPlan) (*models.MediaPart, StreamPlan, error) {
	if len(parts) == 0 {
		return nil, StreamPlan{}, fmt.Errorf("playback: no parts to select from")
	}

	best := parts[0]
	bestPlan, ok := plans[best.ID.String()]
	if !ok {
		return nil, StreamPlan{}, fmt.Errorf("playback: no plan for part %s", best.ID)
	}

	for _, part := range parts[1:] {
		plan, ok := plans[part.ID.String()]
		if !ok {
			return nil, StreamPlan{}, fmt.Errorf("playback: no plan for part %s", part.ID)
		}
		if betterPart(part, plan, best, bestPlan) {
			best, bestPlan = part, plan
		}
	}
	bestPlan.PartID = best.ID.String()
	return best, bestPlan, nil
}

func betterPart(part *models.MediaPart, plan StreamPlan, best *models.MediaPart, bestPlan StreamPlan) bool {
	if plan.Mode != bestPlan.Mode {
		return plan.Mode < bestPlan.Mode
	}
	planReasons := bits.OnesCount32(uint32(plan.Reasons))
	bestReasons := bits.OnesCount32(uint32(bestPlan.Reasons))
	if planReasons != bestReasons {
		return planReasons < bestReasons
	}
	return part.SizeBytes > best.SizeBytes
}
