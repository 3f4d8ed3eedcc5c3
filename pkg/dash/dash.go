// Package dash generates MPEG-DASH manifests (MPD files) for live
// streams of fragmented MP4 segments.
//
// A Writer accumulates adaptation sets and their representations, then
// serializes the manifest as XML. The manifest is of type "dynamic" with
// a minimum update period, matching a continuously updated live stream
// rather than a fixed-length presentation.
package dash

import (
	"encoding/xml"
	"fmt"
	"io"
	"time"
)

// Defaults used by the manifest writer CLI.
const (
	DefaultBaseURL      = "/"
	DefaultMediaName    = "$Number$.m4s"
	DefaultInitName     = "init.mp4"
	DefaultUpdatePeriod = 60 * time.Second
	DefaultBufferTime   = 2 * time.Second
)

// Writer builds an MPD manifest.
type Writer struct {
	// UpdatePeriod is how often clients should refetch the manifest.
	UpdatePeriod time.Duration

	// MinBufferTime is the minimum client-side buffer.
	MinBufferTime time.Duration

	// BaseURL prefixes every segment URL in the manifest.
	BaseURL string

	videoSets []*VideoAdaptationSet
	audioSets []*AudioAdaptationSet
}

// NewWriter builds a manifest writer. Zero durations fall back to the
// package defaults; an empty base URL falls back to "/".
func NewWriter(updatePeriod, minBufferTime time.Duration, baseURL string) *Writer {
	if updatePeriod == 0 {
		updatePeriod = DefaultUpdatePeriod
	}
	if minBufferTime == 0 {
		minBufferTime = DefaultBufferTime
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Writer{
		UpdatePeriod:  updatePeriod,
		MinBufferTime: minBufferTime,
		BaseURL:       baseURL,
	}
}

// VideoAdaptationSet groups the video representations of one stream.
type VideoAdaptationSet struct {
	// ID is the adaptation set id, unique within the manifest.
	ID uint32

	// InitName is the initialization segment name template.
	InitName string

	// MediaName is the media segment name template, e.g. "$Number$.m4s".
	MediaName string

	// FrameRate is the nominal frame rate shared by all representations.
	FrameRate float64

	// Duration is the segment duration in timescale units.
	Duration uint32

	Representations []*VideoRepresentation
}

// AddRepresentation appends a video representation to the set.
func (s *VideoAdaptationSet) AddRepresentation(r *VideoRepresentation) {
	s.Representations = append(s.Representations, r)
}

// VideoRepresentation describes one encoded video quality level.
type VideoRepresentation struct {
	ID        string
	Width     uint16
	Height    uint16
	Bitrate   uint32
	Profile   uint8
	AVCLevel  uint8
	FrameRate float64
	Timescale uint32
}

// Codec returns the RFC 6381 codec string for the representation.
func (r *VideoRepresentation) Codec() string {
	return fmt.Sprintf("avc1.%02x00%02x", r.Profile, r.AVCLevel)
}

// AudioAdaptationSet groups the audio representations of one stream.
type AudioAdaptationSet struct {
	ID        uint32
	InitName  string
	MediaName string
	Duration  uint32

	Representations []*AudioRepresentation
}

// AddRepresentation appends an audio representation to the set.
func (s *AudioAdaptationSet) AddRepresentation(r *AudioRepresentation) {
	s.Representations = append(s.Representations, r)
}

// AudioRepresentation describes one encoded audio quality level.
type AudioRepresentation struct {
	ID           string
	Bitrate      uint32
	SamplingRate uint32

	// HEAAC selects the High-Efficiency AAC codec signaling.
	HEAAC bool

	Timescale uint32
}

// Codec returns the RFC 6381 codec string for the representation.
func (r *AudioRepresentation) Codec() string {
	if r.HEAAC {
		return "mp4a.40.5"
	}
	return "mp4a.40.2"
}

// AddVideoAdaptationSet registers a video adaptation set.
func (w *Writer) AddVideoAdaptationSet(s *VideoAdaptationSet) {
	w.videoSets = append(w.videoSets, s)
}

// AddAudioAdaptationSet registers an audio adaptation set.
func (w *Writer) AddAudioAdaptationSet(s *AudioAdaptationSet) {
	w.audioSets = append(w.audioSets, s)
}

// XML document model. Field order determines attribute order in the
// serialized manifest.

type xmlMPD struct {
	XMLName               xml.Name `xml:"MPD"`
	XMLNS                 string   `xml:"xmlns,attr"`
	Profiles              string   `xml:"profiles,attr"`
	Type                  string   `xml:"type,attr"`
	MinimumUpdatePeriod   string   `xml:"minimumUpdatePeriod,attr"`
	MinBufferTime         string   `xml:"minBufferTime,attr"`
	AvailabilityStartTime string   `xml:"availabilityStartTime,attr"`
	BaseURL               string   `xml:"BaseURL"`
	Period                xmlPeriod
}

type xmlPeriod struct {
	XMLName        xml.Name           `xml:"Period"`
	ID             string             `xml:"id,attr"`
	Start          string             `xml:"start,attr"`
	AdaptationSets []xmlAdaptationSet `xml:"AdaptationSet"`
}

type xmlAdaptationSet struct {
	ID               uint32              `xml:"id,attr"`
	ContentType      string              `xml:"contentType,attr"`
	SegmentAlignment bool                `xml:"segmentAlignment,attr"`
	SegmentTemplate  xmlSegmentTemplate  `xml:"SegmentTemplate"`
	Representations  []xmlRepresentation `xml:"Representation"`
}

type xmlSegmentTemplate struct {
	Timescale      uint32 `xml:"timescale,attr"`
	Duration       uint32 `xml:"duration,attr"`
	Media          string `xml:"media,attr"`
	Initialization string `xml:"initialization,attr"`
	StartNumber    uint32 `xml:"startNumber,attr"`
}

type xmlRepresentation struct {
	ID                string `xml:"id,attr"`
	Bandwidth         uint32 `xml:"bandwidth,attr"`
	Codecs            string `xml:"codecs,attr,omitempty"`
	Width             uint16 `xml:"width,attr,omitempty"`
	Height            uint16 `xml:"height,attr,omitempty"`
	FrameRate         string `xml:"frameRate,attr,omitempty"`
	AudioSamplingRate uint32 `xml:"audioSamplingRate,attr,omitempty"`
}

// Flush serializes the manifest to w.
func (w *Writer) Flush(out io.Writer) error {
	mpd := xmlMPD{
		XMLNS:                 "urn:mpeg:dash:schema:mpd:2011",
		Profiles:              "urn:mpeg:dash:profile:isoff-live:2011",
		Type:                  "dynamic",
		MinimumUpdatePeriod:   formatDuration(w.UpdatePeriod),
		MinBufferTime:         formatDuration(w.MinBufferTime),
		AvailabilityStartTime: time.Now().UTC().Format(time.RFC3339),
		BaseURL:               w.BaseURL,
		Period: xmlPeriod{
			ID:    "1",
			Start: "PT0S",
		},
	}

	for _, set := range w.videoSets {
		xmlSet := xmlAdaptationSet{
			ID:               set.ID,
			ContentType:      "video",
			SegmentAlignment: true,
		}
		for _, repr := range set.Representations {
			if xmlSet.SegmentTemplate.Timescale == 0 {
				xmlSet.SegmentTemplate = xmlSegmentTemplate{
					Timescale:      repr.Timescale,
					Duration:       set.Duration,
					Media:          set.MediaName,
					Initialization: set.InitName,
					StartNumber:    1,
				}
			}
			xmlRepr := xmlRepresentation{
				ID:        repr.ID,
				Bandwidth: repr.Bitrate,
				Width:     repr.Width,
				Height:    repr.Height,
			}
			// Attributes the source media did not declare are omitted
			// rather than emitted as zeros.
			if repr.Profile != 0 || repr.AVCLevel != 0 {
				xmlRepr.Codecs = repr.Codec()
			}
			if repr.FrameRate > 0 {
				xmlRepr.FrameRate = fmt.Sprintf("%g", repr.FrameRate)
			}
			xmlSet.Representations = append(xmlSet.Representations, xmlRepr)
		}
		mpd.Period.AdaptationSets = append(mpd.Period.AdaptationSets, xmlSet)
	}

	for _, set := range w.audioSets {
		xmlSet := xmlAdaptationSet{
			ID:               set.ID,
			ContentType:      "audio",
			SegmentAlignment: true,
		}
		for _, repr := range set.Representations {
			if xmlSet.SegmentTemplate.Timescale == 0 {
				xmlSet.SegmentTemplate = xmlSegmentTemplate{
					Timescale:      repr.Timescale,
					Duration:       set.Duration,
					Media:          set.MediaName,
					Initialization: set.InitName,
					StartNumber:    1,
				}
			}
			xmlSet.Representations = append(xmlSet.Representations, xmlRepresentation{
				ID:                repr.ID,
				Bandwidth:         repr.Bitrate,
				Codecs:            repr.Codec(),
				AudioSamplingRate: repr.SamplingRate,
			})
		}
		mpd.Period.AdaptationSets = append(mpd.Period.AdaptationSets, xmlSet)
	}

	if _, err := io.WriteString(out, xml.Header); err != nil {
		return err
	}

	encoder := xml.NewEncoder(out)
	encoder.Indent("", "  ")
	if err := encoder.Encode(mpd); err != nil {
		return err
	}
	_, err := io.WriteString(out, "\n")
	return err
}

// formatDuration renders a duration in the ISO 8601 form MPD attributes
// use, e.g. "PT60S" or "PT1.5S".
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("PT%gS", d.Seconds())
}
