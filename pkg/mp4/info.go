package mp4

import (
	"encoding/binary"
	"fmt"
)

// Info extracts track and timing metadata from a parsed box tree.
type Info struct {
	tree *Tree
}

// NewInfo wraps a parsed tree for metadata queries.
func NewInfo(tree *Tree) *Info {
	return &Info{tree: tree}
}

// TimescaleDuration returns the presentation timescale and duration.
//
// The movie header (moov/mvhd) is consulted first; when it reports a
// zero duration, as init segments of fragmented files do, the media
// header of the first track (moov/trak/mdia/mdhd) is used instead. Both
// headers exist in version 0 (32-bit) and version 1 (64-bit) layouts.
func (i *Info) TimescaleDuration() (uint32, uint64, error) {
	mvhd := i.tree.Find("moov", "mvhd")
	if mvhd == nil {
		return 0, 0, fmt.Errorf("mp4: no mvhd box found")
	}

	timescale, duration, err := parseTimeHeader(mvhd)
	if err != nil {
		return 0, 0, err
	}
	if duration != 0 {
		return timescale, duration, nil
	}

	mdhd := i.tree.Find("moov", "trak", "mdia", "mdhd")
	if mdhd == nil {
		return timescale, duration, nil
	}

	mdhdTimescale, mdhdDuration, err := parseTimeHeader(mdhd)
	if err != nil {
		return 0, 0, err
	}
	if mdhdTimescale != 0 {
		timescale = mdhdTimescale
	}
	return timescale, mdhdDuration, nil
}

// IsVideo reports whether any track declares a video handler.
func (i *Info) IsVideo() bool {
	for _, trak := range i.tree.FindAll("moov", "trak") {
		mdia := findChild(trak, "mdia")
		if mdia == nil {
			continue
		}
		hdlr := findChild(mdia, "hdlr")
		if hdlr == nil || len(hdlr.Data) < 12 {
			continue
		}
		// hdlr payload: version/flags(4) pre_defined(4) handler_type(4)
		if string(hdlr.Data[8:12]) == "vide" {
			return true
		}
	}
	return false
}

// Visual sample entry layout: 8-byte box header, 8 bytes of sample entry
// fields, 16 reserved bytes, width and height, then 50 more fixed bytes
// before the nested codec configuration boxes.
const (
	sampleEntryWidthOffset  = 32
	sampleEntryHeightOffset = 34
	sampleEntryChildOffset  = 86
)

// WidthHeight returns the pixel dimensions declared by the video track's
// sample description.
func (i *Info) WidthHeight() (uint16, uint16, error) {
	entry, err := i.videoSampleEntry()
	if err != nil {
		return 0, 0, err
	}
	if len(entry) < sampleEntryHeightOffset+2 {
		return 0, 0, fmt.Errorf("mp4: truncated video sample entry")
	}

	width := binary.BigEndian.Uint16(entry[sampleEntryWidthOffset : sampleEntryWidthOffset+2])
	height := binary.BigEndian.Uint16(entry[sampleEntryHeightOffset : sampleEntryHeightOffset+2])
	return width, height, nil
}

// AVCProfileLevel returns the H.264 profile and level indications from
// the avcC configuration box inside the video sample entry.
func (i *Info) AVCProfileLevel() (uint8, uint8, error) {
	entry, err := i.videoSampleEntry()
	if err != nil {
		return 0, 0, err
	}

	offset := sampleEntryChildOffset
	for offset+8 <= len(entry) {
		size := int(binary.BigEndian.Uint32(entry[offset : offset+4]))
		boxType := string(entry[offset+4 : offset+8])
		if size < 8 || offset+size > len(entry) {
			break
		}
		if boxType == "avcC" {
			payload := entry[offset+8 : offset+size]
			// configurationVersion(1) profile(1) compatibility(1) level(1)
			if len(payload) < 4 {
				return 0, 0, fmt.Errorf("mp4: truncated avcC box")
			}
			return payload[1], payload[3], nil
		}
		offset += size
	}
	return 0, 0, fmt.Errorf("mp4: no avcC box found")
}

// videoSampleEntry returns the first sample description entry of the
// first video track, the box header included.
func (i *Info) videoSampleEntry() ([]byte, error) {
	for _, trak := range i.tree.FindAll("moov", "trak") {
		mdia := findChild(trak, "mdia")
		if mdia == nil {
			continue
		}
		hdlr := findChild(mdia, "hdlr")
		if hdlr == nil || len(hdlr.Data) < 12 || string(hdlr.Data[8:12]) != "vide" {
			continue
		}
		minf := findChild(mdia, "minf")
		if minf == nil {
			continue
		}
		stbl := findChild(minf, "stbl")
		if stbl == nil {
			continue
		}
		stsd := findChild(stbl, "stsd")
		// stsd payload: version/flags(4) entry_count(4) then entries
		if stsd == nil || len(stsd.Data) < 16 {
			continue
		}

		entries := stsd.Data[8:]
		entrySize := int(binary.BigEndian.Uint32(entries[:4]))
		if entrySize < 8 || entrySize > len(entries) {
			return nil, fmt.Errorf("mp4: invalid sample entry size %d", entrySize)
		}
		return entries[:entrySize], nil
	}
	return nil, fmt.Errorf("mp4: no video sample entry found")
}

// parseTimeHeader reads timescale and duration from an mvhd or mdhd
// payload, handling both version layouts.
func parseTimeHeader(box *Box) (uint32, uint64, error) {
	if len(box.Data) < 1 {
		return 0, 0, fmt.Errorf("mp4: empty %q box", box.Type)
	}

	version := box.Data[0]
	switch version {
	case 0:
		// version/flags(4) creation(4) modification(4) timescale(4) duration(4)
		if len(box.Data) < 20 {
			return 0, 0, fmt.Errorf("mp4: truncated %q box (version 0)", box.Type)
		}
		timescale := binary.BigEndian.Uint32(box.Data[12:16])
		duration := uint64(binary.BigEndian.Uint32(box.Data[16:20]))
		return timescale, duration, nil
	case 1:
		// version/flags(4) creation(8) modification(8) timescale(4) duration(8)
		if len(box.Data) < 32 {
			return 0, 0, fmt.Errorf("mp4: truncated %q box (version 1)", box.Type)
		}
		timescale := binary.BigEndian.Uint32(box.Data[20:24])
		duration := binary.BigEndian.Uint64(box.Data[24:32])
		return timescale, duration, nil
	default:
		return 0, 0, fmt.Errorf("mp4: unsupported %q box version %d", box.Type, version)
	}
}

func findChild(box *Box, boxType string) *Box {
	for _, child := range box.Children {
		if child.Type == boxType {
			return child
		}
	}
	return nil
}
