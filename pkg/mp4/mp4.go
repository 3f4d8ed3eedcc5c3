// Package mp4 parses the ISO BMFF box structure of MP4 files.
//
// The parser builds a tree of boxes, descending into known container
// boxes and retaining the raw payload of the handful of leaf boxes that
// carry timing and track metadata. It reads only what it needs: payloads
// of uninteresting boxes are seeked over, so parsing a multi-gigabyte
// media file touches a few kilobytes.
package mp4

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"
)

// Box is one node of the box tree.
type Box struct {
	// Offset is the position of the box header in the file.
	Offset int64

	// Size is the total box size including the header. A size-zero box on
	// the wire (extends to end of file) is resolved to its actual size.
	Size uint64

	// Type is the four-character box type, e.g. "moov".
	Type string

	// Children holds the contained boxes of a container box.
	Children []*Box

	// Data is the raw payload of retained leaf boxes (mvhd, mdhd, hdlr,
	// sidx, stsd). Nil for containers and skipped boxes.
	Data []byte
}

// Tree is a parsed MP4 file.
type Tree struct {
	Boxes []*Box
}

// containerTypes are boxes whose payload is a sequence of child boxes.
var containerTypes = map[string]bool{
	"moov": true,
	"trak": true,
	"mdia": true,
	"minf": true,
	"stbl": true,
	"mvex": true,
	"moof": true,
	"traf": true,
	"edts": true,
}

// retainedTypes are leaf boxes whose payload is kept for inspection.
// stsd is retained rather than recursed into: its children sit behind an
// entry count, so the generic container walk does not apply.
var retainedTypes = map[string]bool{
	"mvhd": true,
	"mdhd": true,
	"hdlr": true,
	"sidx": true,
	"stsd": true,
}

// maxRetainedPayload caps how much of a retained box is loaded. The
// boxes of interest are all well under this; a larger claimed size means
// a corrupt file.
const maxRetainedPayload = 1 << 20

const headerSize = 8
const largeHeaderSize = 16

// ParseFile parses the box structure of the MP4 file at path.
func ParseFile(path string) (*Tree, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}

	return Parse(file, info.Size())
}

// Parse parses size bytes of box structure from r, which must be
// positioned at the start of the first box.
func Parse(r io.ReadSeeker, size int64) (*Tree, error) {
	start, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}

	boxes, err := parseBoxes(r, start, start+size)
	if err != nil {
		return nil, err
	}

	return &Tree{Boxes: boxes}, nil
}

// parseBoxes parses the sibling boxes occupying [offset, end).
func parseBoxes(r io.ReadSeeker, offset, end int64) ([]*Box, error) {
	var boxes []*Box

	for offset < end {
		box, next, err := parseBox(r, offset, end)
		if err != nil {
			return nil, err
		}
		boxes = append(boxes, box)
		offset = next
	}

	return boxes, nil
}

// parseBox parses one box starting at offset and returns it together
// with the offset of the next sibling.
func parseBox(r io.ReadSeeker, offset, end int64) (*Box, int64, error) {
	if end-offset < headerSize {
		return nil, 0, fmt.Errorf("mp4: truncated box header at offset %d", offset)
	}

	var header [headerSize]byte
	if _, err := r.Seek(offset, io.SeekStart); err != nil {
		return nil, 0, err
	}
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, 0, err
	}

	size := uint64(binary.BigEndian.Uint32(header[:4]))
	boxType := string(header[4:8])
	payloadStart := offset + headerSize

	switch size {
	case 0:
		// Box extends to the end of the enclosing space.
		size = uint64(end - offset)
	case 1:
		// 64-bit size follows the compact header.
		if end-payloadStart < 8 {
			return nil, 0, fmt.Errorf("mp4: truncated large size of %q box at offset %d", boxType, offset)
		}
		var large [8]byte
		if _, err := io.ReadFull(r, large[:]); err != nil {
			return nil, 0, err
		}
		size = binary.BigEndian.Uint64(large[:])
		if size < largeHeaderSize {
			return nil, 0, fmt.Errorf("mp4: invalid large size %d of %q box at offset %d", size, boxType, offset)
		}
		payloadStart = offset + largeHeaderSize
	default:
		if size < headerSize {
			return nil, 0, fmt.Errorf("mp4: invalid size %d of %q box at offset %d", size, boxType, offset)
		}
	}

	// Compared in uint64: a crafted 64-bit size near the numeric limit
	// would overflow the signed end offset.
	if size > uint64(end-offset) {
		return nil, 0, fmt.Errorf("mp4: %q box at offset %d overruns its container", boxType, offset)
	}
	boxEnd := offset + int64(size)

	box := &Box{Offset: offset, Size: size, Type: boxType}

	switch {
	case containerTypes[boxType]:
		children, err := parseBoxes(r, payloadStart, boxEnd)
		if err != nil {
			return nil, 0, err
		}
		box.Children = children
	case retainedTypes[boxType]:
		payloadLen := boxEnd - payloadStart
		if payloadLen > maxRetainedPayload {
			return nil, 0, fmt.Errorf("mp4: %q box at offset %d claims %d byte payload", boxType, offset, payloadLen)
		}
		box.Data = make([]byte, payloadLen)
		if _, err := r.Seek(payloadStart, io.SeekStart); err != nil {
			return nil, 0, err
		}
		if _, err := io.ReadFull(r, box.Data); err != nil {
			return nil, 0, err
		}
	}

	return box, boxEnd, nil
}

// Find walks the tree along a path of box types and returns the first
// match, or nil. Find("moov", "mvhd") returns the movie header.
func (t *Tree) Find(path ...string) *Box {
	boxes := t.Boxes
	var found *Box

	for _, boxType := range path {
		found = nil
		for _, box := range boxes {
			if box.Type == boxType {
				found = box
				break
			}
		}
		if found == nil {
			return nil
		}
		boxes = found.Children
	}

	return found
}

// FindAll returns every direct match of the final path element under the
// given path prefix. FindAll("moov", "trak") returns all tracks.
func (t *Tree) FindAll(path ...string) []*Box {
	if len(path) == 0 {
		return nil
	}

	boxes := t.Boxes
	if len(path) > 1 {
		parent := t.Find(path[:len(path)-1]...)
		if parent == nil {
			return nil
		}
		boxes = parent.Children
	}

	var matches []*Box
	for _, box := range boxes {
		if box.Type == path[len(path)-1] {
			matches = append(matches, box)
		}
	}
	return matches
}

// Print writes the box tree as an indented listing.
func (t *Tree) Print(w io.Writer) error {
	for _, box := range t.Boxes {
		if err := printBox(w, box, 0); err != nil {
			return err
		}
	}
	return nil
}

func printBox(w io.Writer, box *Box, depth int) error {
	indent := strings.Repeat("  ", depth)
	if _, err := fmt.Fprintf(w, "%s- %s [%d]\n", indent, box.Type, box.Size); err != nil {
		return err
	}
	for _, child := range box.Children {
		if err := printBox(w, child, depth+1); err != nil {
			return err
		}
	}
	return nil
}
