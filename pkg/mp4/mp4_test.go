package mp4

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
)

// box builds a compact-header box with the given payload.
func box(boxType string, payload []byte) []byte {
	buf := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint32(buf[:4], uint32(8+len(payload)))
	copy(buf[4:8], boxType)
	copy(buf[8:], payload)
	return buf
}

// container builds a box whose payload is the concatenation of children.
func container(boxType string, children ...[]byte) []byte {
	return box(boxType, bytes.Join(children, nil))
}

// largeBox builds a box using the 64-bit size form.
func largeBox(boxType string, payload []byte) []byte {
	buf := make([]byte, 16+len(payload))
	binary.BigEndian.PutUint32(buf[:4], 1)
	copy(buf[4:8], boxType)
	binary.BigEndian.PutUint64(buf[8:16], uint64(16+len(payload)))
	copy(buf[16:], payload)
	return buf
}

// mvhdV0 builds a version 0 movie header payload.
func mvhdV0(timescale uint32, duration uint32) []byte {
	payload := make([]byte, 100)
	binary.BigEndian.PutUint32(payload[12:16], timescale)
	binary.BigEndian.PutUint32(payload[16:20], duration)
	return payload
}

// mdhdV1 builds a version 1 media header payload.
func mdhdV1(timescale uint32, duration uint64) []byte {
	payload := make([]byte, 36)
	payload[0] = 1
	binary.BigEndian.PutUint32(payload[20:24], timescale)
	binary.BigEndian.PutUint64(payload[24:32], duration)
	return payload
}

// hdlr builds a handler box payload with the given handler type.
func hdlr(handler string) []byte {
	payload := make([]byte, 24)
	copy(payload[8:12], handler)
	return payload
}

// avc1Entry builds an avc1 visual sample entry with an avcC child.
func avc1Entry(width, height uint16, profile, level uint8) []byte {
	avcc := box("avcC", []byte{1, profile, 0xc0, level, 0xff})
	payload := make([]byte, 78, 78+len(avcc))
	binary.BigEndian.PutUint16(payload[24:26], width)
	binary.BigEndian.PutUint16(payload[26:28], height)
	payload = append(payload, avcc...)
	return box("avc1", payload)
}

// stsd builds a sample description box payload around the given entries.
func stsd(entries ...[]byte) []byte {
	payload := make([]byte, 8)
	binary.BigEndian.PutUint32(payload[4:8], uint32(len(entries)))
	for _, entry := range entries {
		payload = append(payload, entry...)
	}
	return box("stsd", payload)
}

// videoTrak builds a complete video track with a sample description.
func videoTrak(width, height uint16, profile, level uint8) []byte {
	return container("trak",
		container("mdia",
			box("hdlr", hdlr("vide")),
			container("minf",
				container("stbl", stsd(avc1Entry(width, height, profile, level))),
			),
		),
	)
}

func parseBytes(t *testing.T, data []byte) *Tree {
	t.Helper()
	tree, err := Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return tree
}

func TestParseFlatBoxes(t *testing.T) {
	data := bytes.Join([][]byte{
		box("ftyp", []byte("isom\x00\x00\x02\x00")),
		box("mdat", bytes.Repeat([]byte{0xaa}, 512)),
	}, nil)

	tree := parseBytes(t, data)

	if len(tree.Boxes) != 2 {
		t.Fatalf("parsed %d top-level boxes, want 2", len(tree.Boxes))
	}
	if tree.Boxes[0].Type != "ftyp" || tree.Boxes[1].Type != "mdat" {
		t.Errorf("box types = %s, %s, want ftyp, mdat", tree.Boxes[0].Type, tree.Boxes[1].Type)
	}
	if tree.Boxes[1].Size != 520 {
		t.Errorf("mdat size = %d, want 520", tree.Boxes[1].Size)
	}
	if tree.Boxes[1].Data != nil {
		t.Error("mdat payload should not be retained")
	}
}

func TestParseContainerRecursion(t *testing.T) {
	data := container("moov",
		box("mvhd", mvhdV0(90000, 180000)),
		container("trak",
			container("mdia",
				box("hdlr", hdlr("vide")),
			),
		),
	)

	tree := parseBytes(t, data)

	mvhd := tree.Find("moov", "mvhd")
	if mvhd == nil {
		t.Fatal("Find(moov, mvhd) = nil")
	}
	if mvhd.Data == nil {
		t.Error("mvhd payload should be retained")
	}

	if tree.Find("moov", "trak", "mdia", "hdlr") == nil {
		t.Error("Find(moov, trak, mdia, hdlr) = nil")
	}
}

func TestParseLargeSizeBox(t *testing.T) {
	data := bytes.Join([][]byte{
		largeBox("mdat", bytes.Repeat([]byte{0xbb}, 64)),
		box("free", nil),
	}, nil)

	tree := parseBytes(t, data)

	if len(tree.Boxes) != 2 {
		t.Fatalf("parsed %d boxes, want 2", len(tree.Boxes))
	}
	if tree.Boxes[0].Size != 80 {
		t.Errorf("large mdat size = %d, want 80", tree.Boxes[0].Size)
	}
}

func TestParseSizeZeroExtendsToEnd(t *testing.T) {
	payload := bytes.Repeat([]byte{0xcc}, 100)
	data := make([]byte, 8+len(payload))
	copy(data[4:8], "mdat")
	copy(data[8:], payload)

	tree := parseBytes(t, data)

	if len(tree.Boxes) != 1 {
		t.Fatalf("parsed %d boxes, want 1", len(tree.Boxes))
	}
	if tree.Boxes[0].Size != 108 {
		t.Errorf("size-zero box resolved to %d, want 108", tree.Boxes[0].Size)
	}
}

func TestParseTruncatedHeader(t *testing.T) {
	data := []byte{0x00, 0x00, 0x00}

	if _, err := Parse(bytes.NewReader(data), int64(len(data))); err == nil {
		t.Fatal("Parse() error = nil for truncated header")
	}
}

func TestParseLargeSizeOverflow(t *testing.T) {
	// A 64-bit size near the numeric limit must be rejected as an
	// overrun, not wrap the end offset negative. A retained type
	// exercises the payload-allocation path.
	data := largeBox("mvhd", nil)
	binary.BigEndian.PutUint64(data[8:16], 0xfffffffffffffff0)

	if _, err := Parse(bytes.NewReader(data), int64(len(data))); err == nil {
		t.Fatal("Parse() error = nil for overflowing large size")
	}
}

func TestParseOverrunningBox(t *testing.T) {
	data := box("ftyp", nil)
	binary.BigEndian.PutUint32(data[:4], 1000)

	if _, err := Parse(bytes.NewReader(data), int64(len(data))); err == nil {
		t.Fatal("Parse() error = nil for overrunning box")
	}
}

func TestFindAllTracks(t *testing.T) {
	data := container("moov",
		box("mvhd", mvhdV0(90000, 0)),
		container("trak", container("mdia", box("hdlr", hdlr("vide")))),
		container("trak", container("mdia", box("hdlr", hdlr("soun")))),
	)

	tree := parseBytes(t, data)

	traks := tree.FindAll("moov", "trak")
	if len(traks) != 2 {
		t.Fatalf("FindAll(moov, trak) returned %d boxes, want 2", len(traks))
	}
}

func TestTimescaleDurationFromMovieHeader(t *testing.T) {
	data := container("moov", box("mvhd", mvhdV0(90000, 180000)))

	info := NewInfo(parseBytes(t, data))
	timescale, duration, err := info.TimescaleDuration()
	if err != nil {
		t.Fatalf("TimescaleDuration() error = %v", err)
	}
	if timescale != 90000 || duration != 180000 {
		t.Errorf("TimescaleDuration() = %d, %d, want 90000, 180000", timescale, duration)
	}
}

func TestTimescaleDurationFallsBackToMediaHeader(t *testing.T) {
	data := container("moov",
		box("mvhd", mvhdV0(1000, 0)),
		container("trak",
			container("mdia", box("mdhd", mdhdV1(48000, 960000))),
		),
	)

	info := NewInfo(parseBytes(t, data))
	timescale, duration, err := info.TimescaleDuration()
	if err != nil {
		t.Fatalf("TimescaleDuration() error = %v", err)
	}
	if timescale != 48000 || duration != 960000 {
		t.Errorf("TimescaleDuration() = %d, %d, want 48000, 960000", timescale, duration)
	}
}

func TestTimescaleDurationMissingMovieHeader(t *testing.T) {
	data := box("ftyp", nil)

	info := NewInfo(parseBytes(t, data))
	if _, _, err := info.TimescaleDuration(); err == nil {
		t.Fatal("TimescaleDuration() error = nil without mvhd")
	}
}

func TestIsVideo(t *testing.T) {
	video := container("moov",
		container("trak", container("mdia", box("hdlr", hdlr("vide")))),
	)
	audio := container("moov",
		container("trak", container("mdia", box("hdlr", hdlr("soun")))),
	)

	if !NewInfo(parseBytes(t, video)).IsVideo() {
		t.Error("IsVideo() = false for video handler")
	}
	if NewInfo(parseBytes(t, audio)).IsVideo() {
		t.Error("IsVideo() = true for audio handler")
	}
}

func TestWidthHeight(t *testing.T) {
	data := container("moov", videoTrak(1280, 720, 0x64, 0x1f))

	info := NewInfo(parseBytes(t, data))
	width, height, err := info.WidthHeight()
	if err != nil {
		t.Fatalf("WidthHeight() error = %v", err)
	}
	if width != 1280 || height != 720 {
		t.Errorf("WidthHeight() = %d, %d, want 1280, 720", width, height)
	}
}

func TestAVCProfileLevel(t *testing.T) {
	data := container("moov", videoTrak(1280, 720, 0x64, 0x1f))

	info := NewInfo(parseBytes(t, data))
	profile, level, err := info.AVCProfileLevel()
	if err != nil {
		t.Fatalf("AVCProfileLevel() error = %v", err)
	}
	if profile != 0x64 || level != 0x1f {
		t.Errorf("AVCProfileLevel() = %#x, %#x, want 0x64, 0x1f", profile, level)
	}
}

func TestVideoSampleEntryMissing(t *testing.T) {
	audio := container("moov",
		container("trak", container("mdia", box("hdlr", hdlr("soun")))),
	)

	info := NewInfo(parseBytes(t, audio))
	if _, _, err := info.WidthHeight(); err == nil {
		t.Error("WidthHeight() error = nil without a video sample entry")
	}
	if _, _, err := info.AVCProfileLevel(); err == nil {
		t.Error("AVCProfileLevel() error = nil without a video sample entry")
	}
}

func TestPrintStructure(t *testing.T) {
	data := container("moov",
		box("mvhd", mvhdV0(90000, 180000)),
		container("trak", container("mdia", box("hdlr", hdlr("vide")))),
	)

	var out strings.Builder
	if err := parseBytes(t, data).Print(&out); err != nil {
		t.Fatalf("Print() error = %v", err)
	}

	listing := out.String()
	for _, want := range []string{"- moov", "  - mvhd", "  - trak", "    - mdia", "      - hdlr"} {
		if !strings.Contains(listing, want) {
			t.Errorf("Print() output missing %q:\n%s", want, listing)
		}
	}
}
