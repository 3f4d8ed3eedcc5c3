package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fakegit/puffer/pkg/dash"
	"github.com/fakegit/puffer/pkg/mp4"
	flag "github.com/spf13/pflag"
)

func printUsage(programName string) {
	fmt.Fprintf(os.Stderr, "Usage: %s [options] <dir> <dir> ...\n\n"+
		"<dir>                        Directory where media segments are stored\n"+
		"-u --url <base_url>          Set the base url for all media segments.\n"+
		"-p --update-period <period>  Set the update period in seconds.\n"+
		"-b --buffer-time <time>      Set the minimum buffer time in seconds.\n"+
		"-s --segment-name <name>     Set the segment name template.\n"+
		"-i --init-name <name>        Set the initial segment name.\n\n", programName)
}

// mediaInfo is what one representation directory contributes to the
// manifest.
type mediaInfo struct {
	name      string
	isVideo   bool
	timescale uint32
	duration  uint64
	bitrate   uint32
	width     uint16
	height    uint16
	profile   uint8
	avcLevel  uint8
}

// inspectDir derives manifest parameters from a representation
// directory: track type and timescale from the init segment, duration
// and bitrate from the first media segment.
func inspectDir(dir, initName, segmentName string) (*mediaInfo, error) {
	initPath := filepath.Join(dir, initName)
	initTree, err := mp4.ParseFile(initPath)
	if err != nil {
		return nil, fmt.Errorf("cannot parse %s: %w", initPath, err)
	}
	initInfo := mp4.NewInfo(initTree)

	timescale, duration, err := initInfo.TimescaleDuration()
	if err != nil {
		return nil, fmt.Errorf("cannot read timescale from %s: %w", initPath, err)
	}

	info := &mediaInfo{
		name:      filepath.Base(dir),
		isVideo:   initInfo.IsVideo(),
		timescale: timescale,
		duration:  duration,
	}

	if info.isVideo {
		// Dimensions and codec parameters live in the init segment's
		// sample description. Older packagers omit them; the manifest
		// then omits the matching attributes.
		if width, height, err := initInfo.WidthHeight(); err == nil {
			info.width = width
			info.height = height
		}
		if profile, level, err := initInfo.AVCProfileLevel(); err == nil {
			info.profile = profile
			info.avcLevel = level
		}
	}

	// Media segments carry the duration the init segment lacks. Their
	// timescale, when present, overrides the init segment's.
	pattern := filepath.Join(dir, strings.ReplaceAll(segmentName, "$Number$", "*"))
	segments, err := filepath.Glob(pattern)
	if err != nil || len(segments) == 0 {
		return info, nil
	}

	segTree, err := mp4.ParseFile(segments[0])
	if err != nil {
		return info, nil
	}
	segTimescale, segDuration, err := mp4.NewInfo(segTree).TimescaleDuration()
	if err != nil {
		return info, nil
	}
	if segTimescale != 0 {
		info.timescale = segTimescale
	}
	if segDuration != 0 {
		info.duration = segDuration
	}

	if stat, err := os.Stat(segments[0]); err == nil && info.duration != 0 && info.timescale != 0 {
		seconds := float64(info.duration) / float64(info.timescale)
		info.bitrate = uint32(float64(stat.Size()) * 8 / seconds)
	}

	return info, nil
}

func run() error {
	baseURL := flag.StringP("url", "u", dash.DefaultBaseURL, "base url for all media segments")
	updatePeriod := flag.Uint32P("update-period", "p", uint32(dash.DefaultUpdatePeriod.Seconds()), "update period in seconds")
	bufferTime := flag.Uint32P("buffer-time", "b", uint32(dash.DefaultBufferTime.Seconds()), "minimum buffer time in seconds")
	segmentName := flag.StringP("segment-name", "s", dash.DefaultMediaName, "segment name template")
	initName := flag.StringP("init-name", "i", dash.DefaultInitName, "initial segment name")
	flag.Usage = func() { printUsage(os.Args[0]) }
	flag.Parse()

	dirs := flag.Args()
	if len(dirs) == 0 {
		printUsage(os.Args[0])
		os.Exit(1)
	}

	for _, dir := range dirs {
		if _, err := os.Stat(dir); err != nil {
			return fmt.Errorf("%s does not exist", dir)
		}
	}

	writer := dash.NewWriter(
		time.Duration(*updatePeriod)*time.Second,
		time.Duration(*bufferTime)*time.Second,
		*baseURL,
	)

	videoSet := &dash.VideoAdaptationSet{
		ID:        1,
		InitName:  *initName,
		MediaName: *segmentName,
	}
	audioSet := &dash.AudioAdaptationSet{
		ID:        2,
		InitName:  *initName,
		MediaName: *segmentName,
	}

	for _, dir := range dirs {
		info, err := inspectDir(dir, *initName, *segmentName)
		if err != nil {
			return err
		}
		if info.duration == 0 {
			return fmt.Errorf("cannot find duration in %s", dir)
		}

		if info.isVideo {
			videoSet.Duration = uint32(info.duration)
			videoSet.AddRepresentation(&dash.VideoRepresentation{
				ID:        info.name,
				Width:     info.width,
				Height:    info.height,
				Bitrate:   info.bitrate,
				Profile:   info.profile,
				AVCLevel:  info.avcLevel,
				Timescale: info.timescale,
			})
		} else {
			audioSet.Duration = uint32(info.duration)
			audioSet.AddRepresentation(&dash.AudioRepresentation{
				ID:        info.name,
				Bitrate:   info.bitrate,
				Timescale: info.timescale,
			})
		}
	}

	if len(videoSet.Representations) > 0 {
		writer.AddVideoAdaptationSet(videoSet)
	}
	if len(audioSet.Representations) > 0 {
		writer.AddAudioAdaptationSet(audioSet)
	}

	return writer.Flush(os.Stdout)
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[0], err)
		os.Exit(1)
	}
}
