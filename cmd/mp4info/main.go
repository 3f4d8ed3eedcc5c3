package main

import (
	"fmt"
	"os"

	"github.com/fakegit/puffer/pkg/mp4"
)

func printUsage(programName string) {
	fmt.Fprintf(os.Stderr, "Usage: %s <file.mp4>\n\n"+
		"<file.mp4>        MP4 file to parse\n", programName)
}

func main() {
	if len(os.Args) != 2 {
		printUsage(os.Args[0])
		os.Exit(1)
	}

	tree, err := mp4.ParseFile(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[0], err)
		os.Exit(1)
	}

	if err := tree.Print(os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[0], err)
		os.Exit(1)
	}

	info := mp4.NewInfo(tree)
	timescale, duration, err := info.TimescaleDuration()
	if err == nil && timescale != 0 {
		fmt.Printf("timescale: %d, duration: %d (%.3fs)\n",
			timescale, duration, float64(duration)/float64(timescale))
	}
	if info.IsVideo() {
		fmt.Println("contains video track")
	}
}
