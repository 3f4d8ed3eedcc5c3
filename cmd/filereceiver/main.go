//go:build linux

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/fakegit/puffer/internal/logger"
	"github.com/fakegit/puffer/internal/receiver"
	"github.com/fakegit/puffer/pkg/config"
)

func printUsage(programName string) {
	fmt.Fprintf(os.Stderr, "Usage: %s [options] PORT [TMP_DIR] [ALLOWED_ORIGIN]\n\n"+
		"PORT              TCP port to listen on\n"+
		"TMP_DIR           Directory for temporary files (default from config)\n"+
		"ALLOWED_ORIGIN    Only accept connections from this IP or CIDR range\n\n"+
		"Options:\n"+
		"  -config PATH      Path to config file\n"+
		"  -log-level LEVEL  Log level (DEBUG, INFO, WARN, ERROR)\n", programName)
}

func run() error {
	configPath := flag.String("config", "", "Path to config file")
	logLevel := flag.String("log-level", "", "Log level (DEBUG, INFO, WARN, ERROR)")
	flag.Usage = func() { printUsage(os.Args[0]) }
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 || len(args) > 3 {
		printUsage(os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	// Positional arguments override the config file.
	port, err := strconv.ParseUint(args[0], 10, 16)
	if err != nil {
		return fmt.Errorf("invalid port %q: %w", args[0], err)
	}
	cfg.Server.Port = uint16(port)

	if len(args) >= 2 {
		cfg.Intake.TmpDir = args[1]
	}
	if len(args) == 3 {
		cfg.Intake.AllowedOrigins = []string{args[2]}
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	if err := config.ConfigureLogging(&cfg.Logging); err != nil {
		return err
	}

	ctx := context.Background()

	journal, err := config.CreateJournal(&cfg.Journal)
	if err != nil {
		return err
	}
	if journal != nil {
		defer journal.Close()
	}

	archiver, err := config.CreateArchiver(ctx, &cfg.Archive)
	if err != nil {
		return err
	}

	recv, err := receiver.New(receiver.Config{
		Port:           cfg.Server.Port,
		TmpDir:         cfg.Intake.TmpDir,
		AllowedOrigins: cfg.Intake.AllowedOrigins,
		AcceptRate:     cfg.Server.AcceptRate,
		AcceptBurst:    cfg.Server.AcceptBurst,
		Journal:        journal,
		Archiver:       archiver,
	})
	if err != nil {
		return err
	}

	if err := recv.Start(); err != nil {
		return err
	}
	defer recv.Close()

	return recv.Run()
}

func main() {
	if err := run(); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}
