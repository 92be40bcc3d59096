package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"go.senan.xyz/table/table"

	"go.noctark.ai/metatune"
	"go.noctark.ai/metatune/analytics"
	"go.noctark.ai/metatune/cmd/internal/logging"
	"go.noctark.ai/metatune/cmd/internal/metatuneflag"
	"go.noctark.ai/metatune/fusion"
	"go.noctark.ai/metatune/tags"
)

func main() {
	exit := logging.Logging()
	defer exit()

	cfg := metatuneflag.Config()
	notifs := metatuneflag.Notifications()
	dryRun := flag.Bool("dry-run", false, "Calculate matches but don't write tags")
	analyticsDB := flag.String("analytics-db", "", "Path to analytics SQLite database")
	metatuneflag.Parse()
	metatuneflag.DefaultClient()

	cfg.DryRun = *dryRun
	cfg.Notifications = notifs

	if *analyticsDB != "" {
		store, err := analytics.Open(*analyticsDB)
		if err != nil {
			slog.Error("open analytics db", "err", err)
			return
		}
		defer store.Close()
		cfg.Reporter = store
	}

	paths, err := gatherPaths(flag.Args())
	if err != nil {
		slog.Error("gather paths", "err", err)
		return
	}
	if len(paths) == 0 {
		slog.Error("need at least one audio file or directory")
		return
	}

	proc, err := metatune.New(*cfg)
	if err != nil {
		slog.Error("init", "err", err)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	for _, e := range proc.Batch(ctx, paths) {
		if e.Err != nil {
			slog.Error("process", "path", e.Path, "err", e.Err)
			continue
		}
		printResult(e)
	}
}

func gatherPaths(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && tags.CanRead(path) {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return paths, nil
}

var signalOrder = []string{
	fusion.SignalFingerprint,
	fusion.SignalFilenameRaw,
	fusion.SignalFilenameArtist,
	fusion.SignalFilenameTitle,
	fusion.SignalTagArtist,
	fusion.SignalTagTitle,
}

func printResult(e metatune.BatchEntry) {
	r := e.Result
	log.Printf("%s: %s %.3f %q by %q", r.Path, r.Fusion.Label, r.Fusion.Score, r.Tags.Title, r.Tags.Artist)

	t := table.NewStringWriter()
	for _, sig := range signalOrder {
		fmt.Fprintf(t, "%s\t%.2f\t%.3f\n", sig, fusion.Weights[sig], r.Fusion.Breakdown[sig])
	}
	for _, row := range strings.Split(strings.TrimRight(t.String(), "\n"), "\n") {
		log.Print(row)
	}
}
