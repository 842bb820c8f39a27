package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"tracemetrics/config"
	"tracemetrics/engine"
	"tracemetrics/logger"
	"tracemetrics/metrics"
	"tracemetrics/schema"
)

func main() {
	// Load configuration and initialize logger
	config.MustLoad()
	cfg := config.Get()

	dbPath := flag.String("db", cfg.DB.Path, "trace database to compute metrics over")
	descriptorPath := flag.String("descriptors", cfg.Schema.DescriptorPath, "serialized FileDescriptorSet with the metrics schema")
	rootMessage := flag.String("root", cfg.Schema.RootMessage, "fully-qualified name of the root metrics message")
	sqlDir := flag.String("sql-dir", cfg.Metrics.Dir, "metric SQL catalog directory")
	outputPath := flag.String("out", cfg.Metrics.OutputPath, "output file for the serialized root message ('-' for stdout)")
	flag.Parse()

	logger.Init()

	names := flag.Args()
	if len(names) == 0 {
		fmt.Fprintln(os.Stderr, "usage: tracemetrics [flags] metric [metric ...]")
		flag.PrintDefaults()
		os.Exit(2)
	}
	if *rootMessage == "" {
		slog.Error("no root message type configured (set -root or TRACEMETRICS_ROOT_MESSAGE)")
		os.Exit(1)
	}

	slog.Info("computing metrics",
		slog.String("db", *dbPath),
		slog.String("metrics", strings.Join(names, ",")))

	pool, err := schema.LoadDescriptorSet(*descriptorPath)
	if err != nil {
		slog.Error("failed to load descriptor set", slog.Any("error", err))
		os.Exit(1)
	}
	root, err := pool.FindMessage(*rootMessage)
	if err != nil {
		slog.Error("failed to resolve root message", slog.Any("error", err))
		os.Exit(1)
	}

	catalog, err := metrics.LoadCatalog(*sqlDir)
	if err != nil {
		slog.Error("failed to load metric catalog", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := engine.Open(*dbPath)
	if err != nil {
		slog.Error("failed to open trace database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Warn("failed to close database", slog.Any("error", err))
		}
	}()

	computer := metrics.NewComputer(db, catalog, pool)
	out, err := computer.ComputeMetrics(names, root)
	if err != nil {
		slog.Error("metric computation failed", slog.Any("error", err))
		os.Exit(1)
	}

	if *outputPath == "-" {
		if _, err := os.Stdout.Write(out); err != nil {
			slog.Error("failed to write output", slog.Any("error", err))
			os.Exit(1)
		}
	} else {
		if err := os.WriteFile(*outputPath, out, 0644); err != nil {
			slog.Error("failed to write output", slog.String("path", *outputPath), slog.Any("error", err))
			os.Exit(1)
		}
	}
	slog.Info("metrics computed", slog.Int("bytes", len(out)))
}
