// Package main is the kinji CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hyperjump/kinji/internal/cli"
	"github.com/hyperjump/kinji/internal/config"
	"github.com/hyperjump/kinji/internal/embedding"
	"github.com/hyperjump/kinji/internal/indexer"
	"github.com/hyperjump/kinji/internal/ingest"
	"github.com/hyperjump/kinji/internal/models"
	"github.com/hyperjump/kinji/internal/resource"
	"github.com/hyperjump/kinji/internal/search"
	"github.com/hyperjump/kinji/internal/server"
	"github.com/hyperjump/kinji/internal/session"
	"github.com/hyperjump/kinji/internal/storage"
	"github.com/hyperjump/kinji/internal/vector"
	"github.com/hyperjump/kinji/internal/watcher"
	"github.com/hyperjump/kinji/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kinji/config.yaml"

// loadConfig loads config from path. When path is the default, config.yaml in the current
// directory takes precedence if it exists, so running from a project dir uses its config.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// OPENAI_API_KEY and friends may live in a local .env file.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "build":
		runBuild()
	case "serve", "server":
		runServe()
	case "search":
		runSearch()
	case "similar":
		runSimilar()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kinji version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads config and creates the logger shared by every subcommand.
func setup(configPath string, debug bool) (*config.Config, *zap.Logger) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug || debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved))
	return cfg, logger
}

func runBuild() {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	input := fs.String("input", "", "raw records file (.json, .jsonl, .xlsx); overrides storage.raw_data_path")
	debug := fs.Bool("debug", false, "enable debug logging")
	quiet := fs.Bool("quiet", false, "do not print progress")
	_ = fs.Parse(os.Args[2:])

	cfg, logger := setup(*configPath, *debug)
	defer logger.Sync()

	rawPath := cfg.Storage.RawDataPath
	if *input != "" {
		rawPath = *input
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	recs, stats, err := ingest.Ingest(rawPath, ingest.CleanOptions{
		NormalizeFields: cfg.Embedding.TextFields,
		Logger:          logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to ingest records: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Ingested %d records (%d invalid skipped) from %s\n", stats.Valid, stats.Invalid, rawPath)

	metric, err := vector.ParseMetric(cfg.Index.Metric)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid metric: %v\n", err)
		os.Exit(1)
	}
	compression, err := vector.ParseCompression(cfg.Index.Compression)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid compression: %v\n", err)
		os.Exit(1)
	}

	emb, err := embedding.New(cfg.Embedding, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create embedder: %v\n", err)
		os.Exit(1)
	}
	defer emb.Close()

	opts := indexer.Options{
		IndexType: cfg.Index.Type,
		Metric:    metric,
		Dimension: emb.Dimensions(),
		BatchSize: cfg.Embedding.BatchSize,
		Workers:   cfg.Embedding.Workers,
		Text:      indexer.TextBuilder{Fields: cfg.Embedding.TextFields, Prefix: cfg.Embedding.PassagePrefix},
		Model:     embedding.ModelName(cfg.Embedding),
		Logger:    logger,
	}
	if !*quiet {
		opts.Progress = func(done, total int) {
			fmt.Fprintf(os.Stderr, "\rEmbedded %d/%d", done, total)
		}
	}

	start := time.Now()
	res, err := indexer.Build(ctx, recs, emb, opts)
	if !*quiet {
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Build failed: %v\n", err)
		os.Exit(1)
	}
	defer res.Index.Close()

	if err := indexer.Persist(ctx, res, indexer.Paths{
		Records:     cfg.Storage.RecordsPath,
		Index:       cfg.Storage.IndexPath,
		Compression: compression,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write artifacts: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Built index of %d records in %s\n", len(recs), time.Since(start).Round(time.Millisecond))
	fmt.Printf("  records: %s\n  index:   %s\n", cfg.Storage.RecordsPath, cfg.Storage.IndexPath)
}

func runServe() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, logger := setup(*configPath, *debug)
	defer logger.Sync()

	registry := resource.NewRegistry(
		resource.WithLogger(logger),
		resource.WithRetireDelay(max(resource.DefaultRetireDelay, 2*server.RequestTimeout)),
	)
	defer registry.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load eagerly so the first request does not pay for it. The server still starts
	// without artifacts and answers 503 until a build and reload.
	if _, err := registry.Get(ctx, cfg); err != nil {
		logger.Warn("Initial snapshot load failed", zap.Error(err))
	}

	sessions := session.NewManager(logger,
		session.WithIdleTTL(cfg.Sessions.IdleTTL),
		session.WithMaxSessions(cfg.Sessions.MaxSessions),
	)
	go sessions.RunSweeper(ctx, cfg.Sessions.SweepInterval)

	srv := server.NewServer(registry, cfg, sessions, logger)

	if cfg.Watch.Artifacts {
		w := watcher.NewWatcher(
			[]string{cfg.Storage.RecordsPath, cfg.Storage.IndexPath},
			func() {
				if _, err := srv.Reload(ctx); err != nil {
					logger.Warn("Reload after artifact change failed", zap.Error(err))
				}
			},
			watcher.WithLogger(logger),
		)
		if err := w.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer w.Stop()
	}

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: kinji search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  kinji search graph neural networks
  kinji search -k 20 "protein structure prediction"
  kinji search -server http://localhost:8080 -output json ocean circulation
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves flags that appear after the positional arguments to the front so
// flag.Parse sees them; the flag package stops at the first non-flag argument.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func parseOutputFormat(s string) (cli.SearchOutputFormat, error) {
	switch s {
	case "text":
		return cli.OutputText, nil
	case "compact":
		return cli.OutputCompact, nil
	case "json":
		return cli.OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
	}
}

// queryFlags are shared by search and similar.
type queryFlags struct {
	configPath *string
	serverURL  *string
	k          *int
	output     *string
	debug      *bool
}

func addQueryFlags(fs *flag.FlagSet) queryFlags {
	return queryFlags{
		configPath: fs.String("config", defaultConfigPath, "config file path"),
		serverURL:  fs.String("server", "", "server URL (empty = load artifacts directly)"),
		k:          fs.Int("k", 0, "number of neighbors (0 = search.default_k)"),
		output:     fs.String("output", "text", "output format: text (human-readable), compact (one result per line), or json (parseable)"),
		debug:      fs.Bool("debug", false, "enable debug logging"),
	}
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	qf := addQueryFlags(fs)
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	runQuery(qf, search.Text{Query: queryStr})
}

func runSimilar() {
	fs := flag.NewFlagSet("similar", flag.ExitOnError)
	qf := addQueryFlags(fs)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: kinji similar [flags] <record-id>\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}
	id, err := models.ParseRecordID(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid record id: %v\n", err)
		os.Exit(1)
	}
	runQuery(qf, search.ByIdentity{ID: id})
}

func runQuery(qf queryFlags, in search.Input) {
	format, err := parseOutputFormat(*qf.output)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var response *models.SearchResponse
	if *qf.serverURL != "" {
		response, err = queryViaHTTP(http.DefaultClient, *qf.serverURL, in, *qf.k)
	} else {
		cfg, logger := setup(*qf.configPath, *qf.debug)
		defer logger.Sync()
		var snap *resource.Snapshot
		snap, err = resource.Load(context.Background(), cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load index: %v\n", err)
			os.Exit(1)
		}
		defer snap.Close()
		response, err = snap.Engine.Search(context.Background(), in, cfg.Search.ClampK(*qf.k))
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// queryViaHTTP runs in against a running server.
func queryViaHTTP(client *http.Client, serverURL string, in search.Input, k int) (*models.SearchResponse, error) {
	base := strings.TrimRight(serverURL, "/")
	var (
		resp *http.Response
		err  error
	)
	switch v := in.(type) {
	case search.Text:
		body, mErr := json.Marshal(map[string]interface{}{"query": v.Query, "k": k})
		if mErr != nil {
			return nil, mErr
		}
		resp, err = client.Post(base+"/api/v1/search", "application/json", bytes.NewReader(body))
	case search.ByIdentity:
		target := base + "/api/v1/similar/" + url.PathEscape(string(v.ID))
		if k > 0 {
			target += "?k=" + strconv.Itoa(k)
		}
		resp, err = client.Get(target)
	default:
		return nil, fmt.Errorf("unsupported query input %T", in)
	}
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var response models.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := parseOutputFormat(*outputFormat)
	if err != nil || format == cli.OutputCompact {
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}

	cfg, logger := setup(*configPath, false)
	defer logger.Sync()

	status, err := collectStatus(context.Background(), cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// collectStatus reads the artifacts named by cfg without loading the records or an embedder.
func collectStatus(ctx context.Context, cfg *config.Config) (*cli.Status, error) {
	count, manifest, err := storage.InspectRecordsFile(ctx, cfg.Storage.RecordsPath)
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	idx, err := vector.Open(cfg.Index.Type, cfg.Storage.IndexPath)
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	defer idx.Close()

	status := &cli.Status{
		Records:        int(count),
		IndexSize:      idx.Size(),
		Dimension:      idx.Dimension(),
		Metric:         idx.Metric().String(),
		IndexType:      idx.Type(),
		FAISSAvailable: vector.IsFAISSAvailable(),
	}
	if manifest != nil {
		status.Model = manifest.Model
		status.TextFields = manifest.TextFields
		status.BuiltAt = manifest.BuiltAt
	}
	status.Artifacts, status.DiskUsageBytes, err = storage.ArtifactUsage(cfg.Storage.RecordsPath, cfg.Storage.IndexPath)
	if err != nil {
		return nil, err
	}
	return status, nil
}

func printUsage() {
	fmt.Println(`kinji - semantic similarity index for records

Usage:
  kinji <command> [flags]

Commands:
  build     Ingest raw records, embed them and write the records and index artifacts
  serve     Start the HTTP API server
  search    Find records similar to free text
  similar   Find records similar to a record, by id
  status    Show artifact status
  version   Show version
  help      Show this help

Use "kinji <command> -h" for command flags.`)
}
