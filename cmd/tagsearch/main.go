// Package main is the tagsearch CLI entry point.
package main

import (
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/hyperjump/tagsearch/internal/cli"
	"github.com/hyperjump/tagsearch/internal/config"
	"github.com/hyperjump/tagsearch/internal/indexer"
	"github.com/hyperjump/tagsearch/internal/models"
	"github.com/hyperjump/tagsearch/internal/postindex"
	"github.com/hyperjump/tagsearch/internal/search"
	"github.com/hyperjump/tagsearch/internal/seed"
	"github.com/hyperjump/tagsearch/internal/server"
	"github.com/hyperjump/tagsearch/internal/sqlquery"
	"github.com/hyperjump/tagsearch/internal/storage"
	"github.com/hyperjump/tagsearch/internal/watcher"
	"github.com/hyperjump/tagsearch/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/tagsearch/config.yaml"

// loadConfig loads config from path. When path is the default and config.yaml exists in
// the current directory, that file is used instead so a checkout runs with its own config.
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
	if _, err := os.Stat(path); os.IsNotExist(err) && path == defaultConfigPath {
		cfg, err := config.FromEnv()
		return cfg, "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "parse":
		runCompile("parse")
	case "compile":
		runCompile("compile")
	case "search":
		runSearch()
	case "seed":
		runSeed()
	case "reindex":
		runReindex()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("tagsearch version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// Components holds the opened storage, index and engine.
type Components struct {
	Storage  *storage.SQLiteStorage
	Index    *postindex.BleveIndex
	Engine   *search.Engine
	Indexer  *indexer.Indexer
	Metrics  *search.Metrics
	Registry *prometheus.Registry
	closers  []io.Closer
}

// Close releases everything initializeComponents opened.
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		_ = c.closers[i].Close()
	}
}

// initializeComponents opens storage and, when withIndex is set, the post index. Parsing
// and compiling only need storage, so they can run next to a server holding the index.
func initializeComponents(cfg *config.Config, logger *zap.Logger, withIndex bool) (*Components, error) {
	c := &Components{Registry: prometheus.NewRegistry()}
	c.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	c.Metrics = search.NewMetrics(c.Registry)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Storage = store
	c.closers = append(c.closers, store)

	opts := []search.Option{search.WithLogger(logger), search.WithMetrics(c.Metrics)}
	if cfg.Storage.PostgresDSN != "" {
		db, err := sqlquery.Open(cfg.Storage.PostgresDSN)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.closers = append(c.closers, db)
		opts = append(opts, search.WithExecutor(sqlquery.NewExecutor(db, sqlquery.WithExecutorLogger(logger))))
	}

	var index search.PostIndex
	if withIndex {
		c.Index, err = postindex.NewBleveIndex(cfg.Storage.BleveIndexPath, postindex.WithLogger(logger))
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to initialize post index: %w", err)
		}
		c.closers = append(c.closers, c.Index)
		c.Indexer = indexer.NewIndexer(store, c.Index, indexer.WithLogger(logger))
		index = c.Index
	}

	c.Engine, err = search.NewEngine(store, index, cfg, opts...)
	if err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// setup loads config and creates the logger shared by every subcommand.
func setup(configPath string, debug bool) (*config.Config, *zap.Logger, string) {
	cfg, resolvedConfigPath, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug || debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return cfg, logger, resolvedConfigPath
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, resolvedConfigPath := setup(*configPath, *debug)
	defer logger.Sync()
	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", cfg.Debug || *debug),
	)

	components, err := initializeComponents(cfg, logger, true)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Seed.Directory != "" {
		if _, err := os.Stat(cfg.Seed.Directory); err == nil {
			importer := seed.NewImporter(components.Storage, logger)
			if _, err := importer.ImportDir(ctx, cfg.Seed.Directory); err != nil {
				logger.Fatal("Failed to import seeds", zap.Error(err))
			}
			if _, err := components.Indexer.Reindex(ctx); err != nil {
				logger.Fatal("Failed to index posts", zap.Error(err))
			}
		}
	}

	if cfg.Seed.Watch && cfg.Seed.Directory != "" {
		importer := seed.NewImporter(components.Storage, logger)
		w := watcher.NewWatcher(cfg.Seed.Directory, seed.IsSeedFile, func(paths []string) {
			reloadSeeds(ctx, importer, components, logger, paths)
		}, watcher.WithLogger(logger))
		if err := w.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer w.Stop()
	}

	srv := server.NewServer(
		components.Engine,
		components.Indexer,
		components.Storage,
		cfg,
		logger,
		server.WithIndexStats(components.Index),
		server.WithMetrics(components.Metrics, components.Registry),
		server.WithVersion(version),
	)
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

// reloadSeeds re-imports changed seed files and reindexes the posts they contain.
func reloadSeeds(ctx context.Context, importer *seed.Importer, c *Components, logger *zap.Logger, paths []string) {
	for _, path := range paths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			logger.Info("seed file removed, keeping imported rows", zap.String("path", path))
			continue
		}
		stats, err := importer.ImportFile(ctx, path)
		if err != nil {
			logger.Warn("seed reload failed", zap.String("path", path), zap.Error(err))
			continue
		}
		for _, id := range stats.PostIDs {
			if err := c.Indexer.IndexPost(ctx, id); err != nil {
				logger.Warn("index post failed", zap.Int64("post_id", id), zap.Error(err))
			}
		}
		logger.Info("seed file reloaded", zap.String("path", path), zap.Int("posts", stats.Posts))
	}
	c.Engine.PurgeCache()
}

// argsReorder moves flags (and their values) in front of the query terms so that
// flag.Parse() sees them. The flag package stops at the first non-flag argument, so
// "tagsearch search fox -limit 5" would otherwise ignore -limit. Negated terms such as
// "-wolf" stay in the query, as does everything after "--".
func argsReorder(args []string) []string {
	flags := make([]string, 0, len(args))
	var terms []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			terms = append(terms, args[i+1:]...)
			break
		}
		name, hasValue := flagName(a)
		takesValue, known := knownFlags[name]
		if !known {
			terms = append(terms, a)
			continue
		}
		flags = append(flags, a)
		if takesValue && !hasValue && i+1 < len(args) {
			i++
			flags = append(flags, args[i])
		}
	}
	if len(terms) == 0 {
		return flags
	}
	return append(append(flags, "--"), terms...)
}

// flagName returns the flag name of a "-name", "--name" or "-name=value" argument.
func flagName(arg string) (string, bool) {
	if len(arg) < 2 || arg[0] != '-' {
		return "", false
	}
	name := strings.TrimPrefix(strings.TrimPrefix(arg, "-"), "-")
	if i := strings.IndexByte(name, '='); i >= 0 {
		return name[:i], true
	}
	return name, false
}

// knownFlags maps flag names to whether they take a separate value.
var knownFlags = map[string]bool{
	"config": true, "server": true, "limit": true, "page": true, "backend": true, "output": true,
	"debug": false, "aliases": false, "show-deleted": false,
}

// buildQuery joins all positional args with spaces so tag queries work the same with or
// without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func runCompile(command string) {
	fs := flag.NewFlagSet(command, flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	backend := fs.String("backend", "both", "compile target: sql, index or both")
	aliases := fs.Bool("aliases", true, "resolve tag aliases")
	showDeleted := fs.Bool("show-deleted", false, "do not hide deleted posts")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	query := buildQuery(fs.Args())

	cfg, logger, _ := setup(*configPath, *debug)
	defer logger.Sync()
	components, err := initializeComponents(cfg, logger, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer components.Close()

	ctx := context.Background()
	if command == "parse" {
		q, err := components.Engine.Parse(ctx, query, *aliases)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Parse failed: %v\n", err)
			os.Exit(1)
		}
		model, err := json.Marshal(q)
		if err == nil {
			err = cli.WriteParseResult(os.Stdout, &models.CompileResponse{Query: query, Model: model}, format)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	resp, err := components.Engine.Compile(ctx, &models.CompileRequest{
		Query:             query,
		Backend:           models.Backend(*backend),
		ResolveAliases:    aliases,
		AlwaysShowDeleted: *showDeleted,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Compile failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteCompileResult(os.Stdout, resp, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = open storage and index directly)")
	limit := fs.Int("limit", 0, "posts per page (default from config or the query's limit:)")
	page := fs.Int("page", 1, "page number")
	backend := fs.String("backend", "index", "search backend: index or sql")
	aliases := fs.Bool("aliases", true, "resolve tag aliases")
	showDeleted := fs.Bool("show-deleted", false, "do not hide deleted posts")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	req := &models.SearchRequest{
		Query:             buildQuery(fs.Args()),
		Limit:             *limit,
		Page:              *page,
		ResolveAliases:    aliases,
		AlwaysShowDeleted: *showDeleted,
		Backend:           models.Backend(*backend),
	}

	var response *models.SearchResponse
	if *serverURL != "" {
		// the server holds the index lock, so go through its API
		response, err = searchViaHTTP(*serverURL, req)
	} else {
		cfg, logger, _ := setup(*configPath, *debug)
		defer logger.Sync()
		components, initErr := initializeComponents(cfg, logger, true)
		if initErr != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", initErr)
			os.Exit(1)
		}
		defer components.Close()
		response, err = components.Engine.Search(context.Background(), req)
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

// searchURL builds the GET /api/v1/posts URL for a request.
func searchURL(serverURL string, req *models.SearchRequest) string {
	params := url.Values{}
	params.Set("tags", req.Query)
	if req.Limit > 0 {
		params.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.Page > 1 {
		params.Set("page", strconv.Itoa(req.Page))
	}
	if req.Backend != "" {
		params.Set("backend", string(req.Backend))
	}
	if !req.ShouldResolveAliases() {
		params.Set("resolve_aliases", "false")
	}
	if req.AlwaysShowDeleted {
		params.Set("always_show_deleted", "true")
	}
	return strings.TrimRight(serverURL, "/") + "/api/v1/posts?" + params.Encode()
}

func searchViaHTTP(serverURL string, req *models.SearchRequest) (*models.SearchResponse, error) {
	var response models.SearchResponse
	if err := getJSON(searchURL(serverURL, req), &response); err != nil {
		return nil, err
	}
	return &response, nil
}

func statusViaHTTP(serverURL string) (*models.StatusResponse, error) {
	var status models.StatusResponse
	if err := getJSON(strings.TrimRight(serverURL, "/")+"/api/v1/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func getJSON(target string, out any) error {
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func runSeed() {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, _ := setup(*configPath, *debug)
	defer logger.Sync()
	paths := fs.Args()
	if len(paths) == 0 {
		if cfg.Seed.Directory == "" {
			fmt.Fprintln(os.Stderr, "Usage: tagsearch seed [flags] <dir|file>... (or set seed.directory)")
			os.Exit(1)
		}
		paths = []string{cfg.Seed.Directory}
	}

	components, err := initializeComponents(cfg, logger, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer components.Close()

	ctx := context.Background()
	importer := seed.NewImporter(components.Storage, logger)
	var posts int
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Seed failed: %v\n", err)
			os.Exit(1)
		}
		var stats seed.Stats
		if info.IsDir() {
			stats, err = importer.ImportDir(ctx, p)
		} else {
			stats, err = importer.ImportFile(ctx, p)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Seed failed: %v\n", err)
			os.Exit(1)
		}
		posts += stats.Posts
		fmt.Printf("Imported %s: %d files, %d tags, %d aliases, %d pools, %d posts\n",
			p, stats.Files, stats.Tags, stats.Aliases, stats.Pools, stats.Posts)
	}

	n, err := components.Indexer.Reindex(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Reindex failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Indexed %d posts (%d imported)\n", n, posts)
}

func runReindex() {
	fs := flag.NewFlagSet("reindex", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, _ := setup(*configPath, *debug)
	defer logger.Sync()
	components, err := initializeComponents(cfg, logger, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer components.Close()

	start := time.Now()
	n, err := components.Indexer.Reindex(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Reindex failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Indexed %d posts in %s\n", n, time.Since(start).Round(time.Millisecond))
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use direct storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var status *models.StatusResponse
	if *serverURL != "" {
		status, err = statusViaHTTP(*serverURL)
	} else {
		status, err = directStatus(*configPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func directStatus(configPath string) (*models.StatusResponse, error) {
	cfg, logger, _ := setup(configPath, false)
	defer logger.Sync()
	components, err := initializeComponents(cfg, logger, true)
	if err != nil {
		return nil, err
	}
	defer components.Close()

	ctx := context.Background()
	status := &models.StatusResponse{Version: version}
	if status.Posts, err = components.Storage.CountPosts(ctx); err != nil {
		return nil, err
	}
	if status.Tags, err = components.Storage.CountTags(ctx); err != nil {
		return nil, err
	}
	if status.IndexedPosts, err = components.Index.DocCount(); err != nil {
		return nil, err
	}
	status.DiskUsageBytes, _ = storage.DiskUsageBytes(cfg.Storage.DatabasePath, cfg.Storage.BleveIndexPath)
	return status, nil
}

func printUsage() {
	fmt.Println(`tagsearch - booru tag search query compiler

Usage:
  tagsearch server [flags]             Start the HTTP server
  tagsearch parse [flags] <query>      Print the parsed query model
  tagsearch compile [flags] <query>    Print the compiled SQL and/or index query
  tagsearch search [flags] <query>     Search posts
  tagsearch seed [flags] [dir|file]    Import YAML seed files and reindex
  tagsearch reindex [flags]            Rebuild the post index from storage
  tagsearch status [flags]             Show storage/index status
  tagsearch version                    Show version
  tagsearch help                       Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/tagsearch/config.yaml)
  --debug            Enable debug logging
  --output string    Output format: text or json (default: text)

Compile Flags:
  --backend string   sql, index or both (default: both)
  --aliases          Resolve tag aliases (default: true)
  --show-deleted     Do not hide deleted posts

Search Flags:
  --server string    Server URL (default: http://localhost:8080). Use --server "" to open storage directly.
  --limit int        Posts per page (default from config)
  --page int         Page number (default: 1)
  --backend string   index or sql (default: index)

Environment:
  TAGSEARCH_* variables override the config file, e.g. TAGSEARCH_SERVER_PORT=9000.

Examples:
  tagsearch server
  tagsearch parse "fox -wolf rating:s order:score"
  tagsearch compile --backend sql "~fox ~wolf width:>1000"
  tagsearch search fox -wolf --limit 20
  tagsearch search --output json "status:any delreason:dup*"
  tagsearch seed ./seeds`)
}
