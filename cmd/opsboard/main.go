package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/danweinerdev/go-opsboard"
	"github.com/danweinerdev/go-opsboard/httpapi"
	"github.com/danweinerdev/go-opsboard/influxdb"
	"github.com/danweinerdev/go-opsboard/promexporter"
	"github.com/danweinerdev/go-opsboard/source"
	"github.com/danweinerdev/go-opsboard/termview"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

// Build variables - set by ldflags during build.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configPath  string
		sourceURL   string
		runOnce     bool
		echo        bool
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "path to TOML config file")
	flag.StringVar(&sourceURL, "url", "", "gateway base URL (overrides source.url)")
	flag.BoolVar(&runOnce, "once", false, "poll every view once, print it and exit")
	flag.BoolVar(&echo, "echo", false, "write derived samples to stdout in line protocol")
	flag.BoolVar(&showVersion, "version", false, "print version information")
	flag.Parse()

	if showVersion {
		fmt.Printf("opsboard %s (%s)\n", version, commit)
		return
	}

	cfg, err := loadConfig(configPath, sourceURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, configPath, runOnce, echo); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path, sourceURL string) (*opsboard.Config, error) {
	cfg := opsboard.DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = opsboard.LoadConfig(path); err != nil {
			return nil, err
		}
	}
	if sourceURL != "" {
		cfg.Source.URL = sourceURL
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func run(cfg *opsboard.Config, configPath string, runOnce, echo bool) error {
	logger, levelVar := opsboard.NewLoggerWithFormat(os.Stderr, cfg.Global.LogLevel, cfg.Global.LogFormat)

	client, err := source.New(cfg.Source, logger)
	if err != nil {
		return err
	}

	opts := []opsboard.Option{
		opsboard.WithConfig(cfg),
		opsboard.WithLogger(logger),
		opsboard.WithLevelVar(levelVar),
		opsboard.WithEcho(echo),
		opsboard.WithRunOnce(runOnce),
	}
	if configPath != "" {
		opts = append(opts, opsboard.WithConfigFile(configPath))
	}
	if cfg.InfluxDB.Enabled {
		opts = append(opts, opsboard.WithSink(influxdb.New(cfg.InfluxDB, logger)))
	}
	if cfg.Prometheus.Enabled {
		opts = append(opts, opsboard.WithSink(promexporter.New(cfg.Prometheus, logger)))
	}

	board, err := opsboard.New("opsboard", client.Fetch(), opts...)
	if err != nil {
		return err
	}

	if runOnce {
		// A failed view is still printed, flagged stale.
		if err := board.Run(context.Background()); err != nil {
			logger.Warn("poll failed", "error", err)
		}
		printViews(os.Stdout, board)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// The board owns signal handling; stop the API once it returns.
		defer cancel()
		return board.Run(gctx)
	})

	if cfg.HTTP.Enabled {
		gin.SetMode(gin.ReleaseMode)
		api := httpapi.NewServer(cfg.HTTP.Addr, board, client, logger)
		g.Go(func() error {
			return api.Run(gctx)
		})
	}

	return g.Wait()
}

func printViews(w io.Writer, board *opsboard.Board) {
	for _, name := range board.Views() {
		v, _ := board.View(name)
		fmt.Fprintln(w, termview.Render(v.State(opsboard.Chronological)))
		fmt.Fprintln(w)
	}
}
