package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"medichat/internal/adapter/backend"
	"medichat/internal/adapter/locator"
	"medichat/internal/adapter/store"
	"medichat/internal/adapter/tui/chat"
	"medichat/internal/domain"
	"medichat/internal/infra/config"
	"medichat/internal/infra/logger"
	"medichat/internal/infra/tracer"
	"medichat/internal/usecase"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`medichat - Terminal client for the health assistant service

USAGE:
    medichat [FLAGS]

FLAGS:
    -h, --help         Show this help message
    --config PATH      Specify config file path (default: ./config.yaml)

CONFIGURATION:
    Config file: ./config.yaml
    Environment: MEDICHAT_* variables override config
                 (MEDICHAT_BASE_URL, MEDICHAT_TOKEN_FILE,
                  MEDICHAT_LOG_LEVEL, MEDICHAT_ARCHIVE_KEY)

KEYBINDINGS:
    Enter      Send message
    Ctrl+S     Session picker
    Ctrl+N     New chat
    Ctrl+C     Quit`)
}

func configPath() string {
	for i := 1; i < len(os.Args); i++ {
		if os.Args[i] == "--config" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(os.Args[i], "--config=") {
			return strings.TrimPrefix(os.Args[i], "--config=")
		}
	}
	return "./config.yaml"
}

func run() error {
	// 1. Config
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx := context.Background()
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(ctx)

	// 3. Credentials and backend client, wrapped breaker-then-limiter so a
	// throttled send queues before it counts against the circuit.
	tokens := backend.NewFileTokenSource(cfg.Backend.TokenFile, log)
	client := backend.NewClient(cfg.Backend, tokens, log)
	var be domain.ChatBackend = backend.NewBreakerBackend(client, cfg.Backend.Breaker, log)
	be = backend.NewRateLimitedBackend(be, cfg.Backend.RateLimit)

	// 4. Transcript archive and cache
	var archive usecase.TranscriptArchive
	if cfg.Archive.Enabled {
		sq, err := store.Open(cfg.Archive, log)
		if err != nil {
			return fmt.Errorf("archive: %w", err)
		}
		defer sq.Close()
		archive = sq
	}
	cache := usecase.NewSessionCache(archive, log)
	cache.Warm()

	// 5. Sequencer and registry
	seq := usecase.NewLoadSequencer(be, cache, log)
	registry := usecase.NewSessionRegistry(be, log)
	if cfg.Registry.RefreshSchedule != "" {
		if err := registry.StartAutoRefresh(cfg.Registry.RefreshSchedule); err != nil {
			return fmt.Errorf("registry refresh: %w", err)
		}
		defer registry.StopAutoRefresh()
	}

	// 6. Emergency lookup
	var emergency *usecase.EmergencyLocator
	if cfg.Emergency.Enabled {
		geo := locator.NewStaticGeoProvider(cfg.Emergency)
		dir := locator.NewHTTPDirectory(cfg.Emergency.FacilitiesURL, log)
		emergency = usecase.NewEmergencyLocator(geo, dir, cfg.Emergency.MaxResults, log)
	}

	// 7. Coordinator and TUI
	view := chat.NewView(cfg.UI.MaxMessages)
	coord := usecase.NewCoordinator(usecase.CoordinatorDeps{
		View:      view,
		Backend:   be,
		Cred:      tokens,
		Cache:     cache,
		Sequencer: seq,
		Registry:  registry,
		Emergency: emergency,
		Logger:    log,
	})

	model := chat.NewModel(chat.ModelDeps{
		Coord:    coord,
		Registry: registry,
		View:     view,
		Logger:   log,
		Markdown: cfg.UI.MarkdownRendering,
	})

	p := tea.NewProgram(model, tea.WithAltScreen())
	view.Attach(p)

	log.Info("medichat starting",
		"backend", cfg.Backend.BaseURL,
		"archive", cfg.Archive.Enabled,
		"emergency", cfg.Emergency.Enabled,
	)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}

	// Let in-flight resolutions stash into the cache before the archive
	// closes underneath them.
	coord.Wait()
	return nil
}
