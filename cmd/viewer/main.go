package main

import (
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/auth"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/config"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/frame"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/logging"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/metrics"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/session"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/streams"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/transport"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/tui/app"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	endpoint := flag.String("endpoint", "", "Override frame server endpoint (ws://host:port)")
	token := flag.String("token", "", "Override bearer token for the frame server")
	stateDir := flag.String("state-dir", "", "Override directory holding streams.json")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *endpoint != "" {
		cfg.Client.Endpoint = *endpoint
	}
	if *token != "" {
		cfg.Client.Token = *token
	}
	if *stateDir != "" {
		cfg.Client.StateDir = *stateDir
	}

	store := streams.NewStore(cfg.Client.StateDir)
	// The terminal belongs to the UI, so logs always go to a file.
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(filepath.Dir(store.Path()), "viewer.log")
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, store, logger); err != nil {
		logger.Error("viewer exited", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, store *streams.Store, logger *zap.Logger) error {
	list, err := streams.Open(store)
	if err != nil {
		return fmt.Errorf("loading streams from %s: %w", store.Path(), err)
	}

	vm := metrics.NewViewer()
	if cfg.Metrics.Listen != "" {
		go func() {
			logger.Info("metrics listening", zap.String("addr", cfg.Metrics.Listen))
			err := http.ListenAndServe(cfg.Metrics.Listen, metrics.Handler(vm.Registry))
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics listener", zap.Error(err))
			}
		}()
	}

	cc := cfg.Client
	notifier := app.NewNotifier()
	dialer := transport.NewWSDialer(cc.Endpoint, cc.Token, cc.HandshakeTimeout, cc.ReadTimeout)
	mgr := session.NewManager(dialer, frame.JPEGDecoder{}, notifier, session.Options{
		ReconnectDelay: cc.ReconnectDelay,
		Logger:         logger.Named("session"),
		Metrics:        vm,
	})
	defer mgr.Close()

	m := app.New(mgr, list, notifier, app.Options{
		Endpoint:   cc.Endpoint,
		MaxColumns: cc.MaxColumns,
		Gate:       auth.NewGate(cfg.Auth.Username, cfg.Auth.Password),
		Logger:     logger.Named("ui"),
	})
	defer m.Close()

	logger.Info("viewer starting",
		zap.String("endpoint", cc.Endpoint),
		zap.Int("streams", list.Len()),
		zap.String("state", store.Path()),
	)
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
