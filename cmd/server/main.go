package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/capture"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/config"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/logging"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/metrics"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/server"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	host := flag.String("host", "", "Override listen host")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *host != "" {
		cfg.Server.Host = *host
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	m := metrics.NewServer()
	open := capture.NewOpener(capture.SourceOptions{
		FFmpegPath: cfg.Capture.FFmpegPath,
		FPS:        cfg.Capture.TargetFPS,
	})
	hub := capture.NewHub(cfg.Capture, open, logger.Named("capture"), m)
	srv := server.New(cfg.Server, hub, logger.Named("server"), m)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting frame server",
		zap.String("addr", cfg.Addr()),
		zap.Float64("target_fps", cfg.Capture.TargetFPS),
		zap.Int("max_connections", cfg.Server.MaxConnections),
		zap.Bool("auth", cfg.Server.AuthToken != ""),
	)
	if err := srv.Run(ctx, cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shut down")
}
