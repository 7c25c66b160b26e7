// Package main implements the browser-stream CLI: it renders a live web
// page in headless Chromium and streams it to an RTMP endpoint or file.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/mmattbtw/browser-stream/config"
	"github.com/mmattbtw/browser-stream/internal/binpath"
	"github.com/mmattbtw/browser-stream/internal/browser"
	"github.com/mmattbtw/browser-stream/internal/control"
	"github.com/mmattbtw/browser-stream/internal/encoder"
	"github.com/mmattbtw/browser-stream/internal/metrics"
	"github.com/mmattbtw/browser-stream/internal/pipeline"
	"github.com/mmattbtw/browser-stream/internal/rtmp"
)

func main() {
	// Configure logrus
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	cfg, err := config.New()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	if cfg.Verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logger := logrus.StandardLogger()

	chromiumPath, err := binpath.Chromium(cfg.ChromiumPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to locate chromium")
	}
	ffmpegPath, err := binpath.FFmpeg(cfg.FFmpegPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to locate ffmpeg")
	}

	delivery := "file"
	if rtmp.IsRTMP(cfg.Destination) {
		delivery = "rtmp"
	}
	logger.WithFields(logrus.Fields{
		"url":         cfg.URL,
		"destination": cfg.Destination,
		"delivery":    delivery,
		"resolution":  logrus.Fields{"width": cfg.Width, "height": cfg.Height},
		"fps":         cfg.FPS,
	}).Info("Starting browser stream")

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		m.Serve(cfg.MetricsAddr, logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutting down...")
		cancel()
	}()

	newSource := func() pipeline.FrameSource {
		return browser.NewSource(browser.Config{
			URL:          cfg.URL,
			Width:        cfg.Width,
			Height:       cfg.Height,
			StartupDelay: cfg.StartupDelay,
			ChromiumPath: chromiumPath,
		}, logger)
	}
	newSink := func() pipeline.EncoderSink {
		return encoder.NewFFmpeg(encoder.Settings{
			Width:        cfg.Width,
			Height:       cfg.Height,
			FPS:          cfg.FPS,
			BitrateKbps:  cfg.BitrateKbps,
			KeyintSec:    cfg.KeyintSec,
			X264Opts:     cfg.X264Opts,
			Destination:  cfg.Destination,
			IncludeAudio: !cfg.NoAudio,
			FFmpegPath:   ffmpegPath,
		}, cfg.Verbose, logger)
	}

	orchestrator := pipeline.New(pipeline.Options{
		FPS:          cfg.FPS,
		FrameTimeout: cfg.FrameTimeout,
		Retry: pipeline.RetryPolicy{
			MaxRetries: cfg.Retries,
			Backoff:    cfg.RetryBackoff,
		},
		AudioEnabled: !cfg.NoAudio,
	}, newSource, newSink, control.Listen(os.Stdin), m, logger)

	if err := orchestrator.Run(ctx); err != nil {
		logger.WithError(err).Fatal("Stream failed")
	}

	logger.Info("Stream stopped")
}
