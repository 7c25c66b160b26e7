// Package config provides configuration management for browser-stream.
package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"time"

	"github.com/mmattbtw/browser-stream/internal/rtmp"
)

var (
	// ErrURLRequired is returned when the page URL is not provided.
	ErrURLRequired = errors.New("page URL is required")
	// ErrUnsupportedScheme is returned when the page URL is not http or https.
	ErrUnsupportedScheme = errors.New("page URL must use http or https")
	// ErrInvalidURL is returned when the page URL cannot be parsed.
	ErrInvalidURL = errors.New("invalid page URL")
	// ErrOutOfRange is returned when a numeric flag is outside its valid range.
	ErrOutOfRange = errors.New("value out of range")
)

// Config holds the validated application configuration. It is built once at
// startup and never mutated afterwards.
type Config struct {
	URL          string
	Width        int
	Height       int
	FPS          int
	BitrateKbps  int
	KeyintSec    int
	X264Opts     string
	Retries      int
	RetryBackoff time.Duration
	StartupDelay time.Duration
	FrameTimeout time.Duration
	NoAudio      bool
	Verbose      bool

	// Destination is the resolved output target: an rtmp(s) URL or a file path.
	Destination string

	ChromiumPath string
	FFmpegPath   string
	MetricsAddr  string
}

// Flags mirrors the raw command-line surface before validation.
type Flags struct {
	URL            string
	Width          int
	Height         int
	FPS            int
	BitrateKbps    int
	KeyintSec      int
	X264Opts       string
	RTMPURL        string
	StreamKey      string
	Output         string
	Retries        int
	RetryBackoffMS int
	StartupDelayMS int
	FrameTimeoutMS int
	NoAudio        bool
	Verbose        bool
	ChromiumPath   string
	FFmpegPath     string
	MetricsAddr    string
}

// New creates a new configuration instance by parsing command-line flags.
func New() (*Config, error) {
	f := &Flags{}

	flag.StringVar(&f.URL, "url", "", "URL of the page to stream (required)")
	flag.IntVar(&f.Width, "width", 1920, "Viewport width in pixels")
	flag.IntVar(&f.Height, "height", 1080, "Viewport height in pixels")
	flag.IntVar(&f.FPS, "fps", 30, "Capture frame rate")
	flag.IntVar(&f.BitrateKbps, "bitrate-kbps", 4500, "Video bitrate in kbps")
	flag.IntVar(&f.KeyintSec, "keyint-sec", 1, "Keyframe interval in seconds")
	flag.StringVar(&f.X264Opts, "x264-opts", "bframes=0", "Extra x264 parameters")
	flag.StringVar(&f.RTMPURL, "rtmp-url", "", "RTMP base URL (used with -stream-key)")
	flag.StringVar(&f.StreamKey, "stream-key", "", "Stream key appended to -rtmp-url")
	flag.StringVar(&f.Output, "output", "", "Full output URL or file path (alternative to -rtmp-url/-stream-key)")
	flag.IntVar(&f.Retries, "retries", 5, "Pipeline restart attempts before giving up")
	flag.IntVar(&f.RetryBackoffMS, "retry-backoff-ms", 1000, "Wait between restart attempts in milliseconds")
	flag.IntVar(&f.StartupDelayMS, "startup-delay-ms", 2000, "Wait after page load before capturing in milliseconds")
	flag.IntVar(&f.FrameTimeoutMS, "frame-timeout-ms", 30000, "Max time without a captured frame before restarting")
	flag.BoolVar(&f.NoAudio, "no-audio", false, "Disable the silent audio track")
	flag.BoolVar(&f.Verbose, "verbose", false, "Enable debug logging")
	flag.StringVar(&f.ChromiumPath, "chromium-path", "", "Path to the Chromium executable (default: search PATH)")
	flag.StringVar(&f.FFmpegPath, "ffmpeg-path", "", "Path to the ffmpeg executable (default: search PATH)")
	flag.StringVar(&f.MetricsAddr, "metrics-addr", "", "Address for the Prometheus metrics listener (disabled when empty)")

	flag.Parse()

	return f.Build()
}

// Build validates the raw flags and resolves the stream destination.
func (f *Flags) Build() (*Config, error) {
	if f.URL == "" {
		return nil, ErrURLRequired
	}

	parsed, err := url.Parse(f.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidURL, f.URL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("%w: got %q", ErrUnsupportedScheme, parsed.Scheme)
	}

	if err := validateRange("width", f.Width, 16, 1<<15); err != nil {
		return nil, err
	}
	if err := validateRange("height", f.Height, 16, 1<<15); err != nil {
		return nil, err
	}
	if err := validateRange("fps", f.FPS, 1, 120); err != nil {
		return nil, err
	}
	if err := validateRange("bitrate-kbps", f.BitrateKbps, 100, 1<<30); err != nil {
		return nil, err
	}
	if err := validateRange("keyint-sec", f.KeyintSec, 1, 60); err != nil {
		return nil, err
	}
	if err := validateRange("frame-timeout-ms", f.FrameTimeoutMS, 1000, 1<<31-1); err != nil {
		return nil, err
	}
	if f.Retries < 0 {
		return nil, fmt.Errorf("%w: retries must not be negative, got %d", ErrOutOfRange, f.Retries)
	}
	if f.RetryBackoffMS < 0 {
		return nil, fmt.Errorf("%w: retry-backoff-ms must not be negative, got %d", ErrOutOfRange, f.RetryBackoffMS)
	}
	if f.StartupDelayMS < 0 {
		return nil, fmt.Errorf("%w: startup-delay-ms must not be negative, got %d", ErrOutOfRange, f.StartupDelayMS)
	}

	destination, err := rtmp.BuildDestination(f.Output, f.RTMPURL, f.StreamKey)
	if err != nil {
		return nil, err
	}

	return &Config{
		URL:          f.URL,
		Width:        f.Width,
		Height:       f.Height,
		FPS:          f.FPS,
		BitrateKbps:  f.BitrateKbps,
		KeyintSec:    f.KeyintSec,
		X264Opts:     f.X264Opts,
		Retries:      f.Retries,
		RetryBackoff: time.Duration(f.RetryBackoffMS) * time.Millisecond,
		StartupDelay: time.Duration(f.StartupDelayMS) * time.Millisecond,
		FrameTimeout: time.Duration(f.FrameTimeoutMS) * time.Millisecond,
		NoAudio:      f.NoAudio,
		Verbose:      f.Verbose,
		Destination:  destination,
		ChromiumPath: f.ChromiumPath,
		FFmpegPath:   f.FFmpegPath,
		MetricsAddr:  f.MetricsAddr,
	}, nil
}

func validateRange(field string, actual, min, max int) error {
	if actual < min || actual > max {
		return fmt.Errorf("%w: %s=%d, expected %d..%d", ErrOutOfRange, field, actual, min, max)
	}
	return nil
}
