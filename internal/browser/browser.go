// Package browser drives one headless Chromium instance and produces frames
// of the rendered page via the DevTools screencast.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"

	"github.com/mmattbtw/browser-stream/internal/frame"
)

var (
	// ErrLaunchFailed is returned when Chromium could not be started or the
	// page could not be loaded.
	ErrLaunchFailed = errors.New("failed to launch chromium")
	// ErrCaptureTimeout is returned when no frame became available within
	// the capture timeout. The session stays usable; the caller decides
	// whether this is a missed frame or part of a stall.
	ErrCaptureTimeout = errors.New("timed out waiting for a screencast frame")
	// ErrSessionClosed is returned when the browser session has ended.
	ErrSessionClosed = errors.New("browser session closed")
	// ErrReloadFailed is returned when an in-place page reload failed.
	ErrReloadFailed = errors.New("page reload failed")
)

// captureTimeout bounds one CaptureFrame call. It is deliberately much
// shorter than the pipeline frame timeout so that a stalled page surfaces as
// repeated missed frames the watchdog can accumulate.
const captureTimeout = time.Second

// screencastQuality is the JPEG quality requested from DevTools.
const screencastQuality = 80

// Config describes one browser launch.
type Config struct {
	URL          string
	Width        int
	Height       int
	StartupDelay time.Duration
	ChromiumPath string
}

// Source owns exactly one Chromium process at a time and exposes its
// rendered output as frames. Screencast events are decoded off the caller's
// loop into a single latest-frame slot: Chromium only emits a frame when the
// page changes, so redelivering the newest frame is the correct behavior for
// static pages.
type Source struct {
	cfg    Config
	logger *logrus.Logger

	allocCancel context.CancelFunc
	tabCancel   context.CancelFunc
	tabCtx      context.Context

	payloads  chan []byte
	firstSeen chan struct{}
	firstOnce sync.Once

	mu      sync.Mutex
	latest  *frame.Frame
	stopped bool
}

// NewSource creates a frame source; Start launches the browser.
func NewSource(cfg Config, logger *logrus.Logger) *Source {
	return &Source{
		cfg:       cfg,
		logger:    logger,
		payloads:  make(chan []byte, 1),
		firstSeen: make(chan struct{}),
	}
}

// Start launches Chromium, navigates to the configured page, waits the
// startup delay for scripts and layout to settle, and begins the screencast.
func (s *Source) Start(ctx context.Context) error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(s.cfg.ChromiumPath),
		chromedp.WindowSize(s.cfg.Width, s.cfg.Height),
		chromedp.Flag("headless", "new"),
		chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-backgrounding-occluded-windows", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
	)
	if noSandboxFromEnv() {
		opts = append(opts, chromedp.NoSandbox)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	s.allocCancel = allocCancel
	s.tabCancel = tabCancel
	s.tabCtx = tabCtx

	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if ev, ok := ev.(*page.EventScreencastFrame); ok {
			s.onScreencastFrame(ev)
		}
	})

	go s.decodeLoop()

	s.logger.WithFields(logrus.Fields{
		"chromium": s.cfg.ChromiumPath,
		"url":      s.cfg.URL,
	}).Info("Starting chromium")

	if err := chromedp.Run(tabCtx,
		chromedp.EmulateViewport(int64(s.cfg.Width), int64(s.cfg.Height)),
		chromedp.Navigate(s.cfg.URL),
	); err != nil {
		return fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}

	// Navigate waits for the load event; delay further so dynamic JS/CSS
	// can settle before the first frame is considered valid.
	select {
	case <-time.After(s.cfg.StartupDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	start := page.StartScreencast().
		WithFormat(page.ScreencastFormatJpeg).
		WithQuality(screencastQuality).
		WithMaxWidth(int64(s.cfg.Width)).
		WithMaxHeight(int64(s.cfg.Height)).
		WithEveryNthFrame(1)
	if err := chromedp.Run(tabCtx, start); err != nil {
		return fmt.Errorf("%w: starting screencast: %v", ErrLaunchFailed, err)
	}

	return nil
}

// onScreencastFrame acks every frame (Chromium stops sending without acks)
// and hands the payload to the decode loop, newest wins.
func (s *Source) onScreencastFrame(ev *page.EventScreencastFrame) {
	sessionID := ev.SessionID
	go func() {
		ack := page.ScreencastFrameAck(sessionID)
		if err := ack.Do(cdp.WithExecutor(s.tabCtx, chromedp.FromContext(s.tabCtx).Target)); err != nil {
			s.logger.WithError(err).Debug("Failed to ack screencast frame")
		}
	}()

	select {
	case s.payloads <- []byte(ev.Data):
	default:
		// A payload is already pending; replace it with the newer one.
		select {
		case <-s.payloads:
		default:
		}
		select {
		case s.payloads <- []byte(ev.Data):
		default:
		}
	}
}

// decodeLoop turns screencast payloads into RGB frames in the latest slot.
// Decode failures are logged and skipped; they do not end the session.
func (s *Source) decodeLoop() {
	for {
		select {
		case <-s.tabCtx.Done():
			return
		case payload := <-s.payloads:
			f, err := frame.Decode(payload, s.cfg.Width, s.cfg.Height)
			if err != nil {
				s.logger.WithError(err).Warn("Dropping undecodable screencast frame")
				continue
			}

			s.mu.Lock()
			s.latest = f
			s.mu.Unlock()

			s.firstOnce.Do(func() {
				s.logger.Info("Received first screencast frame")
				close(s.firstSeen)
			})
		}
	}
}

// CaptureFrame returns the most recent rendered frame. Once the first frame
// has arrived it never blocks; before that it waits up to the capture
// timeout. A timeout does not disturb the CDP session.
func (s *Source) CaptureFrame(ctx context.Context) (*frame.Frame, error) {
	if f := s.latestFrame(); f != nil {
		return f, nil
	}

	timer := time.NewTimer(captureTimeout)
	defer timer.Stop()

	select {
	case <-s.firstSeen:
		return s.latestFrame(), nil
	case <-timer.C:
		return nil, ErrCaptureTimeout
	case <-s.tabCtx.Done():
		return nil, ErrSessionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Source) latestFrame() *frame.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Reload re-navigates the page in place on the existing Chromium process.
// Cadence bookkeeping is owned by the caller and is not touched here.
func (s *Source) Reload(ctx context.Context) error {
	reloadCtx, cancel := context.WithTimeout(s.tabCtx, 30*time.Second)
	defer cancel()

	if err := chromedp.Run(reloadCtx, chromedp.Reload()); err != nil {
		return fmt.Errorf("%w: %v", ErrReloadFailed, err)
	}
	return nil
}

// Exited is done once the browser session has ended, whether by process
// death or by Stop.
func (s *Source) Exited() <-chan struct{} {
	return s.tabCtx.Done()
}

// Stop releases the browser resources. Idempotent; safe to call on an
// already-stopped source.
func (s *Source) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	if s.tabCtx == nil {
		return
	}

	// Best effort: stop the screencast so Chromium quiesces before close.
	stopCtx, cancel := context.WithTimeout(s.tabCtx, 2*time.Second)
	if err := chromedp.Run(stopCtx, page.StopScreencast()); err != nil {
		s.logger.WithError(err).Debug("Failed to stop screencast cleanly")
	}
	cancel()

	if err := chromedp.Cancel(s.tabCtx); err != nil {
		s.logger.WithError(err).Debug("Failed to close browser cleanly")
	}
	s.tabCancel()
	s.allocCancel()
}

// noSandboxFromEnv reports whether BROWSER_STREAM_NO_SANDBOX requests
// disabling the Chromium sandbox (required in most containers).
func noSandboxFromEnv() bool {
	return parseTruthy(os.Getenv("BROWSER_STREAM_NO_SANDBOX"))
}

func parseTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
