// Package pipeline supervises the capture-encode-deliver loop: it owns both
// subprocess lifecycles, the frame cadence, the retry state, and the
// operator control surface.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mmattbtw/browser-stream/internal/control"
	"github.com/mmattbtw/browser-stream/internal/encoder"
	"github.com/mmattbtw/browser-stream/internal/frame"
	"github.com/mmattbtw/browser-stream/internal/metrics"
)

var (
	// ErrFrameStall is returned when no frame was captured for at least the
	// configured frame timeout while streaming.
	ErrFrameStall = errors.New("no frames captured within the frame timeout")
	// ErrProcessExited is returned when a supervised subprocess died while
	// streaming.
	ErrProcessExited = errors.New("subprocess exited while streaming")
	// ErrRetriesExhausted is the only pipeline error that surfaces as fatal:
	// all restart attempts have been used up.
	ErrRetriesExhausted = errors.New("stream failed after exhausting retries")
)

// FrameSource produces one rendered frame per capture request. It owns
// exactly one renderer process at a time.
type FrameSource interface {
	Start(ctx context.Context) error
	CaptureFrame(ctx context.Context) (*frame.Frame, error)
	Reload(ctx context.Context) error
	Stop()
	Exited() <-chan struct{}
}

// EncoderSink accepts raw frames and silence and delivers the encoded
// stream. It owns exactly one encoder process per pipeline attempt.
type EncoderSink interface {
	Start() error
	WriteFrame(f *frame.Frame) error
	WriteAudio(samples int) error
	Stop() error
	Exited() <-chan struct{}
}

// Options configures the orchestrator.
type Options struct {
	FPS          int
	FrameTimeout time.Duration
	Retry        RetryPolicy
	AudioEnabled bool
}

// Orchestrator runs the pipeline state machine. All state transitions happen
// inside Run's loop; concurrent activities (control input, the stall
// watchdog, subprocess exit monitors) feed it exclusively through channels,
// so no lock guards the state.
type Orchestrator struct {
	opts      Options
	newSource func() FrameSource
	newSink   func() EncoderSink
	commands  <-chan control.Command
	metrics   *metrics.Metrics
	logger    *logrus.Logger

	state State
}

// New creates an orchestrator. newSource and newSink are invoked once per
// attempt so every restart gets fresh subprocess handles.
func New(opts Options, newSource func() FrameSource, newSink func() EncoderSink, commands <-chan control.Command, m *metrics.Metrics, logger *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		opts:      opts,
		newSource: newSource,
		newSink:   newSink,
		commands:  commands,
		metrics:   m,
		logger:    logger,
	}
}

// State returns the orchestrator's current phase. Only meaningful from the
// goroutine running Run, or after Run has returned.
func (o *Orchestrator) State() State {
	return o.state
}

// Run executes the pipeline until the context is cancelled (clean shutdown,
// returns nil) or retries are exhausted (returns ErrRetriesExhausted wrapping
// the last attempt error). Every other failure is absorbed by the retry
// transition.
func (o *Orchestrator) Run(ctx context.Context) error {
	failures := 0

	for {
		attempt := failures + 1
		o.logger.WithField("attempt", attempt).Info("Starting stream attempt")

		err := o.runAttempt(ctx)
		if ctx.Err() != nil {
			o.logger.Info("Shutdown requested, exiting")
			return nil
		}

		failures++
		o.setState(StateRetrying)
		o.metrics.RetryAttempts.Inc()

		if !o.opts.Retry.ShouldRetry(failures) {
			o.setState(StateFailed)
			return fmt.Errorf("%w: %d attempt(s), last error: %w", ErrRetriesExhausted, attempt, err)
		}

		o.logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"backoff": o.opts.Retry.Backoff,
		}).WithError(err).Warn("Stream attempt failed, retrying")

		select {
		case <-time.After(o.opts.Retry.Backoff):
		case <-ctx.Done():
			o.logger.Info("Shutdown requested during retry backoff, exiting")
			return nil
		}
	}
}

// runAttempt performs one full pipeline attempt: launch the frame source,
// then the encoder (which must be ready to accept bytes before frames are
// produced), then stream. Both subprocesses are torn down before returning;
// their Stop methods are idempotent.
func (o *Orchestrator) runAttempt(ctx context.Context) error {
	o.setState(StateStarting)

	source := o.newSource()
	defer source.Stop()
	if err := source.Start(ctx); err != nil {
		return err
	}

	sink := o.newSink()
	defer func() {
		if err := sink.Stop(); err != nil {
			o.logger.WithError(err).Debug("Encoder exit status")
		}
	}()
	if err := sink.Start(); err != nil {
		return err
	}

	return o.stream(ctx, source, sink)
}

// stream drives the cadence loop. The select below is the single inbound
// event queue: cadence ticks, operator commands, the stall watchdog, and
// subprocess exits all arrive here and are handled serially.
func (o *Orchestrator) stream(ctx context.Context, source FrameSource, sink EncoderSink) error {
	o.setState(StateStreaming)

	period := time.Second / time.Duration(o.opts.FPS)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	stall := time.NewTimer(o.opts.FrameTimeout)
	defer stall.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	audioStart := time.Now()
	var samplesWritten int64
	var captured, encoded, missed uint64

	o.logger.Info("Runtime controls: type `r` then Enter to refresh the page")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-source.Exited():
			return fmt.Errorf("%w: renderer", ErrProcessExited)

		case <-sink.Exited():
			return fmt.Errorf("%w: encoder", ErrProcessExited)

		case <-stall.C:
			return fmt.Errorf("%w: %s", ErrFrameStall, o.opts.FrameTimeout)

		case cmd := <-o.commands:
			if err := o.handleCommand(ctx, cmd, source); err != nil {
				return err
			}

		case <-statsTicker.C:
			o.logger.WithFields(logrus.Fields{
				"captured": captured,
				"encoded":  encoded,
				"missed":   missed,
			}).Debug("Streaming stats")

		case <-ticker.C:
			f, err := source.CaptureFrame(ctx)
			if err != nil {
				// A single slow or failed capture is a missed frame;
				// only the stall watchdog escalates it.
				missed++
				o.metrics.FramesMissed.Inc()
				o.logger.WithError(err).Debug("Missed frame")
			} else {
				captured++
				o.metrics.FramesCaptured.Inc()

				if err := sink.WriteFrame(f); err != nil {
					return err
				}
				encoded++
				o.metrics.FramesEncoded.Inc()

				resetTimer(stall, o.opts.FrameTimeout)
			}

			if o.opts.AudioEnabled {
				wrote, err := o.writeDueAudio(sink, audioStart, samplesWritten)
				if err != nil {
					return err
				}
				samplesWritten += wrote
			}
		}
	}
}

// handleCommand applies one operator command. Commands queued while a reload
// was in flight are discarded afterwards, so a burst of refreshes results in
// exactly one reload.
func (o *Orchestrator) handleCommand(ctx context.Context, cmd control.Command, source FrameSource) error {
	switch cmd {
	case control.Refresh:
		o.setState(StateReloading)
		if err := source.Reload(ctx); err != nil {
			return err
		}
		o.metrics.Reloads.Inc()
		o.logger.Info("Manual refresh applied")
		o.drainCommands()
		o.setState(StateStreaming)

	case control.Help:
		o.logger.Info("Runtime controls: `r`/`refresh` reloads the page, `h`/`help` prints this message")

	case control.Unknown:
	}

	return nil
}

// writeDueAudio keeps the silence clock fed: the number of samples owed is
// proportional to elapsed wall time, independent of how many video frames
// made it through. The catch-up after a pause is capped at one second of
// audio per tick.
func (o *Orchestrator) writeDueAudio(sink EncoderSink, audioStart time.Time, samplesWritten int64) (int64, error) {
	due := int64(time.Since(audioStart).Seconds()*encoder.AudioSampleRate) - samplesWritten
	if due <= 0 {
		return 0, nil
	}
	if due > encoder.AudioSampleRate {
		due = encoder.AudioSampleRate
	}

	if err := sink.WriteAudio(int(due)); err != nil {
		return 0, err
	}
	o.metrics.AudioSamples.Add(float64(due))
	return due, nil
}

// drainCommands discards commands that queued up behind a completed reload.
func (o *Orchestrator) drainCommands() {
	for {
		select {
		case cmd := <-o.commands:
			o.logger.WithField("command", cmd).Debug("Discarding command received during reload")
		default:
			return
		}
	}
}

func (o *Orchestrator) setState(s State) {
	if o.state == s {
		return
	}
	o.logger.WithFields(logrus.Fields{
		"from": o.state,
		"to":   s,
	}).Debug("Pipeline state transition")
	o.state = s
	o.metrics.PipelineState.Set(float64(s))
}

// resetTimer restarts a timer whose channel is owned by the stream loop.
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
