package encoder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mmattbtw/browser-stream/internal/frame"
)

var (
	// ErrLaunchFailed is returned when ffmpeg could not be started.
	ErrLaunchFailed = errors.New("failed to launch ffmpeg")
	// ErrPipeBroken is returned when a write to ffmpeg fails or its input
	// has closed; the caller decides whether to restart the pipeline.
	ErrPipeBroken = errors.New("encoder pipe broken")
	// ErrInvalidFrame is returned when a frame does not match the configured
	// resolution and pixel layout.
	ErrInvalidFrame = errors.New("invalid frame for encoder")
)

// stopTimeout bounds how long Stop waits for ffmpeg to flush and exit after
// its input pipes close before killing it.
const stopTimeout = 5 * time.Second

// FFmpeg runs one ffmpeg subprocess per pipeline attempt. Its input pipes
// are written by a single writer (the pipeline cadence loop); there is no
// internal queueing.
type FFmpeg struct {
	settings Settings
	verbose  bool
	logger   *logrus.Logger

	cmd     *exec.Cmd
	stdin   io.WriteCloser
	audioW  *os.File
	silence []byte

	exited  chan struct{}
	exitErr error

	mu      sync.Mutex
	started bool
	closed  bool
	stopErr error
}

// NewFFmpeg creates an encoder sink for one pipeline attempt.
func NewFFmpeg(settings Settings, verbose bool, logger *logrus.Logger) *FFmpeg {
	return &FFmpeg{
		settings: settings,
		verbose:  verbose,
		logger:   logger,
		exited:   make(chan struct{}),
	}
}

// Start launches ffmpeg and opens its input pipes: stdin for raw video and,
// when audio is enabled, an extra pipe for the silence track.
func (e *FFmpeg) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return fmt.Errorf("%w: already started", ErrLaunchFailed)
	}

	loglevel := "warning"
	if e.verbose {
		loglevel = "info"
	}
	args := BuildArgsWithLoglevel(e.settings, loglevel)

	e.logger.WithFields(logrus.Fields{
		"ffmpeg":      e.settings.FFmpegPath,
		"destination": e.settings.Destination,
	}).Info("Starting ffmpeg")
	e.logger.WithField("args", args).Debug("ffmpeg command line")

	e.cmd = exec.Command(e.settings.FFmpegPath, args...) // #nosec G204 - args are internally constructed

	stdin, err := e.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%w: stdin pipe: %v", ErrLaunchFailed, err)
	}
	e.stdin = stdin

	stderr, err := e.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("%w: stderr pipe: %v", ErrLaunchFailed, err)
	}

	var audioR *os.File
	if e.settings.IncludeAudio {
		audioR, e.audioW, err = os.Pipe()
		if err != nil {
			return fmt.Errorf("%w: audio pipe: %v", ErrLaunchFailed, err)
		}
		e.cmd.ExtraFiles = []*os.File{audioR}
		e.silence = make([]byte, AudioSampleRate*AudioBytesPerSample/10)
	}

	if err := e.cmd.Start(); err != nil {
		if audioR != nil {
			_ = audioR.Close()
			_ = e.audioW.Close()
		}
		return fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}

	// The child holds its own copy of the read end.
	if audioR != nil {
		_ = audioR.Close()
	}

	go e.logStderr(stderr)

	go func() {
		err := e.cmd.Wait()
		e.exitErr = err
		close(e.exited)
	}()

	e.started = true
	return nil
}

// Exited is closed once the ffmpeg process has terminated.
func (e *FFmpeg) Exited() <-chan struct{} {
	return e.exited
}

// WriteFrame writes one raw frame's pixel bytes to ffmpeg's stdin. A short
// write, pipe closure, or early process exit is reported as ErrPipeBroken.
func (e *FFmpeg) WriteFrame(f *frame.Frame) error {
	if f.Width != e.settings.Width || f.Height != e.settings.Height || len(f.Data) != f.Size() {
		return fmt.Errorf("%w: got %dx%d with %d bytes, expected %dx%d",
			ErrInvalidFrame, f.Width, f.Height, len(f.Data), e.settings.Width, e.settings.Height)
	}

	select {
	case <-e.exited:
		return fmt.Errorf("%w: ffmpeg exited early: %s", ErrPipeBroken, exitStatus(e.exitErr))
	default:
	}

	n, err := e.stdin.Write(f.Data)
	if err != nil {
		return fmt.Errorf("%w: writing frame: %v", ErrPipeBroken, err)
	}
	if n != len(f.Data) {
		return fmt.Errorf("%w: short frame write (%d of %d bytes)", ErrPipeBroken, n, len(f.Data))
	}

	return nil
}

// WriteAudio writes the given number of silence samples to the audio pipe.
// It is a no-op when audio is disabled.
func (e *FFmpeg) WriteAudio(samples int) error {
	if e.audioW == nil || samples <= 0 {
		return nil
	}

	remaining := samples * AudioBytesPerSample
	for remaining > 0 {
		chunk := remaining
		if chunk > len(e.silence) {
			chunk = len(e.silence)
		}
		n, err := e.audioW.Write(e.silence[:chunk])
		if err != nil {
			return fmt.Errorf("%w: writing audio: %v", ErrPipeBroken, err)
		}
		remaining -= n
	}

	return nil
}

// Stop closes the input pipes, waits a bounded time for ffmpeg to flush and
// exit, killing it if necessary, and returns the exit status. Idempotent;
// repeated calls return the first result. A non-zero exit is reported to the
// caller, not treated as fatal here.
func (e *FFmpeg) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		return nil
	}
	if e.closed {
		return e.stopErr
	}
	e.closed = true

	if e.stdin != nil {
		_ = e.stdin.Close()
	}
	if e.audioW != nil {
		_ = e.audioW.Close()
	}

	select {
	case <-e.exited:
	case <-time.After(stopTimeout):
		e.logger.Warn("ffmpeg did not exit after input close, killing it")
		if e.cmd.Process != nil {
			_ = e.cmd.Process.Kill()
		}
		<-e.exited
	}

	e.stopErr = e.exitErr
	e.logger.WithField("status", exitStatus(e.exitErr)).Debug("ffmpeg exited")
	return e.stopErr
}

// logStderr re-logs ffmpeg's stderr through the application logger: info in
// verbose mode, debug otherwise.
func (e *FFmpeg) logStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()
		if e.verbose {
			e.logger.WithField("ffmpeg", line).Info("ffmpeg output")
		} else {
			e.logger.WithField("ffmpeg", line).Debug("ffmpeg output")
		}
	}
}

func exitStatus(err error) string {
	if err == nil {
		return "success"
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.String()
	}
	return err.Error()
}
