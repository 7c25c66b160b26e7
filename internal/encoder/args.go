// Package encoder owns the ffmpeg subprocess that turns raw frames and
// synthesized silence into the delivered stream.
package encoder

import (
	"fmt"
	"strconv"
)

// Audio constants for the synthesized silence track. The silence input is
// signed 16-bit little-endian stereo, so one sample occupies four bytes.
const (
	AudioSampleRate     = 48000
	AudioChannels       = 2
	AudioBytesPerSample = 4
)

// audioPipe is the child file descriptor carrying the silence track. Video
// arrives on stdin; the first ExtraFiles entry becomes fd 3 in the child.
const audioPipe = "pipe:3"

// Settings describes one encoder launch, derived from the validated config.
type Settings struct {
	Width        int
	Height       int
	FPS          int
	BitrateKbps  int
	KeyintSec    int
	X264Opts     string
	Destination  string
	IncludeAudio bool
	FFmpegPath   string
}

// BuildArgs constructs the full ffmpeg argument list for the settings.
func BuildArgs(settings Settings) []string {
	return BuildArgsWithLoglevel(settings, "warning")
}

// BuildArgsWithLoglevel constructs the ffmpeg argument list with an explicit
// stderr log level (info in verbose mode).
func BuildArgsWithLoglevel(settings Settings, loglevel string) []string {
	keyint := settings.FPS * settings.KeyintSec
	if keyint < 1 {
		keyint = 1
	}
	bufsize := settings.BitrateKbps * 2

	args := []string{
		"-hide_banner",
		"-loglevel", loglevel,
		"-stats_period", "5",
		"-stats",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-s", fmt.Sprintf("%dx%d", settings.Width, settings.Height),
		"-r", strconv.Itoa(settings.FPS),
		"-i", "-",
	}

	if settings.IncludeAudio {
		args = append(args,
			"-f", "s16le",
			"-ar", strconv.Itoa(AudioSampleRate),
			"-ac", strconv.Itoa(AudioChannels),
			"-i", audioPipe,
		)
	}

	args = append(args,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-pix_fmt", "yuv420p",
		"-b:v", fmt.Sprintf("%dk", settings.BitrateKbps),
		"-maxrate", fmt.Sprintf("%dk", settings.BitrateKbps),
		"-bufsize", fmt.Sprintf("%dk", bufsize),
		"-g", strconv.Itoa(keyint),
		"-keyint_min", strconv.Itoa(keyint),
		"-x264-params", settings.X264Opts,
	)

	if settings.IncludeAudio {
		args = append(args,
			"-c:a", "aac",
			"-b:a", "128k",
			"-ar", strconv.Itoa(AudioSampleRate),
			"-ac", strconv.Itoa(AudioChannels),
		)
	} else {
		args = append(args, "-an")
	}

	args = append(args, "-f", "flv", settings.Destination)

	return args
}
