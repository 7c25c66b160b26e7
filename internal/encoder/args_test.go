package encoder

import (
	"testing"
)

func testSettings() Settings {
	return Settings{
		Width:        1920,
		Height:       1080,
		FPS:          30,
		BitrateKbps:  4500,
		KeyintSec:    1,
		X264Opts:     "bframes=0",
		Destination:  "rtmp://live.example.com/app/key",
		IncludeAudio: true,
		FFmpegPath:   "/usr/bin/ffmpeg",
	}
}

func argValue(t *testing.T, args []string, flag string) string {
	t.Helper()
	for i, a := range args {
		if a == flag {
			if i+1 >= len(args) {
				t.Fatalf("Flag %s has no value", flag)
			}
			return args[i+1]
		}
	}
	t.Fatalf("Flag %s not found in %v", flag, args)
	return ""
}

func hasArg(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}

func TestBuildArgsDerivesKeyintFromFPS(t *testing.T) {
	s := testSettings()
	s.Width = 1280
	s.Height = 720
	s.FPS = 30
	s.KeyintSec = 2

	args := BuildArgs(s)

	if got := argValue(t, args, "-g"); got != "60" {
		t.Errorf("Expected -g 60, got %s", got)
	}
	if got := argValue(t, args, "-keyint_min"); got != "60" {
		t.Errorf("Expected -keyint_min 60, got %s", got)
	}
}

func TestBuildArgsCBRFlags(t *testing.T) {
	s := testSettings()
	s.FPS = 60

	args := BuildArgs(s)

	if got := argValue(t, args, "-b:v"); got != "4500k" {
		t.Errorf("Expected -b:v 4500k, got %s", got)
	}
	if got := argValue(t, args, "-maxrate"); got != "4500k" {
		t.Errorf("Expected -maxrate 4500k, got %s", got)
	}
	if got := argValue(t, args, "-bufsize"); got != "9000k" {
		t.Errorf("Expected -bufsize 9000k, got %s", got)
	}
}

func TestBuildArgsVideoInput(t *testing.T) {
	args := BuildArgs(testSettings())

	if got := argValue(t, args, "-s"); got != "1920x1080" {
		t.Errorf("Expected -s 1920x1080, got %s", got)
	}
	if got := argValue(t, args, "-r"); got != "30" {
		t.Errorf("Expected -r 30, got %s", got)
	}
	if !hasArg(args, "rawvideo") {
		t.Error("Expected rawvideo input format")
	}
	if !hasArg(args, "rgb24") {
		t.Error("Expected rgb24 pixel format for the raw input")
	}
}

func TestBuildArgsX264OptsAndDestinationLast(t *testing.T) {
	s := testSettings()
	s.X264Opts = "bframes=0:scenecut=0"

	args := BuildArgs(s)

	if got := argValue(t, args, "-x264-params"); got != "bframes=0:scenecut=0" {
		t.Errorf("Expected x264 params passed through, got %s", got)
	}
	if args[len(args)-1] != s.Destination {
		t.Errorf("Expected destination as final argument, got %s", args[len(args)-1])
	}
	if args[len(args)-3] != "-f" || args[len(args)-2] != "flv" {
		t.Errorf("Expected -f flv before the destination, got %v", args[len(args)-3:])
	}
}

func TestBuildArgsAudioEnabled(t *testing.T) {
	args := BuildArgs(testSettings())

	if !hasArg(args, "s16le") {
		t.Error("Expected s16le silence input when audio is enabled")
	}
	if !hasArg(args, audioPipe) {
		t.Errorf("Expected silence input on %s", audioPipe)
	}
	if got := argValue(t, args, "-c:a"); got != "aac" {
		t.Errorf("Expected aac audio codec, got %s", got)
	}
	if hasArg(args, "-an") {
		t.Error("Did not expect -an when audio is enabled")
	}
}

func TestBuildArgsAudioDisabled(t *testing.T) {
	s := testSettings()
	s.IncludeAudio = false

	args := BuildArgs(s)

	if !hasArg(args, "-an") {
		t.Error("Expected -an when audio is disabled")
	}
	if hasArg(args, "s16le") {
		t.Error("Did not expect a silence input when audio is disabled")
	}
	if hasArg(args, "aac") {
		t.Error("Did not expect an audio codec when audio is disabled")
	}
}

func TestBuildArgsLoglevel(t *testing.T) {
	if got := argValue(t, BuildArgs(testSettings()), "-loglevel"); got != "warning" {
		t.Errorf("Expected default loglevel warning, got %s", got)
	}
	if got := argValue(t, BuildArgsWithLoglevel(testSettings(), "info"), "-loglevel"); got != "info" {
		t.Errorf("Expected loglevel info, got %s", got)
	}
}
