// Package binpath locates the external renderer and encoder executables.
package binpath

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// ErrNotFound is returned when no usable executable could be located.
var ErrNotFound = errors.New("executable not found")

// chromiumCandidates lists the executable names probed on PATH when no
// explicit override is given, most specific first.
var chromiumCandidates = []string{
	"headless_shell",
	"chromium",
	"chromium-browser",
	"google-chrome",
	"google-chrome-stable",
	"chrome",
}

// Chromium resolves the Chromium executable: the override path when set,
// otherwise the first known candidate found on PATH.
func Chromium(override string) (string, error) {
	return resolve(override, chromiumCandidates)
}

// FFmpeg resolves the ffmpeg executable: the override path when set,
// otherwise ffmpeg from PATH.
func FFmpeg(override string) (string, error) {
	return resolve(override, []string{"ffmpeg"})
}

func resolve(override string, candidates []string) (string, error) {
	if override != "" {
		info, err := os.Stat(override)
		if err != nil || info.IsDir() {
			return "", fmt.Errorf("%w: %s is not a usable executable", ErrNotFound, override)
		}
		return override, nil
	}

	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("%w: none of %v on PATH (use an explicit path flag)", ErrNotFound, candidates)
}
