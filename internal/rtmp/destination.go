// Package rtmp resolves the stream destination from the command-line surface.
package rtmp

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrMissingDestination is returned when neither an output nor an RTMP base+key pair is provided.
	ErrMissingDestination = errors.New("provide either -output or both -rtmp-url and -stream-key")
	// ErrConflictingDestination is returned when both an output and an RTMP base+key pair are provided.
	ErrConflictingDestination = errors.New("-output and -rtmp-url/-stream-key are mutually exclusive")
	// ErrEmptyStreamKey is returned when the stream key is empty after normalization.
	ErrEmptyStreamKey = errors.New("stream key cannot be empty")
	// ErrInvalidScheme is returned when an RTMP destination does not use rtmp or rtmps.
	ErrInvalidScheme = errors.New("RTMP URL scheme must be rtmp or rtmps")
)

// BuildDestination resolves the single output target from the mutually
// exclusive destination flags. Exactly one of output or (rtmpURL, streamKey)
// must be set. RTMP destinations are scheme-checked; anything that does not
// look like a URL is accepted as a local file path.
func BuildDestination(output, rtmpURL, streamKey string) (string, error) {
	hasOutput := strings.TrimSpace(output) != ""
	hasPair := rtmpURL != "" || streamKey != ""

	if hasOutput && hasPair {
		return "", ErrConflictingDestination
	}

	if hasOutput {
		trimmed := strings.TrimSpace(output)
		if err := validateDestination(trimmed); err != nil {
			return "", err
		}
		return trimmed, nil
	}

	if rtmpURL == "" || streamKey == "" {
		return "", ErrMissingDestination
	}

	key, err := normalizeStreamKey(streamKey)
	if err != nil {
		return "", err
	}

	merged := strings.TrimRight(rtmpURL, "/") + "/" + key
	if err := validateDestination(merged); err != nil {
		return "", err
	}
	return merged, nil
}

// IsRTMP reports whether the destination is an rtmp(s) URL, as opposed to a
// local file path.
func IsRTMP(destination string) bool {
	parsed, err := url.Parse(destination)
	if err != nil {
		return false
	}
	return parsed.Scheme == "rtmp" || parsed.Scheme == "rtmps"
}

func normalizeStreamKey(raw string) (string, error) {
	key := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(raw), "/"))
	if key == "" {
		return "", ErrEmptyStreamKey
	}
	return key, nil
}

func validateDestination(candidate string) error {
	parsed, err := url.Parse(candidate)
	if err != nil || parsed.Scheme == "" {
		// Not a URL at all: treat as a local file path.
		return nil
	}

	switch parsed.Scheme {
	case "rtmp", "rtmps":
		return nil
	case "http", "https", "udp", "tcp", "srt":
		return fmt.Errorf("%w: got %q", ErrInvalidScheme, parsed.Scheme)
	default:
		// Single-letter schemes are Windows drive prefixes, longer unknown
		// schemes are rejected to catch typos like rtmsp://.
		if len(parsed.Scheme) == 1 {
			return nil
		}
		return fmt.Errorf("%w: got %q", ErrInvalidScheme, parsed.Scheme)
	}
}
