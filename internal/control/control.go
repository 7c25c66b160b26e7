// Package control reads line-oriented operator commands alongside the
// running pipeline.
package control

import (
	"bufio"
	"io"
	"strings"
)

// Command is a parsed operator command.
type Command int

const (
	// Unknown is any input that does not map to a command; it is ignored.
	Unknown Command = iota
	// Refresh requests an in-place page reload without restarting the stream.
	Refresh
	// Help requests the command list to be printed.
	Help
)

// String returns a human-readable command name.
func (c Command) String() string {
	switch c {
	case Refresh:
		return "refresh"
	case Help:
		return "help"
	default:
		return "unknown"
	}
}

// Parse maps one input line to a Command. Matching is case-insensitive and
// ignores surrounding whitespace.
func Parse(line string) Command {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "r", "refresh":
		return Refresh
	case "h", "help":
		return Help
	default:
		return Unknown
	}
}

// Listen consumes lines from r in a background goroutine and delivers parsed
// commands on the returned channel. The channel has capacity one and a newer
// command replaces an undelivered older one, so only the latest command is
// ever acted upon. When r reaches EOF (non-interactive execution) the
// goroutine exits and the channel simply never produces further commands.
func Listen(r io.Reader) <-chan Command {
	commands := make(chan Command, 1)

	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			cmd := Parse(scanner.Text())
			if cmd == Unknown {
				continue
			}

			// Coalesce: drop a stale undelivered command in favor of
			// the newest one.
			select {
			case commands <- cmd:
			default:
				select {
				case <-commands:
				default:
				}
				commands <- cmd
			}
		}
	}()

	return commands
}
