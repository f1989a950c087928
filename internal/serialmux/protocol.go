package serialmux

import (
	"fmt"
	"strconv"
	"strings"
)

// Verb is the first word of a line sent by the display.
type Verb string

const (
	VerbReset  Verb = "RESET"  // RESET [stream]: zero one stream, or all
	VerbPing   Verb = "PING"   // answered with PONG
	VerbStatus Verb = "STATUS" // answered with one COUNT line per stream
)

// Request is a parsed line from the display.
type Request struct {
	Verb   Verb
	Stream string
}

// ParseRequest parses one incoming line. Verbs are case-insensitive.
func ParseRequest(line string) (Request, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Request{}, fmt.Errorf("empty line")
	}
	req := Request{Verb: Verb(strings.ToUpper(fields[0]))}
	switch req.Verb {
	case VerbReset:
		if len(fields) > 2 {
			return Request{}, fmt.Errorf("RESET takes at most one stream name")
		}
		if len(fields) == 2 {
			req.Stream = fields[1]
		}
	case VerbPing, VerbStatus:
		if len(fields) != 1 {
			return Request{}, fmt.Errorf("%s takes no arguments", req.Verb)
		}
	default:
		return Request{}, fmt.Errorf("unknown verb %q", fields[0])
	}
	return req, nil
}

// FormatCount renders the line that updates a display.
func FormatCount(stream string, in, out int) string {
	return "COUNT " + stream + " IN=" + strconv.Itoa(in) + " OUT=" + strconv.Itoa(out)
}
