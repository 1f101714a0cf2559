package ami

import (
	"bufio"
	"io"
	"strings"
)

// maxLineSize bounds a single AMI line. Cdr and QueueStatus lines can exceed
// bufio's 64KiB default on busy systems.
const maxLineSize = 1024 * 1024

// Parser reads an AMI byte stream and emits Events.
type Parser struct {
	scanner *bufio.Scanner
}

// NewParser creates a Parser that reads from the given reader.
func NewParser(r io.Reader) *Parser {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Parser{scanner: s}
}

// Next reads the next packet from the stream.
// Returns the event and true if one was read, or a zero Event and false at EOF.
func (p *Parser) Next() (Event, bool) {
	var headers []header

	for p.scanner.Scan() {
		line := strings.TrimRight(p.scanner.Text(), "\r")

		// Blank line marks end of a packet
		if line == "" {
			if len(headers) > 0 {
				return Event{headers: headers}, true
			}
			continue
		}

		idx := strings.Index(line, ":")
		if idx < 0 {
			// The banner ("Asterisk Call Manager/x.y") has no separator
			if len(headers) == 0 {
				continue
			}
			headers = append(headers, header{Key: "", Value: line})
			continue
		}

		key := line[:idx]
		value := strings.TrimPrefix(line[idx+1:], " ")
		headers = append(headers, header{Key: key, Value: value})
	}

	if len(headers) > 0 {
		return Event{headers: headers}, true
	}
	return Event{}, false
}

// Err returns the first non-EOF error seen by the underlying scanner.
func (p *Parser) Err() error {
	return p.scanner.Err()
}

// ParseAll reads all events from the stream and returns them.
func (p *Parser) ParseAll() []Event {
	var events []Event
	for {
		evt, ok := p.Next()
		if !ok {
			break
		}
		events = append(events, evt)
	}
	return events
}

// ParseBytes is a convenience function that parses all events from a byte slice.
func ParseBytes(data []byte) []Event {
	return NewParser(strings.NewReader(string(data))).ParseAll()
}
