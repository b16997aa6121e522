// Package proc runs a child process under a PTY and captures its output as
// list items, one per line. The filtered view is replayed by a Printer
// once each line's classification has settled.
package proc

import (
	"bytes"
	"regexp"
	"strings"
	"sync"
)

// Escape sequences stripped from captured lines. CSI covers cursor and
// color control, OSC covers title changes, and the final pattern catches
// bare two-byte sequences.
var (
	csiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]`)
	oscPattern = regexp.MustCompile(`\x1b\][^\x07\x1b]*(\x07|\x1b\\)`)
	escPattern = regexp.MustCompile(`\x1b[@-_]`)
)

// StripANSI removes terminal escape sequences and carriage returns.
func StripANSI(s string) string {
	s = oscPattern.ReplaceAllString(s, "")
	s = csiPattern.ReplaceAllString(s, "")
	s = escPattern.ReplaceAllString(s, "")
	return strings.ReplaceAll(s, "\r", "")
}

// Assembler splits a raw output stream into lines. Complete lines are
// stripped of escape sequences and handed to the callback; an incomplete
// tail stays buffered until more data or a Flush arrives. Lines that are
// blank after stripping are dropped.
type Assembler struct {
	onLine func(string)

	mu     sync.Mutex
	buffer bytes.Buffer
}

// NewAssembler creates an assembler delivering lines to onLine.
func NewAssembler(onLine func(string)) *Assembler {
	return &Assembler{onLine: onLine}
}

// Feed processes a chunk of raw output data.
func (a *Assembler) Feed(data []byte) {
	a.mu.Lock()
	a.buffer.Write(data)

	buffer := a.buffer.Bytes()
	a.buffer.Reset()

	var lines []string
	start := 0
	for i := 0; i < len(buffer); i++ {
		if buffer[i] == '\n' {
			lines = append(lines, string(buffer[start:i]))
			start = i + 1
		}
	}
	if start < len(buffer) {
		a.buffer.Write(buffer[start:])
	}
	a.mu.Unlock()

	for _, line := range lines {
		a.deliver(line)
	}
}

// Flush delivers any buffered incomplete line.
func (a *Assembler) Flush() {
	a.mu.Lock()
	line := a.buffer.String()
	a.buffer.Reset()
	a.mu.Unlock()

	if line != "" {
		a.deliver(line)
	}
}

func (a *Assembler) deliver(line string) {
	line = StripANSI(line)
	if strings.TrimSpace(line) == "" {
		return
	}
	a.onLine(line)
}
