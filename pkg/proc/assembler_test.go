package proc

import (
	"testing"
)

func TestStripANSI(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain text untouched",
			input: "hello world",
			want:  "hello world",
		},
		{
			name:  "color codes removed",
			input: "\x1b[31mred alert\x1b[0m",
			want:  "red alert",
		},
		{
			name:  "cursor movement removed",
			input: "\x1b[2Jcleared\x1b[1;1H",
			want:  "cleared",
		},
		{
			name:  "title sequence removed",
			input: "\x1b]0;my title\x07visible",
			want:  "visible",
		},
		{
			name:  "carriage return removed",
			input: "progress\r",
			want:  "progress",
		},
		{
			name:  "private mode sequence removed",
			input: "\x1b[?1004htext",
			want:  "text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripANSI(tt.input); got != tt.want {
				t.Errorf("StripANSI(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestAssemblerSplitsLines(t *testing.T) {
	var lines []string
	a := NewAssembler(func(line string) { lines = append(lines, line) })

	a.Feed([]byte("first\nsecond\nthird\n"))

	want := []string{"first", "second", "third"}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d: %v", len(lines), len(want), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestAssemblerBuffersIncompleteTail(t *testing.T) {
	var lines []string
	a := NewAssembler(func(line string) { lines = append(lines, line) })

	a.Feed([]byte("comp"))
	if len(lines) != 0 {
		t.Fatalf("incomplete data delivered early: %v", lines)
	}

	a.Feed([]byte("lete\nnext"))
	if len(lines) != 1 || lines[0] != "complete" {
		t.Fatalf("lines = %v, want [complete]", lines)
	}

	a.Flush()
	if len(lines) != 2 || lines[1] != "next" {
		t.Errorf("lines after Flush = %v, want [complete next]", lines)
	}
}

func TestAssemblerStripsEscapes(t *testing.T) {
	var lines []string
	a := NewAssembler(func(line string) { lines = append(lines, line) })

	a.Feed([]byte("\x1b[32mgreen line\x1b[0m\r\n"))

	if len(lines) != 1 || lines[0] != "green line" {
		t.Errorf("lines = %v, want [green line]", lines)
	}
}

func TestAssemblerDropsBlankLines(t *testing.T) {
	var lines []string
	a := NewAssembler(func(line string) { lines = append(lines, line) })

	a.Feed([]byte("\n   \n\x1b[0m\nreal\n"))

	if len(lines) != 1 || lines[0] != "real" {
		t.Errorf("lines = %v, want [real]", lines)
	}
}

func TestAssemblerFlushEmptyBuffer(t *testing.T) {
	count := 0
	a := NewAssembler(func(string) { count++ })

	a.Flush()

	if count != 0 {
		t.Errorf("Flush on empty buffer delivered %d lines", count)
	}
}
