package proc

import (
	"fmt"
	"io"
	"sync"

	"github.com/listveil/listveil/pkg/interfaces"
)

// Printer replays the visible portion of a captured stream. Lines print
// only after a classification pass has covered them, so a line that is
// about to be hidden never flashes. Printed lines are never withdrawn;
// a line revealed after its position was passed prints late, below the
// lines that overtook it. Positions must be stable, which holds for the
// append-only stream the runner produces.
type Printer struct {
	w io.Writer

	mu      sync.Mutex
	emitted []bool
	printed int
}

// NewPrinter creates a printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Advance prints every visible item not yet printed, in item order.
// Callers pass the exact item slice a classification pass just covered,
// so no unclassified line can slip through.
func (p *Printer) Advance(items []interfaces.Item) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(items) > len(p.emitted) {
		p.emitted = append(p.emitted, make([]bool, len(items)-len(p.emitted))...)
	}
	for i, item := range items {
		if p.emitted[i] || item.Hidden() {
			continue
		}
		fmt.Fprintln(p.w, item.Text())
		p.emitted[i] = true
		p.printed++
	}
}

// Printed returns the number of lines written so far.
func (p *Printer) Printed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.printed
}
