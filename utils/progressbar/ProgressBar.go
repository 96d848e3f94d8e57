// Package progressbar prints a progress bar to the terminal window
package progressbar

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// ProgressBar displays the progress of a long-running experiment
// phase. The bar redraws itself in a separate goroutine so that the
// phase it measures is never blocked on terminal IO. Increment is
// safe to call from any goroutine, including after Close.
type ProgressBar struct {
	width       float64
	maxProgress float64

	// current counts the calls to Increment. Accessed atomically.
	current int64

	closeEvent chan struct{}
	closed     bool

	redrawEvery time.Duration
}

// NewProgressBar returns a progress bar that is width characters wide
// and reaches 100% after max calls to Increment. The bar redraws
// every redrawEvery.
func NewProgressBar(width, max int,
	redrawEvery time.Duration) *ProgressBar {
	return &ProgressBar{
		width:       float64(width),
		maxProgress: float64(max),
		closeEvent:  make(chan struct{}),
		redrawEvery: redrawEvery,
	}
}

// Increment records that one more unit of work finished. Each
// environment step or episode of the measured phase should call
// Increment once.
func (p *ProgressBar) Increment() {
	atomic.AddInt64(&p.current, 1)
}

// Close stops the progress bar from displaying and releases its
// resources. Close panics if the progress bar is already closed.
func (p *ProgressBar) Close() {
	if p.closed {
		panic("close: close on closed progress bar")
	}
	close(p.closeEvent)
	p.closed = true
	fmt.Println() // Jump to the line below the bar
}

// Display starts drawing the progress bar. It should only be called
// once.
func (p *ProgressBar) Display() {
	go func() {
		tick := time.NewTicker(p.redrawEvery)
		defer tick.Stop()

		var elapsed time.Duration
		for {
			select {
			case <-tick.C:
				elapsed += p.redrawEvery
				p.redraw(float64(atomic.LoadInt64(&p.current)), elapsed)

			case <-p.closeEvent:
				return
			}
		}
	}()
}

// redraw prints the bar at the argument progress, overwriting the
// previously printed bar
func (p *ProgressBar) redraw(current float64, elapsed time.Duration) {
	if current > p.maxProgress {
		current = p.maxProgress
	}

	var bar strings.Builder
	bar.WriteString("|")

	filled := current / p.maxProgress * p.width
	for i := 0.0; i < filled; i++ {
		bar.WriteString("█")
	}
	for i := filled; i < p.width; i++ {
		bar.WriteString(" ")
	}

	fmt.Fprintf(&bar, "| [%v/%v | %.2f%% | elapsed: %v]", int(current),
		int(p.maxProgress), current/p.maxProgress*100, elapsed)

	fmt.Printf("\n\033[1A\033[K%v", bar.String())
}
