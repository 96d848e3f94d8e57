package progressbar

import (
	"sync"
	"testing"
	"time"
)

// TestConcurrentIncrement drives the progress bar from many
// goroutines, past its maximum, and after Close. None of these may
// panic.
func TestConcurrentIncrement(t *testing.T) {
	bar := NewProgressBar(10, 5, time.Millisecond)
	bar.Display()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				bar.Increment()
			}
		}()
	}
	wg.Wait()

	bar.Close()
	bar.Increment()
}

func TestCloseTwicePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected a panic on a second Close")
		}
	}()

	bar := NewProgressBar(10, 5, time.Millisecond)
	bar.Display()
	bar.Close()
	bar.Close()
}
