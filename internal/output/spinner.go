package output

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

var spinnerFrames = []rune("⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏")

// Spinner displays an animated braille spinner on a writer (typically
// stderr) while a batch of samples is being analyzed, with a running
// done/total count. It is safe for concurrent use: Advance and Update may
// be called from any worker goroutine.
type Spinner struct {
	mu        sync.Mutex
	w         io.Writer
	message   string
	completed int
	total     int
	done      chan struct{}
	stopped   bool
}

// NewSpinner creates a spinner that writes to w.
func NewSpinner(w io.Writer) *Spinner {
	return &Spinner{w: w}
}

// Start begins the spinner animation with the given message. A positive
// total enables the progress count shown by Advance.
func (s *Spinner) Start(total int, message string) {
	s.mu.Lock()
	s.message = message
	s.completed = 0
	s.total = total
	s.done = make(chan struct{})
	s.stopped = false
	s.mu.Unlock()

	go s.loop()
}

// Advance records one finished sample and shows its outcome next to the
// progress count.
func (s *Spinner) Advance(name, outcome string) {
	s.mu.Lock()
	s.completed++
	s.message = strings.TrimSpace(name + " " + outcome)
	s.mu.Unlock()
}

// Update changes the displayed message without advancing the count.
func (s *Spinner) Update(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}

// Stop halts the spinner and clears its line. It is idempotent.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.done)

	// Clear the spinner line
	s.mu.Lock()
	fmt.Fprintf(s.w, "\r%s\r", strings.Repeat(" ", len(s.message)+16))
	s.mu.Unlock()
}

// line renders one frame of the spinner. Callers must hold the mutex.
func (s *Spinner) line(frame rune) string {
	if s.total > 0 {
		return fmt.Sprintf("\r%c [%d/%d] %s", frame, s.completed, s.total, s.message)
	}
	return fmt.Sprintf("\r%c %s", frame, s.message)
}

func (s *Spinner) loop() {
	tick := time.NewTicker(80 * time.Millisecond)
	defer tick.Stop()

	i := 0
	for {
		select {
		case <-s.done:
			return
		case <-tick.C:
			s.mu.Lock()
			// Pad to overwrite leftover chars from a longer previous message.
			fmt.Fprintf(s.w, "%-80s", s.line(spinnerFrames[i%len(spinnerFrames)]))
			s.mu.Unlock()

			i++
		}
	}
}
