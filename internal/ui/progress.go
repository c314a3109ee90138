package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// ProgressBar reports progress across a fixed number of items
type ProgressBar struct {
	out       io.Writer
	total     int
	current   int
	startTime time.Time
	mu        sync.Mutex

	successCount int
	failureCount int
	currentItem  string
	// inline redraws a single line; pipes get one line per update
	inline bool
}

// NewProgressBar creates a progress bar writing to out
func NewProgressBar(out io.Writer, total int) *ProgressBar {
	return &ProgressBar{
		out:       out,
		total:     total,
		startTime: time.Now(),
		inline:    supportsColor,
	}
}

// Update records the outcome of item and redraws
func (p *ProgressBar) Update(current int, item string, success bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = current
	p.currentItem = item

	if success {
		p.successCount++
	} else {
		p.failureCount++
	}

	p.render()
}

// Finish prints the summary
func (p *ProgressBar) Finish(action string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.inline {
		fmt.Fprintln(p.out)
	}
	fmt.Fprintf(p.out, "\n%s %s completed in %s\n",
		ColorSuccess("✓"),
		action,
		FormatDuration(time.Since(p.startTime)),
	)
	fmt.Fprintf(p.out, "  %s %d successful\n", ColorSuccess("✓"), p.successCount)
	if p.failureCount > 0 {
		fmt.Fprintf(p.out, "  %s %d failed\n", ColorError("✗"), p.failureCount)
	}
}

// Counts returns the number of successful and failed updates
func (p *ProgressBar) Counts() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.successCount, p.failureCount
}

func (p *ProgressBar) render() {
	percentage := 100.0
	if p.total > 0 {
		percentage = float64(p.current) / float64(p.total) * 100
	}

	barWidth := 30
	filled := int(percentage / 100 * float64(barWidth))
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	item := p.currentItem
	if len(item) > 40 {
		item = "..." + item[len(item)-37:]
	}

	line := fmt.Sprintf("%s %s %.0f%% [%d/%d] %s - %s",
		ColorProgress("►"),
		bar,
		percentage,
		p.current,
		p.total,
		item,
		FormatDuration(time.Since(p.startTime)),
	)
	if p.inline {
		fmt.Fprint(p.out, "\r\033[K"+line)
		return
	}
	fmt.Fprintln(p.out, line)
}

// Spinner animates a message while a long operation runs
type Spinner struct {
	out     io.Writer
	frames  []string
	current int
	message string
	stop    chan struct{}
	done    chan struct{}
	started bool
	stopped bool
	mu      sync.Mutex
}

// NewSpinner creates a new spinner
func NewSpinner(out io.Writer, message string) *Spinner {
	return &Spinner{
		out:     out,
		frames:  []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		message: message,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start begins the animation. Without a terminal nothing is drawn until Stop.
func (s *Spinner) Start() {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		if !supportsColor {
			<-s.stop
			return
		}

		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.mu.Lock()
				if !s.stopped {
					fmt.Fprintf(s.out, "\r\033[K%s %s",
						ColorProgress(s.frames[s.current]),
						s.message,
					)
					s.current = (s.current + 1) % len(s.frames)
				}
				s.mu.Unlock()
			}
		}
	}()
}

// Stop ends the animation and prints the final status
func (s *Spinner) Stop(success bool, message string) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	started := s.started
	s.mu.Unlock()

	close(s.stop)
	if started {
		<-s.done
	}

	if supportsColor {
		fmt.Fprint(s.out, "\r\033[K")
	}
	if success {
		fmt.Fprintf(s.out, "%s %s\n", ColorSuccess("✓"), message)
	} else {
		fmt.Fprintf(s.out, "%s %s\n", ColorError("✗"), message)
	}
}

// UpdateMessage updates the spinner message
func (s *Spinner) UpdateMessage(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}
