// internal/tui/sparkline.go
package tui

import (
	"math"
	"strings"
)

var sparkChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline is a mini graph of the last width values
type Sparkline struct {
	data  []float64
	width int
}

// NewSparkline creates a new sparkline component
func NewSparkline(width int) *Sparkline {
	return &Sparkline{width: width}
}

// Add appends a data point, keeping only the last width points
func (s *Sparkline) Add(value float64) {
	s.data = append(s.data, value)
	if len(s.data) > s.width {
		s.data = s.data[len(s.data)-s.width:]
	}
}

// Last returns the newest point.
func (s *Sparkline) Last() (float64, bool) {
	if len(s.data) == 0 {
		return 0, false
	}
	return s.data[len(s.data)-1], true
}

// View renders the sparkline padded to width
func (s *Sparkline) View() string {
	if len(s.data) == 0 {
		return strings.Repeat("▁", s.width)
	}

	lo, hi := s.data[0], s.data[0]
	for _, v := range s.data {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	var b strings.Builder
	for _, v := range s.data {
		idx := len(sparkChars) / 2
		if hi > lo {
			idx = int((v - lo) / (hi - lo) * float64(len(sparkChars)-1))
		}
		b.WriteRune(sparkChars[idx])
	}
	if pad := s.width - len(s.data); pad > 0 {
		b.WriteString(strings.Repeat(" ", pad))
	}
	return b.String()
}

// ChangePercent returns the change from the first to the last point
func (s *Sparkline) ChangePercent() float64 {
	if len(s.data) < 2 || s.data[0] == 0 {
		return 0
	}
	first, last := s.data[0], s.data[len(s.data)-1]
	return (last - first) / first * 100
}

// Trend returns an arrow for the overall direction
func (s *Sparkline) Trend() string {
	change := s.ChangePercent()
	switch {
	case math.Abs(change) < 0.1:
		return "→"
	case change > 0:
		return "↗"
	default:
		return "↘"
	}
}
