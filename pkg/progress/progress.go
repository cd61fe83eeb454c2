// Package progress renders completion-order progress for long-running
// operations on a terminal. Results arrive as groups finish, not in input
// order, so the display tracks a single counter against a known total.
package progress

import (
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"
)

// renderInterval is how often the tracker repaints.
const renderInterval = 100 * time.Millisecond

// Bar tracks one operation's progress. The zero value is unusable; a nil
// *Bar is a valid no-op so callers never need to branch on quiet mode.
type Bar struct {
	writer  progress.Writer
	tracker *progress.Tracker
}

// New starts rendering a progress bar for total units to the given writer.
func New(out io.Writer, message string, total int64) *Bar {
	writer := progress.NewWriter()
	writer.SetOutputWriter(out)
	writer.SetUpdateFrequency(renderInterval)
	writer.SetTrackerPosition(progress.PositionRight)
	writer.SetStyle(progress.StyleDefault)
	writer.Style().Visibility.ETA = true

	tracker := &progress.Tracker{
		Message: message,
		Total:   total,
		Units:   progress.UnitsDefault,
	}

	writer.AppendTracker(tracker)

	go writer.Render()

	return &Bar{writer: writer, tracker: tracker}
}

// Increment advances the bar by n units.
func (b *Bar) Increment(n int64) {
	if b == nil {
		return
	}

	b.tracker.Increment(n)
}

// Done marks the bar finished and stops rendering.
func (b *Bar) Done() {
	if b == nil {
		return
	}

	b.tracker.MarkAsDone()
	b.writer.Stop()
}
