package progress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBarLifecycle(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	bar := New(&buf, "reducing", 10)
	bar.Increment(4)
	bar.Increment(6)
	bar.Done()

	assert.EqualValues(t, 10, bar.tracker.Value())
	assert.True(t, bar.tracker.IsDone())
}

func TestNilBarIsNoop(t *testing.T) {
	t.Parallel()

	var bar *Bar

	bar.Increment(1)
	bar.Done()
}
