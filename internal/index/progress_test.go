package index

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(ch <-chan IndexProgress) []IndexProgress {
	var out []IndexProgress
	for {
		select {
		case p := <-ch:
			out = append(out, p)
		default:
			return out
		}
	}
}

func TestTracker_Transitions(t *testing.T) {
	tr := newTracker(2)
	assert.Equal(t, StatusIdle, tr.snapshot().Status)

	tr.begin(4)
	tr.record(OutcomeOK, 3)
	tr.record(OutcomeSkip, 0)
	tr.record(OutcomeFail, 0)
	tr.removed(2)
	final := tr.finish(nil)

	assert.Equal(t, StatusReady, final.Status)
	assert.Equal(t, 3, final.ProcessedFiles)
	assert.Equal(t, 1, final.IndexedFiles)
	assert.Equal(t, 1, final.SkippedFiles)
	assert.Equal(t, 1, final.FailedFiles)
	assert.Equal(t, 2, final.RemovedFiles)
	assert.Equal(t, 3, final.Segments)
	assert.False(t, final.FinishedAt.IsZero())
	assert.InDelta(t, 75.0, final.Percent(), 0.001)

	// begin, every second record, finish
	events := drain(tr.ch)
	require.Len(t, events, 3)
	assert.Equal(t, StatusIndexing, events[0].Status)
	assert.Equal(t, 2, events[1].ProcessedFiles)
	assert.True(t, events[2].Done())
}

func TestTracker_FinishWithError(t *testing.T) {
	tr := newTracker(1)
	tr.begin(1)
	p := tr.finish(errors.New("flush failed"))

	assert.Equal(t, StatusFailed, p.Status)
	assert.Equal(t, "flush failed", p.Error)

	tr.reset()
	assert.Equal(t, IndexProgress{Status: StatusIdle}, tr.snapshot())
}

func TestTracker_DropsOldestWhenFull(t *testing.T) {
	tr := newTracker(1)
	tr.begin(progressBuffer + 10)
	for range progressBuffer + 9 {
		tr.record(OutcomeOK, 1)
	}

	events := drain(tr.ch)
	require.Len(t, events, progressBuffer)
	assert.Equal(t, progressBuffer+9, events[len(events)-1].ProcessedFiles)
	assert.Equal(t, 10, events[0].ProcessedFiles)
}

func TestIndexProgress_PercentEmpty(t *testing.T) {
	assert.Zero(t, IndexProgress{}.Percent())
}
