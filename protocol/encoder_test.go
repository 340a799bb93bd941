package protocol

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/quotesearch/arbiter"
	"github.com/teranos/quotesearch/errors"
	"github.com/teranos/quotesearch/search"
)

func TestEncoder_RoundTripThroughParse(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	count := 2
	require.NoError(t, enc.Progress(Progress{Stage: StageSearch, Count: &count, Detail: "2 sites discovered"}))
	require.NoError(t, enc.Terminal(Terminal{
		Status:     StatusSuccess,
		Candidates: []search.Candidate{{Name: "Desk", ProductURL: "https://x/desk"}},
		Quantity:   1,
		Report:     &arbiter.Report{Outcome: arbiter.OutcomeWinner, WinnerIndex: 0},
		ElapsedMS:  12,
	}))
	assert.True(t, enc.Done())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	for _, l := range lines {
		assert.True(t, strings.HasPrefix(l, Prefix))
	}

	progress := Parse(lines[0])
	require.Equal(t, KindProgress, progress.Kind)
	assert.Equal(t, 2, *progress.Progress.Count)

	terminal := Parse(lines[1])
	require.Equal(t, KindTerminal, terminal.Kind)
	assert.Equal(t, arbiter.OutcomeWinner, terminal.Terminal.Report.Outcome)
}

func TestEncoder_RefusesWritesAfterTerminal(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	require.NoError(t, enc.Terminal(NewErrorTerminal(errors.New("boom"))))
	assert.ErrorIs(t, enc.Terminal(Terminal{Status: StatusSuccess}), ErrTerminalSent)
	assert.ErrorIs(t, enc.Progress(Progress{Stage: StageSearch}), ErrTerminalSent)
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
}

func TestEncoder_ConcurrentProgress(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = enc.Progress(Progress{Stage: StageSearch, Detail: "tick"})
		}()
	}
	wg.Wait()

	for _, l := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		assert.Equal(t, KindProgress, Parse(l).Kind, "interleaved line %q", l)
	}
}

func TestTerminal_MarshalJSON(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Terminal(Terminal{Status: StatusError, Error: "x", ElapsedMS: 5, Quantity: 3}))
	assert.Equal(t, Prefix+`{"status":"error","error":"x"}`+"\n", buf.String())

	buf.Reset()
	enc = NewEncoder(&buf)
	require.NoError(t, enc.Terminal(Terminal{Status: StatusSuccess}))
	assert.Contains(t, buf.String(), `"candidates":[]`)
	assert.Contains(t, buf.String(), `"elapsed_ms":0`)
}
