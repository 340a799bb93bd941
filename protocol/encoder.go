package protocol

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/teranos/quotesearch/errors"
)

// ErrTerminalSent is returned by Encoder after the terminal message
var ErrTerminalSent = errors.New("terminal message already sent")

// Encoder writes prefixed protocol lines. Safe for concurrent use.
type Encoder struct {
	mu       sync.Mutex
	w        io.Writer
	terminal bool
}

// NewEncoder creates an encoder writing to w (the worker's stdout)
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Progress writes one progress line
func (e *Encoder) Progress(p Progress) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.terminal {
		return ErrTerminalSent
	}
	return e.writeLine(p)
}

// Terminal writes the terminal line. Any later write fails.
func (e *Encoder) Terminal(t Terminal) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.terminal {
		return ErrTerminalSent
	}
	e.terminal = true
	return e.writeLine(t)
}

// Done reports whether the terminal message has been written
func (e *Encoder) Done() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.terminal
}

func (e *Encoder) writeLine(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "failed to encode protocol message")
	}
	line := make([]byte, 0, len(Prefix)+len(data)+1)
	line = append(line, Prefix...)
	line = append(line, data...)
	line = append(line, '\n')
	if _, err := e.w.Write(line); err != nil {
		return errors.Wrap(err, "failed to write protocol message")
	}
	return nil
}
