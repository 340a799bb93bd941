// Package protocol defines the line protocol between the job manager and a
// worker process.
//
// The manager writes one Handoff document to the worker's stdin. The worker
// answers on stdout with one JSON object per line, each prefixed with
// Prefix: any number of Progress messages followed by exactly one Terminal
// message. Lines that are neither are Diagnostic and carry no meaning.
package protocol

import (
	"encoding/json"
	"strings"

	"github.com/teranos/quotesearch/arbiter"
	"github.com/teranos/quotesearch/errors"
	"github.com/teranos/quotesearch/search"
)

const (
	// Prefix marks protocol lines on the worker's stdout
	Prefix = "WORKER_MSG:"

	// Version is the protocol version written into every handoff
	Version = "1.0.0"

	// VersionConstraint is what a worker accepts
	VersionConstraint = "^1"
)

// Stages reported in progress messages
const (
	StageSearch  = "search"
	StagePersist = "persist"
)

// Terminal statuses
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Kind discriminates the Message variants
type Kind int

const (
	KindDiagnostic Kind = iota
	KindProgress
	KindTerminal
)

func (k Kind) String() string {
	switch k {
	case KindProgress:
		return "progress"
	case KindTerminal:
		return "terminal"
	default:
		return "diagnostic"
	}
}

// Progress reports pipeline advancement. Count is nil when unknown.
type Progress struct {
	Stage  string `json:"stage"`
	Count  *int   `json:"count,omitempty"`
	Detail string `json:"detail"`
}

// SiteSave is the persistence outcome for one supplier group
type SiteSave struct {
	Site       string `json:"site"`
	SupplierID int64  `json:"supplier_id,omitempty"`
	Saved      int    `json:"saved"`
	Failed     int    `json:"failed"`
	Error      string `json:"error,omitempty"`
}

// PersistenceSummary aggregates SiteSave entries
type PersistenceSummary struct {
	Saved   int        `json:"saved"`
	Failed  int        `json:"failed"`
	PerSite []SiteSave `json:"per_site"`
}

// Terminal is the final outcome of a worker run
type Terminal struct {
	Status      string              `json:"status"`
	Candidates  []search.Candidate  `json:"candidates"`
	Quantity    int                 `json:"quantity,omitempty"`
	Report      *arbiter.Report     `json:"report,omitempty"`
	Persistence *PersistenceSummary `json:"persistence,omitempty"`
	ElapsedMS   int64               `json:"elapsed_ms"`
	Error       string              `json:"error,omitempty"`
}

// Success reports whether the terminal message is a success envelope
func (t *Terminal) Success() bool {
	return t != nil && t.Status == StatusSuccess
}

// NewErrorTerminal builds an error envelope
func NewErrorTerminal(err error) Terminal {
	return Terminal{Status: StatusError, Error: err.Error()}
}

type terminalAlias Terminal

// MarshalJSON writes an error envelope as {"status","error"} only and always
// includes the candidates array on success.
func (t Terminal) MarshalJSON() ([]byte, error) {
	if t.Status == StatusError {
		return json.Marshal(struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		}{t.Status, t.Error})
	}
	if t.Candidates == nil {
		t.Candidates = []search.Candidate{}
	}
	return json.Marshal(terminalAlias(t))
}

// Message is one parsed stdout line
type Message struct {
	Kind     Kind
	Progress *Progress
	Terminal *Terminal
	Raw      string
	// Err is set when a terminal envelope's payload could not be decoded.
	// The message is still KindTerminal with an error status.
	Err error
}

// envelope sniffs which variant a line claims to be
type envelope struct {
	Status *string `json:"status"`
	Stage  *string `json:"stage"`
}

// Parse classifies one output line. It never fails: anything that is not a
// well-formed progress or terminal message becomes KindDiagnostic, except a
// terminal envelope with an undecodable payload, which becomes an error
// terminal so the job cannot hang waiting for a result.
func Parse(line string) Message {
	raw := line
	payload := strings.TrimSpace(line)
	payload = strings.TrimSpace(strings.TrimPrefix(payload, Prefix))

	diag := Message{Kind: KindDiagnostic, Raw: raw}
	if !strings.HasPrefix(payload, "{") {
		return diag
	}

	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return diag
	}

	switch {
	case env.Status != nil && (*env.Status == StatusSuccess || *env.Status == StatusError):
		var t Terminal
		if err := json.Unmarshal([]byte(payload), &t); err != nil {
			return Message{
				Kind:     KindTerminal,
				Terminal: &Terminal{Status: StatusError, Error: "malformed terminal payload"},
				Raw:      raw,
				Err:      errors.Wrap(errors.ErrInvalidMessage, err.Error()),
			}
		}
		if t.Status == StatusError && t.Error == "" {
			t.Error = "worker reported an unspecified error"
		}
		return Message{Kind: KindTerminal, Terminal: &t, Raw: raw}

	case env.Stage != nil && env.Status == nil:
		var p Progress
		if err := json.Unmarshal([]byte(payload), &p); err != nil || p.Stage == "" {
			return diag
		}
		return Message{Kind: KindProgress, Progress: &p, Raw: raw}
	}

	return diag
}
