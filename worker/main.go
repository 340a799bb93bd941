package worker

import (
	"context"
	"io"

	"github.com/teranos/quotesearch/logger"
	"github.com/teranos/quotesearch/protocol"
)

// Exit codes of the worker process
const (
	ExitOK       = 0
	ExitJobError = 1
	ExitBadInput = 2
)

// Main reads one handoff from stdin, runs the job and writes the protocol
// to stdout. Logging must already point away from stdout.
func Main(ctx context.Context, stdin io.Reader, stdout io.Writer, deps Deps) int {
	enc := protocol.NewEncoder(stdout)
	log := deps.Logger
	if log == nil {
		log = logger.ComponentLogger("worker")
		deps.Logger = log
	}

	handoff, err := protocol.ReadHandoff(stdin)
	if err != nil {
		log.Errorw("Invalid handoff", logger.FieldError, err)
		if werr := enc.Terminal(protocol.NewErrorTerminal(err)); werr != nil {
			log.Errorw("Failed to write terminal message", logger.FieldError, werr)
		}
		return ExitBadInput
	}

	log = log.With(logger.FieldJobID, handoff.JobID)
	log.Infow("Worker started", logger.FieldTerm, handoff.Params.Term, "protocol_version", handoff.ProtocolVersion)

	terminal := NewPipeline(deps).Run(logger.WithJobID(ctx, handoff.JobID), handoff.JobID, handoff.Params, enc)

	if err := enc.Terminal(terminal); err != nil {
		log.Errorw("Failed to write terminal message", logger.FieldError, err)
		return ExitJobError
	}

	log.Infow("Worker finished",
		logger.FieldStatus, terminal.Status,
		logger.FieldCount, len(terminal.Candidates),
		logger.FieldDurationMS, terminal.ElapsedMS)

	if !terminal.Success() {
		return ExitJobError
	}
	return ExitOK
}

// Fail reports a setup error (bad configuration, unreachable database) as
// the job's terminal message so the manager records it instead of an
// abnormal exit.
func Fail(stdout io.Writer, err error) int {
	if werr := protocol.NewEncoder(stdout).Terminal(protocol.NewErrorTerminal(err)); werr != nil {
		logger.Errorw("Failed to write terminal message", logger.FieldError, werr)
	}
	return ExitJobError
}
