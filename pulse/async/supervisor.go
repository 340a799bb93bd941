package async

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"go.uber.org/zap"

	"github.com/teranos/quotesearch/am"
	"github.com/teranos/quotesearch/errors"
	"github.com/teranos/quotesearch/logger"
	"github.com/teranos/quotesearch/protocol"
)

const (
	// DefaultCancelGrace is the interrupt-to-kill delay
	DefaultCancelGrace = 5 * time.Second
	// maxLineBytes bounds one protocol line; terminal messages carry every candidate
	maxLineBytes = 8 * 1024 * 1024
)

// SupervisorConfig describes how worker processes are launched
type SupervisorConfig struct {
	Command     []string // binary and leading arguments
	Env         []string // appended to the server's environment
	CancelGrace time.Duration
}

// Supervisor runs each job in its own worker process
type Supervisor struct {
	command []string
	env     []string
	grace   time.Duration
	logger  *zap.SugaredLogger
}

// NewSupervisor creates a supervisor from an explicit command
func NewSupervisor(cfg SupervisorConfig, log *zap.SugaredLogger) (*Supervisor, error) {
	if len(cfg.Command) == 0 || cfg.Command[0] == "" {
		return nil, errors.Wrap(errors.ErrInvalidRequest, "worker command is empty")
	}
	if cfg.CancelGrace <= 0 {
		cfg.CancelGrace = DefaultCancelGrace
	}
	if log == nil {
		log = logger.ComponentLogger("pulse.supervisor")
	}
	return &Supervisor{
		command: cfg.Command,
		env:     cfg.Env,
		grace:   cfg.CancelGrace,
		logger:  log,
	}, nil
}

// NewSupervisorFromConfig splits jobs.worker_command. An empty command runs
// this executable's "worker" subcommand.
func NewSupervisorFromConfig(cfg am.JobsConfig, log *zap.SugaredLogger) (*Supervisor, error) {
	command, err := WorkerCommand(cfg.WorkerCommand)
	if err != nil {
		return nil, err
	}
	return NewSupervisor(SupervisorConfig{Command: command, CancelGrace: cfg.CancelGrace}, log)
}

// WorkerCommand resolves the argv used to launch workers
func WorkerCommand(configured string) ([]string, error) {
	if strings.TrimSpace(configured) != "" {
		args, err := shellquote.Split(configured)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid worker command %q", configured)
		}
		return args, nil
	}
	self, err := os.Executable()
	if err != nil {
		return nil, errors.Wrap(err, "failed to locate own executable")
	}
	return []string{self, "worker"}, nil
}

// Run launches a worker for job, feeds it the handoff and reports its
// messages until it exits. The first terminal message wins; later ones are
// ignored. Cancelling ctx interrupts the worker and kills it after the
// grace period.
func (s *Supervisor) Run(ctx context.Context, job *Job, report Reporter) error {
	log := s.logger.With(logger.FieldJobID, job.ID)

	var handoff bytes.Buffer
	if err := protocol.WriteHandoff(&handoff, protocol.Handoff{JobID: job.ID, Params: job.Params}); err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, s.command[0], s.command[1:]...)
	cmd.Env = append(os.Environ(), s.env...)
	cmd.Stdin = &handoff
	cmd.Stderr = &lineLogger{logger: log}
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = s.grace

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrap(err, "failed to open worker stdout")
	}

	if err := cmd.Start(); err != nil {
		err = errors.Wrapf(err, "failed to start worker (binary=%s)", s.command[0])
		return errors.WithDetail(err, "Job ID: "+job.ID)
	}
	pid := cmd.Process.Pid
	report.Started(pid)
	log.Debugw("Worker spawned", logger.FieldPID, pid, logger.FieldBinary, s.command[0])

	gotTerminal := s.consume(stdout, pid, report, log)
	waitErr := cmd.Wait()

	if gotTerminal {
		if waitErr != nil {
			log.Debugw("Worker exited after terminal message", logger.FieldError, waitErr)
		}
		return nil
	}

	state := "unknown exit"
	if cmd.ProcessState != nil {
		state = cmd.ProcessState.String()
	} else if waitErr != nil {
		state = waitErr.Error()
	}
	return errors.Mark(errors.Newf("%s: %s", errors.ErrWorkerExited, state), errors.ErrWorkerExited)
}

// consume reads stdout line by line until EOF. It reports whether a
// terminal message was delivered.
func (s *Supervisor) consume(stdout io.Reader, pid int, report Reporter, log *zap.SugaredLogger) bool {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	gotTerminal := false
	for scanner.Scan() {
		msg := protocol.Parse(scanner.Text())

		switch msg.Kind {
		case protocol.KindProgress:
			if !gotTerminal {
				report.Progress(*msg.Progress)
			}
		case protocol.KindTerminal:
			if gotTerminal {
				log.Warnw("Ignoring extra terminal message", logger.FieldStatus, msg.Terminal.Status)
				continue
			}
			gotTerminal = true
			if msg.Err != nil {
				log.Warnw("Malformed terminal message", logger.FieldError, msg.Err)
			}
			s.logUsage(pid, log)
			report.Terminal(*msg.Terminal)
		default:
			log.Debugw("Worker diagnostic", "line", msg.Raw)
		}
	}

	if err := scanner.Err(); err != nil {
		log.Warnw("Worker output unreadable", logger.FieldError, err)
		_, _ = io.Copy(io.Discard, stdout)
	}
	return gotTerminal
}

// logUsage records the worker's resource usage while it is still alive
func (s *Supervisor) logUsage(pid int, log *zap.SugaredLogger) {
	usage, err := SampleProcess(pid)
	if err != nil {
		log.Debugw("Worker usage unavailable", logger.FieldPID, pid, logger.FieldError, err)
		return
	}
	log.Infow("Worker usage", logger.FieldPID, pid, "rss_mb", usage.RSSMB, "cpu_percent", usage.CPUPercent)
}

// lineLogger forwards worker stderr to the structured logger one line at a time
type lineLogger struct {
	logger *zap.SugaredLogger
	buf    strings.Builder
}

func (l *lineLogger) Write(p []byte) (n int, err error) {
	l.buf.Write(p)
	for {
		line, rest, found := strings.Cut(l.buf.String(), "\n")
		if !found {
			break
		}
		l.buf.Reset()
		l.buf.WriteString(rest)

		if line = strings.TrimSpace(line); line != "" {
			l.logger.Infow("Worker output", "line", line)
		}
	}
	return len(p), nil
}
