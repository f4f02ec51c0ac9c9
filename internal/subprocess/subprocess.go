// Package subprocess runs external programs with captured output,
// optional tolerance of non-zero exits, and cancellation wired to
// process signals. Long file operations and all git work go through
// here so a stuck child never outlives its caller unnoticed.
package subprocess

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"git.home.luguber.info/inful/dawbrn/internal/apperrors"
)

// DefaultTerminateGrace is how long a signalled child may keep running
// before it is killed outright.
const DefaultTerminateGrace = 10 * time.Second

// Options controls a single invocation.
type Options struct {
	// FailMessage is the human description attached to the error when
	// the program fails. Defaults to "<program> failed".
	FailMessage string
	// ErrorOK tolerates a non-zero exit: the result carries the exit
	// code and no error is returned. Failure to start still errors.
	ErrorOK bool
	// Capture collects stdout and stderr interleaved into the result.
	// When false both streams are discarded.
	Capture bool
	// Dir is the working directory. Empty means the caller's.
	Dir string
}

// Result describes a finished invocation.
type Result struct {
	Output   []byte
	ExitCode int
}

// Runner executes child processes. The zero value is not usable; call New.
type Runner struct {
	terminateGrace time.Duration
}

// New returns a Runner with the default termination grace period.
func New() *Runner {
	return &Runner{terminateGrace: DefaultTerminateGrace}
}

// Run executes program with args and waits for it. Stdin is never
// connected. If ctx is cancelled the child is sent SIGTERM, killed
// after the grace period, and Run returns ctx's error once the child
// has been reaped.
func (r *Runner) Run(ctx context.Context, program string, args []string, opts Options) (Result, error) {
	cmd := exec.CommandContext(ctx, program, args...)
	cmd.Dir = opts.Dir
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = r.terminateGrace

	var buf bytes.Buffer
	if opts.Capture {
		cmd.Stdout = &buf
		cmd.Stderr = &buf
	}

	err := cmd.Run()

	res := Result{ExitCode: -1}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	if opts.Capture {
		res.Output = buf.Bytes()
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}
	if err == nil {
		return res, nil
	}

	msg := opts.FailMessage
	if msg == "" {
		msg = fmt.Sprintf("%s failed", program)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if opts.ErrorOK {
			return res, nil
		}
		return res, apperrors.Subprocess(msg, res.ExitCode, err)
	}
	return res, apperrors.Subprocess(msg, -1, err)
}
