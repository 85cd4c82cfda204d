// Package runner executes whitelisted package-manager and scaffold commands
// inside a project workspace. Generation output never reaches a shell; only
// the phase runner invokes this, and only with known verbs.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	orerrors "github.com/openroger/openroger/internal/errors"
	"github.com/openroger/openroger/internal/workspace"
)

// allowedCommands is the fixed allow-list of command prefixes. Matching is
// case-insensitive after trimming.
var allowedCommands = []string{
	"npx create-next-app@latest",
	"npx create-next-app",
	"npm init -y",
	"npm init",
	"npm install",
	"npm run ",
	"node ",
}

// Result holds the captured output of a completed command. A nonzero exit
// is a normal result, not an error.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes allow-listed commands with a timeout and output cap.
type Runner struct {
	ws        *workspace.Store
	timeout   time.Duration
	maxOutput int
	logger    zerolog.Logger
}

// New creates a Runner. timeout 0 means 5 minutes; maxOutput 0 means 10 MiB.
func New(ws *workspace.Store, timeout time.Duration, maxOutput int, logger zerolog.Logger) *Runner {
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	if maxOutput == 0 {
		maxOutput = 10 * 1024 * 1024
	}
	return &Runner{
		ws:        ws,
		timeout:   timeout,
		maxOutput: maxOutput,
		logger:    logger.With().Str("component", "runner").Logger(),
	}
}

// Allowed reports whether command matches the allow-list.
func Allowed(command string) bool {
	normalized := strings.ToLower(strings.TrimSpace(command))
	for _, prefix := range allowedCommands {
		if strings.HasPrefix(normalized, strings.ToLower(strings.TrimSpace(prefix))) {
			return true
		}
	}
	return false
}

// Run executes command in cwdRelative inside the project workspace.
// Fails with ErrCommandNotAllowed for non-whitelisted commands,
// ErrOutOfBoundsPath for escaping working directories, ErrCommandTimeout
// past the wall-clock budget, and ErrCommandFailed when the process could
// not be started.
func (r *Runner) Run(ctx context.Context, projectID, command, cwdRelative string) (*Result, error) {
	if !Allowed(command) {
		verb := command
		if i := strings.IndexByte(verb, ' '); i > 0 {
			verb = verb[:i]
		}
		return nil, fmt.Errorf("%w: %s", orerrors.ErrCommandNotAllowed, verb)
	}

	if cwdRelative == "" {
		cwdRelative = "."
	}
	cwd, err := r.ws.Resolve(projectID, cwdRelative)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	cmd.Dir = cwd
	// Suppress interactive prompts from npm and scaffold tools.
	cmd.Env = append(os.Environ(), "CI=1", "npm_config_yes=true")

	stdout := newCappedBuffer(r.maxOutput)
	stderr := newCappedBuffer(r.maxOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	r.logger.Debug().
		Str("project_id", projectID).
		Str("command", command).
		Str("cwd", cwd).
		Msg("running command")

	runErr := cmd.Run()

	res := &Result{Stdout: stdout.String(), Stderr: stderr.String()}

	if runErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w after %s: %s", orerrors.ErrCommandTimeout, r.timeout, command)
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			// Nonzero exit surfaces as a normal result with captured output.
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return nil, fmt.Errorf("%w: %v", orerrors.ErrCommandFailed, runErr)
	}
	return res, nil
}

// cappedBuffer captures writes up to a byte limit, discarding the rest.
type cappedBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
	max int
}

func newCappedBuffer(max int) *cappedBuffer {
	return &cappedBuffer{max: max}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	remaining := b.max - b.buf.Len()
	if remaining > 0 {
		if len(p) > remaining {
			b.buf.Write(p[:remaining])
		} else {
			b.buf.Write(p)
		}
	}
	// Report full consumption so the subprocess never sees a pipe error.
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
