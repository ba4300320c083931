// Package probe executes the target Ruby's activation script and captures
// its output, using an environment faithful to the user's interactive shell.
package probe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"syscall"
	"time"

	"github.com/rubyenvd/rubyenvd/internal/log"
)

const (
	// maxStderrBytes caps captured stderr. The activation payload rides
	// stderr, so the cap is generous.
	maxStderrBytes = 1 << 20

	// maxStdoutBytes caps captured stdout, kept for diagnostics only.
	maxStdoutBytes = 64 * 1024

	// terminationGracePeriod is the time we wait after SIGTERM before
	// sending SIGKILL.
	terminationGracePeriod = 5 * time.Second

	// DefaultTimeout bounds one probe attempt when the config does not say
	// otherwise.
	DefaultTimeout = 30 * time.Second
)

// Request describes one probe attempt.
type Request struct {
	// RubyPath is the executable path or bare command name to probe.
	RubyPath string

	// Dir is the working directory for the subprocess.
	Dir string

	// ScriptPath is the on-disk location of the activation script.
	ScriptPath string
}

// Output carries the captured streams of a completed probe.
type Output struct {
	Stdout string
	Stderr string
}

// Invoker runs activation probes. One Invoker is shared by all resolvers;
// it holds the shell-selection policy and the per-attempt timeout.
type Invoker struct {
	shell   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewInvoker creates an Invoker. An empty shell disables shell wrapping;
// a non-positive timeout falls back to DefaultTimeout.
func NewInvoker(shell string, timeout time.Duration) *Invoker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Invoker{
		shell:   shell,
		timeout: timeout,
		logger:  log.WithComponent("probe"),
	}
}

// DefaultShell returns the user's interactive shell from $SHELL, or empty
// when unknown.
func DefaultShell() string {
	return os.Getenv("SHELL")
}

// Run executes one probe attempt. Any spawn failure, non-zero exit, or
// timeout is returned as an error with no partial result; retries are the
// caller's business.
func (inv *Invoker) Run(ctx context.Context, req Request) (Output, error) {
	cmd := inv.buildCommand(req)
	cmd.Dir = req.Dir
	// Inherit the current environment so existing PATH customizations
	// survive into the probe.
	cmd.Env = os.Environ()

	var stdout, stderr cappedBuffer
	stdout.limit = maxStdoutBytes
	stderr.limit = maxStderrBytes
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Bound Wait when a grandchild inherits the output pipes.
	cmd.WaitDelay = terminationGracePeriod

	inv.logger.Debug("spawning probe", "ruby", req.RubyPath, "dir", req.Dir, "shell", inv.shell, "timeout", inv.timeout)

	if err := cmd.Start(); err != nil {
		return Output{}, fmt.Errorf("start probe: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	timer := time.NewTimer(inv.timeout)
	defer timer.Stop()

	select {
	case err := <-waitErr:
		if err != nil {
			return Output{}, fmt.Errorf("probe exited abnormally: %w", err)
		}
		return Output{Stdout: stdout.String(), Stderr: stderr.String()}, nil

	case <-ctx.Done():
		inv.terminate(cmd, waitErr)
		return Output{}, ctx.Err()

	case <-timer.C:
		inv.logger.Warn("probe timed out, sending SIGTERM", "ruby", req.RubyPath, "timeout", inv.timeout)
		inv.terminate(cmd, waitErr)
		return Output{}, fmt.Errorf("probe timed out after %v: %w", inv.timeout, context.DeadlineExceeded)
	}
}

// buildCommand assembles the subprocess. On non-Windows platforms with a
// known interactive shell the probe runs through `shell -lc` so that
// rc/profile files installing version-manager hooks execute first. Windows
// gets a direct spawn; shell wrapping there is unreliable for this purpose.
func (inv *Invoker) buildCommand(req Request) *exec.Cmd {
	if inv.shell != "" && runtime.GOOS != "windows" {
		line := fmt.Sprintf("%s -W0 -EUTF-8:UTF-8 %q", req.RubyPath, req.ScriptPath)
		return exec.Command(inv.shell, "-lc", line)
	}
	return exec.Command(req.RubyPath, "-W0", "-EUTF-8:UTF-8", req.ScriptPath)
}

// terminate enforces SIGTERM, a grace period, then SIGKILL.
func (inv *Invoker) terminate(cmd *exec.Cmd, waitErr <-chan error) {
	if cmd.Process == nil {
		return
	}
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		inv.logger.Debug("failed to send SIGTERM", "error", err)
	}

	grace := time.NewTimer(terminationGracePeriod)
	defer grace.Stop()

	select {
	case <-waitErr:
	case <-grace.C:
		inv.logger.Warn("probe ignored SIGTERM, sending SIGKILL")
		_ = cmd.Process.Kill()
		<-waitErr
	}
}

// cappedBuffer accumulates writes up to limit and silently discards the
// rest, so a chatty subprocess cannot balloon memory.
type cappedBuffer struct {
	buf   []byte
	limit int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - len(b.buf); room > 0 {
		if len(p) > room {
			b.buf = append(b.buf, p[:room]...)
		} else {
			b.buf = append(b.buf, p...)
		}
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	return string(b.buf)
}
