// Package runner executes model-generated Python scripts.
//
// Scripts run with the full authority of the host: same user, same
// environment, same working directory, network and file system. There is no
// sandbox and no resource limit. Only standard output is returned to callers.
package runner

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"calendar-agent/internal/domain"
	"calendar-agent/internal/logging"
)

//go:embed preamble.py
var preamble string

const (
	driverFile    = "driver.py"
	generatedFile = "generated.py"
	failureMarker = "__exec_failure__:"

	// DefaultWaitDelay is how long output is still drained after the
	// interpreter exits while a process it spawned holds the pipes open.
	DefaultWaitDelay = 2 * time.Second
)

// Config controls how scripts are launched.
type Config struct {
	// PythonPath overrides interpreter discovery (python3, then python).
	PythonPath string
	// WorkDir is where scripts run; credentials.json and token.json live here.
	WorkDir string
	// ScratchDir holds the temporary script files. Defaults to os.TempDir().
	ScratchDir string
	// Timeout bounds a single run. Zero means no limit.
	Timeout time.Duration
	// WaitDelay bounds how long Run waits on pipes inherited by processes the
	// script left running, such as a browser. Defaults to DefaultWaitDelay.
	WaitDelay time.Duration
	Logger    *slog.Logger
}

// Runner executes generated code and captures its output.
type Runner struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Runner.
func New(cfg Config) *Runner {
	cfg.Logger = logging.OrNop(cfg.Logger)
	if cfg.WaitDelay <= 0 {
		cfg.WaitDelay = DefaultWaitDelay
	}
	return &Runner{cfg: cfg, logger: cfg.Logger}
}

// Run executes code in the namespace of the helper preamble. Empty code is
// not run. A failing script never returns an error: the failure is described in
// the report instead.
func (r *Runner) Run(ctx context.Context, code string) domain.ExecutionReport {
	if strings.TrimSpace(code) == "" {
		return domain.ExecutionReport{}
	}

	python, err := r.resolvePython()
	if err != nil {
		r.logger.Warn("runner.python_unavailable", "error", err.Error())
		return domain.ExecutionReport{FailureMessage: err.Error()}
	}

	dir, err := r.writeScripts(code)
	if err != nil {
		r.logger.Warn("runner.script_write_failed", "error", err.Error())
		return domain.ExecutionReport{FailureMessage: err.Error()}
	}
	defer func() { _ = os.RemoveAll(dir) }()

	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, python, "-u", filepath.Join(dir, driverFile), filepath.Join(dir, generatedFile))
	cmd.Dir = r.cfg.WorkDir
	cmd.Env = append(append([]string{}, os.Environ()...), "PYTHONUNBUFFERED=1", "PYTHONIOENCODING=utf-8")
	cmd.WaitDelay = r.cfg.WaitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(started)
	if errors.Is(runErr, exec.ErrWaitDelay) {
		// The interpreter exited cleanly; only a detached child kept the pipes open.
		r.logger.Debug("runner.pipes_held_open", "wait_delay_ms", r.cfg.WaitDelay.Milliseconds())
		runErr = nil
	}

	if stderr.Len() > 0 {
		r.logger.Debug("runner.stderr", "output", stderr.String())
	}

	report := domain.ExecutionReport{CapturedOutput: stdout.String()}
	if runErr != nil {
		report.FailureMessage = failureMessage(stderr.String(), runErr)
		r.logger.Warn("runner.exec_failed", "error", report.FailureMessage, "duration_ms", elapsed.Milliseconds())
		return report
	}
	r.logger.Info("runner.exec_complete", "duration_ms", elapsed.Milliseconds(), "stdout_bytes", stdout.Len())
	return report
}

// writeScripts stages the preamble driver and the generated code in a fresh
// scratch directory.
func (r *Runner) writeScripts(code string) (string, error) {
	dir, err := os.MkdirTemp(r.cfg.ScratchDir, "exec-*")
	if err != nil {
		return "", fmt.Errorf("runner: create scratch dir: %w", err)
	}
	// The interpreter runs from WorkDir, so relative scratch paths would break.
	if abs, absErr := filepath.Abs(dir); absErr == nil {
		dir = abs
	}
	err = errors.Join(
		os.WriteFile(filepath.Join(dir, driverFile), []byte(preamble), 0o600),
		os.WriteFile(filepath.Join(dir, generatedFile), []byte(code+"\n"), 0o600),
	)
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("runner: write scripts: %w", err)
	}
	return dir, nil
}

func (r *Runner) resolvePython() (string, error) {
	if path := strings.TrimSpace(r.cfg.PythonPath); path != "" {
		return exec.LookPath(path)
	}
	if path, err := exec.LookPath("python3"); err == nil {
		return path, nil
	}
	if path, err := exec.LookPath("python"); err == nil {
		return path, nil
	}
	return "", errors.New("python not found in PATH")
}

// failureMessage prefers the message the driver reports for an exception
// raised by the generated code. Otherwise it falls back to the last non-empty
// stderr line, then to the process error.
func failureMessage(stderr string, runErr error) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		rest, ok := strings.CutPrefix(strings.TrimSpace(lines[i]), failureMarker)
		if !ok {
			continue
		}
		var msg string
		if err := json.Unmarshal([]byte(rest), &msg); err == nil && msg != "" {
			return msg
		}
	}
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return runErr.Error()
}
