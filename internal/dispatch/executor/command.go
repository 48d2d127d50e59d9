package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"fuzdispatch/internal/dispatch/model"
	appErr "fuzdispatch/pkg/errors"
	"fuzdispatch/pkg/utils/logger"
)

const (
	defaultRunTimeout = 10 * time.Second
	waitDelay         = 500 * time.Millisecond
)

// CommandConfig configures CommandExecutor.
type CommandConfig struct {
	// DataDir holds problem-<id>/<n>.in and problem-<id>/<n>.ans.
	DataDir string `json:"dataDir"`
	// Shell, when set, runs the runnable through it (e.g. "sh" for stub runnables).
	Shell string `json:"shell,optional"`
	// DefaultTimeout applies when the request carries no time limit.
	DefaultTimeout time.Duration `json:"defaultTimeout,optional"`
}

// CommandExecutor runs the runnable as a local process, feeding the
// checkpoint input on stdin and comparing stdout with the answer file
// token by token. Resource limits only bound wall time.
type CommandExecutor struct {
	dataDir string
	shell   string
	timeout time.Duration
}

// NewCommandExecutor creates a command executor.
func NewCommandExecutor(cfg CommandConfig) (*CommandExecutor, error) {
	if strings.TrimSpace(cfg.DataDir) == "" {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("executor data dir is required")
	}
	timeout := cfg.DefaultTimeout
	if timeout <= 0 {
		timeout = defaultRunTimeout
	}
	return &CommandExecutor{dataDir: cfg.DataDir, shell: cfg.Shell, timeout: timeout}, nil
}

// CheckpointPaths returns the input and answer files of a checkpoint.
func CheckpointPaths(dataDir, problemID string, checkpoint int) (string, string) {
	base := filepath.Join(dataDir, "problem-"+problemID)
	return filepath.Join(base, fmt.Sprintf("%d.in", checkpoint)), filepath.Join(base, fmt.Sprintf("%d.ans", checkpoint))
}

func (e *CommandExecutor) Run(ctx context.Context, req Request) (model.Verdict, error) {
	if req.RunnablePath == "" || req.Checkpoint <= 0 {
		return "", appErr.ValidationError("request", "runnable_and_checkpoint_required")
	}
	inPath, ansPath := CheckpointPaths(e.dataDir, req.ProblemID, req.Checkpoint)
	input, err := os.ReadFile(inPath)
	if err != nil {
		return "", missingData(err, inPath)
	}
	answer, err := os.ReadFile(ansPath)
	if err != nil {
		return "", missingData(err, ansPath)
	}

	timeout := e.timeout
	if req.Limits.TimeLimit > 0 {
		timeout = time.Duration(req.Limits.TimeLimit * float64(time.Millisecond))
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var cmd *exec.Cmd
	if e.shell != "" {
		cmd = exec.CommandContext(runCtx, e.shell, req.RunnablePath)
	} else {
		cmd = exec.CommandContext(runCtx, req.RunnablePath)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(input)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay
	err = cmd.Run()
	if runCtx.Err() != nil {
		return model.VerdictTLE, nil
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return "", appErr.Wrapf(err, appErr.ExecutorError, "start runnable failed")
		}
		logger.Debug(ctx, "runnable exited abnormally",
			zap.Int("checkpoint", req.Checkpoint),
			zap.Int("exit_code", exitErr.ExitCode()),
		)
		return model.VerdictWA, nil
	}
	if !SameTokens(stdout.Bytes(), answer) {
		return model.VerdictWA, nil
	}
	return model.VerdictAC, nil
}

// SameTokens compares two outputs ignoring whitespace differences.
func SameTokens(got, want []byte) bool {
	a := strings.Fields(string(got))
	b := strings.Fields(string(want))
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func missingData(err error, path string) error {
	if errors.Is(err, fs.ErrNotExist) {
		return appErr.New(appErr.TestCaseNotFound).WithMessage("checkpoint data not found").WithDetail("path", path)
	}
	return appErr.Wrapf(err, appErr.ExecutorError, "read checkpoint data failed")
}
