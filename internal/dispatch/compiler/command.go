package compiler

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"

	appErr "fuzdispatch/pkg/errors"
	"fuzdispatch/pkg/utils/logger"
)

const (
	defaultCompileTimeout = 30 * time.Second
	maxCompileLog         = 64 << 10
)

// CommandConfig configures CommandCompiler.
type CommandConfig struct {
	// Template is split with shell rules; {source} and {output} are replaced
	// after splitting, e.g. "g++ -O2 -std=c++17 -o {output} {source}".
	Template string        `json:"template"`
	Timeout  time.Duration `json:"timeout,optional"`
}

// CommandCompiler runs an external compiler process.
type CommandCompiler struct {
	template string
	timeout  time.Duration
}

// NewCommandCompiler validates the template and creates a compiler.
func NewCommandCompiler(cfg CommandConfig) (*CommandCompiler, error) {
	if _, err := buildCommand(cfg.Template, nil); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultCompileTimeout
	}
	return &CommandCompiler{template: cfg.Template, timeout: timeout}, nil
}

func (c *CommandCompiler) Compile(ctx context.Context, sourcePath string) (Result, error) {
	if _, err := os.Stat(sourcePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Result{OK: false, Log: "source not found"}, nil
		}
		return Result{}, appErr.Wrapf(err, appErr.JudgeSystemError, "stat source failed")
	}
	runnable := RunnablePathFor(sourcePath)
	args, err := buildCommand(c.template, map[string]string{
		"source": sourcePath,
		"output": runnable,
	})
	if err != nil {
		return Result{}, err
	}

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var out bytes.Buffer
	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	cmd.WaitDelay = time.Second
	start := time.Now()
	err = cmd.Run()
	log := truncate(out.String(), maxCompileLog)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) || runCtx.Err() != nil {
			logger.Info(ctx, "compilation failed",
				zap.String("source", sourcePath),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err),
			)
			return Result{OK: false, Log: log}, nil
		}
		return Result{}, appErr.Wrapf(err, appErr.JudgeSystemError, "start compiler failed")
	}
	return Result{OK: true, RunnablePath: runnable, Log: log}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
