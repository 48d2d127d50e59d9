package compiler

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"go.uber.org/zap"

	appErr "fuzdispatch/pkg/errors"
	"fuzdispatch/pkg/utils/logger"
)

// StubProgram is the content FakeCompiler writes as the runnable.
const StubProgram = "echo hello world"

// FakeCompiler accepts any existing source and writes a stub runnable next
// to it. A missing source is a compilation failure.
type FakeCompiler struct{}

// NewFakeCompiler creates a fake compiler.
func NewFakeCompiler() *FakeCompiler {
	return &FakeCompiler{}
}

func (c *FakeCompiler) Compile(ctx context.Context, sourcePath string) (Result, error) {
	if _, err := os.Stat(sourcePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn(ctx, "source not found", zap.String("source", sourcePath))
			return Result{OK: false, Log: "source not found"}, nil
		}
		return Result{}, appErr.Wrapf(err, appErr.JudgeSystemError, "stat source failed")
	}
	runnable := RunnablePathFor(sourcePath)
	if err := os.WriteFile(runnable, []byte(StubProgram), 0o755); err != nil {
		return Result{}, appErr.Wrapf(err, appErr.JudgeSystemError, "write runnable failed")
	}
	return Result{OK: true, RunnablePath: runnable}, nil
}
