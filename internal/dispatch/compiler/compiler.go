// Package compiler turns a submission source into something a worker can run.
package compiler

import (
	"context"
	"strings"

	"github.com/google/shlex"

	appErr "fuzdispatch/pkg/errors"
)

// Result contains the compilation outcome.
type Result struct {
	OK           bool
	RunnablePath string
	Log          string
}

// Compiler compiles a source file. A failed compilation is reported through
// Result.OK; the error return is reserved for infrastructure failures.
type Compiler interface {
	Compile(ctx context.Context, sourcePath string) (Result, error)
}

// RunnablePathFor returns the runnable path produced for sourcePath: the
// source path without its extension.
func RunnablePathFor(sourcePath string) string {
	slash := strings.LastIndexAny(sourcePath, `/\`)
	dot := strings.LastIndex(sourcePath, ".")
	if dot <= slash+1 {
		return sourcePath + ".bin"
	}
	return sourcePath[:dot]
}

func buildCommand(tpl string, vars map[string]string) ([]string, error) {
	if strings.TrimSpace(tpl) == "" {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command template is required")
	}
	fields, err := shlex.Split(tpl)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidParams, "parse command template failed")
	}
	if len(fields) == 0 {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command is empty after expansion")
	}
	for i, f := range fields {
		for k, v := range vars {
			f = strings.ReplaceAll(f, "{"+k+"}", v)
		}
		fields[i] = f
	}
	return fields, nil
}
