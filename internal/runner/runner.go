// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package runner executes converter programs, either directly on the host
// or inside a docker/podman container. Every run is bound to a context:
// when the context ends the process is killed.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"
)

// maxStderr bounds the diagnostic text kept from a failed process.
const maxStderr = 4 << 10

// Runner runs one program to completion, feeding stdin and collecting stdout.
type Runner interface {
	Run(ctx context.Context, program string, args []string, dir string, stdin io.Reader, stdout io.Writer) error
}

// ExitError reports a program that failed to start, exited non-zero or was
// killed. Stderr holds the tail of its diagnostic output.
type ExitError struct {
	Program string
	Err     error
	Stderr  string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s: %v", e.Program, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Program, e.Err, e.Stderr)
}

func (e *ExitError) Unwrap() error { return e.Err }

// executor abstracts command execution for testing.
type executor interface {
	LookPath(file string) (string, error)
	RunSilent(ctx context.Context, name string, args ...string) error
	RunPiped(ctx context.Context, name string, args []string, dir string, stdin io.Reader, stdout, stderr io.Writer) error
}

// osExecutor is the production executor backed by os/exec.
type osExecutor struct{}

func (o *osExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (o *osExecutor) RunSilent(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

func (o *osExecutor) RunPiped(ctx context.Context, name string, args []string, dir string, stdin io.Reader, stdout, stderr io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	// Do not wait forever on pipes held open by orphaned children.
	cmd.WaitDelay = 2 * time.Second
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w (%v)", ctxErr, err)
		}
		return err
	}
	return nil
}

var defaultExec executor = &osExecutor{}

// Native runs programs directly on the host.
type Native struct {
	exec executor
}

// NewNative returns a host runner.
func NewNative() *Native {
	return &Native{exec: defaultExec}
}

// Run executes program in dir.
func (n *Native) Run(ctx context.Context, program string, args []string, dir string, stdin io.Reader, stdout io.Writer) error {
	var stderr bytes.Buffer
	if err := n.exec.RunPiped(ctx, program, args, dir, stdin, stdout, &stderr); err != nil {
		return &ExitError{Program: program, Err: err, Stderr: tail(stderr.String())}
	}
	return nil
}

// Available reports whether program is on PATH.
func (n *Native) Available(program string) bool {
	_, err := n.exec.LookPath(program)
	return err == nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderr {
		s = "..." + s[len(s)-maxStderr:]
	}
	return s
}
