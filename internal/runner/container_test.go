// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package runner

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

// mockExecutor records calls and returns configured responses.
type mockExecutor struct {
	availableBins map[string]bool // binary -> whether LookPath succeeds
	runnableCmds  map[string]bool // "bin arg1 arg2" -> whether RunSilent succeeds
	runPipedFunc  func(name string, args []string, dir string, stdin io.Reader, stdout, stderr io.Writer) error
}

func (m *mockExecutor) LookPath(file string) (string, error) {
	if m.availableBins[file] {
		return "/usr/bin/" + file, nil
	}
	return "", errors.New("not found: " + file)
}

func (m *mockExecutor) RunSilent(_ context.Context, name string, args ...string) error {
	key := name + " " + strings.Join(args, " ")
	if m.runnableCmds[key] {
		return nil
	}
	return errors.New("command failed: " + key)
}

func (m *mockExecutor) RunPiped(_ context.Context, name string, args []string, dir string, stdin io.Reader, stdout, stderr io.Writer) error {
	if m.runPipedFunc != nil {
		return m.runPipedFunc(name, args, dir, stdin, stdout, stderr)
	}
	return nil
}

func TestDetectRuntime(t *testing.T) {
	tests := []struct {
		name     string
		exec     *mockExecutor
		wantName string
		wantErr  bool
	}{
		{
			name: "docker available",
			exec: &mockExecutor{
				availableBins: map[string]bool{"docker": true},
				runnableCmds:  map[string]bool{"docker info": true},
			},
			wantName: "docker",
		},
		{
			name: "podman fallback when docker missing",
			exec: &mockExecutor{
				availableBins: map[string]bool{"podman": true},
				runnableCmds:  map[string]bool{"podman info": true},
			},
			wantName: "podman",
		},
		{
			name: "neither available",
			exec: &mockExecutor{
				availableBins: map[string]bool{},
				runnableCmds:  map[string]bool{},
			},
			wantErr: true,
		},
		{
			name: "docker on PATH but info fails, podman works",
			exec: &mockExecutor{
				availableBins: map[string]bool{"docker": true, "podman": true},
				runnableCmds:  map[string]bool{"podman info": true},
			},
			wantName: "podman",
		},
		{
			name: "both available, docker preferred",
			exec: &mockExecutor{
				availableBins: map[string]bool{"docker": true, "podman": true},
				runnableCmds:  map[string]bool{"docker info": true, "podman info": true},
			},
			wantName: "docker",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt, err := detectRuntime(context.Background(), tt.exec)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !strings.Contains(err.Error(), "no container runtime available") {
					t.Errorf("error should mention no runtime available, got: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rt.Name() != tt.wantName {
				t.Errorf("got runtime %q, want %q", rt.Name(), tt.wantName)
			}
		})
	}
}

func TestImageExists(t *testing.T) {
	tests := []struct {
		name    string
		mkRT    func(*mockExecutor) Runtime
		cmds    map[string]bool
		wantErr bool
	}{
		{
			name: "docker image exists",
			mkRT: func(e *mockExecutor) Runtime { return newDockerRuntime(e) },
			cmds: map[string]bool{"docker image inspect pandoc/latex:latest": true},
		},
		{
			name:    "docker image not found",
			mkRT:    func(e *mockExecutor) Runtime { return newDockerRuntime(e) },
			cmds:    map[string]bool{},
			wantErr: true,
		},
		{
			name: "podman image exists",
			mkRT: func(e *mockExecutor) Runtime { return newPodmanRuntime(e) },
			cmds: map[string]bool{"podman image exists pandoc/latex:latest": true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := tt.mkRT(&mockExecutor{runnableCmds: tt.cmds})
			err := rt.ImageExists(context.Background(), "pandoc/latex:latest")
			if tt.wantErr {
				if err == nil || !strings.Contains(err.Error(), "pandoc/latex:latest") {
					t.Fatalf("expected error mentioning image, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestRuntimeRunArgs(t *testing.T) {
	var gotName string
	var gotArgs []string
	exec := &mockExecutor{runPipedFunc: func(name string, args []string, _ string, stdin io.Reader, stdout, _ io.Writer) error {
		gotName, gotArgs = name, args
		data, _ := io.ReadAll(stdin)
		_, _ = stdout.Write([]byte("converted: " + string(data)))
		return nil
	}}
	rt := newPodmanRuntime(exec)
	var out bytes.Buffer
	err := rt.Run(context.Background(), Spec{
		Image:      "pandoc/latex:latest",
		Entrypoint: "pandoc",
		Args:       []string{"main.tex"},
		Dir:        "/tmp/ws",
		Stdin:      strings.NewReader("tex"),
	}, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "run --rm -i --network=none -v /tmp/ws:/tmp/ws -w /tmp/ws --entrypoint pandoc pandoc/latex:latest main.tex"
	if gotName != "podman" || strings.Join(gotArgs, " ") != want {
		t.Errorf("got %s %v, want podman %s", gotName, gotArgs, want)
	}
	if out.String() != "converted: tex" {
		t.Errorf("got output %q", out.String())
	}
}

func TestRuntimeRunFailureCarriesStderr(t *testing.T) {
	exec := &mockExecutor{runPipedFunc: func(_ string, _ []string, _ string, _ io.Reader, _, stderr io.Writer) error {
		_, _ = stderr.Write([]byte("Error: unknown control sequence\n"))
		return errors.New("exit status 1")
	}}
	err := newDockerRuntime(exec).Run(context.Background(), Spec{Image: "markitdown:latest"}, io.Discard)
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected *ExitError, got %v", err)
	}
	if exitErr.Stderr != "Error: unknown control sequence" {
		t.Errorf("stderr = %q", exitErr.Stderr)
	}
}

func TestContainerRunner(t *testing.T) {
	var gotArgs []string
	exec := &mockExecutor{runPipedFunc: func(_ string, args []string, _ string, _ io.Reader, _, _ io.Writer) error {
		gotArgs = args
		return nil
	}}
	c := NewContainer(newDockerRuntime(exec), nil)

	if err := c.Run(context.Background(), "pandoc", []string{"--to=gfm"}, "/w", nil, io.Discard); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	joined := strings.Join(gotArgs, " ")
	if !strings.Contains(joined, "--entrypoint pandoc "+DefaultImages["pandoc"]+" --to=gfm") {
		t.Errorf("unexpected args: %s", joined)
	}

	if err := c.Run(context.Background(), "latexmk", nil, "/w", nil, io.Discard); err == nil {
		t.Error("expected error for unmapped program")
	}
}

func TestRuntimeName(t *testing.T) {
	exec := &mockExecutor{}
	if got := newDockerRuntime(exec).Name(); got != "docker" {
		t.Errorf("docker runtime name = %q, want %q", got, "docker")
	}
	if got := newPodmanRuntime(exec).Name(); got != "podman" {
		t.Errorf("podman runtime name = %q, want %q", got, "podman")
	}
}
