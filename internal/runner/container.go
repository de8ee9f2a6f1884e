// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
)

const (
	binDocker = "docker"
	binPodman = "podman"
)

// DefaultImages maps converter programs to the container images that
// provide them.
var DefaultImages = map[string]string{
	"pandoc":    "pandoc/latex:latest",
	"pdftotext": "minidocks/poppler:latest",
}

// Spec describes one container run.
type Spec struct {
	Image string
	// Entrypoint overrides the image entrypoint when set.
	Entrypoint string
	Args       []string
	// Dir is bind-mounted at the same path and used as the working
	// directory, so file arguments resolve identically inside and out.
	Dir   string
	Stdin io.Reader
}

// Runtime provides container operations: checking availability, verifying
// images, and running containers.
type Runtime interface {
	// Name returns the runtime name ("docker" or "podman").
	Name() string

	// Available reports whether the runtime binary exists on PATH and
	// responds to an info command.
	Available(ctx context.Context) bool

	// ImageExists checks whether the named image exists locally.
	ImageExists(ctx context.Context, image string) error

	// Run executes a container described by spec, writing its stdout to
	// stdout. The container is removed when it exits.
	Run(ctx context.Context, spec Spec, stdout io.Writer) error
}

// runtime implements Runtime for a specific container binary. Docker and
// Podman differ only in binary name and the image-check subcommand.
type runtime struct {
	bin           string
	imageCheckCmd []string
	exec          executor
}

func (r *runtime) Name() string { return r.bin }

func (r *runtime) Available(ctx context.Context) bool {
	if _, err := r.exec.LookPath(r.bin); err != nil {
		return false
	}
	return r.exec.RunSilent(ctx, r.bin, "info") == nil
}

func (r *runtime) ImageExists(ctx context.Context, image string) error {
	args := make([]string, 0, len(r.imageCheckCmd)+1)
	args = append(args, r.imageCheckCmd...)
	args = append(args, image)

	if err := r.exec.RunSilent(ctx, r.bin, args...); err != nil {
		return fmt.Errorf("image %s not found in %s: %w", image, r.bin, err)
	}
	return nil
}

func (r *runtime) Run(ctx context.Context, spec Spec, stdout io.Writer) error {
	args := runArgs(spec)
	var stderr bytes.Buffer
	if err := r.exec.RunPiped(ctx, r.bin, args, "", spec.Stdin, stdout, &stderr); err != nil {
		return &ExitError{Program: r.bin + " " + spec.Image, Err: err, Stderr: tail(stderr.String())}
	}
	return nil
}

func runArgs(spec Spec) []string {
	args := []string{"run", "--rm", "-i", "--network=none"}
	if spec.Dir != "" {
		args = append(args, "-v", spec.Dir+":"+spec.Dir, "-w", spec.Dir)
	}
	if spec.Entrypoint != "" {
		args = append(args, "--entrypoint", spec.Entrypoint)
	}
	args = append(args, spec.Image)
	return append(args, spec.Args...)
}

func newDockerRuntime(exec executor) *runtime {
	return &runtime{
		bin:           binDocker,
		imageCheckCmd: []string{"image", "inspect"},
		exec:          exec,
	}
}

func newPodmanRuntime(exec executor) *runtime {
	return &runtime{
		bin:           binPodman,
		imageCheckCmd: []string{"image", "exists"},
		exec:          exec,
	}
}

// DetectRuntime tries docker first, falls back to podman. Returns an error
// if neither runtime is available.
func DetectRuntime(ctx context.Context) (Runtime, error) {
	return detectRuntime(ctx, defaultExec)
}

func detectRuntime(ctx context.Context, exec executor) (Runtime, error) {
	docker := newDockerRuntime(exec)
	if docker.Available(ctx) {
		return docker, nil
	}

	podman := newPodmanRuntime(exec)
	if podman.Available(ctx) {
		return podman, nil
	}

	return nil, fmt.Errorf(
		"no container runtime available: neither %s nor %s found or operational",
		binDocker, binPodman,
	)
}

// Container runs converter programs inside images from a Runtime. Each
// program is run with its name as the entrypoint of the mapped image.
type Container struct {
	rt     Runtime
	images map[string]string
}

// NewContainer returns a Runner backed by rt. A nil images map uses
// DefaultImages.
func NewContainer(rt Runtime, images map[string]string) *Container {
	if images == nil {
		images = DefaultImages
	}
	return &Container{rt: rt, images: images}
}

// Run executes program inside its mapped image with dir mounted.
func (c *Container) Run(ctx context.Context, program string, args []string, dir string, stdin io.Reader, stdout io.Writer) error {
	image, ok := c.images[program]
	if !ok {
		return &ExitError{Program: program, Err: fmt.Errorf("no container image configured for %s", program)}
	}
	return c.rt.Run(ctx, Spec{Image: image, Entrypoint: program, Args: args, Dir: dir, Stdin: stdin}, stdout)
}
