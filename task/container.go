package task

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/signalnine/gauntlet/eval"
	"github.com/signalnine/gauntlet/internal/docker"
)

type ContainerOptions struct {
	Image           string
	Command         []string
	Env             map[string]string
	Timeout         time.Duration
	CPULimit        float64
	MemoryLimit     int64
	NetworkDisabled bool
}

// Container runs each case in a fresh container. The input is mounted as
// /eval/input.json and the container must write /eval/output.json; when it
// does not, the tail of its logs is used as the output.
type Container struct {
	opts ContainerOptions
	run  func(context.Context, *docker.RunOpts) (*docker.RunResult, error)
}

func NewContainer(opts ContainerOptions) (*Container, error) {
	if opts.Image == "" {
		return nil, fmt.Errorf("container task: image is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Minute
	}
	return &Container{opts: opts, run: docker.RunContainer}, nil
}

func (c *Container) Run(ctx context.Context, input any) (any, error) {
	tb := eval.StartTrace().Model(c.opts.Image)
	out, res, err := c.exec(ctx, input)
	md := map[string]any{"image": c.opts.Image}
	if res != nil {
		md["exit_code"] = res.ExitCode
		md["exit_reason"] = res.ExitReason()
		md["duration_ms"] = res.Duration.Milliseconds()
	}
	tb.Metadata(md)
	if err != nil {
		eval.EmitTrace(ctx, tb.FinishWithError(input, err))
		return nil, err
	}
	eval.EmitTrace(ctx, tb.Finish(input, out, nil))
	return out, nil
}

func (c *Container) exec(ctx context.Context, input any) (any, *docker.RunResult, error) {
	workDir, err := os.MkdirTemp("", "gauntlet-case-")
	if err != nil {
		return nil, nil, fmt.Errorf("creating work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	data, err := json.Marshal(input)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding input: %w", err)
	}
	if err := os.WriteFile(filepath.Join(workDir, "input.json"), data, 0o644); err != nil {
		return nil, nil, fmt.Errorf("writing input: %w", err)
	}

	env := map[string]string{
		"EVAL_INPUT":  path.Join(docker.WorkMount, "input.json"),
		"EVAL_OUTPUT": path.Join(docker.WorkMount, "output.json"),
	}
	for k, v := range c.opts.Env {
		env[k] = v
	}

	res, err := c.run(ctx, &docker.RunOpts{
		Image:           c.opts.Image,
		Command:         c.opts.Command,
		WorkDir:         workDir,
		Env:             env,
		Timeout:         c.opts.Timeout,
		CPULimit:        c.opts.CPULimit,
		MemoryLimit:     c.opts.MemoryLimit,
		NetworkDisabled: c.opts.NetworkDisabled,
	})
	if err != nil {
		return nil, nil, err
	}
	switch res.ExitReason() {
	case "completed":
	case "timeout":
		return nil, res, fmt.Errorf("container timed out after %s", c.opts.Timeout)
	default:
		return nil, res, fmt.Errorf("container %s (exit %d): %s", res.ExitReason(), res.ExitCode, tail(res.Logs, 512))
	}

	raw, err := os.ReadFile(filepath.Join(workDir, "output.json"))
	if os.IsNotExist(err) {
		return decodeOutput([]byte(res.Logs)), res, nil
	}
	if err != nil {
		return nil, res, fmt.Errorf("reading output: %w", err)
	}
	return decodeOutput(raw), res, nil
}
