package task

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os/exec"
	"slices"
	"time"

	"github.com/signalnine/gauntlet/eval"
)

type CommandOptions struct {
	Argv    []string
	Dir     string
	Env     map[string]string
	Timeout time.Duration
}

// Command runs a local program once per case. The input is written to stdin
// as JSON and stdout is decoded as the output. A non-zero exit fails the
// case with the tail of stderr.
type Command struct {
	opts CommandOptions
}

func NewCommand(opts CommandOptions) (*Command, error) {
	if len(opts.Argv) == 0 {
		return nil, fmt.Errorf("command task: command is required")
	}
	return &Command{opts: opts}, nil
}

func (c *Command) Run(ctx context.Context, input any) (any, error) {
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	tb := eval.StartTrace()
	out, code, err := c.exec(ctx, input)
	tb.Metadata(map[string]any{"command": c.opts.Argv[0], "exit_code": code})
	if err != nil {
		eval.EmitTrace(ctx, tb.FinishWithError(input, err))
		return nil, err
	}
	eval.EmitTrace(ctx, tb.Finish(input, out, nil))
	return out, nil
}

func (c *Command) exec(ctx context.Context, input any) (any, int, error) {
	stdin, err := json.Marshal(input)
	if err != nil {
		return nil, -1, fmt.Errorf("encoding input: %w", err)
	}

	cmd := exec.CommandContext(ctx, c.opts.Argv[0], c.opts.Argv[1:]...)
	cmd.Dir = c.opts.Dir
	if len(c.opts.Env) > 0 {
		env := cmd.Environ()
		for _, k := range slices.Sorted(maps.Keys(c.opts.Env)) {
			env = append(env, k+"="+c.opts.Env[k])
		}
		cmd.Env = env
	}
	cmd.Stdin = bytes.NewReader(append(stdin, '\n'))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, -1, fmt.Errorf("%s: %w", c.opts.Argv[0], ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, exitErr.ExitCode(), fmt.Errorf("%s exited %d: %s", c.opts.Argv[0], exitErr.ExitCode(), tail(stderr.String(), 512))
		}
		return nil, -1, fmt.Errorf("running %s: %w", c.opts.Argv[0], err)
	}
	return decodeOutput(stdout.Bytes()), 0, nil
}
