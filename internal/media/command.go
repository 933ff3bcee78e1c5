package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// CommandError is a failed ffmpeg or ffprobe invocation with its stderr.
type CommandError struct {
	Tool   string
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s error: %v\nargs: %v\nstderr: %s", e.Tool, e.Err, e.Args, e.Stderr)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// run executes a media tool and returns its stdout.
func run(ctx context.Context, tool string, args []string) ([]byte, error) {
	// #nosec G204 - the binary path comes from configuration, not user input
	cmd := exec.CommandContext(ctx, tool, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s cancelled: %w", tool, ctx.Err())
		}
		return nil, &CommandError{
			Tool:   tool,
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}
	return stdout.Bytes(), nil
}
