// Package client drives a judger binary over its stdin/stdout frame
// protocol: one request frame in, one response frame out.
package client

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/theoj/go-judger/model"
)

// DefaultPath resolves the judger through PATH when none is given.
const DefaultPath = "go-judger"

// Client runs judging requests through a judger executable. The zero
// value is usable.
type Client struct {
	// Path locates the judger binary. Empty means DefaultPath.
	Path string
	// Args are extra command line arguments, e.g. "-silent".
	Args []string
	// Stderr receives the judger's diagnostics. Nil means the caller's
	// stderr.
	Stderr io.Writer
	// Logger traces process handling. Nil means silent.
	Logger *zap.Logger
}

// Run executes one request and decodes the response. Cancelling the
// context kills the judger, which collapses its whole sandbox. When the
// judger reports an internal error it exits non-zero after responding;
// Run then returns both the decoded response and an error.
func (c *Client) Run(ctx context.Context, cfg *model.Config) (model.Result, error) {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	path := c.Path
	if path == "" {
		path = DefaultPath
	}
	cmd := exec.CommandContext(ctx, path, c.Args...)
	cmd.Stderr = c.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return model.Result{}, fmt.Errorf("open request pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return model.Result{}, fmt.Errorf("open response pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return model.Result{}, fmt.Errorf("start judger: %w", err)
	}
	logger.Debug("judger started",
		zap.String("path", path), zap.Int("pid", cmd.Process.Pid))

	// Send and receive concurrently; the judger reads the whole request
	// before it responds, so a serial writer could wedge on big frames.
	var res model.Result
	g := new(errgroup.Group)
	g.Go(func() error {
		defer stdin.Close()
		if err := model.WriteConfig(stdin, cfg); err != nil {
			return fmt.Errorf("send request: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if res, err = model.ReadResult(stdout); err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		return nil
	})
	gerr := g.Wait()
	werr := cmd.Wait()
	logger.Debug("judger finished", zap.Error(werr))
	if gerr != nil {
		if werr != nil {
			return model.Result{}, fmt.Errorf("judger exited abnormally: %v", werr)
		}
		return model.Result{}, gerr
	}
	if werr != nil {
		return res, fmt.Errorf("judger exited abnormally: %w", werr)
	}
	return res, nil
}
