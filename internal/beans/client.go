// Package beans wraps the beans CLI binary.
package beans

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/selfagency/beans-vscode-sub002/internal/bean"
)

var (
	// ErrNotFound is returned when the CLI reports an unknown bean id.
	ErrNotFound = errors.New("bean not found")
	// ErrConflict is returned when an update's etag no longer matches.
	ErrConflict = errors.New("bean was modified concurrently")
)

// Runner executes the beans binary and returns its stdout. On failure the
// returned error should carry whatever the process wrote to stderr.
type Runner interface {
	Run(ctx context.Context, bin string, args ...string) ([]byte, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, bin string, args ...string) ([]byte, error)

func (f RunnerFunc) Run(ctx context.Context, bin string, args ...string) ([]byte, error) {
	return f(ctx, bin, args...)
}

// ExecRunner runs the binary with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, bin string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("start %s: %w", bin, err)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		return stdout.Bytes(), &ExitError{Err: err, Output: msg}
	}
	return stdout.Bytes(), nil
}

// ExitError is a failed CLI invocation.
type ExitError struct {
	Err    error
	Output string
}

func (e *ExitError) Error() string {
	if e.Output == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v: %s", e.Err, e.Output)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Client talks to the beans CLI.
type Client struct {
	Bin      string // path to beans binary (default: "beans")
	DataPath string // --beans-path value (optional)

	retries    int
	timeout    time.Duration
	runner     Runner
	newBackOff func() backoff.BackOff
	log        *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithRunner replaces the process runner.
func WithRunner(r Runner) Option { return func(c *Client) { c.runner = r } }

// WithRetries sets how many times a transient failure is retried.
func WithRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.retries = n
		}
	}
}

// WithTimeout bounds each CLI invocation. Zero disables the bound.
func WithTimeout(d time.Duration) Option { return func(c *Client) { c.timeout = d } }

// WithBackOff sets the retry schedule factory. BackOff values are stateful,
// so the factory is called once per operation.
func WithBackOff(f func() backoff.BackOff) Option { return func(c *Client) { c.newBackOff = f } }

// WithLogger sets the logger used for retry notices.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClient creates a Client using the given binary and data path.
func NewClient(bin, dataPath string, opts ...Option) *Client {
	if bin == "" {
		bin = "beans"
	}
	c := &Client{
		Bin:      bin,
		DataPath: dataPath,
		retries:  2,
		timeout:  30 * time.Second,
		runner:   ExecRunner{},
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = 200 * time.Millisecond
			bo.MaxElapsedTime = 10 * time.Second
			return bo
		},
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) baseArgs() []string {
	if c.DataPath != "" {
		return []string{"--beans-path", c.DataPath}
	}
	return nil
}

// run invokes the CLI, retrying transient failures. parse turns the raw
// output into a result; a parse failure is never retried.
func (c *Client) run(ctx context.Context, args []string, parse func([]byte) error) error {
	all := append(c.baseArgs(), args...)
	op := func() error {
		callCtx := ctx
		if c.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
		out, err := c.runner.Run(callCtx, c.Bin, all...)
		if err != nil {
			if missingBinary(err) {
				return backoff.Permanent(fmt.Errorf("beans %s: %w", strings.Join(args, " "), err))
			}
			if sentinel := classify(outputOf(err, out)); sentinel != nil {
				return backoff.Permanent(fmt.Errorf("beans %s: %w: %w", strings.Join(args, " "), sentinel, err))
			}
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("beans %s: %w", strings.Join(args, " "), err)
		}
		if parse == nil {
			return nil
		}
		if err := parse(out); err != nil {
			return backoff.Permanent(fmt.Errorf("beans %s: %w", strings.Join(args, " "), err))
		}
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(c.retries)), ctx)
	return backoff.RetryNotify(op, bo, func(err error, wait time.Duration) {
		c.log.WarnContext(ctx, "beans command failed; retrying", "args", strings.Join(args, " "), "wait", wait, "err", err)
	})
}

// missingBinary reports whether err means the CLI could not be started.
func missingBinary(err error) bool {
	var execErr *exec.Error
	return errors.As(err, &execErr) || errors.Is(err, fs.ErrNotExist)
}

// outputOf returns what the process itself printed. The error text is never
// used, so OS-level failures are not mistaken for CLI answers.
func outputOf(err error, out []byte) string {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Output != "" {
		return exitErr.Output
	}
	return string(out)
}

// classify maps CLI failure text to a sentinel, or nil if it looks transient.
func classify(msg string) error {
	if m := errorMessage([]byte(msg)); m != "" {
		msg = m
	}
	l := strings.ToLower(msg)
	switch {
	case strings.Contains(l, "no such bean"), strings.Contains(l, "unknown bean"),
		strings.Contains(l, "bean") && strings.Contains(l, "not found"):
		return ErrNotFound
	case strings.Contains(l, "etag mismatch"), strings.Contains(l, "etag does not match"),
		strings.Contains(l, "if-match"), strings.Contains(l, "precondition failed"),
		strings.Contains(l, "modified since"):
		return ErrConflict
	}
	return nil
}

// Filter narrows a List call. Empty fields are not sent.
type Filter struct {
	Statuses []bean.Status
	Types    []bean.Type
	Tags     []string
	Search   string
}

func (f Filter) args() []string {
	var args []string
	for _, s := range f.Statuses {
		args = append(args, "--status", string(s))
	}
	for _, t := range f.Types {
		args = append(args, "--type", string(t))
	}
	for _, tag := range f.Tags {
		args = append(args, "--tag", tag)
	}
	if f.Search != "" {
		args = append(args, "--search", f.Search)
	}
	return args
}

// List returns all beans matching filter.
func (c *Client) List(ctx context.Context, filter Filter) ([]bean.Bean, error) {
	var beans []bean.Bean
	err := c.run(ctx, append([]string{"list", "--json"}, filter.args()...), func(out []byte) error {
		var err error
		beans, err = parseList(out)
		return err
	})
	if err != nil {
		return nil, err
	}
	return beans, nil
}

// Show returns a single bean. Unknown ids yield ErrNotFound.
func (c *Client) Show(ctx context.Context, id string) (bean.Bean, error) {
	var b bean.Bean
	err := c.run(ctx, []string{"show", "--json", id}, func(out []byte) error {
		var err error
		b, err = parseOne(out)
		return err
	})
	return b, err
}

// SetParent points id at parent, or clears the parent when parent is empty.
// A non-empty etag makes the update conditional.
func (c *Client) SetParent(ctx context.Context, id, parent, etag string) error {
	args := []string{"update", id}
	if parent == "" {
		args = append(args, "--remove-parent")
	} else {
		args = append(args, "--parent", parent)
	}
	if etag != "" {
		args = append(args, "--if-match", etag)
	}
	return c.run(ctx, args, nil)
}

// UpdateStatus changes a bean's status.
func (c *Client) UpdateStatus(ctx context.Context, id string, status bean.Status, etag string) error {
	args := []string{"update", id, "--status", string(status)}
	if etag != "" {
		args = append(args, "--if-match", etag)
	}
	return c.run(ctx, args, nil)
}
