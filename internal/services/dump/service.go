package dump

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/opsdeck/dbackup/internal/models"
)

// ErrSocketMissing reports a socket path that was absent when the dump was
// attempted.
var ErrSocketMissing = errors.New("database socket not found")

// ErrEmptyDump reports a dump utility that exited cleanly without writing
// any data.
var ErrEmptyDump = errors.New("dump produced an empty file")

// ExitError reports a dump utility that terminated with a nonzero status.
type ExitError struct {
	Utility  string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s exited with status %d", e.Utility, e.ExitCode)
	}

	return fmt.Sprintf("%s exited with status %d: %s", e.Utility, e.ExitCode, e.Stderr)
}

// maxStderrBytes bounds the stderr excerpt kept for failure reports.
const maxStderrBytes = 4096

// CommandExecutor allows mocking command execution in tests. Run streams the
// invocation's stdout into the given writer and reports the exit status; err
// is reserved for failures to start the process at all.
type CommandExecutor interface {
	Run(ctx context.Context, inv Invocation, stdout io.Writer) (exitCode int, stderr string, err error)
}

// DefaultExecutor runs invocations with os/exec.
type DefaultExecutor struct{}

// Run executes a command with the invocation's environment appended to the
// inherited one and stderr captured up to maxStderrBytes.
func (DefaultExecutor) Run(ctx context.Context, inv Invocation, stdout io.Writer) (int, string, error) {
	cmd := exec.CommandContext(ctx, inv.Name, inv.Args...)
	cmd.Env = append(os.Environ(), inv.Env...)
	cmd.Stdout = stdout

	var stderr boundedBuffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), stderr.Excerpt(), nil
		}

		return -1, stderr.Excerpt(), err
	}

	return 0, stderr.Excerpt(), nil
}

// boundedBuffer keeps the first maxStderrBytes of everything written to it.
type boundedBuffer struct {
	buf       []byte
	truncated bool
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	if room := maxStderrBytes - len(b.buf); room >= len(p) {
		b.buf = append(b.buf, p...)
	} else {
		if room > 0 {
			b.buf = append(b.buf, p[:room]...)
		}
		b.truncated = true
	}

	return len(p), nil
}

// Excerpt returns the captured text, trimmed, with a truncation marker when
// output was dropped.
func (b *boundedBuffer) Excerpt() string {
	s := strings.TrimSpace(string(b.buf))
	if b.truncated {
		s += " [truncated]"
	}

	return s
}

// Service defines the interface for dumping a single target.
type Service interface {
	Dump(ctx context.Context, target models.Target, outputDir string) (*models.DumpResult, error)
}

// Impl implements the dump Service.
type Impl struct {
	registry *Registry
	executor CommandExecutor
	logger   zerolog.Logger

	// now stamps output filenames; tests pin it to a fixed instant.
	now func() time.Time
}

// New creates a dump service with the default registry and executor.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		registry: NewRegistry(),
		executor: DefaultExecutor{},
		logger:   logger,
		now:      time.Now,
	}
}

// NewWithExecutor creates a dump service with a custom executor (for testing).
func NewWithExecutor(logger zerolog.Logger, executor CommandExecutor) *Impl {
	return &Impl{
		registry: NewRegistry(),
		executor: executor,
		logger:   logger,
		now:      time.Now,
	}
}

// Dump runs one target's dump utility and writes the output file. Failures
// are reported inside the result so a broken target cannot abort the batch;
// the error return is reserved for unrecoverable conditions. No output file
// is left behind on failure.
func (s *Impl) Dump(ctx context.Context, target models.Target, outputDir string) (*models.DumpResult, error) {
	start := time.Now()
	result := &models.DumpResult{Target: target.Name}

	strategy, err := s.registry.ForType(target.Type)
	if err != nil {
		result.Err = err
		result.Duration = time.Since(start)
		return result, nil
	}

	// The socket has to exist before anything is written to the output
	// directory; an unreachable database must not leave files behind.
	if _, statErr := os.Stat(target.Socket); statErr != nil {
		if os.IsNotExist(statErr) {
			result.Err = fmt.Errorf("%w: %s", ErrSocketMissing, target.Socket)
		} else {
			result.Err = fmt.Errorf("%w: %s: %v", ErrSocketMissing, target.Socket, statErr)
		}
		result.Duration = time.Since(start)
		return result, nil
	}

	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		result.Err = fmt.Errorf("creating output directory: %w", err)
		result.Duration = time.Since(start)
		return result, nil
	}

	outputPath := filepath.Join(outputDir, strategy.OutputFilename(target.Name, s.now()))

	// Dumps carry schema and data for every database; owner-only.
	output, err := os.OpenFile(outputPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		result.Err = fmt.Errorf("creating output file: %w", err)
		result.Duration = time.Since(start)
		return result, nil
	}

	inv := strategy.BuildInvocation(target)

	s.logger.Info().
		Str("target", target.Name).
		Str("type", target.Type).
		Str("utility", inv.Name).
		Str("output", outputPath).
		Msg("starting dump")

	exitCode, stderr, runErr := s.executor.Run(ctx, inv, output)
	closeErr := output.Close()

	switch {
	case runErr != nil:
		result.Err = fmt.Errorf("running %s: %w", inv.Name, runErr)
	case exitCode != 0:
		result.Err = &ExitError{Utility: inv.Name, ExitCode: exitCode, Stderr: stderr}
	case closeErr != nil:
		result.Err = fmt.Errorf("flushing output file: %w", closeErr)
	}
	if result.Err != nil {
		s.removePartial(outputPath)
		result.Duration = time.Since(start)
		return result, nil
	}

	if stderr != "" {
		s.logger.Debug().
			Str("target", target.Name).
			Str("stderr", stderr).
			Msg("dump utility warnings")
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		s.removePartial(outputPath)
		result.Err = fmt.Errorf("inspecting output file: %w", err)
		result.Duration = time.Since(start)
		return result, nil
	}
	if info.Size() == 0 {
		s.removePartial(outputPath)
		result.Err = fmt.Errorf("%w: %s", ErrEmptyDump, inv.Name)
		result.Duration = time.Since(start)
		return result, nil
	}

	result.Succeeded = true
	result.OutputPath = outputPath
	result.SizeBytes = info.Size()
	result.Duration = time.Since(start)

	s.logger.Info().
		Str("target", target.Name).
		Str("output", outputPath).
		Int64("size_bytes", result.SizeBytes).
		Dur("duration", result.Duration).
		Msg("dump completed")

	return result, nil
}

// removePartial drops an incomplete output file.
func (s *Impl) removePartial(path string) {
	if err := os.Remove(path); err != nil {
		s.logger.Warn().Str("file", path).Err(err).Msg("could not remove partial dump")
	}
}
