package substrate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/sparkengine/spark/internal/sandbox"
	"github.com/sparkengine/spark/internal/types"
)

// LocalSubstrate runs artifacts as child processes on this machine.
type LocalSubstrate struct{}

func NewLocalSubstrate() *LocalSubstrate {
	return &LocalSubstrate{}
}

// Name identifies this substrate in events and diagnostics.
func (s *LocalSubstrate) Name() string { return "local" }

// Ping verifies the local substrate can execute artifacts. The Go
// toolchain is the one runtime every artifact profile needs.
func (s *LocalSubstrate) Ping(ctx context.Context) error {
	if _, err := exec.LookPath("go"); err != nil {
		return fmt.Errorf("%w: go toolchain not found in PATH", types.ErrSubstrateUnreachable)
	}
	return nil
}

// Execute writes the artifact into the sandbox and runs its entry
// point with the working directory set to the sandbox root.
func (s *LocalSubstrate) Execute(ctx context.Context, sb *sandbox.Sandbox, artifact *types.Artifact, constraints Constraints) (*ExecResult, error) {
	if sb == nil {
		return nil, fmt.Errorf("sandbox cannot be nil")
	}
	if err := artifact.Validate(); err != nil {
		return nil, fmt.Errorf("invalid artifact: %w", err)
	}
	if err := materialize(sb.Path, artifact); err != nil {
		return nil, err
	}

	argv, err := commandFor(artifact)
	if err != nil {
		return nil, err
	}

	runCtx := ctx
	if constraints.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, constraints.Timeout)
		defer cancel()
	}

	maxOutput := constraints.MaxOutputBytes
	if maxOutput <= 0 {
		maxOutput = DefaultOutputCap
	}
	out := &cappedBuffer{max: maxOutput}

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = sb.Path
	cmd.Stdout = out
	cmd.Stderr = out
	// Grandchildren can inherit the output pipes; don't let them hold
	// Wait hostage after the kill.
	cmd.WaitDelay = 5 * time.Second

	start := time.Now()
	runErr := cmd.Run()
	result := &ExecResult{
		ExitStatus: exitStatus(runErr),
		Output:     out.String(),
		Truncated:  out.truncated,
		Duration:   time.Since(start),
	}

	if err := runCtx.Err(); err != nil {
		return result, fmt.Errorf("execution stopped after %s: %w", result.Duration.Round(time.Millisecond), err)
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			// Non-zero exit: the validator's problem, not ours.
			return result, nil
		}
		return nil, fmt.Errorf("failed to run %s: %w", argv[0], runErr)
	}
	return result, nil
}

// commandFor picks the interpreter for the artifact's entry point.
func commandFor(artifact *types.Artifact) ([]string, error) {
	entry := filepath.FromSlash(artifact.EntryPoint)
	switch strings.ToLower(filepath.Ext(entry)) {
	case ".go":
		return []string{"go", "run", entry}, nil
	case ".py":
		return []string{"python3", entry}, nil
	case ".js":
		return []string{"node", entry}, nil
	case ".sh":
		return []string{"sh", entry}, nil
	default:
		return nil, fmt.Errorf("no runner for entry point %s", artifact.EntryPoint)
	}
}

// materialize writes artifact files under the sandbox root. Paths are
// confined to the sandbox; anything absolute or escaping is rejected.
func materialize(root string, artifact *types.Artifact) error {
	for _, f := range artifact.Files {
		rel, err := confinedPath(f.Path)
		if err != nil {
			return fmt.Errorf("artifact file %q: %w", f.Path, err)
		}
		dst := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("failed to create artifact directory: %w", err)
		}
		if err := os.WriteFile(dst, []byte(f.Content), 0o644); err != nil {
			return fmt.Errorf("failed to write artifact file %s: %w", rel, err)
		}
	}
	return nil
}

func confinedPath(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("empty path")
	}
	if filepath.IsAbs(p) {
		return "", fmt.Errorf("absolute path not allowed")
	}
	clean := filepath.Clean(filepath.FromSlash(p))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes sandbox")
	}
	return clean, nil
}

func exitStatus(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// cappedBuffer keeps at most max bytes and drops the rest, remembering
// that it did.
type cappedBuffer struct {
	buf       bytes.Buffer
	max       int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	remaining := b.max - b.buf.Len()
	if remaining <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		b.buf.Write(p[:remaining])
		b.truncated = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) String() string {
	return b.buf.String()
}
