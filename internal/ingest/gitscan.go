package ingest

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sparkengine/spark/internal/types"
)

// bootstrapCommits bounds the first scan of a repository. Without an
// anchor hash we take the most recent slice of history rather than
// replaying years of commits through the confidence model.
const bootstrapCommits = 50

// GitScanner polls a repository for commits newer than the last one
// it has seen and turns them into commit observations. Timestamps
// come from the commits themselves, so decay math treats backfilled
// history the same as live activity.
type GitScanner struct {
	gitPath    string
	repoPath   string
	normalizer *Normalizer

	mu       sync.Mutex
	lastHash string
}

// NewGitScanner verifies that git is available and that repoPath is a
// working tree.
func NewGitScanner(ctx context.Context, repoPath string, normalizer *Normalizer) (*GitScanner, error) {
	gitPath, err := exec.LookPath("git")
	if err != nil {
		return nil, fmt.Errorf("git not found in PATH: %w", err)
	}

	cmd := exec.CommandContext(ctx, gitPath, "-C", repoPath, "rev-parse", "--git-dir")
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s is not a git repository: %w", repoPath, err)
	}

	return &GitScanner{
		gitPath:    gitPath,
		repoPath:   repoPath,
		normalizer: normalizer,
	}, nil
}

// SetLastHash seeds the scan anchor, typically from the newest commit
// observation already in storage.
func (s *GitScanner) SetLastHash(hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastHash = hash
}

// LastHash returns the newest commit hash a scan has processed.
func (s *GitScanner) LastHash() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHash
}

// Scan returns observations for commits made since the previous scan,
// oldest first. The anchor only advances after the whole batch parses
// cleanly, so a failed scan is retried intact next poll.
func (s *GitScanner) Scan(ctx context.Context) ([]*types.Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasCommits(ctx) {
		return nil, nil
	}
	branch := s.currentBranch(ctx)

	out, err := s.log(ctx, s.lastHash)
	if err != nil {
		if s.lastHash == "" {
			return nil, err
		}
		// The anchor commit can vanish when history is rewritten.
		fmt.Fprintf(os.Stderr, "Warning: incremental scan from %s failed, rescanning recent history: %v\n", shortHash(s.lastHash), err)
		s.lastHash = ""
		if out, err = s.log(ctx, ""); err != nil {
			return nil, err
		}
	}

	records := parseLog(out)
	observations := make([]*types.Observation, 0, len(records))
	for _, rec := range records {
		payload := &types.CommitPayload{
			Hash:       rec.hash,
			Message:    rec.subject,
			Branch:     branch,
			Author:     rec.author,
			Files:      rec.files,
			Insertions: rec.ins,
			Deletions:  rec.del,
		}
		obs, err := s.normalizer.NormalizeAt(payload, rec.when)
		if err != nil {
			return nil, fmt.Errorf("failed to normalize commit %s: %w", shortHash(rec.hash), err)
		}
		observations = append(observations, obs)
	}

	if len(records) > 0 {
		s.lastHash = records[len(records)-1].hash
	}
	return observations, nil
}

func (s *GitScanner) hasCommits(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, s.gitPath, "-C", s.repoPath, "rev-parse", "--verify", "--quiet", "HEAD")
	return cmd.Run() == nil
}

func (s *GitScanner) currentBranch(ctx context.Context) string {
	cmd := exec.CommandContext(ctx, s.gitPath, "-C", s.repoPath, "rev-parse", "--abbrev-ref", "HEAD")
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func (s *GitScanner) log(ctx context.Context, since string) ([]byte, error) {
	args := []string{
		"-C", s.repoPath, "log",
		"--numstat", "--no-merges", "--reverse", "--date=unix",
		"--pretty=format:%H%x1f%an%x1f%ad%x1f%s",
	}
	if since != "" {
		args = append(args, since+"..HEAD")
	} else {
		args = append(args, "-n", strconv.Itoa(bootstrapCommits))
	}

	cmd := exec.CommandContext(ctx, s.gitPath, args...)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git log failed: %w", err)
	}
	return out, nil
}

type commitRecord struct {
	hash    string
	author  string
	when    time.Time
	subject string
	files   []types.FileStat
	ins     int
	del     int
}

// parseLog walks git log output where each commit starts with a
// US-separated header line followed by its numstat block.
func parseLog(out []byte) []*commitRecord {
	var records []*commitRecord
	var cur *commitRecord

	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}

		if strings.Contains(line, "\x1f") {
			parts := strings.SplitN(line, "\x1f", 4)
			if len(parts) != 4 {
				continue
			}
			sec, err := strconv.ParseInt(parts[2], 10, 64)
			if err != nil {
				continue
			}
			cur = &commitRecord{
				hash:    parts[0],
				author:  parts[1],
				when:    time.Unix(sec, 0),
				subject: parts[3],
			}
			records = append(records, cur)
			continue
		}

		if cur == nil {
			continue
		}
		fields := strings.SplitN(line, "\t", 3)
		if len(fields) != 3 {
			continue
		}
		ins := parseStat(fields[0])
		del := parseStat(fields[1])
		cur.files = append(cur.files, types.FileStat{
			Path:       renamePath(fields[2]),
			Insertions: ins,
			Deletions:  del,
		})
		cur.ins += ins
		cur.del += del
	}
	return records
}

// parseStat reads a numstat count. Binary files report "-".
func parseStat(s string) int {
	if s == "-" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

var bracedRename = regexp.MustCompile(`\{([^{}]*) => ([^{}]*)\}`)

// renamePath resolves numstat rename notation to the new path, both
// the braced form dir/{old => new}/file and the whole-path form
// old => new.
func renamePath(p string) string {
	if strings.Contains(p, "{") {
		return path.Clean(bracedRename.ReplaceAllString(p, "$2"))
	}
	if i := strings.LastIndex(p, " => "); i >= 0 {
		return p[i+4:]
	}
	return p
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
