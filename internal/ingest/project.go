package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/mod/modfile"
	"golang.org/x/mod/semver"

	"github.com/sparkengine/spark/internal/confidence"
	"github.com/sparkengine/spark/internal/types"
)

// scanFileCap bounds the census walk on very large trees. The profile
// is a sketch of the project, not an inventory.
const scanFileCap = 20000

// maxTopDirs caps how many root-level directories the profile keeps.
const maxTopDirs = 8

// maxLanguages caps how many language labels the profile keeps.
const maxLanguages = 3

// ProjectScanner builds a coarse profile of the project: its primary
// languages, top-level layout, whether it carries tests, and the size
// of its Go dependency surface. The profile feeds goal generation, so
// it favors stable output over completeness.
type ProjectScanner struct {
	root      string
	projectID string
	now       func() time.Time
}

func NewProjectScanner(root, projectID string) *ProjectScanner {
	return &ProjectScanner{
		root:      root,
		projectID: projectID,
		now:       time.Now,
	}
}

// Scan walks the project tree once and returns a fresh profile.
func (s *ProjectScanner) Scan(ctx context.Context) (*types.ProjectProfile, error) {
	profile := &types.ProjectProfile{
		ProjectID: s.projectID,
		Root:      s.root,
		ScannedAt: s.now(),
	}

	s.scanModule(profile)

	if err := s.scanTopDirs(profile); err != nil {
		return nil, err
	}
	if err := s.census(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// scanModule reads go.mod when present. A project without one is not
// an error; a malformed one is reported and otherwise ignored.
func (s *ProjectScanner) scanModule(profile *types.ProjectProfile) {
	modPath := filepath.Join(s.root, "go.mod")
	data, err := os.ReadFile(modPath)
	if err != nil {
		return
	}

	mf, err := modfile.Parse("go.mod", data, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to parse %s: %v\n", modPath, err)
		return
	}

	if mf.Module != nil {
		profile.ModulePath = mf.Module.Mod.Path
	}
	for _, req := range mf.Require {
		if req.Indirect || !semver.IsValid(req.Mod.Version) {
			continue
		}
		profile.DependencyCount++
	}
}

func (s *ProjectScanner) scanTopDirs(profile *types.ProjectProfile) error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return fmt.Errorf("failed to read project root %s: %w", s.root, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") || watchIgnoredDirs[name] {
			continue
		}
		profile.TopDirs = append(profile.TopDirs, name)
		if len(profile.TopDirs) == maxTopDirs {
			break
		}
	}
	return nil
}

// census walks the tree counting files per language and looking for
// test conventions across ecosystems.
func (s *ProjectScanner) census(ctx context.Context, profile *types.ProjectProfile) error {
	counts := make(map[string]int)
	files := 0

	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == s.root {
				return err
			}
			return fs.SkipDir
		}
		name := d.Name()
		if d.IsDir() {
			if p == s.root {
				return nil
			}
			if strings.HasPrefix(name, ".") || watchIgnoredDirs[name] {
				return fs.SkipDir
			}
			if isTestDirName(name) {
				profile.HasTests = true
			}
			return nil
		}

		files++
		if files > scanFileCap {
			return fs.SkipAll
		}
		if files%512 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		if label, ok := confidence.LanguageLabel(strings.ToLower(filepath.Ext(name))); ok {
			counts[label]++
		}
		if isTestFileName(name) {
			profile.HasTests = true
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan project tree: %w", err)
	}

	profile.Languages = topLanguages(counts, maxLanguages)
	return nil
}

func topLanguages(counts map[string]int, limit int) []string {
	type langCount struct {
		label string
		n     int
	}
	ranked := make([]langCount, 0, len(counts))
	for label, n := range counts {
		ranked = append(ranked, langCount{label: label, n: n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].n != ranked[j].n {
			return ranked[i].n > ranked[j].n
		}
		return ranked[i].label < ranked[j].label
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	labels := make([]string, len(ranked))
	for i, lc := range ranked {
		labels[i] = lc.label
	}
	return labels
}

func isTestDirName(name string) bool {
	switch name {
	case "test", "tests", "__tests__":
		return true
	}
	return false
}

func isTestFileName(name string) bool {
	if strings.HasSuffix(name, "_test.go") {
		return true
	}
	if strings.HasPrefix(name, "test_") && strings.HasSuffix(name, ".py") {
		return true
	}
	return strings.Contains(name, ".spec.") || strings.Contains(name, ".test.")
}
