package confidence

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/sparkengine/spark/internal/types"
)

// Extraction is one pattern signal pulled from an observation: the key
// it supports, the category and display label used when the pattern is
// first created, and how strongly the observation supports it (0.0 to
// 1.0). Contradicting evidence arrives as a low weight rather than a
// separate channel; the consistency term of the scorer picks it up.
type Extraction struct {
	Key      string
	Category types.PatternCategory
	Label    string
	Weight   float64
}

const (
	// smallCommitFiles is the file count below which a commit supports
	// the small-commit style.
	smallCommitFiles = 5
	// largeCommitFiles is the file count at which a commit contradicts
	// the small-commit style.
	largeCommitFiles = 10

	// minInterestShare is the share of a commit's files a directory must
	// hold before it registers as an interest area.
	minInterestShare = 0.25

	// weakSignal is the weight carried by contradicting evidence.
	weakSignal = 0.2
	// fileChangeSignal is the weight of a single-file event, which says
	// much less than a whole commit.
	fileChangeSignal = 0.3
	// testRunSignal is the weight a test run contributes to the
	// test-driven style.
	testRunSignal = 0.8
)

// conventionalCommitRe matches conventional-commit subjects, checked
// against the lowercased first line of the message.
var conventionalCommitRe = regexp.MustCompile(`^(feat|fix|docs|style|refactor|test|chore)(\(.+\))?: .+`)

type language struct {
	key   string
	label string
}

var languageByExtension = map[string]language{
	".go":    {"go", "Go"},
	".py":    {"python", "Python"},
	".js":    {"javascript", "JavaScript"},
	".jsx":   {"javascript", "JavaScript"},
	".mjs":   {"javascript", "JavaScript"},
	".ts":    {"typescript", "TypeScript"},
	".tsx":   {"typescript", "TypeScript"},
	".rs":    {"rust", "Rust"},
	".java":  {"java", "Java"},
	".kt":    {"kotlin", "Kotlin"},
	".swift": {"swift", "Swift"},
	".c":     {"c", "C"},
	".h":     {"c", "C"},
	".cpp":   {"cpp", "C++"},
	".cc":    {"cpp", "C++"},
	".hpp":   {"cpp", "C++"},
	".rb":    {"ruby", "Ruby"},
	".php":   {"php", "PHP"},
	".cs":    {"csharp", "C#"},
	".scala": {"scala", "Scala"},
	".clj":   {"clojure", "Clojure"},
	".hs":    {"haskell", "Haskell"},
	".ex":    {"elixir", "Elixir"},
	".exs":   {"elixir", "Elixir"},
	".dart":  {"dart", "Dart"},
	".lua":   {"lua", "Lua"},
	".zig":   {"zig", "Zig"},
	".sh":    {"shell", "Shell"},
}

// languageByFramework maps test framework names reported by test runs
// to the language they imply.
var languageByFramework = map[string]language{
	"go-test":  {"go", "Go"},
	"gotest":   {"go", "Go"},
	"pytest":   {"python", "Python"},
	"unittest": {"python", "Python"},
	"jest":     {"javascript", "JavaScript"},
	"mocha":    {"javascript", "JavaScript"},
	"vitest":   {"typescript", "TypeScript"},
	"cargo":    {"rust", "Rust"},
	"rspec":    {"ruby", "Ruby"},
	"junit":    {"java", "Java"},
}

// uninterestingDirs are top-level directories that never count as
// interest areas.
var uninterestingDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"target":       true,
	"out":          true,
}

// IsCodeExtension reports whether the extension maps to a language the
// extractor recognizes. Observation sources use it to drop noise
// before an observation is ever built.
func IsCodeExtension(ext string) bool {
	_, ok := languageByExtension[strings.ToLower(ext)]
	return ok
}

// LanguageLabel returns the display name for the language implied by
// the extension, e.g. ".go" to "Go".
func LanguageLabel(ext string) (string, bool) {
	lang, ok := languageByExtension[strings.ToLower(ext)]
	if !ok {
		return "", false
	}
	return lang.label, true
}

// Extract maps an observation to the pattern signals it carries. The
// result is deterministic: each key appears at most once (strongest
// weight wins) and keys are sorted. An observation whose source no
// extractor understands returns ErrUnrecognizedObservation; callers
// treat that as a warning, not a failure.
func Extract(obs *types.Observation) ([]Extraction, error) {
	switch obs.Source {
	case types.SourceCommit, types.SourceFileChange, types.SourceTestRun:
	default:
		return nil, fmt.Errorf("%w: source %q", types.ErrUnrecognizedObservation, obs.Source)
	}

	if err := obs.Validate(); err != nil {
		return nil, fmt.Errorf("invalid observation: %w", err)
	}

	var out []Extraction
	switch obs.Source {
	case types.SourceCommit:
		out = extractCommit(obs.Commit)
	case types.SourceFileChange:
		out = extractFileChange(obs.FileChange)
	case types.SourceTestRun:
		out = extractTestRun(obs.TestRun)
	}

	return dedupe(out), nil
}

func extractCommit(c *types.CommitPayload) []Extraction {
	var out []Extraction

	total := len(c.Files)
	langs := map[string]language{}
	langFiles := map[string]int{}
	dirFiles := map[string]int{}
	testFiles, codeFiles := 0, 0

	for _, f := range c.Files {
		if lang, ok := languageByExtension[strings.ToLower(filepath.Ext(f.Path))]; ok {
			langs[lang.key] = lang
			langFiles[lang.key]++
			if isTestPath(f.Path) {
				testFiles++
			} else {
				codeFiles++
			}
		}
		if dir := topDir(f.Path); dir != "" {
			dirFiles[dir]++
		}
	}

	// Language signals weighted by each language's share of the commit.
	for _, key := range sortedKeys(langFiles) {
		lang := langs[key]
		out = append(out, Extraction{
			Key:      "lang:" + lang.key,
			Category: types.CategoryLanguage,
			Label:    lang.label,
			Weight:   float64(langFiles[key]) / float64(total),
		})
	}

	switch {
	case total > 0 && total < smallCommitFiles:
		out = append(out, Extraction{
			Key:      "style:small-commits",
			Category: types.CategoryStyle,
			Label:    "Small focused commits",
			Weight:   1.0,
		})
	case total >= largeCommitFiles:
		out = append(out, Extraction{
			Key:      "style:small-commits",
			Category: types.CategoryStyle,
			Label:    "Small focused commits",
			Weight:   weakSignal,
		})
	}

	if testFiles > 0 && codeFiles > 0 {
		out = append(out, Extraction{
			Key:      "style:test-driven",
			Category: types.CategoryStyle,
			Label:    "Tests alongside code",
			Weight:   1.0,
		})
	} else if codeFiles >= 3 && testFiles == 0 {
		out = append(out, Extraction{
			Key:      "style:test-driven",
			Category: types.CategoryStyle,
			Label:    "Tests alongside code",
			Weight:   weakSignal,
		})
	}

	if msg := firstLine(c.Message); msg != "" {
		weight := weakSignal
		if conventionalCommitRe.MatchString(strings.ToLower(msg)) {
			weight = 1.0
		}
		out = append(out, Extraction{
			Key:      "workflow:conventional-commits",
			Category: types.CategoryWorkflow,
			Label:    "Conventional commit messages",
			Weight:   weight,
		})
	}

	if c.Branch != "" {
		weight := 1.0
		if isMainlineBranch(c.Branch) {
			weight = weakSignal
		}
		out = append(out, Extraction{
			Key:      "workflow:feature-branches",
			Category: types.CategoryWorkflow,
			Label:    "Feature branch workflow",
			Weight:   weight,
		})
	}

	for _, dir := range sortedKeys(dirFiles) {
		share := float64(dirFiles[dir]) / float64(total)
		if share < minInterestShare {
			continue
		}
		out = append(out, Extraction{
			Key:      "interest:" + dir,
			Category: types.CategoryInterest,
			Label:    "Active in " + dir + "/",
			Weight:   share,
		})
	}

	return out
}

func extractFileChange(fc *types.FileChangePayload) []Extraction {
	var out []Extraction

	ext := strings.ToLower(fc.Extension)
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(fc.Path))
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	// Deletions still mark activity in an area but say nothing about
	// current language use.
	if fc.Op != types.FileDeleted {
		if lang, ok := languageByExtension[ext]; ok {
			out = append(out, Extraction{
				Key:      "lang:" + lang.key,
				Category: types.CategoryLanguage,
				Label:    lang.label,
				Weight:   fileChangeSignal,
			})
		}
	}

	if dir := topDir(fc.Path); dir != "" {
		out = append(out, Extraction{
			Key:      "interest:" + dir,
			Category: types.CategoryInterest,
			Label:    "Active in " + dir + "/",
			Weight:   fileChangeSignal,
		})
	}

	return out
}

func extractTestRun(tr *types.TestRunPayload) []Extraction {
	if tr.Passed+tr.Failed+tr.Skipped == 0 {
		return nil
	}

	out := []Extraction{{
		Key:      "style:test-driven",
		Category: types.CategoryStyle,
		Label:    "Tests alongside code",
		Weight:   testRunSignal,
	}}

	if tr.Duration > 0 {
		switch {
		case tr.Duration <= 30*time.Second:
			out = append(out, Extraction{
				Key:      "style:fast-feedback",
				Category: types.CategoryStyle,
				Label:    "Fast test feedback loop",
				Weight:   1.0,
			})
		case tr.Duration >= 5*time.Minute:
			out = append(out, Extraction{
				Key:      "style:fast-feedback",
				Category: types.CategoryStyle,
				Label:    "Fast test feedback loop",
				Weight:   weakSignal,
			})
		}
	}

	if lang, ok := languageByFramework[strings.ToLower(tr.Framework)]; ok {
		out = append(out, Extraction{
			Key:      "lang:" + lang.key,
			Category: types.CategoryLanguage,
			Label:    lang.label,
			Weight:   fileChangeSignal,
		})
	}

	return out
}

// isTestPath reports whether a path names a test file under common
// conventions (Go _test files, test_ prefixes, .spec/.test infixes,
// test directories).
func isTestPath(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	if strings.HasSuffix(base, "_test.go") ||
		strings.HasPrefix(base, "test_") ||
		strings.Contains(base, ".test.") ||
		strings.Contains(base, ".spec.") {
		return true
	}
	lower := strings.ToLower(filepath.ToSlash(path))
	return strings.Contains(lower, "/test/") ||
		strings.Contains(lower, "/tests/") ||
		strings.Contains(lower, "/__tests__/")
}

func isMainlineBranch(branch string) bool {
	switch strings.ToLower(branch) {
	case "main", "master", "trunk", "develop", "development":
		return true
	}
	return false
}

// topDir returns the first path segment of a repo-relative path, or ""
// for root-level files and directories that carry no interest signal.
func topDir(path string) string {
	clean := filepath.ToSlash(filepath.Clean(path))
	i := strings.Index(clean, "/")
	if i <= 0 {
		return ""
	}
	dir := clean[:i]
	if uninterestingDirs[dir] || strings.HasPrefix(dir, ".") {
		return ""
	}
	return dir
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// dedupe collapses repeated keys to their strongest weight and orders
// the result by key.
func dedupe(in []Extraction) []Extraction {
	if len(in) == 0 {
		return nil
	}
	byKey := make(map[string]Extraction, len(in))
	for _, e := range in {
		if prev, ok := byKey[e.Key]; !ok || e.Weight > prev.Weight {
			byKey[e.Key] = e
		}
	}
	out := make([]Extraction, 0, len(byKey))
	for _, e := range byKey {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
