package confidence

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/sparkengine/spark/internal/types"
)

func commitObservation(id string, payload *types.CommitPayload) *types.Observation {
	return &types.Observation{
		ID:        id,
		Source:    types.SourceCommit,
		Timestamp: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		ProjectID: "proj-1",
		Commit:    payload,
	}
}

func findExtraction(t *testing.T, extractions []Extraction, key string) Extraction {
	t.Helper()
	for _, ex := range extractions {
		if ex.Key == key {
			return ex
		}
	}
	t.Fatalf("Expected extraction for key %s, got keys %v", key, extractionKeys(extractions))
	return Extraction{}
}

func extractionKeys(extractions []Extraction) []string {
	keys := make([]string, len(extractions))
	for i, ex := range extractions {
		keys[i] = ex.Key
	}
	return keys
}

func TestExtractCommitSupportingSignals(t *testing.T) {
	obs := commitObservation("obs-1", &types.CommitPayload{
		Hash:    "abc123",
		Message: "feat(engine): add pattern scoring",
		Branch:  "feature/pattern-scoring",
		Files: []types.FileStat{
			{Path: "internal/engine/scorer.go", Insertions: 120},
			{Path: "internal/engine/scorer_test.go", Insertions: 80},
		},
		Insertions: 200,
	})

	extractions, err := Extract(obs)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	lang := findExtraction(t, extractions, "lang:go")
	if lang.Category != types.CategoryLanguage {
		t.Errorf("Expected language category, got %s", lang.Category)
	}
	if lang.Weight != 1.0 {
		t.Errorf("Expected lang:go weight 1.0 for an all-Go commit, got %f", lang.Weight)
	}
	if lang.Label != "Go" {
		t.Errorf("Expected label Go, got %s", lang.Label)
	}

	if ex := findExtraction(t, extractions, "style:small-commits"); ex.Weight != 1.0 {
		t.Errorf("Expected small-commits weight 1.0, got %f", ex.Weight)
	}
	if ex := findExtraction(t, extractions, "style:test-driven"); ex.Weight != 1.0 {
		t.Errorf("Expected test-driven weight 1.0, got %f", ex.Weight)
	}
	if ex := findExtraction(t, extractions, "workflow:conventional-commits"); ex.Weight != 1.0 {
		t.Errorf("Expected conventional-commits weight 1.0, got %f", ex.Weight)
	}
	if ex := findExtraction(t, extractions, "workflow:feature-branches"); ex.Weight != 1.0 {
		t.Errorf("Expected feature-branches weight 1.0, got %f", ex.Weight)
	}

	interest := findExtraction(t, extractions, "interest:internal")
	if interest.Category != types.CategoryInterest {
		t.Errorf("Expected interest category, got %s", interest.Category)
	}
	if interest.Weight != 1.0 {
		t.Errorf("Expected interest:internal weight 1.0, got %f", interest.Weight)
	}
}

func TestExtractCommitContradictingSignals(t *testing.T) {
	files := make([]types.FileStat, 12)
	for i := range files {
		files[i] = types.FileStat{Path: "src/gen/file" + string(rune('a'+i)) + ".go"}
	}

	obs := commitObservation("obs-2", &types.CommitPayload{
		Hash:    "def456",
		Message: "big sweep of changes before vacation",
		Branch:  "master",
		Files:   files,
	})

	extractions, err := Extract(obs)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if ex := findExtraction(t, extractions, "style:small-commits"); ex.Weight != weakSignal {
		t.Errorf("Expected large commit to contradict small-commits with weight %f, got %f", weakSignal, ex.Weight)
	}
	if ex := findExtraction(t, extractions, "style:test-driven"); ex.Weight != weakSignal {
		t.Errorf("Expected untested commit to contradict test-driven with weight %f, got %f", weakSignal, ex.Weight)
	}
	if ex := findExtraction(t, extractions, "workflow:conventional-commits"); ex.Weight != weakSignal {
		t.Errorf("Expected plain message to carry weight %f, got %f", weakSignal, ex.Weight)
	}
	if ex := findExtraction(t, extractions, "workflow:feature-branches"); ex.Weight != weakSignal {
		t.Errorf("Expected mainline commit to carry weight %f, got %f", weakSignal, ex.Weight)
	}
}

func TestExtractCommitLanguageShares(t *testing.T) {
	obs := commitObservation("obs-3", &types.CommitPayload{
		Hash:    "aaa111",
		Message: "fix: align parser output",
		Files: []types.FileStat{
			{Path: "internal/parser/parser.go"},
			{Path: "internal/parser/grammar.go"},
			{Path: "web/app.ts"},
			{Path: "README.md"},
		},
	})

	extractions, err := Extract(obs)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if ex := findExtraction(t, extractions, "lang:go"); ex.Weight != 0.5 {
		t.Errorf("Expected lang:go share 0.5, got %f", ex.Weight)
	}
	if ex := findExtraction(t, extractions, "lang:typescript"); ex.Weight != 0.25 {
		t.Errorf("Expected lang:typescript share 0.25, got %f", ex.Weight)
	}
	for _, ex := range extractions {
		if ex.Key == "lang:markdown" {
			t.Errorf("Did not expect a language extraction for README.md")
		}
	}
}

func TestExtractFileChange(t *testing.T) {
	obs := &types.Observation{
		ID:        "obs-4",
		Source:    types.SourceFileChange,
		Timestamp: time.Now(),
		ProjectID: "proj-1",
		FileChange: &types.FileChangePayload{
			Path: "internal/watcher/debounce.go",
			Op:   types.FileModified,
		},
	}

	extractions, err := Extract(obs)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if ex := findExtraction(t, extractions, "lang:go"); ex.Weight != fileChangeSignal {
		t.Errorf("Expected file change language weight %f, got %f", fileChangeSignal, ex.Weight)
	}
	if ex := findExtraction(t, extractions, "interest:internal"); ex.Weight != fileChangeSignal {
		t.Errorf("Expected file change interest weight %f, got %f", fileChangeSignal, ex.Weight)
	}

	// A deletion still marks the area but not the language.
	obs.FileChange.Op = types.FileDeleted
	extractions, err = Extract(obs)
	if err != nil {
		t.Fatalf("Extract failed for deletion: %v", err)
	}
	for _, ex := range extractions {
		if ex.Key == "lang:go" {
			t.Errorf("Did not expect a language extraction for a deleted file")
		}
	}
	findExtraction(t, extractions, "interest:internal")
}

func TestExtractTestRun(t *testing.T) {
	obs := &types.Observation{
		ID:        "obs-5",
		Source:    types.SourceTestRun,
		Timestamp: time.Now(),
		ProjectID: "proj-1",
		TestRun: &types.TestRunPayload{
			Framework: "go-test",
			Passed:    42,
			Failed:    1,
			Duration:  12 * time.Second,
		},
	}

	extractions, err := Extract(obs)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if ex := findExtraction(t, extractions, "style:test-driven"); ex.Weight != testRunSignal {
		t.Errorf("Expected test run weight %f, got %f", testRunSignal, ex.Weight)
	}
	if ex := findExtraction(t, extractions, "style:fast-feedback"); ex.Weight != 1.0 {
		t.Errorf("Expected fast-feedback weight 1.0 for a 12s run, got %f", ex.Weight)
	}
	if ex := findExtraction(t, extractions, "lang:go"); ex.Weight != fileChangeSignal {
		t.Errorf("Expected framework language weight %f, got %f", fileChangeSignal, ex.Weight)
	}

	// An empty run carries no signal.
	obs.TestRun = &types.TestRunPayload{Framework: "go-test"}
	extractions, err = Extract(obs)
	if err != nil {
		t.Fatalf("Extract failed for empty run: %v", err)
	}
	if len(extractions) != 0 {
		t.Errorf("Expected no extractions for an empty test run, got %v", extractionKeys(extractions))
	}
}

func TestExtractUnrecognizedSource(t *testing.T) {
	obs := &types.Observation{
		ID:        "obs-6",
		Source:    types.ObservationSource("telemetry"),
		Timestamp: time.Now(),
		ProjectID: "proj-1",
	}

	_, err := Extract(obs)
	if !errors.Is(err, types.ErrUnrecognizedObservation) {
		t.Errorf("Expected ErrUnrecognizedObservation, got %v", err)
	}
}

func TestExtractDeterministic(t *testing.T) {
	obs := commitObservation("obs-7", &types.CommitPayload{
		Hash:    "bcd234",
		Message: "refactor: simplify goal packing",
		Branch:  "feature/packing",
		Files: []types.FileStat{
			{Path: "internal/goals/generate.go"},
			{Path: "internal/goals/generate_test.go"},
			{Path: "cmd/spark/plan.go"},
		},
	})

	first, err := Extract(obs)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	second, err := Extract(obs)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("Expected identical extractions, got %v then %v", first, second)
	}
}

func TestIsTestPath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"internal/storage/sqlite_test.go", true},
		{"tests/integration/run.py", true},
		{"src/__tests__/app.spec.ts", true},
		{"test_parser.py", true},
		{"internal/storage/sqlite.go", false},
		{"docs/testing.md", false},
	}

	for _, tt := range tests {
		if got := isTestPath(tt.path); got != tt.want {
			t.Errorf("isTestPath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestTopDir(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"internal/engine/engine.go", "internal"},
		{"cmd/spark/main.go", "cmd"},
		{"README.md", ""},
		{"vendor/modules.txt", ""},
		{".github/workflows/ci.yml", ""},
	}

	for _, tt := range tests {
		if got := topDir(tt.path); got != tt.want {
			t.Errorf("topDir(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
