package ingest

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sparkengine/spark/internal/types"
)

// goTestPatterns match the line shapes go test emits. Test-level
// lines only appear under -v; package lines appear either way.
var goTestPatterns = struct {
	testPass    *regexp.Regexp
	testFail    *regexp.Regexp
	testSkip    *regexp.Regexp
	packageOK   *regexp.Regexp
	packageFail *regexp.Regexp
}{
	testPass:    regexp.MustCompile(`^--- PASS: `),
	testFail:    regexp.MustCompile(`^--- FAIL: `),
	testSkip:    regexp.MustCompile(`^--- SKIP: `),
	packageOK:   regexp.MustCompile(`^ok\s+\S+\s+(?:\(cached\)|([0-9.]+)s)`),
	packageFail: regexp.MustCompile(`^FAIL\s+\S+(?:\s+\[.+\]|\s+([0-9.]+)s)?`),
}

// TestRunReporter turns test results into test_run observations.
// Results arrive either pre-counted through Report or as raw go test
// output through ReportOutput.
type TestRunReporter struct {
	normalizer *Normalizer
}

func NewTestRunReporter(normalizer *Normalizer) *TestRunReporter {
	return &TestRunReporter{normalizer: normalizer}
}

// Report records an already-counted test run.
func (r *TestRunReporter) Report(framework string, passed, failed, skipped int, duration time.Duration) (*types.Observation, error) {
	payload := &types.TestRunPayload{
		Framework: framework,
		Passed:    passed,
		Failed:    failed,
		Skipped:   skipped,
		Duration:  duration,
	}
	return r.normalizer.Normalize(payload)
}

// ReportOutput parses raw go test output and records the result.
func (r *TestRunReporter) ReportOutput(output string) (*types.Observation, error) {
	payload, err := ParseGoTest(output)
	if err != nil {
		return nil, err
	}
	return r.normalizer.Normalize(payload)
}

// ParseGoTest extracts pass/fail/skip counts and total duration from
// go test output. Verbose runs are counted per test, subtests
// included; non-verbose runs fall back to per-package results.
func ParseGoTest(output string) (*types.TestRunPayload, error) {
	var testPassed, testFailed, testSkipped int
	var pkgPassed, pkgFailed int
	var total time.Duration
	sawPackage := false

	sc := bufio.NewScanner(strings.NewReader(output))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimLeft(line, " \t")
		switch {
		case goTestPatterns.testPass.MatchString(trimmed):
			testPassed++
		case goTestPatterns.testFail.MatchString(trimmed):
			testFailed++
		case goTestPatterns.testSkip.MatchString(trimmed):
			testSkipped++
		default:
			if m := goTestPatterns.packageOK.FindStringSubmatch(line); m != nil {
				sawPackage = true
				pkgPassed++
				total += parseSeconds(m[1])
			} else if m := goTestPatterns.packageFail.FindStringSubmatch(line); m != nil {
				sawPackage = true
				pkgFailed++
				total += parseSeconds(m[1])
			}
		}
	}

	if testPassed+testFailed+testSkipped == 0 {
		if !sawPackage {
			return nil, fmt.Errorf("no go test results found in output")
		}
		testPassed, testFailed = pkgPassed, pkgFailed
	}

	return &types.TestRunPayload{
		Framework: "go-test",
		Passed:    testPassed,
		Failed:    testFailed,
		Skipped:   testSkipped,
		Duration:  total,
	}, nil
}

func parseSeconds(s string) time.Duration {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return time.Duration(f * float64(time.Second))
}
