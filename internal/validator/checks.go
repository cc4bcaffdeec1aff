package validator

import (
	"bufio"
	"fmt"
	"regexp"
	"strings"

	"github.com/sparkengine/spark/internal/substrate"
	"github.com/sparkengine/spark/internal/types"
)

// Generated artifacts run unattended, so anything that reaches outside
// the sandbox is a hard violation: process spawning, network access,
// low-level syscalls, destructive file operations, parent-directory
// traversal.
var unsafePatterns = []*regexp.Regexp{
	regexp.MustCompile(`"os/exec"`),
	regexp.MustCompile(`"net"`),
	regexp.MustCompile(`"net/(http|smtp|mail|rpc|textproto)"`),
	regexp.MustCompile(`"syscall"`),
	regexp.MustCompile(`"unsafe"`),
	regexp.MustCompile(`exec\.Command`),
	regexp.MustCompile(`os\.RemoveAll\(`),
	regexp.MustCompile(`net\.(Dial|Listen)`),
	regexp.MustCompile(`http\.(Get|Post|PostForm|Head)\(`),
	regexp.MustCompile(`rm -rf`),
	regexp.MustCompile(`\.\./`),
}

// Caution patterns are survivable but worth surfacing: environment
// probing, reflection, intentional panics, signal handling, one-off
// file deletion.
var cautionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`os\.Getenv\(`),
	regexp.MustCompile(`"reflect"`),
	regexp.MustCompile(`panic\(`),
	regexp.MustCompile(`"os/signal"`),
	regexp.MustCompile(`os\.Remove\(`),
}

var identRegex = regexp.MustCompile(`\b[a-zA-Z_]\w{2,}\b`)

// checkSafety scans every file for unsafe and caution patterns. Any
// unsafe match is a hard issue; caution matches degrade the score.
func checkSafety(artifact *types.Artifact) CheckResult {
	result := CheckResult{Check: CheckSafety, Score: 1.0, Passed: true}

	for _, f := range artifact.Files {
		for _, re := range unsafePatterns {
			if m := re.FindString(f.Content); m != "" {
				result.Issues = append(result.Issues, fmt.Sprintf("unsafe pattern %q in %s", m, f.Path))
			}
		}
		for _, re := range cautionPatterns {
			if m := re.FindString(f.Content); m != "" {
				result.Warnings = append(result.Warnings, fmt.Sprintf("risky pattern %q in %s", m, f.Path))
			}
		}
	}

	switch {
	case len(result.Issues) > 0:
		result.Score = 0.0
		result.Passed = false
	case len(result.Warnings) > 0:
		result.Score = 0.5
	}
	return result
}

// checkStructure verifies the artifact is shaped like a runnable
// program: valid field values, non-empty files, balanced brackets
// outside strings and comments, and a main package at the entry point
// for Go artifacts.
func checkStructure(artifact *types.Artifact) CheckResult {
	result := CheckResult{Check: CheckStructure, Score: 1.0, Passed: true}

	if err := artifact.Validate(); err != nil {
		result.Issues = append(result.Issues, fmt.Sprintf("malformed artifact: %v", err))
	}

	for _, f := range artifact.Files {
		if strings.TrimSpace(f.Content) == "" {
			result.Issues = append(result.Issues, fmt.Sprintf("empty file %s", f.Path))
			continue
		}
		if !balancedBrackets(f.Content) {
			result.Issues = append(result.Issues, fmt.Sprintf("unbalanced brackets in %s", f.Path))
		}
		if f.Path != artifact.EntryPoint {
			continue
		}
		if artifact.Language == "go" || strings.HasSuffix(f.Path, ".go") {
			if !strings.Contains(f.Content, "package main") {
				result.Issues = append(result.Issues, fmt.Sprintf("entry point %s is not a main package", f.Path))
			}
			if !strings.Contains(f.Content, "func main(") {
				result.Issues = append(result.Issues, fmt.Sprintf("entry point %s has no main function", f.Path))
			}
		}
	}

	if len(result.Issues) > 0 {
		result.Score = 0.0
		result.Passed = false
	}
	return result
}

// checkQuality applies soft heuristics for readable source: comments,
// named identifiers, function structure. Never raises hard issues.
func checkQuality(artifact *types.Artifact) CheckResult {
	result := CheckResult{Check: CheckQuality, Passed: true}

	var all strings.Builder
	for _, f := range artifact.Files {
		all.WriteString(f.Content)
		all.WriteString("\n")
	}
	content := all.String()
	if strings.TrimSpace(content) == "" {
		return result
	}

	score := 0.5
	if strings.Contains(content, "//") || strings.Contains(content, "/*") {
		score += 0.2
	}
	if len(identRegex.FindAllString(content, 5)) > 3 {
		score += 0.2
	}
	if strings.Contains(content, "func ") {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	result.Score = score
	return result
}

// checkCompleteness estimates whether the artifact is a finished
// program rather than a sketch. Unfinished markers turn into warnings
// and cost score; they never block a pass on their own.
func checkCompleteness(artifact *types.Artifact) CheckResult {
	result := CheckResult{Check: CheckCompleteness, Passed: true}

	var all strings.Builder
	for _, f := range artifact.Files {
		all.WriteString(f.Content)
		all.WriteString("\n")
	}
	content := all.String()
	if strings.TrimSpace(content) == "" {
		return result
	}

	score := 0.4
	upper := strings.ToUpper(content)
	if strings.Contains(upper, "TODO") || strings.Contains(upper, "FIXME") {
		score -= 0.2
		result.Warnings = append(result.Warnings, "unfinished marker (TODO/FIXME) in artifact source")
	}
	if artifact.TotalBytes() > 200 && !strings.Contains(content, "not implemented") {
		score += 0.4
	}
	if strings.Contains(content, "import ") || strings.Contains(content, "import (") {
		score += 0.2
	}
	if score < 0 {
		score = 0
	}
	if score > 1.0 {
		score = 1.0
	}
	result.Score = score
	return result
}

// checkExecution turns the recorded execution outcome into a check. A
// non-zero exit is the hard issue that fails validation; silence and
// truncation are advisory.
func checkExecution(exec *substrate.ExecResult) CheckResult {
	result := CheckResult{Check: CheckExecution, Score: 1.0, Passed: true}

	if exec.ExitStatus != 0 {
		result.Score = 0.0
		result.Passed = false
		result.Issues = append(result.Issues, fmt.Sprintf("exit status %d", exec.ExitStatus))
	} else if strings.TrimSpace(exec.Output) == "" {
		result.Score = 0.5
		result.Warnings = append(result.Warnings, "execution produced no output")
	}
	if exec.Truncated {
		result.Warnings = append(result.Warnings, "output truncated at the capture limit")
	}
	return result
}

// balancedBrackets checks bracket pairing while skipping string
// literals, rune literals, and comments.
func balancedBrackets(src string) bool {
	var stack []byte
	n := len(src)
	for i := 0; i < n; i++ {
		switch src[i] {
		case '/':
			if i+1 < n && src[i+1] == '/' {
				for i < n && src[i] != '\n' {
					i++
				}
			} else if i+1 < n && src[i+1] == '*' {
				i += 2
				for i+1 < n && !(src[i] == '*' && src[i+1] == '/') {
					i++
				}
				i++
			}
		case '"':
			for i++; i < n && src[i] != '"'; i++ {
				if src[i] == '\\' {
					i++
				}
			}
		case '\'':
			for i++; i < n && src[i] != '\''; i++ {
				if src[i] == '\\' {
					i++
				}
			}
		case '`':
			for i++; i < n && src[i] != '`'; i++ {
			}
		case '(', '[', '{':
			stack = append(stack, src[i])
		case ')', ']', '}':
			if len(stack) == 0 {
				return false
			}
			open := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if closerOf(open) != src[i] {
				return false
			}
		}
	}
	return len(stack) == 0
}

func closerOf(open byte) byte {
	switch open {
	case '(':
		return ')'
	case '[':
		return ']'
	default:
		return '}'
	}
}

// parseTestSignals counts verbose-mode test markers in execution
// output so test-running artifacts report pass and fail tallies.
func parseTestSignals(output string) (passed, failed int) {
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "--- PASS") {
			passed++
		} else if strings.HasPrefix(line, "--- FAIL") {
			failed++
		}
	}
	return passed, failed
}
