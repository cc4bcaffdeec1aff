package generator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/sparkengine/spark/internal/types"
)

const (
	// ModelSonnet is the default model for artifact generation
	ModelSonnet = "claude-sonnet-4-5-20250929"

	// ModelHaiku is the cost-efficient model for short prompts
	ModelHaiku = "claude-3-5-haiku-20241022"

	// defaultMaxTokens bounds the response size per generation
	defaultMaxTokens = 8192

	// defaultRequestsPerMinute paces API calls from a single engine
	defaultRequestsPerMinute = 10
)

// DefaultModel returns the generation model, checking the
// SPARK_MODEL_DEFAULT env var first.
func DefaultModel() string {
	if model := os.Getenv("SPARK_MODEL_DEFAULT"); model != "" {
		return model
	}
	return ModelSonnet
}

// Config holds AnthropicGenerator configuration
type Config struct {
	APIKey            string       // Anthropic API key (if empty, reads from ANTHROPIC_API_KEY env var)
	Model             string       // Model to use (default: DefaultModel())
	Retry             RetryConfig  // Retry configuration (uses defaults if not specified)
	RequestsPerMinute float64      // API request rate cap (default: 10)
	MaxTokens         int64        // Response token cap per request (default: 8192)
	Costs             *CostTracker // Optional budget enforcement
}

// AnthropicGenerator produces artifacts by asking the Anthropic API to
// realize a goal as a small self-contained program.
type AnthropicGenerator struct {
	client         *anthropic.Client
	model          string
	retry          RetryConfig
	circuitBreaker *CircuitBreaker
	concurrencySem *semaphore.Weighted
	limiter        *rate.Limiter
	maxTokens      int64
	costs          *CostTracker
}

var _ Generator = (*AnthropicGenerator)(nil)

// NewAnthropicGenerator creates a generator backed by the Anthropic API
func NewAnthropicGenerator(cfg Config) (*AnthropicGenerator, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel()
	}

	retry := cfg.Retry
	if retry.MaxRetries == 0 {
		retry = DefaultRetryConfig()
	}

	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = defaultRequestsPerMinute
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	var circuitBreaker *CircuitBreaker
	if retry.CircuitBreakerEnabled {
		circuitBreaker = NewCircuitBreaker(
			retry.FailureThreshold,
			retry.SuccessThreshold,
			retry.OpenTimeout,
		)
	}

	var concurrencySem *semaphore.Weighted
	if retry.MaxConcurrentCalls > 0 {
		concurrencySem = semaphore.NewWeighted(int64(retry.MaxConcurrentCalls))
	}

	return &AnthropicGenerator{
		client:         &client,
		model:          model,
		retry:          retry,
		circuitBreaker: circuitBreaker,
		concurrencySem: concurrencySem,
		limiter:        rate.NewLimiter(rate.Limit(rpm/60.0), 1),
		maxTokens:      maxTokens,
		costs:          cfg.Costs,
	}, nil
}

// Model returns the configured model name
func (g *AnthropicGenerator) Model() string {
	return g.model
}

// Available reports whether the generator can currently serve
// requests. It fails when the circuit breaker is open or the cost
// budget is exhausted.
func (g *AnthropicGenerator) Available(ctx context.Context) error {
	if g.circuitBreaker != nil {
		state, failures, _ := g.circuitBreaker.GetMetrics()
		if state == CircuitOpen {
			return &GenerationError{
				Kind:   KindUnavailable,
				Detail: fmt.Sprintf("circuit open after %d failures, retry in %v", failures, g.retry.OpenTimeout),
				Err:    ErrCircuitOpen,
			}
		}
	}

	if g.costs != nil {
		if ok, reason := g.costs.CanProceed(); !ok {
			return &GenerationError{Kind: KindUnavailable, Detail: reason}
		}
	}

	return nil
}

// Generate asks the model to realize the goal as a runnable artifact
func (g *AnthropicGenerator) Generate(ctx context.Context, req GenerationRequest) (*types.Artifact, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid generation request: %w", err)
	}

	if g.costs != nil {
		if ok, reason := g.costs.CanProceed(); !ok {
			return nil, &GenerationError{Kind: KindUnavailable, Detail: reason}
		}
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, g.wrapCallError(err)
	}

	prompt := buildPrompt(req)

	var response *anthropic.Message
	err := g.retryWithBackoff(ctx, "artifact generation", func(attemptCtx context.Context) error {
		resp, apiErr := g.client.Messages.New(attemptCtx, anthropic.MessageNewParams{
			Model:     anthropic.Model(g.model),
			MaxTokens: g.maxTokens,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if apiErr != nil {
			return apiErr
		}
		response = resp
		return nil
	})
	if err != nil {
		return nil, g.wrapCallError(err)
	}

	if g.costs != nil {
		if status := g.costs.Record(response.Usage.InputTokens, response.Usage.OutputTokens); status != BudgetOK {
			fmt.Fprintf(os.Stderr, "warning: generation budget status is %s\n", status)
		}
	}

	var responseText string
	for _, block := range response.Content {
		if block.Type == "text" {
			responseText += block.Text
		}
	}

	payload, err := parseJSON[artifactPayload](responseText)
	if err != nil {
		return nil, &GenerationError{
			Kind:   KindRejected,
			Detail: fmt.Sprintf("unparseable model response: %s", truncateText(responseText, 200)),
			Err:    err,
		}
	}

	return artifactFromPayload(req, payload)
}

// wrapCallError maps transport-level failures onto GenerationError
// kinds. Plain cancellation passes through untouched so callers see
// their own context error.
func (g *AnthropicGenerator) wrapCallError(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, ErrCircuitOpen):
		return &GenerationError{Kind: KindUnavailable, Detail: "circuit breaker rejected the request", Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &GenerationError{Kind: KindTimeout, Detail: "model call timed out", Err: err}
	default:
		return &GenerationError{Kind: KindUnavailable, Detail: "anthropic API call failed", Err: err}
	}
}

// artifactPayload is the JSON shape the model is asked to return
type artifactPayload struct {
	Summary    string `json:"summary"`
	Language   string `json:"language"`
	EntryPoint string `json:"entry_point"`
	Files      []struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	} `json:"files"`
	NewDeps []string `json:"new_deps,omitempty"`
}

// artifactFromPayload converts the model's response into a validated
// artifact, enforcing the request's size limits.
func artifactFromPayload(req GenerationRequest, payload artifactPayload) (*types.Artifact, error) {
	if req.MaxFiles > 0 && len(payload.Files) > req.MaxFiles {
		return nil, &GenerationError{
			Kind:   KindRejected,
			Detail: fmt.Sprintf("model returned %d files, limit is %d", len(payload.Files), req.MaxFiles),
		}
	}

	files := make([]types.ArtifactFile, 0, len(payload.Files))
	totalBytes := 0
	for _, f := range payload.Files {
		totalBytes += len(f.Content)
		files = append(files, types.ArtifactFile{Path: f.Path, Content: f.Content})
	}

	if req.MaxBytes > 0 && totalBytes > req.MaxBytes {
		return nil, &GenerationError{
			Kind:   KindRejected,
			Detail: fmt.Sprintf("model returned %d bytes of content, limit is %d", totalBytes, req.MaxBytes),
		}
	}

	artifact := &types.Artifact{
		ID:         uuid.New().String(),
		GoalID:     req.Goal.ID,
		Language:   payload.Language,
		EntryPoint: payload.EntryPoint,
		Files:      files,
		Summary:    payload.Summary,
		NewDeps:    payload.NewDeps,
		CreatedAt:  time.Now(),
	}

	if err := artifact.Validate(); err != nil {
		return nil, &GenerationError{Kind: KindRejected, Detail: "model returned an invalid artifact", Err: err}
	}

	return artifact, nil
}

// riskGuidance tells the model how bold the exploration may be
func riskGuidance(risk types.RiskLevel) string {
	switch risk {
	case types.RiskConservative:
		return "Stay close to proven ground: small scope, standard library only, no surprising behavior."
	case types.RiskExperimental:
		return "Bolder ideas are welcome as long as the program stays self-contained and terminates cleanly."
	default:
		return "Balance novelty against reliability: one clear idea, implemented carefully."
	}
}

// buildPrompt renders the generation prompt for one request
func buildPrompt(req GenerationRequest) string {
	var patternContext strings.Builder
	for _, p := range req.Patterns {
		fmt.Fprintf(&patternContext, "- %s (confidence %.2f, %d samples)\n", p.Key, p.Confidence, p.SampleCount)
	}
	if patternContext.Len() == 0 {
		patternContext.WriteString("- none recorded yet\n")
	}

	var projectContext strings.Builder
	if req.Profile != nil {
		if req.Profile.ModulePath != "" {
			fmt.Fprintf(&projectContext, "Module: %s\n", req.Profile.ModulePath)
		}
		if len(req.Profile.Languages) > 0 {
			fmt.Fprintf(&projectContext, "Languages: %s\n", strings.Join(req.Profile.Languages, ", "))
		}
		if len(req.Profile.TopDirs) > 0 {
			fmt.Fprintf(&projectContext, "Top-level dirs: %s\n", strings.Join(req.Profile.TopDirs, ", "))
		}
		fmt.Fprintf(&projectContext, "Has tests: %v\n", req.Profile.HasTests)
	}
	if projectContext.Len() == 0 {
		projectContext.WriteString("No project profile available.\n")
	}

	budget := "a few seconds"
	if req.ExecutionBudget > 0 {
		budget = req.ExecutionBudget.String()
	}

	limits := "Keep the artifact small."
	if req.MaxFiles > 0 || req.MaxBytes > 0 {
		limits = fmt.Sprintf("Hard limits: at most %d files and %d total bytes of content.",
			req.MaxFiles, req.MaxBytes)
	}

	return fmt.Sprintf(`You are the generation capability of a background exploration engine. The engine observed a developer's habits, derived the exploration goal below, and will run your program unattended in a sandbox. Write a small, self-contained program that carries out the exploration and prints what it finds.

Goal: %s
Category: %s
Risk level: %s
%s

Derived from these observed patterns:
%s
Project context:
%s
Requirements:
- The program must be fully self-contained: no network access, no reads outside its own directory, no user input.
- It must terminate on its own within %s and exit 0 on success.
- Print concrete findings to stdout as it works; end with a one-line summary.
- Prefer a single entry point file. List any third-party dependency names in new_deps instead of assuming they are installed.
- %s

Respond with a JSON object of this exact structure:
{
  "summary": "One sentence describing what the program explores",
  "language": "go",
  "entry_point": "main.go",
  "files": [
    {"path": "main.go", "content": "package main\n..."}
  ],
  "new_deps": []
}

IMPORTANT: Respond with ONLY raw JSON. Do NOT wrap it in markdown code fences. Just the JSON object.`,
		req.Goal.Description,
		req.Goal.Category,
		req.Goal.Risk,
		riskGuidance(req.Goal.Risk),
		patternContext.String(),
		projectContext.String(),
		budget,
		limits)
}

// truncateText truncates a string to maxLen characters for error messages
func truncateText(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
