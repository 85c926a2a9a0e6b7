// Package vision implements the vision-model extraction client:
// extract(pages, mode, doc_type_hint) -> payload, with retry, error
// classification, and a fast/detailed fork-join over
// golang.org/x/sync/errgroup.
package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	"github.com/bosocmputer/invoice-vision-pipeline/internal/apperr"
	"github.com/bosocmputer/invoice-vision-pipeline/internal/domain"
	"github.com/bosocmputer/invoice-vision-pipeline/internal/preprocess"
	"github.com/bosocmputer/invoice-vision-pipeline/internal/ratelimit"
	"github.com/bosocmputer/invoice-vision-pipeline/internal/telemetry"
)

// Mode selects the prompting strategy.
type Mode string

const (
	ModeFast     Mode = "fast"
	ModeDetailed Mode = "detailed"
)

// Result carries the raw parsed payload(s) for a single extract call.
// In ModeFast only Combined is populated; in ModeDetailed, Header and
// Items are populated separately so the post-processor can apply the
// downstream merge rule.
type Result struct {
	Mode Mode
	// Combined/Header/Items are kept as raw JSON (rather than decoded
	// into domain.Node) so the post-processor can recover true
	// object-key insertion order when deriving column order — something
	// a decoded map can never preserve.
	Combined json.RawMessage
	Header   json.RawMessage
	Items    json.RawMessage
	Usage    Usage
}

// Usage records token consumption for a single vision call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Client is the narrow contract the orchestrator drives.
type Client interface {
	Extract(ctx context.Context, pages []preprocess.Page, mode Mode, docTypeHint string) (Result, error)
}

// GeminiClient implements Client against Google's generative-ai-go
// SDK.
type GeminiClient struct {
	client      *genai.Client
	modelName   string
	retry       RetryConfig
	deadline    time.Duration
	rateLimiter *ratelimit.Limiter
	log         *zap.Logger
	metrics     *telemetry.Metrics
}

// NewGeminiClient constructs the shared, keep-alive, thread-safe
// outbound client. Call once at startup.
func NewGeminiClient(ctx context.Context, apiKey, modelName string, retry RetryConfig, deadline time.Duration, limiter *ratelimit.Limiter, log *zap.Logger) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create vision client: %w", err)
	}
	return &GeminiClient{
		client:      client,
		modelName:   modelName,
		retry:       retry,
		deadline:    deadline,
		rateLimiter: limiter,
		log:         log,
	}, nil
}

// WithMetrics attaches a metrics sink after construction, so callers
// that build the client before the registry exists can wire it in.
func (c *GeminiClient) WithMetrics(m *telemetry.Metrics) *GeminiClient {
	c.metrics = m
	return c
}

func (c *GeminiClient) Close() error { return c.client.Close() }

func (c *GeminiClient) Extract(ctx context.Context, pages []preprocess.Page, mode Mode, docTypeHint string) (Result, error) {
	switch mode {
	case ModeFast:
		return c.extractFast(ctx, pages, docTypeHint)
	case ModeDetailed:
		return c.extractDetailed(ctx, pages, docTypeHint)
	default:
		return Result{}, apperr.New(apperr.KindValidationFault, apperr.CodeUnknown, fmt.Errorf("unknown mode %q", mode))
	}
}

func (c *GeminiClient) extractFast(ctx context.Context, pages []preprocess.Page, docTypeHint string) (Result, error) {
	payload, usage, err := c.callPrompt(ctx, "combined", pages, docTypeHint)
	if err != nil {
		return Result{}, err
	}
	if err := validateCombined(payload); err != nil {
		return Result{}, err
	}
	return Result{Mode: ModeFast, Combined: payload, Usage: usage}, nil
}

// extractDetailed runs the header and items prompts concurrently,
// joining before returning — "a fork/join primitive over two tasks
// that share a parent deadline; cancellation of either cancels the
// other — implemented with errgroup.WithContext.
func (c *GeminiClient) extractDetailed(ctx context.Context, pages []preprocess.Page, docTypeHint string) (Result, error) {
	g, gctx := errgroup.WithContext(ctx)

	var header, items json.RawMessage
	var headerUsage, itemsUsage Usage

	g.Go(func() error {
		p, u, err := c.callPrompt(gctx, "header", pages, docTypeHint)
		if err != nil {
			return err
		}
		header, headerUsage = p, u
		return nil
	})
	g.Go(func() error {
		p, u, err := c.callPrompt(gctx, "items", pages, docTypeHint)
		if err != nil {
			return err
		}
		items, itemsUsage = p, u
		return nil
	})

	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	if err := validateHeaderOrItems(header, items); err != nil {
		return Result{}, err
	}

	return Result{
		Mode:   ModeDetailed,
		Header: header,
		Items:  items,
		Usage:  Usage{InputTokens: headerUsage.InputTokens + itemsUsage.InputTokens, OutputTokens: headerUsage.OutputTokens + itemsUsage.OutputTokens},
	}, nil
}

// callPrompt sends one prompt + all page images and retries
// transient failures.
func (c *GeminiClient) callPrompt(ctx context.Context, promptName string, pages []preprocess.Page, docTypeHint string) (json.RawMessage, Usage, error) {
	prompt, err := loadPrompt(promptName)
	if err != nil {
		return nil, Usage{}, fmt.Errorf("loading prompt %q: %w", promptName, err)
	}
	if docTypeHint != "" {
		prompt = prompt + "\n\nExpected document type: " + docTypeHint
	}

	callCtx, cancel := context.WithTimeout(ctx, c.deadline)
	defer cancel()

	type callOutput struct {
		text  string
		usage Usage
	}

	out, err := withRetry(callCtx, c.retry, c.log, c.metrics, func(ctx context.Context) (callOutput, error) {
		if c.rateLimiter != nil {
			if err := c.rateLimiter.Wait(ctx); err != nil {
				return callOutput{}, err
			}
		}

		model := c.client.GenerativeModel(c.modelName)
		model.ResponseMIMEType = "application/json"

		parts := make([]genai.Part, 0, len(pages)+1)
		parts = append(parts, genai.Text(prompt))
		for _, p := range pages {
			parts = append(parts, genai.Blob{MIMEType: p.MimeType, Data: p.Data})
		}

		resp, err := model.GenerateContent(ctx, parts...)
		if err != nil {
			return callOutput{}, err
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
			return callOutput{}, fmt.Errorf("empty response from vision model")
		}

		var text string
		for _, part := range resp.Candidates[0].Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text = string(t)
				break
			}
		}
		if text == "" {
			return callOutput{}, fmt.Errorf("no text part in vision model response")
		}

		usage := Usage{}
		if resp.UsageMetadata != nil {
			usage.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
			usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		}
		return callOutput{text: text, usage: usage}, nil
	})
	if err != nil {
		return nil, Usage{}, err
	}

	if !json.Valid([]byte(out.text)) {
		return nil, Usage{}, apperr.New(apperr.KindValidationFault, apperr.CodeUnknown, fmt.Errorf("invalid JSON from vision model"))
	}
	return json.RawMessage(out.text), out.usage, nil
}

// validateCombined enforces the output-validation rule for fast mode:
// at least document_info or table_data must be present.
func validateCombined(payload json.RawMessage) error {
	if hasTopLevelKey(payload, "document_info") || hasTopLevelKey(payload, "table_data") {
		return nil
	}
	return apperr.New(apperr.KindValidationFault, apperr.CodeUnknown, fmt.Errorf("response missing document_info and table_data"))
}

func validateHeaderOrItems(header, items json.RawMessage) error {
	if hasTopLevelKey(header, "document_info") || hasTopLevelKey(items, "table_data") {
		return nil
	}
	return apperr.New(apperr.KindValidationFault, apperr.CodeUnknown, fmt.Errorf("response missing document_info and table_data"))
}

func hasTopLevelKey(raw json.RawMessage, key string) bool {
	if len(raw) == 0 {
		return false
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return false
	}
	_, ok := m[key]
	return ok
}

// MarshalForLog renders a Node compactly for diagnostic logging only;
// it is never surfaced to a caller.
func MarshalForLog(n domain.Node) string {
	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Sprintf("<unmarshalable: %v>", err)
	}
	return string(b)
}
