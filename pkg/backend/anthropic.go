package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/precon-cli/internal/model"
)

const (
	extractionSystemPrompt = `You are a preconstruction estimator analyzing classified construction drawings and specifications. Extract every scope-of-work group ("package") and every bid-form line item you can identify. Respond with a valid JSON object:
{"packages":[{"id":"<stable short code, e.g. MEC>","name":"string","trade":"string","csi_division":"string","items":[{"item_number":"string or omit","description":"string","action":"install|replace|demo|relocate|furnish","quantity":number or omit,"unit":"LF|SF|EA|CY|... or omit","specification":"string or omit","notes":"string or omit","sheet_ref":"string or omit"}]}],"observations":[{"severity":"critical|warning|info","category":"missing_scope|conflict|ambiguity|coordination|spec_mismatch|quantity_check","description":"string","package_ids":["..."],"references":["..."],"suggested_action":"string"}],"confidence":"high|medium|low"}`

	reviewSystemPrompt = `You are reviewing a prior extraction against the same construction documents. Report only deltas: line items the extraction missed ("additions", each referencing an existing package id), and whole packages it missed ("new_packages"). Never restate items already present. Respond with a valid JSON object:
{"additions":[{"package_id":"string","item":{"description":"string","action":"string","quantity":number or omit,"unit":"string or omit","sheet_ref":"string or omit"}}],"new_packages":[{"id":"string","name":"string","trade":"string","csi_division":"string","items":[...]}],"observations":[...]}`

	validationSystemPrompt = `You are performing final validation of an extracted bid form against the source documents and all observations raised so far. Flag remaining gaps as observations and report any last missed items as additions. Respond with a valid JSON object:
{"additions":[{"package_id":"string","item":{...}}],"observations":[{"severity":"...","category":"...","description":"...","package_ids":["..."],"suggested_action":"..."}]}`
)

// AnthropicOptions configures the Anthropic-backed client.
type AnthropicOptions struct {
	APIKey    string
	MaxTokens int64   // response budget per call; default 8192
	RPS       float64 // client-side rate limit; default 2
	Burst     int     // default 4
}

// AnthropicClient implements Client against the official anthropic-sdk-go.
type AnthropicClient struct {
	client    sdk.Client
	maxTokens int64
	limiter   *rate.Limiter
}

// NewAnthropicClient creates an Anthropic backend client with a client-side
// rate limiter so parallel batches stay under the account limit.
func NewAnthropicClient(opts AnthropicOptions) *AnthropicClient {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	rps := opts.RPS
	if rps <= 0 {
		rps = 2
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 4
	}
	return &AnthropicClient{
		client:    sdk.NewClient(option.WithAPIKey(opts.APIKey)),
		maxTokens: maxTokens,
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Call dispatches one purpose-shaped request and decodes the typed response.
func (c *AnthropicClient) Call(ctx context.Context, req Request) (*Response, error) {
	if !req.Purpose.Valid() {
		return nil, eris.Errorf("backend: unknown purpose %q", req.Purpose)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, classifyError(err)
	}

	prompt, err := buildUserPrompt(req)
	if err != nil {
		return nil, err
	}

	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(req.Backend),
		MaxTokens: c.maxTokens,
		System: []sdk.TextBlockParam{
			{Text: systemPromptFor(req.Purpose)},
		},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, classifyError(err)
	}

	usage := model.TokenUsage{
		InputTokens:         int(msg.Usage.InputTokens),
		OutputTokens:        int(msg.Usage.OutputTokens),
		CacheCreationTokens: int(msg.Usage.CacheCreationInputTokens),
		CacheReadTokens:     int(msg.Usage.CacheReadInputTokens),
	}

	var parts []string
	for _, block := range msg.Content {
		if block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	raw := strings.Join(parts, "\n")

	resp, err := decodeResponse(req.Backend, req.Purpose, raw, usage)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("backend: call complete",
		zap.String("backend", req.Backend),
		zap.String("purpose", string(req.Purpose)),
		zap.Int("input_tokens", usage.InputTokens),
		zap.Int("output_tokens", usage.OutputTokens),
	)
	return resp, nil
}

// systemPromptFor maps a purpose to its system prompt. Review-family
// purposes share one delta-shaped prompt.
func systemPromptFor(purpose model.PassPurpose) string {
	switch purpose {
	case model.PurposeInitialExtraction:
		return extractionSystemPrompt
	case model.PurposeFinalValidation:
		return validationSystemPrompt
	default:
		return reviewSystemPrompt
	}
}

// buildUserPrompt renders documents and pass context into the user message,
// shaped by purpose.
func buildUserPrompt(req Request) (string, error) {
	var b strings.Builder

	for _, p := range req.Documents {
		fmt.Fprintf(&b, "--- Page %d", p.PageNumber)
		if p.SheetNumber != "" {
			fmt.Fprintf(&b, " (sheet %s)", p.SheetNumber)
		}
		fmt.Fprintf(&b, " [%s / %s] ---\n", p.Trade, p.PageType)
		b.WriteString(p.Content)
		b.WriteString("\n\n")
	}

	if req.Purpose != model.PurposeInitialExtraction {
		merged, err := json.Marshal(req.Merged)
		if err != nil {
			return "", eris.Wrap(err, "backend: marshal merged state")
		}
		b.WriteString("--- Current extraction state ---\n")
		b.Write(merged)
		b.WriteString("\n")
	}

	if req.Purpose == model.PurposeTradeDeepDive && req.Trade != "" {
		fmt.Fprintf(&b, "\nFocus exclusively on the %s trade.\n", req.Trade)
	}

	if req.Purpose == model.PurposeFinalValidation && req.ObservationsText != "" {
		b.WriteString("\n--- Observations raised so far ---\n")
		b.WriteString(req.ObservationsText)
		b.WriteString("\n")
	}

	return b.String(), nil
}

// classifyError maps transport failures onto the backend error taxonomy so
// callers can match with errors.Is.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return eris.Wrap(ErrTimeout, err.Error())
	}

	var apierr *sdk.Error
	if errors.As(err, &apierr) {
		switch apierr.StatusCode {
		case 401, 403:
			return eris.Wrap(ErrAuth, err.Error())
		case 429:
			return eris.Wrap(ErrRateLimit, err.Error())
		case 408, 504:
			return eris.Wrap(ErrTimeout, err.Error())
		}
	}

	return eris.Wrap(err, "backend: anthropic call")
}
