package collab

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"autoninja/pkg/collab/collaberrors"
	"autoninja/pkg/logx"
)

const defaultMaxOutputTokens = 8192

// AnthropicCollaborator backs a pipeline role with the Anthropic Messages API.
type AnthropicCollaborator struct {
	client anthropic.Client
	id     string
	model  anthropic.Model
	logger *logx.Logger
}

// NewAnthropicCollaborator creates a collaborator for the given role and model.
func NewAnthropicCollaborator(id, apiKey, model string) *AnthropicCollaborator {
	return &AnthropicCollaborator{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		id:     id,
		model:  anthropic.Model(model),
		logger: logx.NewLogger("collab." + id),
	}
}

// ID implements Collaborator.
func (a *AnthropicCollaborator) ID() string { return a.id }

// ModelName implements Collaborator.
func (a *AnthropicCollaborator) ModelName() string { return string(a.model) }

// Invoke implements Collaborator. The SDK call is made synchronously inside
// the goroutine; the channel carries the full response as a single chunk.
func (a *AnthropicCollaborator) Invoke(ctx context.Context, jobID, inputText string) (<-chan StreamChunk, error) {
	if strings.TrimSpace(inputText) == "" {
		return nil, collaberrors.NewError(collaberrors.ErrorTypeBadRequest, "empty stage input")
	}

	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: defaultMaxOutputTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(inputText)),
		},
	}
	if prompt := RolePrompt(a.id); prompt != "" {
		params.System = []anthropic.TextBlockParam{{
			Text: prompt,
			Type: "text",
		}}
	}

	ch := make(chan StreamChunk, 2)
	go func() {
		defer close(ch)
		a.logger.Debug("job %s: invoking %s", jobID, a.model)

		resp, err := a.client.Messages.New(ctx, params)
		if err != nil {
			ch <- StreamChunk{Error: classifyProviderError(err)}
			return
		}
		if resp == nil || len(resp.Content) == 0 {
			ch <- StreamChunk{Error: collaberrors.NewError(
				collaberrors.ErrorTypeTransient, "empty response from model")}
			return
		}

		var text strings.Builder
		for i := range resp.Content {
			block := &resp.Content[i]
			if block.Type == "text" {
				text.WriteString(block.AsText().Text)
			}
		}
		ch <- StreamChunk{Content: text.String()}
		ch <- StreamChunk{Done: true}
	}()
	return ch, nil
}

// classifyProviderError maps SDK errors to the structured error taxonomy.
// Both hosted SDKs surface HTTP status codes in the error string, so the
// mapping is shared between providers.
func classifyProviderError(err error) *collaberrors.Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return collaberrors.NewErrorWithCause(collaberrors.ErrorTypeTransient, err, "request timeout")
	}
	if errors.Is(err, context.Canceled) {
		return collaberrors.NewErrorWithCause(collaberrors.ErrorTypeTransient, err, "request canceled")
	}

	errStr := err.Error()
	switch statusCode := extractStatusCode(errStr); statusCode {
	case http.StatusUnauthorized:
		return collaberrors.NewErrorWithStatus(collaberrors.ErrorTypeAuth, statusCode, "authentication failed - check API key")
	case http.StatusForbidden:
		return collaberrors.NewErrorWithStatus(collaberrors.ErrorTypeAuth, statusCode, "permission denied - check API access")
	case http.StatusTooManyRequests:
		return collaberrors.NewErrorWithStatus(collaberrors.ErrorTypeThrottling, statusCode, "rate limit exceeded")
	case http.StatusBadRequest:
		return collaberrors.NewErrorWithStatus(collaberrors.ErrorTypeBadRequest, statusCode, "bad request - check input size and format")
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return collaberrors.NewErrorWithStatus(collaberrors.ErrorTypeTransient, statusCode, "server error")
	}

	lower := strings.ToLower(errStr)
	switch {
	case strings.Contains(lower, "throttl") ||
		strings.Contains(lower, "rate") ||
		strings.Contains(lower, "quota") ||
		strings.Contains(lower, "too many requests"):
		return collaberrors.NewErrorWithCause(collaberrors.ErrorTypeThrottling, err, "rate limiting detected")
	case strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "connection") ||
		strings.Contains(lower, "network") ||
		strings.Contains(lower, "temporary") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(lower, "reset"):
		return collaberrors.NewErrorWithCause(collaberrors.ErrorTypeTransient, err, "network or connection error")
	case strings.Contains(lower, "auth") ||
		strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "api key"):
		return collaberrors.NewErrorWithCause(collaberrors.ErrorTypeAuth, err, "authentication error")
	case strings.Contains(lower, "invalid") ||
		strings.Contains(lower, "malformed") ||
		strings.Contains(lower, "too large"):
		return collaberrors.NewErrorWithCause(collaberrors.ErrorTypeBadRequest, err, "request error")
	}

	return collaberrors.NewErrorWithCause(collaberrors.ErrorTypeUnknown, err, "unclassified provider error")
}

// extractStatusCode pulls an HTTP status code out of an SDK error string.
func extractStatusCode(errStr string) int {
	patterns := []string{
		"status code: ",
		"status: ",
		"http ",
		"code ",
	}
	lower := strings.ToLower(errStr)
	for _, pattern := range patterns {
		idx := strings.Index(lower, pattern)
		if idx == -1 {
			continue
		}
		start := idx + len(pattern)
		if start >= len(errStr) {
			continue
		}
		end := start + 3
		if end > len(errStr) {
			end = len(errStr)
		}
		switch codes := errStr[start:end]; {
		case strings.HasPrefix(codes, "400"):
			return 400
		case strings.HasPrefix(codes, "401"):
			return 401
		case strings.HasPrefix(codes, "403"):
			return 403
		case strings.HasPrefix(codes, "429"):
			return 429
		case strings.HasPrefix(codes, "500"):
			return 500
		case strings.HasPrefix(codes, "502"):
			return 502
		case strings.HasPrefix(codes, "503"):
			return 503
		case strings.HasPrefix(codes, "504"):
			return 504
		}
	}
	return 0
}
