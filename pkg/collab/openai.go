package collab

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"autoninja/pkg/collab/collaberrors"
	"autoninja/pkg/logx"
)

// OpenAICollaborator backs a pipeline role with the OpenAI Responses API.
type OpenAICollaborator struct {
	client openai.Client
	id     string
	model  string
	logger *logx.Logger
}

// NewOpenAICollaborator creates a collaborator for the given role and model.
func NewOpenAICollaborator(id, apiKey, model string) *OpenAICollaborator {
	return &OpenAICollaborator{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		id:     id,
		model:  model,
		logger: logx.NewLogger("collab." + id),
	}
}

// ID implements Collaborator.
func (o *OpenAICollaborator) ID() string { return o.id }

// ModelName implements Collaborator.
func (o *OpenAICollaborator) ModelName() string { return o.model }

// Invoke implements Collaborator. The Responses API takes a single input
// string, so the role prompt is folded in as a System: prefix.
func (o *OpenAICollaborator) Invoke(ctx context.Context, jobID, inputText string) (<-chan StreamChunk, error) {
	if strings.TrimSpace(inputText) == "" {
		return nil, collaberrors.NewError(collaberrors.ErrorTypeBadRequest, "empty stage input")
	}

	input := inputText
	if prompt := RolePrompt(o.id); prompt != "" {
		input = fmt.Sprintf("System: %s\n\n%s", prompt, inputText)
	}

	params := responses.ResponseNewParams{
		Model:           o.model,
		MaxOutputTokens: openai.Int(defaultMaxOutputTokens),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(input)},
	}

	ch := make(chan StreamChunk, 2)
	go func() {
		defer close(ch)
		o.logger.Debug("job %s: invoking %s", jobID, o.model)

		resp, err := o.client.Responses.New(ctx, params)
		if err != nil {
			ch <- StreamChunk{Error: classifyProviderError(err)}
			return
		}
		if resp == nil {
			ch <- StreamChunk{Error: collaberrors.NewError(
				collaberrors.ErrorTypeTransient, "empty response from model")}
			return
		}

		text := resp.OutputText()
		if text == "" {
			ch <- StreamChunk{Error: collaberrors.NewError(
				collaberrors.ErrorTypeTransient, "response contained no text output")}
			return
		}
		ch <- StreamChunk{Content: text}
		ch <- StreamChunk{Done: true}
	}()
	return ch, nil
}
