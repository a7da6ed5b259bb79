// Package collab defines the collaborator abstraction: a role-scoped model
// endpoint that turns stage input text into streamed response text. Hosted
// providers (Anthropic, OpenAI) and a scripted mock implement it.
package collab

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"autoninja/pkg/collab/collaberrors"
)

// StreamChunk represents a piece of streamed completion.
type StreamChunk struct {
	// Error terminates the stream when non-nil.
	Error error
	// Content is the text fragment for this chunk.
	Content string
	// Done marks the final chunk of a successful stream.
	Done bool
}

// Collaborator is a single pipeline role backed by a model endpoint.
type Collaborator interface {
	// ID returns the collaborator identifier (e.g. "requirements-analyst").
	ID() string
	// ModelName returns the model the collaborator invokes.
	ModelName() string
	// Invoke streams a completion for the stage input. The returned channel
	// is closed after a Done or Error chunk.
	Invoke(ctx context.Context, jobID, inputText string) (<-chan StreamChunk, error)
}

// CollectStream drains a stream into the full response text.
func CollectStream(ctx context.Context, ch <-chan StreamChunk) (string, error) {
	var sb strings.Builder
	for {
		select {
		case <-ctx.Done():
			return sb.String(), ctx.Err()
		case chunk, ok := <-ch:
			if !ok {
				return sb.String(), nil
			}
			if chunk.Error != nil {
				return sb.String(), chunk.Error
			}
			sb.WriteString(chunk.Content)
			if chunk.Done {
				return sb.String(), nil
			}
		}
	}
}

// Registry holds the collaborators for a pipeline, keyed by id.
type Registry struct {
	collaborators map[string]Collaborator
}

// NewRegistry creates a registry over the given collaborators.
func NewRegistry(collaborators ...Collaborator) *Registry {
	r := &Registry{collaborators: make(map[string]Collaborator, len(collaborators))}
	for _, c := range collaborators {
		r.collaborators[c.ID()] = c
	}
	return r
}

// Register adds or replaces a collaborator.
func (r *Registry) Register(c Collaborator) {
	r.collaborators[c.ID()] = c
}

// Get returns the collaborator for an id.
func (r *Registry) Get(id string) (Collaborator, error) {
	c, ok := r.collaborators[id]
	if !ok {
		return nil, collaberrors.NewError(collaberrors.ErrorTypeBadRequest,
			fmt.Sprintf("unknown collaborator: %s", id))
	}
	return c, nil
}

// IDs returns the registered collaborator ids, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.collaborators))
	for id := range r.collaborators {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
