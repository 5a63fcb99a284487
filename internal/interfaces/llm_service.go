package interfaces

import (
	"context"
)

// Message represents a single message in a chat conversation
type Message struct {
	// Role identifies the message sender: "user", "assistant", or "system"
	Role string

	// Content contains the text content of the message
	Content string
}

// ContentRequest is a provider-agnostic generation request.
// An empty Model selects the configured default provider and model.
type ContentRequest struct {
	Messages          []Message
	Model             string
	Temperature       float32
	MaxTokens         int
	SystemInstruction string
	// GoogleSearch enables grounding with web search where the provider supports it
	GoogleSearch bool
}

// ContentResponse is the generated text and the provider that produced it
type ContentResponse struct {
	Text     string
	Provider string
	Model    string
	// Sources lists grounding URLs when web search was used
	Sources []string
}

// ContentGenerator generates text with a language model
type ContentGenerator interface {
	GenerateContent(ctx context.Context, request *ContentRequest) (*ContentResponse, error)
}
