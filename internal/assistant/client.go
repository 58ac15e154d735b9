package assistant

import (
	"context"

	"github.com/sashabaranov/go-openai"
)

// Client wraps the OpenAI client with the couple of operations whose shapes
// differ from what the rest of the bot wants. Everything else is promoted.
type Client struct {
	*openai.Client
}

func NewClient(apiKey string) *Client {
	return &Client{Client: openai.NewClient(apiKey)}
}

// CreateDialogue opens a new remote multi-turn dialogue context and returns
// its opaque handle.
func (c *Client) CreateDialogue(ctx context.Context) (string, error) {
	thread, err := c.Client.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", err
	}
	return thread.ID, nil
}
