package llm

import (
	"context"
	"fmt"

	anthropic "github.com/liushuangls/go-anthropic/v2"
)

const defaultAnthropicMaxTokens = 4000

// completeAnthropic runs one message request against the Anthropic API. The
// client is built fresh from cfg per call.
func completeAnthropic(ctx context.Context, cfg ProviderConfig, systemMessage, prompt string) (string, error) {
	var opts []anthropic.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.Endpoint))
	}
	client := anthropic.NewClient(cfg.APIKey, opts...)

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	temperature := float32(cfg.Temperature)

	resp, err := client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(cfg.Model),
		System:      systemMessage,
		MaxTokens:   maxTokens,
		Temperature: &temperature,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &prompt},
			}},
		},
	})
	if err != nil {
		return "", err
	}

	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			return *block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in response")
}
