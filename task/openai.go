package task

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/signalnine/gauntlet/eval"
)

type ChatOptions struct {
	Model        string
	SystemPrompt string
	Temperature  float32
	MaxTokens    int
}

// Chat sends each case input to an OpenAI-compatible chat completions API
// and returns the reply text. String inputs become the user message; other
// inputs are sent as JSON. Every call emits a trace carrying token usage.
type Chat struct {
	client *openai.Client
	opts   ChatOptions
}

func NewChat(client *openai.Client, opts ChatOptions) (*Chat, error) {
	if opts.Model == "" {
		return nil, fmt.Errorf("openai task: model is required")
	}
	return &Chat{client: client, opts: opts}, nil
}

func (c *Chat) Run(ctx context.Context, input any) (any, error) {
	prompt, ok := input.(string)
	if !ok {
		b, err := json.Marshal(input)
		if err != nil {
			return nil, fmt.Errorf("encoding input: %w", err)
		}
		prompt = string(b)
	}

	var msgs []openai.ChatCompletionMessage
	if c.opts.SystemPrompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: c.opts.SystemPrompt})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})
	req := openai.ChatCompletionRequest{
		Model:       c.opts.Model,
		Messages:    msgs,
		Temperature: c.opts.Temperature,
	}
	if c.opts.MaxTokens > 0 {
		req.MaxCompletionTokens = c.opts.MaxTokens
	}

	tb := eval.StartTrace().Model(c.opts.Model)
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		err = fmt.Errorf("chat completion: %w", err)
		eval.EmitTrace(ctx, tb.FinishWithError(prompt, err))
		return nil, err
	}
	tb.ID(resp.ID).Metadata(map[string]any{"finish_reason": finishReason(resp)})
	usage := &eval.TokenUsage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}
	if len(resp.Choices) == 0 {
		err := fmt.Errorf("chat completion returned no choices")
		t := tb.FinishWithError(prompt, err)
		t.Usage = usage
		eval.EmitTrace(ctx, t)
		return nil, err
	}

	content := resp.Choices[0].Message.Content
	eval.EmitTrace(ctx, tb.Finish(prompt, content, usage))
	return content, nil
}

func finishReason(resp openai.ChatCompletionResponse) string {
	if len(resp.Choices) == 0 {
		return ""
	}
	return string(resp.Choices[0].FinishReason)
}
