package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/vbforge-ai/vbforge/ai"
)

const OpenAIBaseURL = "https://api.openai.com/v1"

// systemPrompt pins the backend to strict JSON output. The decode
// layer still defends against fences and trailing commas.
const systemPrompt = "You are a precise JSON generator and expert VB6 to C# converter. " +
	"Always return valid JSON without markdown, code fences, or extra text. " +
	"Ensure all strings are properly escaped and the JSON is well-formed."

// NewModel creates a text-transform model backed by an
// OpenAI-compatible chat completions endpoint. Pass a base URL to
// target Azure OpenAI or any other compatible gateway.
func NewModel(modelName string, apiKey string, baseURLs ...string) *ai.Model {
	url := OpenAIBaseURL
	if len(baseURLs) > 0 && baseURLs[0] != "" {
		url = baseURLs[0]
	}

	model := &ai.Model{
		ModelName: modelName,
		APIKey:    apiKey,
		BaseURL:   url,
	}
	model.WithTemperature(0.1).WithMaxTokens(4096)
	model.SetTransformFunc(openaiTransform)
	return model
}

func openaiTransform(ctx context.Context, model *ai.Model, prompt string) (string, error) {
	client := createClient(model)

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(model.ModelName),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
	}
	if model.Temperature != nil {
		params.Temperature = openai.Opt(*model.Temperature)
	}
	if model.MaxTokens != nil {
		params.MaxTokens = openai.Opt(int64(*model.MaxTokens))
	}

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func createClient(model *ai.Model) openai.Client {
	opts := []option.RequestOption{
		option.WithAPIKey(model.APIKey),
	}
	if model.BaseURL != "" && model.BaseURL != OpenAIBaseURL {
		opts = append(opts, option.WithBaseURL(model.BaseURL))
	}
	return openai.NewClient(opts...)
}

// classifyError tags transient provider failures with ai.ErrTemporary
// so the model layer retries them.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	errStr := err.Error()
	if strings.Contains(errStr, "status: 502") ||
		strings.Contains(errStr, "status: 503") ||
		strings.Contains(errStr, "status: 504") ||
		strings.Contains(errStr, "status: 429") {
		return fmt.Errorf("%w: %v", ai.ErrTemporary, err)
	}
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "temporary") {
		return fmt.Errorf("%w: %v", ai.ErrTemporary, err)
	}

	var apiErr interface {
		StatusCode() int
	}
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode() >= 500 || apiErr.StatusCode() == 429 {
			return fmt.Errorf("%w: %v", ai.ErrTemporary, err)
		}
	}

	return err
}
