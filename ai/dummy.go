package ai

import (
	"context"
)

// NewDummyModel is useful for testing purposes. It allows you to mock
// the backend's response without any network traffic.
func NewDummyModel(responseFunc func(prompt string) (string, error)) *Model {
	return &Model{
		ModelName: "dummy",
		callFunc: func(ctx context.Context, model *Model, prompt string) (string, error) {
			return responseFunc(prompt)
		},
	}
}
