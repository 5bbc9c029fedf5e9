package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var (
	// ErrTemporary marks a transient backend failure. Transform retries
	// calls that fail with this error; anything else is terminal.
	ErrTemporary = errors.New("temporary inference error")

	// ErrInference is returned once the retry budget is exhausted or
	// the backend fails terminally.
	ErrInference = errors.New("inference backend failure")
)

// keep these variables to make them easier to test
var (
	retryInitialInterval = 500 * time.Millisecond
	retryMaxInterval     = 30 * time.Second
)

// StatusError carries the HTTP status of a failed provider call.
type StatusError struct {
	StatusCode   int
	Status       string
	ErrorMessage string
}

func (e StatusError) Error() string {
	return fmt.Sprintf("status: %s, code: %d, error: %s", e.Status, e.StatusCode, e.ErrorMessage)
}

// Model is a generic text-transform container that uses a function
// variable for provider-specific logic. The pipeline only ever sees
// Transform; which backend answers is a construction-time decision.
type Model struct {
	ModelName string
	APIKey    string
	BaseURL   string

	// callFunc is the implementation for each provider
	callFunc func(ctx context.Context, model *Model, prompt string) (string, error)

	// Options pointer variables - use nil to represent option not set
	Temperature *float64
	MaxTokens   *int

	// MaxAttempts bounds the total number of provider calls made by
	// Transform, including the first. Zero means the default of 5.
	MaxAttempts int
}

// SetTransformFunc overrides the provider call. Not required most of
// the time unless you are wiring a non standard provider.
func (m *Model) SetTransformFunc(f func(ctx context.Context, model *Model, prompt string) (string, error)) {
	m.callFunc = f
}

// WithTemperature sets the temperature for the model and returns the model for chaining
func (m *Model) WithTemperature(temperature float64) *Model {
	m.Temperature = &temperature
	return m
}

// WithMaxTokens sets the maximum tokens for the model and returns the model for chaining
func (m *Model) WithMaxTokens(maxTokens int) *Model {
	m.MaxTokens = &maxTokens
	return m
}

// Transform sends one prompt to the backend and returns the raw
// response text. Transient failures are retried with capped
// exponential backoff; once the attempt budget is spent the error is
// wrapped in ErrInference.
func (m *Model) Transform(ctx context.Context, prompt string) (string, error) {
	if m.callFunc == nil {
		return "", fmt.Errorf("%w: model transform function is not set", ErrInference)
	}

	attempts := m.MaxAttempts
	if attempts <= 0 {
		attempts = 5
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryInitialInterval
	policy.MaxInterval = retryMaxInterval

	var response string
	operation := func() error {
		resp, err := m.callFunc(ctx, m, prompt)
		if err != nil {
			if errors.Is(err, ErrTemporary) {
				return err
			}
			return backoff.Permanent(err)
		}
		response = resp
		return nil
	}

	err := backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(attempts-1)), ctx))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInference, err)
	}
	return response, nil
}
