package upstream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"prospector/internal/metrics"
)

const DefaultIntelModel = "gemini-2.5-flash"

var ErrIntelNotConfigured = errors.New("intel generator is not configured")

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GenAIGenerator calls the Gemini API.
type GenAIGenerator struct {
	client *genai.Client
	model  string
}

func NewGenAIGenerator(ctx context.Context, apiKey, model string) (*GenAIGenerator, error) {
	if apiKey == "" {
		return nil, ErrIntelNotConfigured
	}
	if model == "" {
		model = DefaultIntelModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GenAIGenerator{client: client, model: model}, nil
}

func (g *GenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("empty response from model")
	}
	return text, nil
}

// Intel writes short business summaries for prospects. It is the only
// upstream client that retries: rate limiting and server errors are retried
// with exponential backoff.
type Intel struct {
	Gen        Generator
	MaxRetries int
	BaseDelay  time.Duration
	Log        *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

func NewIntel(gen Generator, log *zap.Logger) *Intel {
	if log == nil {
		log = zap.NewNop()
	}
	return &Intel{Gen: gen, MaxRetries: 3, BaseDelay: time.Second, Log: log, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Prompt builds the summary prompt for a venue.
func Prompt(name, address string) string {
	var b strings.Builder
	b.WriteString("You are helping a beverage distributor sales rep prepare for a visit.\n")
	fmt.Fprintf(&b, "Venue: %s\n", name)
	if address != "" {
		fmt.Fprintf(&b, "Address: %s\n", address)
	}
	b.WriteString("In under 150 words, describe the venue's concept, likely clientele, ")
	b.WriteString("busiest days, and beverage program, and suggest one talking point.")
	return b.String()
}

// Summarize generates the summary for a venue.
func (in *Intel) Summarize(ctx context.Context, name, address string) (string, error) {
	if in == nil || in.Gen == nil {
		return "", ErrIntelNotConfigured
	}
	if strings.TrimSpace(name) == "" {
		return "", ErrEmptyQuery
	}
	prompt := Prompt(strings.TrimSpace(name), strings.TrimSpace(address))
	start := time.Now()
	defer func() {
		metrics.UpstreamLatency.WithLabelValues(ServiceIntel).Observe(float64(time.Since(start).Milliseconds()))
	}()
	var lastErr error
	for attempt := 0; attempt <= in.MaxRetries; attempt++ {
		text, err := in.Gen.Generate(ctx, prompt)
		if err == nil {
			metrics.UpstreamCalls.WithLabelValues(ServiceIntel, "ok").Inc()
			return text, nil
		}
		lastErr = err
		if !retryable(err) || attempt == in.MaxRetries {
			break
		}
		delay := in.BaseDelay * time.Duration(1<<attempt)
		in.Log.Warn("intel request failed, retrying",
			zap.Error(err), zap.Int("attempt", attempt+1), zap.Duration("delay", delay))
		if err := in.sleep(ctx, delay); err != nil {
			return "", err
		}
	}
	metrics.UpstreamCalls.WithLabelValues(ServiceIntel, "error").Inc()
	if code := apiErrorCode(lastErr); code != 0 {
		return "", &StatusError{Service: ServiceIntel, Status: fmt.Sprintf("%d %s", code, lastErr.Error()), Code: code}
	}
	return "", fmt.Errorf("intel: %w", lastErr)
}

func apiErrorCode(err error) int {
	var ptr *genai.APIError
	if errors.As(err, &ptr) {
		return ptr.Code
	}
	var val genai.APIError
	if errors.As(err, &val) {
		return val.Code
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

func retryable(err error) bool {
	code := apiErrorCode(err)
	return code == 429 || code >= 500
}
