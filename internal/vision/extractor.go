// Package vision extracts the claimed total from a receipt image using a
// vision-capable model. Unlike currency conversion there is no fallback:
// an extraction failure is user-visible.
package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const systemPrompt = `You are a receipt analysis assistant. Extract the total amount from the receipt image.
Return ONLY a JSON object with these fields:
- amount: number (the total amount paid, as a decimal number)
- currency: string (USD, EUR, etc. - default to USD if unclear)
- confidence: number (0-1, your confidence in the extraction)
- items: string[] (optional list of food items if visible)

If you cannot determine the total, estimate from visible items. Always return valid JSON.`

// ObjectGetter fetches evidence image bytes from the object store
type ObjectGetter interface {
	Get(ctx context.Context, ref string) ([]byte, string, error)
}

// completionClient is the slice of the OpenAI client the extractor needs
type completionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config holds extractor configuration
type Config struct {
	APIKey              string
	Model               string
	MaxTokens           int
	Timeout             time.Duration
	ConfidenceThreshold float64
}

// ExtractionResult is the parsed model output for one receipt
type ExtractionResult struct {
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Confidence float64         `json:"confidence"`
	Items      []string        `json:"items,omitempty"`
	// LowConfidence flags extractions below the configured threshold so the
	// client can warn the claimant before they confirm the amount.
	LowConfidence bool `json:"low_confidence"`
}

// Extractor reads receipt totals with a vision model
type Extractor struct {
	client    completionClient
	store     ObjectGetter
	model     string
	maxTokens int
	timeout   time.Duration
	threshold float64
	logger    *zap.Logger
}

// NewExtractor creates a new receipt extractor
func NewExtractor(cfg Config, store ObjectGetter, logger *zap.Logger) *Extractor {
	return &Extractor{
		client:    openai.NewClient(cfg.APIKey),
		store:     store,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout,
		threshold: cfg.ConfidenceThreshold,
		logger:    logger,
	}
}

// ExtractReceipt extracts the total amount from a receipt image reference
func (e *Extractor) ExtractReceipt(ctx context.Context, imageRef string) (*ExtractionResult, error) {
	data, contentType, err := e.store.Get(ctx, imageRef)
	if err != nil {
		e.logger.Error("Failed to fetch receipt image", zap.String("ref", imageRef), zap.Error(err))
		return nil, fmt.Errorf("%w: failed to fetch receipt image: %v", ErrUpstreamUnavailable, err)
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(data))

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     e.model,
		MaxTokens: e.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: "Extract the total amount from this receipt.",
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		e.logger.Error("Vision API call failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no response from vision model", ErrUpstreamUnavailable)
	}

	result, err := parseExtraction(resp.Choices[0].Message.Content)
	if err != nil {
		e.logger.Error("Failed to parse vision response",
			zap.String("content", resp.Choices[0].Message.Content),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	result.LowConfidence = result.Confidence < e.threshold

	e.logger.Info("Receipt extraction complete",
		zap.String("amount", result.Amount.String()),
		zap.String("currency", result.Currency),
		zap.Float64("confidence", result.Confidence),
		zap.Bool("low_confidence", result.LowConfidence))

	return result, nil
}

func parseExtraction(content string) (*ExtractionResult, error) {
	var raw struct {
		Amount     float64  `json:"amount"`
		Currency   string   `json:"currency"`
		Confidence float64  `json:"confidence"`
		Items      []string `json:"items"`
	}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse extraction response: %w", err)
	}

	if raw.Amount <= 0 {
		return nil, fmt.Errorf("extracted amount must be positive, got %v", raw.Amount)
	}
	if raw.Confidence < 0 || raw.Confidence > 1 {
		return nil, fmt.Errorf("confidence out of range: %v", raw.Confidence)
	}

	currency := raw.Currency
	if currency == "" {
		currency = "USD"
	}

	return &ExtractionResult{
		Amount:     decimal.NewFromFloat(raw.Amount).Round(2),
		Currency:   currency,
		Confidence: raw.Confidence,
		Items:      raw.Items,
	}, nil
}
