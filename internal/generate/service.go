// Package generate runs metered AI content generation: it sizes the request
// to what the user can afford, calls the chat API and charges the tokens used.
package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"credit_ledger/internal/chat"
	"credit_ledger/internal/domain"
	"credit_ledger/internal/ledger"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ErrInvalidRequest is returned for unknown kinds, languages or an empty topic.
var ErrInvalidRequest = errors.New("invalid generation request")

const (
	chargeAttempts = 3   // Deduct retries when the balance moves under a drain
	maxTopicSize   = 500 // Characters
	maxDetailsSize = 2000
	maxDescSize    = 255 // transactions.description column

	chargeTimeout = 10 * time.Second // Charge outlives the request context
)

// Completer is the part of the chat client the service needs.
type Completer interface {
	CreateChatCompletion(ctx context.Context, req chat.ChatCompletionRequest) (*chat.ChatCompletionResponse, error)
	CreateChatCompletionStream(ctx context.Context, req chat.ChatCompletionRequest, handler func(*chat.StreamChunk) error) error
}

// Balances is the part of the ledger the service needs.
type Balances interface {
	GetBalance(ctx context.Context, userID string) (*ledger.BalanceResult, error)
	Deduct(ctx context.Context, userID string, amount float64, meta ledger.Meta) (*ledger.MutationResult, error)
}

// Request describes one generation.
type Request struct {
	Kind     string `json:"kind" binding:"required"`
	Topic    string `json:"topic" binding:"required"`
	Details  string `json:"details"`
	Language string `json:"language"`
	Stream   bool   `json:"stream"`
}

// Result is the generated content and what it cost.
type Result struct {
	Content       string  `json:"content,omitempty"`
	Tokens        int64   `json:"tokens"`
	Cost          float64 `json:"cost"`
	BalanceAfter  float64 `json:"balanceAfter"`
	TransactionID string  `json:"transactionId,omitempty"`
}

// Options configures a Service.
type Options struct {
	Model      string  // Model name sent to the chat API
	MaxTokens  int     // Upper bound for max_tokens
	TokenPrice float64 // Credits per token
}

type Service struct {
	balances Balances
	chat     Completer
	model    string
	maxTok   int
	price    decimal.Decimal
}

// NewService creates a Service.
func NewService(balances Balances, completer Completer, opts Options) *Service {
	return &Service{
		balances: balances,
		chat:     completer,
		model:    opts.Model,
		maxTok:   opts.MaxTokens,
		price:    decimal.NewFromFloat(opts.TokenPrice),
	}
}

// Generate produces content for userID. When onDelta is non-nil the chat API is
// streamed and every content delta is passed to it as it arrives.
// Nothing is charged when the chat call fails before any content was relayed;
// a stream that breaks after relaying deltas is charged an estimate for them.
func (s *Service) Generate(ctx context.Context, userID string, req Request, onDelta func(string)) (*Result, error) {
	language, err := validateRequest(req)
	if err != nil {
		return nil, err
	}

	bal, err := s.balances.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	maxTokens := s.affordableTokens(bal.Balance)
	if maxTokens < 1 {
		return nil, &ledger.InsufficientBalanceError{
			Balance:  bal.Balance,
			Required: s.price.InexactFloat64(),
			Shortage: s.price.Sub(decimal.NewFromFloat(bal.Balance)).InexactFloat64(),
		}
	}

	chatReq := chat.ChatCompletionRequest{
		Model: s.model,
		Messages: []chat.Message{
			{Role: chat.RoleSystem, Content: systemPrompt(req.Kind, language)},
			{Role: chat.RoleUser, Content: userPrompt(req)},
		},
		MaxTokens: maxTokens,
		User:      userID,
	}

	var content string
	var usage *chat.Usage
	if onDelta != nil {
		var sb strings.Builder
		err = s.chat.CreateChatCompletionStream(ctx, chatReq, func(chunk *chat.StreamChunk) error {
			for _, choice := range chunk.Choices {
				if choice.Delta.Content != "" {
					sb.WriteString(choice.Delta.Content)
					onDelta(choice.Delta.Content)
				}
			}
			if chunk.Usage != nil {
				usage = chunk.Usage
			}
			return nil
		})
		content = sb.String()
	} else {
		var resp *chat.ChatCompletionResponse
		resp, err = s.chat.CreateChatCompletion(ctx, chatReq)
		if err == nil {
			content = resp.Content()
			usage = resp.Usage
		}
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{"user_id": userID, "kind": req.Kind, "error": err.Error()}).Error("Chat completion failed")
		if content != "" {
			if _, chargeErr := s.charge(ctx, userID, estimateTokens(chatReq.Messages, content), describe(req)); chargeErr != nil {
				logrus.WithFields(logrus.Fields{"user_id": userID, "error": chargeErr.Error()}).Error("Failed to charge partial generation")
			}
		}
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	tokens := int64(0)
	if usage != nil {
		tokens = int64(usage.TotalTokens)
	}
	if tokens <= 0 {
		tokens = estimateTokens(chatReq.Messages, content)
		logrus.WithFields(logrus.Fields{"user_id": userID, "tokens": tokens}).Warn("Chat API returned no usage, charging an estimate")
	}

	res, err := s.charge(ctx, userID, tokens, describe(req))
	if err != nil {
		return nil, err
	}
	res.Content = content
	return res, nil
}

// affordableTokens is min(maxTokens, floor(balance / price)).
func (s *Service) affordableTokens(balance float64) int {
	if !s.price.IsPositive() || balance <= 0 {
		return 0
	}
	n := decimal.NewFromFloat(balance).Div(s.price).Floor()
	if n.GreaterThanOrEqual(decimal.NewFromInt(int64(s.maxTok))) {
		return s.maxTok
	}
	return int(n.IntPart())
}

// charge deducts tokens*price. When the balance no longer covers it the
// remaining balance is taken instead, so the balance never goes negative.
// Content may already be with the client, so a cancelled request still pays.
func (s *Service) charge(ctx context.Context, userID string, tokens int64, description string) (*Result, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), chargeTimeout)
	defer cancel()

	cost := s.price.Mul(decimal.NewFromInt(tokens)).Round(6).InexactFloat64()
	meta := ledger.Meta{Type: domain.TypeGeneration, Tokens: tokens, Description: description}

	amount := cost
	for attempt := 0; attempt < chargeAttempts; attempt++ {
		mut, err := s.balances.Deduct(ctx, userID, amount, meta)
		if err == nil {
			if amount < cost {
				logrus.WithFields(logrus.Fields{
					"user_id": userID,
					"cost":    cost,
					"charged": amount,
				}).Warn("Generation cost exceeded balance, balance drained")
			}
			return &Result{Tokens: tokens, Cost: amount, BalanceAfter: mut.BalanceAfter, TransactionID: mut.Transaction.ID}, nil
		}
		var insufficient *ledger.InsufficientBalanceError
		if !errors.As(err, &insufficient) {
			return nil, err
		}
		if insufficient.Balance <= 0 {
			// Concurrent spending already emptied the balance
			return &Result{Tokens: tokens}, nil
		}
		amount = insufficient.Balance
	}
	return nil, fmt.Errorf("charge generation for %s: balance kept changing", userID)
}

func validateRequest(req Request) (string, error) {
	if _, ok := instructions[req.Kind]; !ok {
		return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, req.Kind)
	}
	language, ok := languages[strings.ToLower(req.Language)]
	if !ok {
		return "", fmt.Errorf("%w: unsupported language %q", ErrInvalidRequest, req.Language)
	}
	topic := strings.TrimSpace(req.Topic)
	switch {
	case topic == "":
		return "", fmt.Errorf("%w: topic is required", ErrInvalidRequest)
	case utf8.RuneCountInString(topic) > maxTopicSize:
		return "", fmt.Errorf("%w: topic longer than %d characters", ErrInvalidRequest, maxTopicSize)
	case utf8.RuneCountInString(req.Details) > maxDetailsSize:
		return "", fmt.Errorf("%w: details longer than %d characters", ErrInvalidRequest, maxDetailsSize)
	}
	return language, nil
}

// estimateTokens approximates usage at four characters per token.
func estimateTokens(messages []chat.Message, content string) int64 {
	n := utf8.RuneCountInString(content)
	for _, m := range messages {
		n += utf8.RuneCountInString(m.Content)
	}
	return int64(n/4 + 1)
}

func describe(req Request) string {
	desc := req.Kind + ": " + strings.TrimSpace(req.Topic)
	if len(desc) <= maxDescSize {
		return desc
	}
	cut := maxDescSize
	for cut > 0 && !utf8.RuneStart(desc[cut]) {
		cut--
	}
	return desc[:cut]
}
