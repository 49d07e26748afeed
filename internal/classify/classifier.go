// Package classify asks a chat model to validate suppliers and purchase items
// and place them in the UNSPSC taxonomy.
package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spend-intake/internal/debug"
)

var (
	// ErrEmptyResponse is returned when the model sends no choices or an
	// empty message.
	ErrEmptyResponse = errors.New("empty model response")

	// ErrMalformedResponse is returned when the reply is not the expected
	// JSON object.
	ErrMalformedResponse = errors.New("malformed model response")
)

// ChatClient is the part of the OpenAI client the classifier needs.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// NewOpenAIClient builds a client for the OpenAI API, or a compatible
// endpoint when baseURL is set.
func NewOpenAIClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

// Result is the model's answer for one supplier or item. Only the field
// naming the subject of the question is set.
type Result struct {
	SupplierName       string `json:"supplier_name,omitempty"`
	ItemCode           string `json:"item_code,omitempty"`
	Validation         bool   `json:"validation"`
	ClassificationCode string `json:"classification_code"`
	ClassificationName string `json:"classification_name"`
	Website            string `json:"website"`
	Comments           string `json:"comments"`
}

// Options tune a Classifier.
type Options struct {
	Model   string
	Workers int
	Timeout time.Duration
}

// Classifier classifies supplier names and item codes through a ChatClient.
type Classifier struct {
	client ChatClient
	opts   Options
	logger *zap.Logger
}

// New creates a classifier. Workers below one means one.
func New(client ChatClient, opts Options, logger *zap.Logger) *Classifier {
	if opts.Model == "" {
		opts.Model = openai.GPT4oMini
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Classifier{client: client, opts: opts, logger: debug.OrNop(logger)}
}

// subject is one kind of thing the model is asked about.
type subject struct {
	kind   string
	prompt string
	ask    string
}

var supplierSubject = subject{
	kind: "supplier",
	prompt: `You gather information about supplier companies for an accounts payable team.
For the company you are given, reply with a single JSON object with these fields:
  "supplier_name": the company name as given,
  "validation": true if this is a real, identifiable supplier organisation, otherwise false,
  "classification_code": the 8 digit UNSPSC commodity code that best fits what the supplier sells,
  "classification_name": the UNSPSC title for that code,
  "website": the supplier's website, or an empty string if unknown,
  "comments": anything else relevant, such as why validation failed.
Reply with the JSON object only.`,
	ask: "I need information about the company: ",
}

var itemSubject = subject{
	kind: "item",
	prompt: `You gather information about purchased items for an accounts payable team.
Only report facts you can verify; leave a field empty rather than guess.
For the item code you are given, reply with a single JSON object with these fields:
  "item_code": the item code as given,
  "validation": true only if you can confirm the item exists, otherwise false,
  "classification_code": the 8 digit UNSPSC commodity code of the item,
  "classification_name": the UNSPSC title for that code,
  "website": a reliable page describing the item, or an empty string,
  "comments": anything else relevant, such as why validation failed.
Reply with the JSON object only.`,
	ask: "I need information on an item with the code: ",
}

// Classify asks the model about one supplier.
func (c *Classifier) Classify(ctx context.Context, supplierName string) (*Result, error) {
	return c.ask(ctx, supplierSubject, supplierName)
}

// ClassifyItem asks the model about one item code. When the first answer
// fails and the code carries a parenthesised suffix, such as
// "ITM-9 (refurb)", it asks once more with the suffix removed.
func (c *Classifier) ClassifyItem(ctx context.Context, code string) (*Result, error) {
	result, err := c.ask(ctx, itemSubject, code)
	if err == nil || ctx.Err() != nil {
		return result, err
	}
	base, _, found := strings.Cut(code, "(")
	base = strings.TrimSpace(base)
	if !found || base == "" {
		return nil, err
	}

	c.logger.Debug("Retrying item with shortened code", zap.String("item", code), zap.String("retry", base), zap.Error(err))
	result, retryErr := c.ask(ctx, itemSubject, base)
	if retryErr != nil {
		return nil, fmt.Errorf("%w (retry as %q: %v)", err, base, retryErr)
	}
	result.ItemCode = code
	return result, nil
}

func (c *Classifier) ask(ctx context.Context, subj subject, value string) (*Result, error) {
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.opts.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: subj.prompt},
			{Role: openai.ChatMessageRoleUser, Content: subj.ask + value},
		},
		Temperature:    0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion for %s %q: %w", subj.kind, value, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, fmt.Errorf("%s %q: %w", subj.kind, value, ErrEmptyResponse)
	}

	c.logger.Debug("Classification response",
		zap.String(subj.kind, value),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens))

	return parseResult(subj, value, resp.Choices[0].Message.Content)
}

// parseResult decodes the model reply, tolerating a markdown code fence
// around the JSON.
func parseResult(subj subject, value, content string) (*Result, error) {
	content = stripCodeFence(content)

	var result Result
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return nil, fmt.Errorf("%s %q: %w: %v", subj.kind, value, ErrMalformedResponse, err)
	}
	switch subj.kind {
	case itemSubject.kind:
		result.SupplierName = ""
		if result.ItemCode == "" {
			result.ItemCode = value
		}
	default:
		result.ItemCode = ""
		if result.SupplierName == "" {
			result.SupplierName = value
		}
	}
	if result.Validation && result.ClassificationCode == "" {
		return nil, fmt.Errorf("%s %q: %w: valid %s without classification code", subj.kind, value, ErrMalformedResponse, subj.kind)
	}
	return &result, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Outcome is the per-subject result of ClassifyAll and ClassifyItems.
// Exactly one of Result and Err is set.
type Outcome struct {
	Index  int
	Name   string
	Result *Result
	Err    error
}

// ClassifyAll classifies supplier names with at most Workers requests in
// flight. Individual failures are reported in their Outcome and logged; the
// returned error is only set when ctx ends first, and then every subject
// not answered carries ctx's error.
func (c *Classifier) ClassifyAll(ctx context.Context, names []string) ([]Outcome, error) {
	return c.classifyAll(ctx, supplierSubject, names, c.Classify)
}

// ClassifyAllItems is ClassifyAll for item codes.
func (c *Classifier) ClassifyAllItems(ctx context.Context, codes []string) ([]Outcome, error) {
	return c.classifyAll(ctx, itemSubject, codes, c.ClassifyItem)
}

func (c *Classifier) classifyAll(ctx context.Context, subj subject, values []string,
	classify func(context.Context, string) (*Result, error)) ([]Outcome, error) {
	done := debug.Timing(c.logger, "classify "+subj.kind+"s")
	defer done()

	outcomes := make([]Outcome, len(values))
	answered := make([]bool, len(values))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Workers)

	for i, value := range values {
		i, value := i, value
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			result, err := classify(gctx, value)
			outcomes[i] = Outcome{Index: i, Name: value, Result: result, Err: err}
			answered[i] = true
			if err != nil {
				c.logger.Warn("Classification failed", zap.String(subj.kind, value), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		for i := range outcomes {
			if !answered[i] {
				outcomes[i] = Outcome{Index: i, Name: values[i], Err: err}
			}
		}
		return outcomes, err
	}
	return outcomes, nil
}
