package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sashabaranov/go-openai"

	"github.com/nextlevelbuilder/chatdesk/internal/model"
)

// verdictSchemaPrompt is appended to every classification prompt so both
// models return a single parseable JSON object.
const verdictSchemaPrompt = `Respond with exactly one JSON object and nothing else, matching this shape:
{"is_incident": bool, "confidence": number between 0 and 1, "category": string, "urgency": "high"|"medium"|"low", "rationale": string}
"category" and "urgency" may be empty strings if is_incident is false.`

// jsonObjectPattern extracts the span from the first '{' to the last '}' of a
// model response, tolerating stray prose a model might wrap around a single
// JSON object.
var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// rawVerdict is the wire shape both classifiers are asked to emit.
type rawVerdict struct {
	IsIncident bool    `json:"is_incident"`
	Confidence float64 `json:"confidence"`
	Category   string  `json:"category"`
	Urgency    string  `json:"urgency"`
	Rationale  string  `json:"rationale"`
}

func parseVerdict(raw string) (model.ModelVerdict, error) {
	match := jsonObjectPattern.FindString(raw)
	if match == "" {
		return model.ModelVerdict{}, fmt.Errorf("classify: no JSON object found in model response")
	}
	var rv rawVerdict
	if err := json.Unmarshal([]byte(match), &rv); err != nil {
		return model.ModelVerdict{}, fmt.Errorf("classify: decode model response: %w", err)
	}
	return model.ModelVerdict{
		IsIncident: rv.IsIncident,
		Confidence: rv.Confidence,
		Category:   rv.Category,
		Urgency:    model.Urgency(strings.ToLower(rv.Urgency)),
		Rationale:  rv.Rationale,
	}, nil
}

// Classifier is a single model's half of the dual-LLM consensus.
type Classifier interface {
	Classify(ctx context.Context, systemPrompt, userPrompt string) model.ModelVerdict
}

// AnthropicClassifier is the primary classifier, backed by Claude.
type AnthropicClassifier struct {
	client  anthropic.Client
	model   string
	maxTok  int64
	temp    float64
}

func NewAnthropicClassifier(apiKey, model string, maxTokens int, temperature float64) *AnthropicClassifier {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &AnthropicClassifier{
		client: anthropic.NewClient(opts...),
		model:  model,
		maxTok: int64(maxTokens),
		temp:   temperature,
	}
}

func (c *AnthropicClassifier) Classify(ctx context.Context, systemPrompt, userPrompt string) model.ModelVerdict {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTok,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt + "\n\n" + verdictSchemaPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return model.ModelVerdict{Err: fmt.Errorf("anthropic classify: %w", err)}
	}

	var text string
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text += variant.Text
		}
	}
	if text == "" {
		return model.ModelVerdict{Err: fmt.Errorf("anthropic classify: empty response")}
	}

	verdict, err := parseVerdict(text)
	if err != nil {
		return model.ModelVerdict{Err: err}
	}
	return verdict
}

// OpenAIClassifier is the secondary classifier, backed by an OpenAI-compatible
// chat-completions endpoint.
type OpenAIClassifier struct {
	client *openai.Client
	model  string
	maxTok int
	temp   float32
}

func NewOpenAIClassifier(apiKey, baseURL, model string, maxTokens int, temperature float64) *OpenAIClassifier {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIClassifier{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		maxTok: maxTokens,
		temp:   float32(temperature),
	}
}

func (c *OpenAIClassifier) Classify(ctx context.Context, systemPrompt, userPrompt string) model.ModelVerdict {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt + "\n\n" + verdictSchemaPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		MaxTokens:   c.maxTok,
		Temperature: c.temp,
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return model.ModelVerdict{Err: fmt.Errorf("openai classify: %w", err)}
	}
	if len(resp.Choices) == 0 {
		return model.ModelVerdict{Err: fmt.Errorf("openai classify: no choices returned")}
	}

	verdict, err := parseVerdict(resp.Choices[0].Message.Content)
	if err != nil {
		return model.ModelVerdict{Err: err}
	}
	return verdict
}

// DualClassifier runs the primary and secondary classifiers concurrently
// against the same prompt (spec §4.2).
type DualClassifier struct {
	primary     Classifier
	secondary   Classifier
	callTimeout time.Duration
}

func NewDualClassifier(primary, secondary Classifier, callTimeout time.Duration) *DualClassifier {
	return &DualClassifier{primary: primary, secondary: secondary, callTimeout: callTimeout}
}

// Run executes both classifiers in parallel and returns their raw verdicts.
// Combine() turns the pair into the final Classification.
func (d *DualClassifier) Run(ctx context.Context, systemPrompt, userPrompt string) (primary, secondary model.ModelVerdict) {
	ctx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()

	results := make(chan struct {
		side    int
		verdict model.ModelVerdict
	}, 2)

	go func() { results <- struct {
		side    int
		verdict model.ModelVerdict
	}{0, d.primary.Classify(ctx, systemPrompt, userPrompt)} }()

	go func() { results <- struct {
		side    int
		verdict model.ModelVerdict
	}{1, d.secondary.Classify(ctx, systemPrompt, userPrompt)} }()

	for i := 0; i < 2; i++ {
		r := <-results
		if r.side == 0 {
			primary = r.verdict
		} else {
			secondary = r.verdict
		}
	}
	return primary, secondary
}
