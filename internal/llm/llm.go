package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/pavelanni/academy/internal/llm/prompts"
	"github.com/pavelanni/academy/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultScoreWeight is used for drafts without printed points.
const DefaultScoreWeight = 5

// ErrNoJSON is returned when a completion contains no JSON value.
var ErrNoJSON = errors.New("LLM response contains no JSON")

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api   *openai.Client
	model string
}

// New creates a new LLM client.
func New(baseURL, apiKey, modelName string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// Ping checks that the endpoint answers.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

func (c *Client) complete(ctx context.Context, prompt string, temperature float32) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("%w: LLM API call: %v", model.ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: LLM returned no choices", model.ErrUnavailable)
	}
	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "raw", raw)
	return raw, nil
}

// draft is the loose shape models actually return for a question.
type draft struct {
	Type          model.QuestionType `json:"question_type"`
	AltType       model.QuestionType `json:"type"`
	Difficulty    model.Difficulty   `json:"difficulty"`
	Text          string             `json:"question_text"`
	Options       []string           `json:"options"`
	CorrectAnswer json.RawMessage    `json:"correct_answer"`
	Explanation   string             `json:"explanation"`
	ScoreWeight   float64            `json:"score_weight"`
	Tags          []string           `json:"tags"`
}

// ParseQuestions asks the model to split exam paper text into question
// drafts. Drafts are returned as the model produced them apart from answer
// key normalization; callers validate them.
func (c *Client) ParseQuestions(ctx context.Context, text string) ([]model.QuestionDraft, error) {
	prompt, err := prompts.BuildQuestionPrompt(text, DefaultScoreWeight)
	if err != nil {
		return nil, err
	}
	raw, err := c.complete(ctx, prompt, 0.1)
	if err != nil {
		return nil, err
	}
	drafts, err := decodeDrafts(raw)
	if err != nil {
		return nil, fmt.Errorf("parse question response: %w", err)
	}
	return drafts, nil
}

func decodeDrafts(raw string) ([]model.QuestionDraft, error) {
	body, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}
	var items []draft
	if body[0] == '[' {
		err = json.Unmarshal(body, &items)
	} else {
		var wrapped struct {
			Questions []draft `json:"questions"`
		}
		err = json.Unmarshal(body, &wrapped)
		items = wrapped.Questions
	}
	if err != nil {
		return nil, err
	}

	out := make([]model.QuestionDraft, 0, len(items))
	for _, d := range items {
		qt := d.Type
		if qt == "" {
			qt = d.AltType
		}
		out = append(out, model.QuestionDraft{
			Type:          qt,
			Difficulty:    d.Difficulty,
			Text:          strings.TrimSpace(d.Text),
			Options:       d.Options,
			CorrectAnswer: answerText(d.CorrectAnswer),
			Explanation:   d.Explanation,
			ScoreWeight:   int(math.Round(d.ScoreWeight)),
			Tags:          d.Tags,
		})
	}
	return out, nil
}

// answerText converts a JSON answer of any scalar or array shape into the
// canonical text form.
func answerText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s)
	}
	var buf bytes.Buffer
	if json.Compact(&buf, raw) == nil {
		return buf.String()
	}
	return string(raw)
}

// AnalyzeConsultation summarizes a consultation record. lang selects the
// output language and may be empty.
func (c *Client) AnalyzeConsultation(ctx context.Context, content, lang string) (*model.ConsultationAnalysis, error) {
	prompt, err := prompts.BuildConsultationPrompt(content, lang)
	if err != nil {
		return nil, err
	}
	raw, err := c.complete(ctx, prompt, 0.3)
	if err != nil {
		return nil, err
	}
	body, err := extractJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("parse analysis response: %w", err)
	}
	var result model.ConsultationAnalysis
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parse analysis response: %w (raw: %s)", err, raw)
	}
	switch strings.ToLower(result.Sentiment) {
	case "positive", "negative":
		result.Sentiment = strings.ToLower(result.Sentiment)
	default:
		result.Sentiment = "neutral"
	}
	if result.Keywords == nil {
		result.Keywords = []string{}
	}
	if result.ActionItems == nil {
		result.ActionItems = []string{}
	}
	return &result, nil
}

// extractJSON returns the outermost JSON object or array in s. Models
// sometimes wrap JSON in prose or code fences despite the response format.
func extractJSON(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if json.Valid([]byte(s)) && (strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")) {
		return []byte(s), nil
	}
	for _, pair := range [][2]string{{"{", "}"}, {"[", "]"}} {
		start := strings.Index(s, pair[0])
		end := strings.LastIndex(s, pair[1])
		if start < 0 || end <= start {
			continue
		}
		if candidate := s[start : end+1]; json.Valid([]byte(candidate)) {
			return []byte(candidate), nil
		}
	}
	return nil, ErrNoJSON
}
