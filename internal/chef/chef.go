// Package chef produces assistant replies: freeform cooking answers and
// structured recipes tailored to the stored vegetable's freshness.
package chef

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/resqfreeze/internal/chat"
	"github.com/kalambet/resqfreeze/internal/freshness"
	"github.com/kalambet/resqfreeze/internal/proxy"
)

// ErrNoModel is returned when no completion backend is configured.
var ErrNoModel = errors.New("no language model configured")

// Completer runs a single chat completion. Implemented by proxy.Client.
type Completer interface {
	Complete(ctx context.Context, req proxy.ChatRequest) (string, error)
}

// ProfileSource supplies the container description for prompts.
type ProfileSource interface {
	Summary() (string, error)
}

// Service answers chat and recipe requests.
type Service struct {
	llm     Completer
	model   string
	profile ProfileSource
	logger  *slog.Logger
}

// New creates a Service. llm may be nil, in which case every request that
// needs the model fails with ErrNoModel; the spoiled-food recipe still works.
func New(llm Completer, model string, profile ProfileSource, logger *slog.Logger) *Service {
	if model == "" {
		model = proxy.DefaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{llm: llm, model: model, profile: profile, logger: logger}
}

// Reply answers a freeform question.
func (s *Service) Reply(ctx context.Context, req chat.ChatRequest) (string, error) {
	if s.llm == nil {
		return "", ErrNoModel
	}
	msgs := []proxy.Message{
		{Role: "system", Content: s.systemPrompt(req.TimeContext)},
		{Role: "user", Content: req.Message},
	}
	out, err := s.llm.Complete(ctx, proxy.ChatRequest{Model: s.model, Messages: msgs, MaxTokens: 600})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// Recipe returns one recipe for the vegetable in its current state. Spoiled
// produce gets a fixed disposal answer without calling the model. A reply
// that cannot be parsed yields a placeholder recipe rather than an error.
func (s *Service) Recipe(ctx context.Context, req chat.RecipeRequest) (chat.Recipe, error) {
	if c, _ := freshness.ParseCategory(req.FreshnessStatus); c == freshness.Busuk {
		return disposalRecipe(req.VegetableName), nil
	}
	if s.llm == nil {
		return chat.Recipe{}, ErrNoModel
	}

	msgs := []proxy.Message{
		{Role: "system", Content: s.systemPrompt("")},
		{Role: "user", Content: recipePrompt(req)},
	}
	out, err := s.llm.Complete(ctx, proxy.ChatRequest{
		Model:          s.model,
		Messages:       msgs,
		MaxTokens:      900,
		ResponseFormat: &proxy.ResponseFormat{Type: "json_object"},
	})
	if err != nil {
		return chat.Recipe{}, fmt.Errorf("recipe completion: %w", err)
	}

	r, err := ParseRecipe(out)
	if err != nil {
		s.logger.Warn("unparseable recipe reply", "error", err)
		return unavailableRecipe(), nil
	}
	return r, nil
}

func (s *Service) systemPrompt(timeContext string) string {
	var b strings.Builder
	b.WriteString("You are Chef Sayuran, a friendly cooking assistant built into a smart vegetable storage container. ")
	b.WriteString("Answer briefly and clearly. Prefer ingredients common in an Indonesian kitchen.")
	if s.profile != nil {
		if summary, err := s.profile.Summary(); err == nil && summary != "" {
			b.WriteString("\n\n")
			b.WriteString(summary)
		}
	}
	if timeContext != "" {
		fmt.Fprintf(&b, "\n\nIt is currently %s.", timeContext)
	}
	return b.String()
}

func recipePrompt(req chat.RecipeRequest) string {
	vegetable := req.VegetableName
	if vegetable == "" {
		vegetable = "the stored vegetable"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Suggest exactly one specific recipe for %q, currently %q.\n\n", vegetable, req.FreshnessStatus)
	b.WriteString("Sensor data:\n")
	fmt.Fprintf(&b, "- Temperature: %s\n", orUnknown(freshness.FormatTemperature(req.Temperature)))
	fmt.Fprintf(&b, "- Humidity: %s\n", orUnknown(freshness.FormatHumidity(req.Humidity)))
	fmt.Fprintf(&b, "- VOC: %s\n", orUnknown(freshness.FormatVOC(req.VOC)))
	if req.EstimatedDaysLeft != nil {
		fmt.Fprintf(&b, "- Estimated days left: %g\n", *req.EstimatedDaysLeft)
	}
	if req.UserMessage != "" {
		fmt.Fprintf(&b, "\nThe user asked: %s\n", req.UserMessage)
	}
	b.WriteString(`
Guidance:
- If nearly spoiled, give a quick dish (under 15 minutes).
- If fresh, give a healthy, varied dish.
- Reply with JSON only, no commentary:
{"recipe_name": "Name", "ingredients": ["Ingredient 1"], "steps": ["Step 1"]}`)
	return b.String()
}

func orUnknown(s string) string {
	if s == "–" {
		return "unknown"
	}
	return s
}

// ParseRecipe decodes a model reply. When the reply is not pure JSON the
// outermost {...} block is tried. All three fields must be present.
func ParseRecipe(text string) (chat.Recipe, error) {
	var raw struct {
		RecipeName  *string  `json:"recipe_name"`
		Ingredients []string `json:"ingredients"`
		Steps       []string `json:"steps"`
	}
	text = strings.TrimSpace(text)
	err := json.Unmarshal([]byte(text), &raw)
	if err != nil {
		start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
		if start < 0 || end <= start {
			return chat.Recipe{}, fmt.Errorf("no JSON object in reply: %w", err)
		}
		if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
			return chat.Recipe{}, fmt.Errorf("decoding recipe: %w", err)
		}
	}
	if raw.RecipeName == nil || raw.Ingredients == nil || raw.Steps == nil {
		return chat.Recipe{}, errors.New("recipe reply is missing fields")
	}
	return chat.Recipe{RecipeName: *raw.RecipeName, Ingredients: raw.Ingredients, Steps: raw.Steps}, nil
}

func disposalRecipe(vegetable string) chat.Recipe {
	if vegetable == "" {
		vegetable = "Spoiled vegetables"
	}
	return chat.Recipe{
		RecipeName:  "🚫 Not safe to eat",
		Ingredients: []string{vegetable, "Organic compost bin"},
		Steps: []string{
			"Do not eat it in any form.",
			"Put it in the compost bin.",
			"Close the bin tightly to keep the smell in.",
		},
	}
}

func unavailableRecipe() chat.Recipe {
	return chat.Recipe{
		RecipeName:  "⚠️ Recipe unavailable",
		Ingredients: []string{"Sorry, I couldn't put a recipe together right now."},
		Steps:       []string{"Please try asking another way."},
	}
}
