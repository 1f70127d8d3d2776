package chef

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kalambet/resqfreeze/internal/chat"
	"github.com/kalambet/resqfreeze/internal/proxy"
)

type fakeLLM struct {
	reply string
	err   error
	reqs  []proxy.ChatRequest
}

func (f *fakeLLM) Complete(ctx context.Context, req proxy.ChatRequest) (string, error) {
	f.reqs = append(f.reqs, req)
	return f.reply, f.err
}

type staticProfile string

func (p staticProfile) Summary() (string, error) { return string(p), nil }

func f(v float64) *float64 { return &v }

func TestParseRecipe(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"pure json", `{"recipe_name":"Tumis","ingredients":["bayam"],"steps":["tumis"]}`, "Tumis", false},
		{"wrapped in prose", "Here you go:\n```json\n{\"recipe_name\":\"Sup\",\"ingredients\":[],\"steps\":[\"rebus\"]}\n```", "Sup", false},
		{"missing field", `{"recipe_name":"X","steps":[]}`, "", true},
		{"no json", "I cannot help", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseRecipe(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if got.RecipeName != tc.want {
				t.Errorf("RecipeName = %q, want %q", got.RecipeName, tc.want)
			}
		})
	}
}

func TestRecipe_SpoiledSkipsModel(t *testing.T) {
	llm := &fakeLLM{}
	svc := New(llm, "", nil, nil)

	for _, status := range []string{"Busuk", "busuk"} {
		r, err := svc.Recipe(context.Background(), chat.RecipeRequest{VegetableName: "Bayam", FreshnessStatus: status})
		if err != nil {
			t.Fatalf("Recipe: %v", err)
		}
		if !strings.Contains(r.RecipeName, "Not safe") {
			t.Errorf("RecipeName = %q", r.RecipeName)
		}
	}
	if len(llm.reqs) != 0 {
		t.Errorf("model called %d times for spoiled produce", len(llm.reqs))
	}
}

func TestRecipe_PromptCarriesConditions(t *testing.T) {
	llm := &fakeLLM{reply: `{"recipe_name":"Tumis Bayam","ingredients":["bayam"],"steps":["tumis"]}`}
	svc := New(llm, "test/model", staticProfile("The container stores Bayam."), nil)

	r, err := svc.Recipe(context.Background(), chat.RecipeRequest{
		UserMessage: "resep cepat", VegetableName: "Bayam", FreshnessStatus: "Hampir Busuk",
		Temperature: f(12), Humidity: f(80), EstimatedDaysLeft: f(0.5),
	})
	if err != nil {
		t.Fatalf("Recipe: %v", err)
	}
	if r.RecipeName != "Tumis Bayam" {
		t.Errorf("RecipeName = %q", r.RecipeName)
	}

	req := llm.reqs[0]
	if req.Model != "test/model" || req.ResponseFormat == nil {
		t.Errorf("request = %+v", req)
	}
	prompt := req.Messages[1].Content
	for _, want := range []string{`"Bayam"`, `"Hampir Busuk"`, "12°C", "80%", "VOC: unknown", "resep cepat"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
	if !strings.Contains(req.Messages[0].Content, "The container stores Bayam.") {
		t.Error("system prompt missing profile summary")
	}
}

func TestRecipe_UnparseableReplyFallsBack(t *testing.T) {
	svc := New(&fakeLLM{reply: "sorry"}, "", nil, nil)
	r, err := svc.Recipe(context.Background(), chat.RecipeRequest{FreshnessStatus: "Segar"})
	if err != nil {
		t.Fatalf("Recipe: %v", err)
	}
	if !strings.Contains(r.RecipeName, "unavailable") {
		t.Errorf("RecipeName = %q", r.RecipeName)
	}
}

func TestReply(t *testing.T) {
	llm := &fakeLLM{reply: "  Try sayur bening.  "}
	svc := New(llm, "", nil, nil)

	got, err := svc.Reply(context.Background(), chat.ChatRequest{Message: "dinner idea?", TimeContext: "evening, 18:10"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "Try sayur bening." {
		t.Errorf("reply = %q", got)
	}
	if !strings.Contains(llm.reqs[0].Messages[0].Content, "evening, 18:10") {
		t.Error("time context not in system prompt")
	}
}

func TestNoModel(t *testing.T) {
	svc := New(nil, "", nil, nil)
	if _, err := svc.Reply(context.Background(), chat.ChatRequest{Message: "hi"}); !errors.Is(err, ErrNoModel) {
		t.Errorf("Reply err = %v, want ErrNoModel", err)
	}
	if _, err := svc.Recipe(context.Background(), chat.RecipeRequest{FreshnessStatus: "Segar"}); !errors.Is(err, ErrNoModel) {
		t.Errorf("Recipe err = %v, want ErrNoModel", err)
	}
}

func TestReply_CompletionError(t *testing.T) {
	svc := New(&fakeLLM{err: errors.New("rate limited")}, "", nil, nil)
	if _, err := svc.Reply(context.Background(), chat.ChatRequest{Message: "hi"}); err == nil {
		t.Error("expected error")
	}
}
