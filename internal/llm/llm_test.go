package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pavelanni/academy/internal/model"
)

// fakeServer answers chat completions with content and records the last
// prompt it received.
func fakeServer(t *testing.T, content string, status int) (*Client, *string) {
	t.Helper()
	var lastPrompt string
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
			ResponseFormat struct {
				Type string `json:"type"`
			} `json:"response_format"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.ResponseFormat.Type != "json_object" {
			t.Errorf("response_format = %q, want json_object", req.ResponseFormat.Type)
		}
		if len(req.Messages) > 0 {
			lastPrompt = req.Messages[0].Content
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
		})
	})
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","data":[]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/v1", "test-key", "test-model"), &lastPrompt
}

func TestParseQuestions(t *testing.T) {
	content := `{"questions":[
		{"question_type":"multiple_choice","difficulty":"easy","question_text":" What is 1+1? ","options":["1","2"],"correct_answer":2,"score_weight":3},
		{"type":"multiple_answer","question_text":"Pick evens","options":["1","2","3","4"],"correct_answer":[2,4]},
		{"question_type":"true_false","question_text":"Go has generics","correct_answer":true},
		{"question_type":"essay","question_text":"Discuss","correct_answer":null}
	]}`
	c, prompt := fakeServer(t, content, http.StatusOK)

	drafts, err := c.ParseQuestions(context.Background(), "1. What is 1+1?")
	if err != nil {
		t.Fatalf("ParseQuestions: %v", err)
	}
	if !strings.Contains(*prompt, "What is 1+1?") {
		t.Error("prompt should include the document text")
	}
	if len(drafts) != 4 {
		t.Fatalf("expected 4 drafts, got %d", len(drafts))
	}

	tests := []struct {
		i      int
		qt     model.QuestionType
		answer string
	}{
		{0, model.MultipleChoice, "2"},
		{1, model.MultipleAnswer, "[2,4]"},
		{2, model.TrueFalse, "true"},
		{3, model.Essay, ""},
	}
	for _, tt := range tests {
		d := drafts[tt.i]
		if d.Type != tt.qt || d.CorrectAnswer != tt.answer {
			t.Errorf("draft %d = %s %q, want %s %q", tt.i, d.Type, d.CorrectAnswer, tt.qt, tt.answer)
		}
	}
	if drafts[0].Text != "What is 1+1?" || drafts[0].ScoreWeight != 3 {
		t.Errorf("draft 0 = %+v", drafts[0])
	}
}

func TestAnalyzeConsultation(t *testing.T) {
	content := "Here you go:\n```json\n{\"summary\":\"Needs interview practice.\",\"sentiment\":\"Positive\",\"keywords\":[\"interview\"]}\n```"
	c, prompt := fakeServer(t, content, http.StatusOK)

	res, err := c.AnalyzeConsultation(context.Background(), "Trainee is nervous about interviews.", "ko")
	if err != nil {
		t.Fatalf("AnalyzeConsultation: %v", err)
	}
	if res.Summary != "Needs interview practice." || res.Sentiment != "positive" {
		t.Errorf("unexpected analysis: %+v", res)
	}
	if res.ActionItems == nil || len(res.Keywords) != 1 {
		t.Errorf("lists not normalized: %+v", res)
	}
	if !strings.Contains(*prompt, "nervous about interviews") {
		t.Error("prompt should include the consultation text")
	}
}

func TestUpstreamFailureIsUnavailable(t *testing.T) {
	c, _ := fakeServer(t, "", http.StatusInternalServerError)
	_, err := c.AnalyzeConsultation(context.Background(), "text", "")
	if !errors.Is(err, model.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestPing(t *testing.T) {
	c, _ := fakeServer(t, "", http.StatusOK)
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"plain object", `{"a":1}`, `{"a":1}`, false},
		{"plain array", `[1,2]`, `[1,2]`, false},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`, false},
		{"array in prose", "Result: [1, 2] done", `[1, 2]`, false},
		{"no json", "sorry, I cannot", "", true},
		{"broken", `{"a":`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractJSON(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrNoJSON) {
					t.Errorf("expected ErrNoJSON, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("extractJSON: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}
