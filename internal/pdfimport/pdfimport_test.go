package pdfimport

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/pavelanni/academy/internal/model"
	"github.com/pavelanni/academy/internal/store"
)

type fakeParser struct {
	calls  int
	text   string
	drafts []model.QuestionDraft
	err    error
}

func (p *fakeParser) ParseQuestions(_ context.Context, text string) ([]model.QuestionDraft, error) {
	p.calls++
	p.text = text
	return p.drafts, p.err
}

type memRegistry map[string]store.ImportedFile

func (m memRegistry) GetImportedFile(_ context.Context, hash string) (*store.ImportedFile, error) {
	f, ok := m[hash]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (m memRegistry) RecordImportedFile(_ context.Context, f store.ImportedFile) error {
	m[f.Hash] = f
	return nil
}

func fakePDF(body string) *strings.Reader {
	return strings.NewReader("%PDF-1.4\n" + body)
}

func extractor(text string, seen *[]string) func(string) (string, error) {
	return func(path string) (string, error) {
		if _, err := os.Stat(path); err != nil {
			return "", err
		}
		*seen = append(*seen, path)
		return text, nil
	}
}

func TestImport(t *testing.T) {
	dir := t.TempDir()
	parser := &fakeParser{drafts: []model.QuestionDraft{
		{Type: model.MultipleChoice, Text: "Q1", Options: []string{"a", "b"}, CorrectAnswer: "1"},
		{Type: model.Essay, Text: "Q2", Difficulty: "impossible"},
		{Type: "puzzle", Text: "Q3"},
		{Type: model.ShortAnswer, Text: "   "},
	}}
	reg := memRegistry{}
	var seen []string
	im := New(dir, parser, reg, WithExtractor(extractor("1. Q1 a) b)", &seen)))

	res, err := im.Import(context.Background(), Upload{Filename: "midterm.pdf", TeacherID: "t1", Body: fakePDF("one")})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Duplicate || res.TotalQuestions != 2 || res.Skipped != 2 {
		t.Errorf("unexpected result: %+v", res)
	}
	if parser.text != "1. Q1 a) b)" {
		t.Errorf("parser got %q", parser.text)
	}
	if res.Questions[1].Difficulty != model.DifficultyMedium || res.Questions[1].ScoreWeight != DefaultWeight {
		t.Errorf("defaults not applied: %+v", res.Questions[1])
	}
	if rec, ok := reg[res.Hash]; !ok || rec.QuestionCount != 2 || rec.TeacherID != "t1" {
		t.Errorf("import not recorded: %+v", reg)
	}
	if len(seen) != 1 {
		t.Fatalf("extractor called %d times", len(seen))
	}
	if _, err := os.Stat(seen[0]); !os.IsNotExist(err) {
		t.Errorf("temp file %s not removed", seen[0])
	}

	// Same content again is a duplicate and skips parsing.
	dup, err := im.Import(context.Background(), Upload{Filename: "copy.pdf", Body: fakePDF("one")})
	if err != nil {
		t.Fatalf("second Import: %v", err)
	}
	if !dup.Duplicate || dup.PreviousImport == nil || dup.Hash != res.Hash {
		t.Errorf("expected duplicate: %+v", dup)
	}
	if parser.calls != 1 {
		t.Errorf("duplicate should not be parsed, parser calls = %d", parser.calls)
	}

	forced, err := im.Import(context.Background(), Upload{Filename: "copy.pdf", Body: fakePDF("one"), Force: true})
	if err != nil {
		t.Fatalf("forced Import: %v", err)
	}
	if !forced.Duplicate || forced.TotalQuestions != 2 || parser.calls != 2 {
		t.Errorf("forced import should parse: %+v calls=%d", forced, parser.calls)
	}
}

func TestImportErrors(t *testing.T) {
	tests := []struct {
		name    string
		parser  QuestionParser
		body    string
		text    string
		wantErr error
	}{
		{"not a pdf", &fakeParser{}, "hello world", "x", model.ErrValidation},
		{"no text layer", &fakeParser{}, "%PDF-1.7 scan", "  \n ", model.ErrValidation},
		{"parser failure", &fakeParser{err: model.ErrUnavailable}, "%PDF-1.7", "text", model.ErrUnavailable},
		{"no parser", nil, "%PDF-1.7", "text", model.ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			var seen []string
			im := New(dir, tt.parser, memRegistry{}, WithExtractor(extractor(tt.text, &seen)))
			_, err := im.Import(context.Background(), Upload{Filename: "x.pdf", Body: strings.NewReader(tt.body)})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			entries, _ := os.ReadDir(dir)
			if len(entries) != 0 {
				t.Errorf("upload dir not cleaned: %d entries", len(entries))
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   model.QuestionDraft
		keep bool
		want func(d model.QuestionDraft) bool
	}{
		{"choice without options", model.QuestionDraft{Type: model.MultipleChoice, Text: "q"}, false, nil},
		{"true false lowercased", model.QuestionDraft{Type: model.TrueFalse, Text: "q", CorrectAnswer: "TRUE"}, true,
			func(d model.QuestionDraft) bool { return d.CorrectAnswer == "true" }},
		{"options dropped for short answer", model.QuestionDraft{Type: model.ShortAnswer, Text: "q", Options: []string{"x"}}, true,
			func(d model.QuestionDraft) bool { return d.Options == nil }},
		{"weight kept", model.QuestionDraft{Type: model.Essay, Text: "q", ScoreWeight: 12, Difficulty: model.DifficultyHard}, true,
			func(d model.QuestionDraft) bool { return d.ScoreWeight == 12 && d.Difficulty == model.DifficultyHard }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, skipped := Normalize([]model.QuestionDraft{tt.in})
			if tt.keep != (len(out) == 1) || skipped != 1-len(out) {
				t.Fatalf("kept=%d skipped=%d, want keep=%v", len(out), skipped, tt.keep)
			}
			if tt.keep && !tt.want(out[0]) {
				t.Errorf("unexpected draft: %+v", out[0])
			}
		})
	}
}
