// Package prompts renders the LLM prompts used for question import and
// consultation analysis from embedded text templates.
package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"
)

//go:embed templates/*.txt
var templateFS embed.FS

// MaxInputRunes bounds the user-supplied text placed into a prompt.
const MaxInputRunes = 30000

var (
	documentTagRegex     = regexp.MustCompile(`(?i)</?\s*document\b[^>]*>`)
	consultationTagRegex = regexp.MustCompile(`(?i)</?\s*consultation\b[^>]*>`)
)

var (
	loadOnce     sync.Once
	loadErr      error
	questionTmpl *template.Template
	consultTmpl  *template.Template
)

// QuestionData holds template data for the question import prompt.
type QuestionData struct {
	Text          string
	DefaultWeight int
}

// ConsultationData holds template data for the consultation analysis prompt.
type ConsultationData struct {
	Text string
	Lang string
}

// Load parses the embedded templates. It is safe to call repeatedly.
func Load() error {
	return LoadFS(templateFS)
}

// LoadFS parses prompt templates from fsys. Only the first call has effect.
func LoadFS(fsys fs.FS) error {
	loadOnce.Do(func() {
		questionTmpl, loadErr = parse(fsys, "templates/questions.txt")
		if loadErr != nil {
			return
		}
		consultTmpl, loadErr = parse(fsys, "templates/consultation.txt")
	})
	return loadErr
}

func parse(fsys fs.FS, name string) (*template.Template, error) {
	content, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("read prompt file %s: %w", name, err)
	}
	tmpl, err := template.New(name).Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("parse prompt template %s: %w", name, err)
	}
	return tmpl, nil
}

// BuildQuestionPrompt renders the prompt that turns exam paper text into
// question drafts.
func BuildQuestionPrompt(text string, defaultWeight int) (string, error) {
	if err := Load(); err != nil {
		return "", err
	}
	return execute(questionTmpl, QuestionData{
		Text:          sanitize(text, documentTagRegex),
		DefaultWeight: defaultWeight,
	})
}

// BuildConsultationPrompt renders the consultation analysis prompt. lang is
// an optional BCP 47 tag for the output language.
func BuildConsultationPrompt(text, lang string) (string, error) {
	if err := Load(); err != nil {
		return "", err
	}
	return execute(consultTmpl, ConsultationData{
		Text: sanitize(text, consultationTagRegex),
		Lang: lang,
	})
}

func execute(tmpl *template.Template, data any) (string, error) {
	if tmpl == nil {
		return "", errors.New("prompt templates not loaded")
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// sanitize strips the delimiter tags from user text so it cannot close the
// block it is placed in, and truncates it to MaxInputRunes.
func sanitize(text string, tags *regexp.Regexp) string {
	text = tags.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)
	if text == "" {
		return "[empty]"
	}
	if utf8.RuneCountInString(text) > MaxInputRunes {
		runes := []rune(text)
		text = string(runes[:MaxInputRunes]) + "\n\n[truncated]"
	}
	return text
}
