package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Answer is a decoded answer value keyed by question type. Multiple-answer
// questions carry a sorted, de-duplicated Set; every other type carries Text.
type Answer struct {
	Type    QuestionType
	Text    string
	Set     []string
	Present bool
}

// Canonical returns the stored text form: Text, or a JSON array for sets.
func (a Answer) Canonical() string {
	if a.Type == MultipleAnswer {
		b, _ := json.Marshal(a.Set)
		return string(b)
	}
	return a.Text
}

// ParseKey decodes the canonical correct answer of a question.
func ParseKey(t QuestionType, key string) (Answer, error) {
	if !t.Valid() {
		return Answer{}, fmt.Errorf("%w: unknown question type %q", ErrValidation, t)
	}
	switch t {
	case MultipleAnswer:
		var raw []json.RawMessage
		if err := json.Unmarshal([]byte(key), &raw); err != nil {
			return Answer{}, fmt.Errorf("%w: correct_answer must be a JSON array for %s", ErrValidation, t)
		}
		set, err := scalarSet(raw)
		if err != nil {
			return Answer{}, err
		}
		if len(set) == 0 {
			return Answer{}, fmt.Errorf("%w: correct_answer must not be empty", ErrValidation)
		}
		return Answer{Type: t, Set: set, Present: true}, nil
	case Essay:
		return Answer{Type: t, Text: key, Present: key != ""}, nil
	default:
		if strings.TrimSpace(key) == "" {
			return Answer{}, fmt.Errorf("%w: correct_answer is required for %s", ErrValidation, t)
		}
		return Answer{Type: t, Text: key, Present: true}, nil
	}
}

// DecodeAnswer decodes a submitted answer for a question of type t. A missing
// or null value yields an absent answer. Values whose shape cannot be an
// answer for t are a validation error.
func DecodeAnswer(t QuestionType, raw json.RawMessage) (Answer, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Answer{Type: t}, nil
	}

	if t == MultipleAnswer {
		var items []json.RawMessage
		if raw[0] == '[' {
			if err := json.Unmarshal(raw, &items); err != nil {
				return Answer{}, fmt.Errorf("%w: malformed answer: %v", ErrValidation, err)
			}
		} else {
			s, err := scalar(raw)
			if err != nil {
				return Answer{}, err
			}
			// Older clients send the array as an encoded string.
			if strings.HasPrefix(strings.TrimSpace(s), "[") {
				if err := json.Unmarshal([]byte(s), &items); err != nil {
					return Answer{}, fmt.Errorf("%w: malformed answer: %v", ErrValidation, err)
				}
			} else if s != "" {
				items = []json.RawMessage{raw}
			}
		}
		set, err := scalarSet(items)
		if err != nil {
			return Answer{}, err
		}
		return Answer{Type: t, Set: set, Present: len(set) > 0}, nil
	}

	s, err := scalar(raw)
	if err != nil {
		return Answer{}, err
	}
	return Answer{Type: t, Text: s, Present: s != ""}, nil
}

func scalar(raw json.RawMessage) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("%w: malformed answer: %v", ErrValidation, err)
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case bool:
		if x {
			return "true", nil
		}
		return "false", nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("%w: answer must be a string, number or boolean", ErrValidation)
	}
}

func scalarSet(items []json.RawMessage) ([]string, error) {
	set := make([]string, 0, len(items))
	for _, item := range items {
		s, err := scalar(item)
		if err != nil {
			return nil, err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		set = append(set, s)
	}
	slices.Sort(set)
	return slices.Compact(set), nil
}
