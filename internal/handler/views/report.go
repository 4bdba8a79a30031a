// Package views renders HTML pages as templ components. The components live
// in .templ files; run templ generate after editing them.
package views

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	appI18n "github.com/pavelanni/academy/internal/i18n"
	"github.com/pavelanni/academy/internal/model"
)

// minutes rounds a duration in seconds up to whole minutes.
func minutes(seconds int) int {
	return (seconds + 59) / 60
}

func langOf(ctx context.Context) string {
	if lang := appI18n.Lang(ctx); lang != "" {
		return lang
	}
	return "en"
}

func statusID(s model.GradingStatus) string {
	switch s {
	case model.GradingAutoGraded:
		return "StatusAutoGraded"
	case model.GradingCompleted:
		return "StatusCompleted"
	}
	return "StatusPending"
}

func scoreText(score *float64, total int) string {
	if score == nil {
		return "-"
	}
	return trimFloat(*score) + " / " + fmt.Sprint(total)
}

func percentText(p *float64) string {
	if p == nil {
		return "-"
	}
	return trimFloat(*p) + "%"
}

func trimFloat(f float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", f), "0"), ".")
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04 UTC")
}

// answerText shows a submitted answer as plain text: strings unquoted and
// arrays joined with commas.
func answerText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return "-"
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []any
	if err := json.Unmarshal(raw, &list); err == nil {
		parts := make([]string, len(list))
		for i, v := range list {
			parts[i] = fmt.Sprint(v)
		}
		return strings.Join(parts, ", ")
	}
	return string(raw)
}
