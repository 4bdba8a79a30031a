package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return WithLang(context.Background(), lang)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "AppTitle"); got != "Academy" {
		t.Errorf("T(AppTitle) = %q, want 'Academy'", got)
	}
	if got := T(ctx, "OutsideWindow"); got != "This exam is not open at this time." {
		t.Errorf("T(OutsideWindow) = %q", got)
	}
}

func TestTranslateKorean(t *testing.T) {
	ctx := initLang(t, "ko")

	if got := T(ctx, "AppTitle"); got != "아카데미" {
		t.Errorf("T(AppTitle) = %q, want '아카데미'", got)
	}
	if got := T(ctx, "AlreadySubmitted"); got != "이미 제출된 시험입니다." {
		t.Errorf("T(AlreadySubmitted) = %q", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	if got := Tp(ctx, "QuestionsImported", 1); got != "1 question extracted." {
		t.Errorf("Tp(QuestionsImported, 1) = %q", got)
	}
	if got := Tp(ctx, "QuestionsImported", 5); got != "5 questions extracted." {
		t.Errorf("Tp(QuestionsImported, 5) = %q", got)
	}

	ko := WithLang(context.Background(), "ko")
	if got := Tp(ko, "MinutesN", 3); got != "3분" {
		t.Errorf("Tp(MinutesN, 3) in ko = %q", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "DuplicateUpload", map[string]any{"Date": "2026-03-01"})
	if got != "This file was already imported on 2026-03-01." {
		t.Errorf("Td(DuplicateUpload) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "NonExistentKey"); got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestMatch(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	tests := []struct {
		header   string
		fallback string
		want     string
	}{
		{"", "ko", "ko"},
		{"ko-KR,ko;q=0.9,en;q=0.8", "en", "ko"},
		{"en-US", "ko", "en"},
		{"fr-FR, de;q=0.5", "ko", "ko"},
		{"not a header ;;;", "en", "en"},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			if got := Match(tt.header, tt.fallback); got != tt.want {
				t.Errorf("Match(%q, %q) = %q, want %q", tt.header, tt.fallback, got, tt.want)
			}
		})
	}

	if langs := Supported(); !slices.Contains(langs, "ko") || !slices.Contains(langs, "en") {
		t.Errorf("Supported() = %v", langs)
	}
}

func TestMiddleware(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	var gotLang, gotMsg string
	h := Middleware("en")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLang = Lang(r.Context())
		gotMsg = T(r.Context(), "Forbidden")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "ko")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if gotLang != "ko" || gotMsg != "권한이 없습니다." {
		t.Errorf("lang=%q msg=%q", gotLang, gotMsg)
	}
	if rec.Header().Get("Content-Language") != "ko" {
		t.Errorf("Content-Language = %q", rec.Header().Get("Content-Language"))
	}
}
