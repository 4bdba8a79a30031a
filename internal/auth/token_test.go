package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pavelanni/academy/internal/model"
)

func TestIssueAndParse(t *testing.T) {
	iss, err := NewIssuer("s3cret")
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	u := &model.User{ID: "u1", Role: model.UserRoleTeacher}
	sess := &model.AuthSession{ID: "sess1", UserID: "u1", CreatedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour)}

	tok, err := iss.Issue(u, sess)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := iss.Parse(tok)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "u1" || claims.ID != "sess1" || claims.Role != model.UserRoleTeacher {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestParseRejects(t *testing.T) {
	iss, _ := NewIssuer("s3cret")
	other, _ := NewIssuer("different")
	u := &model.User{ID: "u1", Role: model.UserRoleAdmin}

	valid := &model.AuthSession{ID: "s", CreatedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour)}
	expired := &model.AuthSession{ID: "s", CreatedAt: time.Now().Add(-2 * time.Hour), ExpiresAt: time.Now().Add(-time.Hour)}

	foreign, _ := other.Issue(u, valid)
	old, _ := iss.Issue(u, expired)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", ID: "s", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", foreign},
		{"expired", old},
		{"alg none", none},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := iss.Parse(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestNewIssuerRequiresSecret(t *testing.T) {
	if _, err := NewIssuer(""); err == nil {
		t.Error("expected error for empty secret")
	}
}
