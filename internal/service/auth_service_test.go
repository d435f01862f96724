package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/exam-portal/internal/config"
	"github.com/stemsi/exam-portal/internal/model"
)

type memUsers struct {
	byEmail map[string]*model.User
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	if u, ok := m.byEmail[email]; ok {
		return u, nil
	}
	return nil, pgx.ErrNoRows
}

func (m *memUsers) GetByID(_ context.Context, id int) (*model.User, error) {
	for _, u := range m.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func newAuth(t *testing.T) (*AuthService, *memUsers) {
	t.Helper()
	cfg := &config.Config{JWTSecret: "test-secret", JWTExpiry: time.Hour, BcryptCost: 4}
	users := &memUsers{byEmail: map[string]*model.User{}}
	svc := NewAuthService(cfg, users)

	hash, err := svc.HashPassword("rahasia123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	users.byEmail["ayu@student.test"] = &model.User{
		ID: 42, Name: "Ayu Lestari", Email: "ayu@student.test", Role: model.RoleStudent, PasswordHash: hash,
	}
	return svc, users
}

func TestLogin(t *testing.T) {
	svc, _ := newAuth(t)

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{name: "valid", email: "ayu@student.test", password: "rahasia123"},
		{name: "email is normalized", email: "  AYU@student.test ", password: "rahasia123"},
		{name: "wrong password", email: "ayu@student.test", password: "salah", wantErr: ErrInvalidCredentials},
		{name: "unknown email", email: "nobody@student.test", password: "rahasia123", wantErr: ErrInvalidCredentials},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := svc.Login(context.Background(), model.LoginRequest{Email: tc.email, Password: tc.password})
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			claims, err := svc.ValidateToken(resp.Token)
			if err != nil {
				t.Fatalf("validate: %v", err)
			}
			if claims.UserID != 42 || claims.Role != model.RoleStudent || claims.Name != "Ayu Lestari" {
				t.Errorf("claims = %+v", claims)
			}
		})
	}
}

func TestValidateTokenRejects(t *testing.T) {
	svc, users := newAuth(t)
	user := users.byEmail["ayu@student.test"]

	good, err := svc.GenerateToken(user)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	other := NewAuthService(&config.Config{JWTSecret: "other", JWTExpiry: time.Hour}, users)
	forged, _ := other.GenerateToken(user)

	expired := NewAuthService(&config.Config{JWTSecret: "test-secret", JWTExpiry: time.Hour}, users)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	stale, _ := expired.GenerateToken(user)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: 42, Role: model.RoleStudent})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	badRole := *user
	badRole.Role = "janitor"
	roleless, _ := svc.GenerateToken(&badRole)

	tests := []struct {
		name  string
		token string
		ok    bool
	}{
		{name: "valid", token: good, ok: true},
		{name: "wrong secret", token: forged},
		{name: "expired", token: stale},
		{name: "alg none", token: unsigned},
		{name: "unknown role", token: roleless},
		{name: "garbage", token: strings.Repeat("x", 20)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.ValidateToken(tc.token)
			if (err == nil) != tc.ok {
				t.Errorf("ValidateToken() err = %v, want ok=%v", err, tc.ok)
			}
		})
	}
}
