package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/taskbounty/marketplace/internal/domain"
)

type mockIdentityService struct {
	registerFn    func(ctx context.Context, req *domain.RegisterRequest) (*domain.Identity, error)
	loginFn       func(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error)
	verifyFn      func(ctx context.Context, username string, code int64) (*domain.Identity, error)
	resendFn      func(ctx context.Context, username string) error
	changeEmailFn func(ctx context.Context, username, newEmail string) error
}

func (m *mockIdentityService) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.Identity, error) {
	return m.registerFn(ctx, req)
}

func (m *mockIdentityService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	return m.loginFn(ctx, req)
}

func (m *mockIdentityService) Verify(ctx context.Context, username string, code int64) (*domain.Identity, error) {
	return m.verifyFn(ctx, username, code)
}

func (m *mockIdentityService) ResendCode(ctx context.Context, username string) error {
	return m.resendFn(ctx, username)
}

func (m *mockIdentityService) ChangeEmail(ctx context.Context, username, newEmail string) error {
	return m.changeEmailFn(ctx, username, newEmail)
}

func postJSON(t *testing.T, handler http.HandlerFunc, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestRegister_Created(t *testing.T) {
	svc := &mockIdentityService{
		registerFn: func(_ context.Context, req *domain.RegisterRequest) (*domain.Identity, error) {
			return &domain.Identity{ID: "id-1", Username: req.Username, Email: req.Email}, nil
		},
	}
	h := NewAuthHandler(svc)

	rec := postJSON(t, h.Register, domain.RegisterRequest{
		Username: "worker1",
		Email:    "worker1@example.com",
		Password: "supersecret",
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}

	var info domain.IdentityInfo
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if info.Username != "worker1" || info.Verified {
		t.Fatalf("unexpected body: %+v", info)
	}
}

func TestRegister_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"duplicate email", domain.ErrDuplicateEmail, http.StatusConflict, "EMAIL_EXISTS"},
		{"duplicate username", domain.ErrDuplicateUsername, http.StatusConflict, "USERNAME_EXISTS"},
		{"disabled account", domain.ErrAccountDisabled, http.StatusBadRequest, "INVALID_INPUT"},
		{"bad email syntax", domain.ErrInvalidEmailSyntax, http.StatusBadRequest, "INVALID_INPUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockIdentityService{
				registerFn: func(_ context.Context, _ *domain.RegisterRequest) (*domain.Identity, error) {
					return nil, tt.err
				},
			}
			h := NewAuthHandler(svc)

			rec := postJSON(t, h.Register, domain.RegisterRequest{Username: "u", Email: "e@x.com", Password: "supersecret"})
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			var body struct {
				Code string `json:"code"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if body.Code != tt.wantCode {
				t.Fatalf("code = %q, want %q", body.Code, tt.wantCode)
			}
		})
	}
}

func TestVerify_CodeErrorsReturnForbidden(t *testing.T) {
	for _, svcErr := range []error{domain.ErrInvalidCodeFormat, domain.ErrCodeMismatch} {
		svc := &mockIdentityService{
			verifyFn: func(_ context.Context, _ string, _ int64) (*domain.Identity, error) {
				return nil, svcErr
			},
		}
		h := NewAuthHandler(svc)

		rec := postJSON(t, h.Verify, domain.VerifyRequest{Username: "worker1", Code: 12345678})
		if rec.Code != http.StatusForbidden {
			t.Fatalf("%v: status = %d, want 403", svcErr, rec.Code)
		}
	}
}

func TestResendCode_CooldownReturns429(t *testing.T) {
	svc := &mockIdentityService{
		resendFn: func(_ context.Context, _ string) error {
			return &domain.CooldownActiveError{RequiredSeconds: 64, RemainingSeconds: 41}
		},
	}
	h := NewAuthHandler(svc)

	rec := postJSON(t, h.ResendCode, map[string]string{"username": "worker1"})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}

	var body struct {
		Code             string `json:"code"`
		RequiredSeconds  int64  `json:"required_seconds"`
		RemainingSeconds int64  `json:"remaining_seconds"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Code != "COOLDOWN_ACTIVE" || body.RequiredSeconds != 64 || body.RemainingSeconds != 41 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	svc := &mockIdentityService{
		loginFn: func(_ context.Context, _ *domain.LoginRequest) (*domain.LoginResponse, error) {
			return nil, domain.ErrInvalidCredentials
		},
	}
	h := NewAuthHandler(svc)

	rec := postJSON(t, h.Login, domain.LoginRequest{Identifier: "worker1", Password: "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestChangeEmail_NotFound(t *testing.T) {
	svc := &mockIdentityService{
		changeEmailFn: func(_ context.Context, _, _ string) error {
			return domain.ErrNotFound
		},
	}
	h := NewAuthHandler(svc)

	rec := postJSON(t, h.ChangeEmail, domain.ChangeEmailRequest{Username: "ghost", NewEmail: "n@x.com"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestRegister_MalformedBody(t *testing.T) {
	h := NewAuthHandler(&mockIdentityService{})

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	h.Register(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
