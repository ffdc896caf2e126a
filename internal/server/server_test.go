package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/avkuzmin/contact-admin/internal/errs"
	"github.com/avkuzmin/contact-admin/internal/model"
	"github.com/avkuzmin/contact-admin/internal/service"
)

type fakeAuth struct {
	registerID  string
	registerErr error

	loginOut service.LoginOutcome
	loginErr error

	dispatchErr error

	verifyOut service.VerifyOutcome
	verifyErr error

	resendErr error

	currentUser    model.Profile
	currentUserErr error

	resetRequestErr error
	resetErr        error
}

var _ service.AuthService = (*fakeAuth)(nil)

func (f *fakeAuth) Register(_ context.Context, _ model.Registration) (string, error) {
	return f.registerID, f.registerErr
}

func (f *fakeAuth) LoginWithIP(_ context.Context, _, _, _ string) (service.LoginOutcome, error) {
	return f.loginOut, f.loginErr
}

func (f *fakeAuth) DispatchOtp(_ context.Context, _ model.OtpMedium, _ string, _ model.OtpPurpose) error {
	return f.dispatchErr
}

func (f *fakeAuth) VerifyOtp(_ context.Context, _ model.OtpPurpose, _, _ string) (service.VerifyOutcome, error) {
	return f.verifyOut, f.verifyErr
}

func (f *fakeAuth) ResendOtp(_ context.Context, _ string, _ model.OtpPurpose) error {
	return f.resendErr
}

func (f *fakeAuth) CurrentUser(_ context.Context, _ string) (model.Profile, error) {
	return f.currentUser, f.currentUserErr
}

func (f *fakeAuth) RequestPasswordReset(_ context.Context, _ string) error {
	return f.resetRequestErr
}

func (f *fakeAuth) ResetPassword(_ context.Context, _, _, _ string) error {
	return f.resetErr
}

func do(t *testing.T, router *gin.Engine, method, path string, body any, header map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("bad envelope: %v in %s", err, w.Body.String())
	}
	return w, env
}

func init() { gin.SetMode(gin.TestMode) }

func TestRegisterHandler(t *testing.T) {
	router := New(&fakeAuth{registerID: "user-1"}, nil).Router()

	w, env := do(t, router, http.MethodPost, "/users/register", gin.H{
		"firstName": "Ann", "lastName": "Admin",
		"email": "a@b.com", "password": "pw",
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	if !env.Success {
		t.Fatalf("envelope: %+v", env)
	}

	// missing fields are rejected before the service sees them
	w, env = do(t, router, http.MethodPost, "/users/register", gin.H{"email": "a@b.com"}, nil)
	if w.Code != http.StatusBadRequest || env.Error == nil || env.Error.Code != "VALIDATION_001" {
		t.Fatalf("status %d env %+v", w.Code, env)
	}
}

func TestRegisterHandlerDuplicate(t *testing.T) {
	router := New(&fakeAuth{
		registerErr: errs.E(errs.ErrRegistrationFailed, "USER_002", "email or phone already registered"),
	}, nil).Router()

	w, env := do(t, router, http.MethodPost, "/users/register", gin.H{
		"firstName": "Ann", "lastName": "Admin",
		"email": "a@b.com", "password": "pw",
	}, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("status %d", w.Code)
	}
	if env.Error == nil || env.Error.Code != "USER_002" {
		t.Fatalf("env: %+v", env)
	}
}

func TestLoginHandlerToken(t *testing.T) {
	router := New(&fakeAuth{loginOut: service.LoginOutcome{Token: "jwt"}}, nil).Router()

	w, env := do(t, router, http.MethodPost, "/users/login", gin.H{"email": "a@b.com", "password": "pw"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var data struct {
		Token string `json:"token"`
	}
	raw, _ := json.Marshal(env.Data)
	_ = json.Unmarshal(raw, &data)
	if data.Token != "jwt" {
		t.Fatalf("data: %v", env.Data)
	}
}

func TestLoginHandlerMFAChallenge(t *testing.T) {
	router := New(&fakeAuth{loginOut: service.LoginOutcome{Challenge: &model.Challenge{
		Stage: model.StageMFA,
		Email: model.Channel{Required: true, Contact: "a@b.com"},
	}}}, nil).Router()

	w, env := do(t, router, http.MethodPost, "/users/login", gin.H{"email": "a@b.com", "password": "pw"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var data struct {
		RequiresOtp bool   `json:"requiresOtp"`
		Contact     string `json:"contact"`
		Medium      string `json:"medium"`
	}
	raw, _ := json.Marshal(env.Data)
	_ = json.Unmarshal(raw, &data)
	if !data.RequiresOtp || data.Contact != "a@b.com" || data.Medium != "email" {
		t.Fatalf("data: %v", env.Data)
	}
}

func TestLoginHandlerVerifyStage(t *testing.T) {
	router := New(&fakeAuth{loginOut: service.LoginOutcome{Challenge: &model.Challenge{
		Stage: model.StageVerify,
		Email: model.Channel{Required: true, Contact: "a@b.com", Sent: true},
		Phone: model.Channel{Required: true, Contact: "+15550001"},
	}}}, nil).Router()

	w, env := do(t, router, http.MethodPost, "/users/login", gin.H{"email": "a@b.com", "password": "pw"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var data struct {
		Stage     string `json:"stage"`
		Email     string `json:"email"`
		EmailSent bool   `json:"emailSent"`
		Phone     string `json:"phone"`
		PhoneSent bool   `json:"phoneSent"`
	}
	raw, _ := json.Marshal(env.Data)
	_ = json.Unmarshal(raw, &data)
	if data.Stage != "verify" || data.Email != "a@b.com" || !data.EmailSent || data.Phone != "+15550001" || data.PhoneSent {
		t.Fatalf("data: %v", env.Data)
	}
}

func TestLoginHandlerRateLimited(t *testing.T) {
	router := New(&fakeAuth{
		loginErr: errs.E(errs.ErrRateLimited, "AUTH_003", "too many login attempts, try again later"),
	}, nil).Router()

	w, env := do(t, router, http.MethodPost, "/users/login", gin.H{"email": "a@b.com", "password": "pw"}, nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status %d", w.Code)
	}
	if env.Error == nil || env.Error.Code != "AUTH_003" {
		t.Fatalf("env: %+v", env)
	}
}

func TestVerifyOtpHandler(t *testing.T) {
	p := model.Profile{ID: "u-1", Email: "a@b.com"}
	router := New(&fakeAuth{verifyOut: service.VerifyOutcome{Token: "jwt", User: &p}}, nil).Router()

	w, env := do(t, router, http.MethodPost, "/users/verify-otp", gin.H{
		"purpose": "LOGIN", "contact": "a@b.com", "code": "123456",
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var data struct {
		Token string        `json:"token"`
		User  model.Profile `json:"user"`
	}
	raw, _ := json.Marshal(env.Data)
	_ = json.Unmarshal(raw, &data)
	if data.Token != "jwt" || data.User.ID != "u-1" {
		t.Fatalf("data: %v", env.Data)
	}
}

func TestVerifyOtpHandlerRegistrationStage(t *testing.T) {
	router := New(&fakeAuth{}, nil).Router()

	w, env := do(t, router, http.MethodPost, "/users/verify-otp", gin.H{
		"purpose": "registration", "contact": "a@b.com", "code": "123456",
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var data struct {
		Verified bool `json:"verified"`
	}
	raw, _ := json.Marshal(env.Data)
	_ = json.Unmarshal(raw, &data)
	if !data.Verified {
		t.Fatalf("data: %v", env.Data)
	}
}

func TestVerifyOtpHandlerWrongCode(t *testing.T) {
	router := New(&fakeAuth{
		verifyErr: errs.E(errs.ErrOtpInvalid, "OTP_001", "invalid verification code"),
	}, nil).Router()

	w, env := do(t, router, http.MethodPost, "/users/verify-otp", gin.H{
		"purpose": "login", "contact": "a@b.com", "code": "000000",
	}, nil)
	if w.Code != http.StatusBadRequest || env.Error == nil || env.Error.Code != "OTP_001" {
		t.Fatalf("status %d env %+v", w.Code, env)
	}
}

func TestMeHandler(t *testing.T) {
	router := New(&fakeAuth{currentUser: model.Profile{ID: "u-1", Email: "a@b.com"}}, nil).Router()

	// no bearer
	w, env := do(t, router, http.MethodGet, "/users/me", nil, nil)
	if w.Code != http.StatusUnauthorized || env.Error == nil || env.Error.Code != "AUTH_002" {
		t.Fatalf("status %d env %+v", w.Code, env)
	}

	w, env = do(t, router, http.MethodGet, "/users/me", nil, map[string]string{"Authorization": "Bearer jwt"})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var p model.Profile
	raw, _ := json.Marshal(env.Data)
	_ = json.Unmarshal(raw, &p)
	if p.ID != "u-1" {
		t.Fatalf("data: %v", env.Data)
	}
}

func TestMeHandlerExpired(t *testing.T) {
	router := New(&fakeAuth{
		currentUserErr: errs.E(errs.ErrSessionExpired, "AUTH_002", "invalid or expired token"),
	}, nil).Router()

	w, _ := do(t, router, http.MethodGet, "/users/me", nil, map[string]string{"Authorization": "Bearer stale"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status %d", w.Code)
	}
}

func TestUncodedErrorIsMasked(t *testing.T) {
	router := New(&fakeAuth{loginErr: context.DeadlineExceeded}, nil).Router()

	w, env := do(t, router, http.MethodPost, "/users/login", gin.H{"email": "a@b.com", "password": "pw"}, nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status %d", w.Code)
	}
	if env.Error == nil || env.Error.Code != "default" || env.Error.Description != "something went wrong" {
		t.Fatalf("internals must not leak: %+v", env)
	}
}
