package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/auth"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/authpw"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/email"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/lead"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/leadstore"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/logger/loggertest"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/objectstore"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/ratelimit"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/session"
)

const testPassword = "correct horse battery"

type sentMail struct {
	to, subject, body string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (f *fakeSender) Send(to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to, subject, body})
	return nil
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type testEnv struct {
	store   *objectstore.MemoryStore
	repo    *leadstore.Repository
	service *Service
	server  http.Handler
	mail    *fakeSender
}

type envOption func(*Deps)

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	log := loggertest.New(t)
	store := objectstore.NewMemoryStore()
	repo := leadstore.NewRepository(store, log)

	verifier, err := authpw.NewVerifierFromPassword(testPassword, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	mail := &fakeSender{}
	deps := Deps{
		Leads:         repo,
		Guard:         auth.NewGuard([]byte("test-secret"), session.NewMemoryStore(), time.Hour),
		Verifier:      verifier,
		SubmitLimiter: ratelimit.NewMemoryLimiter(100, time.Minute),
		LoginLimiter:  ratelimit.NewMemoryLimiter(100, time.Minute),
		Email: email.NewServiceWithSender(email.Config{
			Host:     "smtp.example.com",
			Port:     587,
			From:     "team@example.com",
			FromName: "My Next Ride Ontario",
		}, mail),
		Log:       log,
		AdminName: "Dana",
	}
	for _, opt := range opts {
		opt(&deps)
	}
	svc := NewService(deps)
	return &testEnv{
		store:   store,
		repo:    repo,
		service: svc,
		server:  NewHTTPServer(svc, "*", log).Handler(),
		mail:    mail,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.server.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) login(t *testing.T) string {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/admin/login", map[string]string{"password": testPassword}, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	decode(t, rr, &resp)
	return resp.Token
}

func (e *testEnv) submit(t *testing.T, form lead.FormData) string {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/leads", form, "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("submit: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		ID string `json:"id"`
	}
	decode(t, rr, &resp)
	return resp.ID
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse response %q: %v", rr.Body.String(), err)
	}
}

func financeForm() lead.FormData {
	return lead.FormData{
		Urgency:         "right-away",
		VehicleType:     "suv",
		PaymentType:     "finance",
		FinanceBudget:   "400-500",
		CreditRating:    "good",
		TradeIn:         "no",
		FullName:        "Jordan Smith",
		Phone:           "(416) 555-0199",
		Email:           "jordan@example.com",
		DateOfBirth:     "1990-05-14",
		BestTimeToReach: "evening",
		LicenseClass:    "g-or-above",
		Cosigner:        "no",
	}
}

// partitionQuery is the year/month of a lead created just now.
func partitionQuery() string {
	now := time.Now().UTC()
	return fmt.Sprintf("year=%d&month=%d", now.Year(), int(now.Month()))
}
