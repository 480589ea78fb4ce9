package router

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carewellhealth/patient-portal/internal/chat"
	"github.com/carewellhealth/patient-portal/internal/guard"
	"github.com/carewellhealth/patient-portal/internal/identity"
	"github.com/carewellhealth/patient-portal/internal/records"
	"github.com/carewellhealth/patient-portal/pkg/logging"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	testPassword = "correct horse battery staple"
)

type benignClassifier struct{}

func (benignClassifier) IsMalicious(context.Context, string) bool { return false }

type permissiveValidator struct{}

func (permissiveValidator) Validate(context.Context, *identity.Patient, []guard.Message, string) guard.ValidationVerdict {
	return guard.ValidationVerdict{IsValid: true, Reasoning: "own records"}
}

type staticDirectory struct{ patient *identity.Patient }

func (d staticDirectory) GetPatient(context.Context, int) (*identity.Patient, error) {
	return d.patient, nil
}

type cannedCompleter struct{ content string }

func (c cannedCompleter) CreateChatCompletion(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: c.content}},
		},
	}, nil
}

type noopGate struct{}

func (noopGate) Run(context.Context, *identity.Patient, string) chat.ToolResult {
	return chat.ToolResult{Data: []map[string]any{}, Message: "No results found"}
}

type emptyLister struct{}

func (emptyLister) ListBills(context.Context, int) ([]records.Bill, error) {
	return []records.Bill{}, nil
}

func (emptyLister) ListLabResults(context.Context, int) ([]records.LabResult, error) {
	return []records.LabResult{}, nil
}

func (emptyLister) ListPrescriptions(context.Context, int) ([]records.Prescription, error) {
	return []records.Prescription{}, nil
}

func newServerForTest(t *testing.T) http.Handler {
	t.Helper()
	logger := logging.New("error")
	sessions := identity.NewSessionManager(testSecret, time.Hour, false)

	digest := sha256.Sum256([]byte(testPassword))
	auth, err := identity.NewAuthenticator("patient", hex.EncodeToString(digest[:]), 5, staticDirectory{
		patient: &identity.Patient{ID: 5, FirstName: "Jane", LastName: "Doe", DateOfBirth: "1992-03-15"},
	})
	require.NoError(t, err)

	pipeline := guard.NewPipeline(benignClassifier{}, permissiveValidator{}, nil, nil, logger)
	orchestrator := chat.NewOrchestrator(cannedCompleter{content: "Hello!"}, pipeline, noopGate{}, nil,
		"gpt-4o", 3, 30*time.Second, nil, logger)

	return New(&Config{
		Logger:          logger,
		Sessions:        sessions,
		IdentityHandler: identity.NewHandler(auth, sessions, nil, logger),
		GuardHandler:    guard.NewHandler(benignClassifier{}, permissiveValidator{}, logger),
		ChatHandler:     chat.NewHandler(orchestrator, logger),
		RecordsHandler:  records.NewHandler(emptyLister{}, logger),
		MetricsHandler:  http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }),
	})
}

func login(t *testing.T, server http.Handler) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/auth",
		strings.NewReader(`{"username":"patient","password":"`+testPassword+`"}`))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := rec.Header().Get("Set-Cookie")
	require.NotEmpty(t, cookie)
	return cookie
}

func TestHealthEndpoint(t *testing.T) {
	server := newServerForTest(t)

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	server := newServerForTest(t)

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	server := newServerForTest(t)

	for _, path := range []string{"/api/user", "/api/billing", "/api/lab-results", "/api/prescriptions"} {
		t.Run(path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestLoginThenFetchUser(t *testing.T) {
	server := newServerForTest(t)
	cookie := login(t, server)

	req := httptest.NewRequest(http.MethodGet, "/api/user", nil)
	req.Header.Set("Cookie", cookie)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"userId":5`)
	assert.Contains(t, rec.Body.String(), `"firstName":"Jane"`)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	server := newServerForTest(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth",
		strings.NewReader(`{"username":"patient","password":"wrong"}`))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPromptGuardIsPublic(t *testing.T) {
	server := newServerForTest(t)

	req := httptest.NewRequest(http.MethodPost, "/api/prompt-guard", strings.NewReader(`{"input":"hello"}`))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"isMalicious":false}`, rec.Body.String())
}

func TestValidatePromptWithoutSession(t *testing.T) {
	server := newServerForTest(t)

	req := httptest.NewRequest(http.MethodPost, "/api/validate-prompt",
		strings.NewReader(`{"prompt":"hi","messages":[]}`))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"isValid":false,"reasoning":"User not authenticated"}`, rec.Body.String())
}

func TestChatIsSessionOptional(t *testing.T) {
	server := newServerForTest(t)

	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"messages":[{"role":"user","content":"hello"}]}`))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Hello!")
}

func TestLogoutClearsCookie(t *testing.T) {
	server := newServerForTest(t)
	cookie := login(t, server)

	req := httptest.NewRequest(http.MethodPost, "/api/logout", nil)
	req.Header.Set("Cookie", cookie)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Set-Cookie"), "Max-Age=0")
}
