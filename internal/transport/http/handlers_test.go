package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"payerhub/internal/audit"
	"payerhub/internal/collaborators"
	"payerhub/internal/consent"
	"payerhub/internal/events"
	"payerhub/internal/pipeline"
	"payerhub/internal/platform/middleware"
	"payerhub/internal/privacy"
	"payerhub/pkg/testutil"
)

type stubValidator struct{}

func (stubValidator) ValidateToken(token string) (*middleware.JWTClaims, error) {
	return &middleware.JWTClaims{UserID: "user-1", OrganizationID: "org-1"}, nil
}

// =============================================================================
// Handler Test Suite
// =============================================================================

type HandlerSuite struct {
	suite.Suite
	router   http.Handler
	consents *consent.Service
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	discard := slog.New(slog.DiscardHandler)

	var err error
	s.consents, err = consent.NewService(consent.NewInMemoryStore(), 30*24*time.Hour, discard)
	s.Require().NoError(err)
	auditLog, err := audit.NewLog(audit.NewInMemoryStore(), discard)
	s.Require().NoError(err)
	gate, err := privacy.NewGate(s.consents, auditLog, discard)
	s.Require().NoError(err)

	registry := pipeline.NewRegistry()
	orchestrator, err := pipeline.New(pipeline.Deps{
		OCR:       collaborators.LocalOCR{},
		Extractor: collaborators.LocalExtractor{},
		Anomalies: collaborators.LocalAnomalyDetector{},
		Converter: collaborators.LocalConverter{},
		Hub:       collaborators.LocalHub{},
		Gate:      gate,
		Bus:       events.NewMemoryBus(),
		Registry:  registry,
		Logger:    discard,
	})
	s.Require().NoError(err)

	handler := NewHandler(orchestrator, registry, s.consents, auditLog, nil, discard)
	s.router = NewRouter(handler, stubValidator{})
}

func (s *HandlerSuite) grantConsent(patientID string) {
	_, err := s.consents.Grant(context.Background(), patientID, "org-1", "treatment",
		[]string{consent.ScopeFullAccess}, 0)
	s.Require().NoError(err)
}

func (s *HandlerSuite) authed(req *http.Request) *http.Request {
	req.Header.Set("Authorization", "Bearer test-token")
	return req
}

// =============================================================================
// Auth and Health
// =============================================================================

func (s *HandlerSuite) TestHealthEndpointIsPublic() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/healthz"))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
}

func (s *HandlerSuite) TestAPIRequiresBearerToken() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/api/v1/runs/CORR-1"))
	testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
}

// =============================================================================
// Document Processing
// =============================================================================

func (s *HandlerSuite) TestProcessDocument() {
	s.grantConsent("patient-1")

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/v1/documents/process", map[string]any{
		"document_ref":    "/inbox/claim.pdf",
		"document_type":   "PRIOR_AUTHORIZATION",
		"patient_id":      "patient-1",
		"organization_id": "org-1",
	})
	rr := testutil.DoRequest(s.router, s.authed(req))

	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	view := testutil.UnmarshalResponse[pipeline.View](s.T(), rr)
	s.Equal(pipeline.StatusCompleted, view.Status)
	s.Len(view.StepOrder, 6)

	// The run snapshot is retrievable afterwards.
	rr = testutil.DoRequest(s.router, s.authed(testutil.NewRequest(s.T(), http.MethodGet, "/api/v1/runs/"+view.CorrelationID)))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
}

func (s *HandlerSuite) TestProcessDocumentValidatesBody() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/v1/documents/process", map[string]any{
		"document_ref": "/inbox/claim.pdf",
	})
	rr := testutil.DoRequest(s.router, s.authed(req))
	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
}

func (s *HandlerSuite) TestGetRunNotFound() {
	rr := testutil.DoRequest(s.router, s.authed(testutil.NewRequest(s.T(), http.MethodGet, "/api/v1/runs/CORR-missing")))
	testutil.AssertError(s.T(), rr, http.StatusNotFound, "run not found")
}

// =============================================================================
// Consent Endpoints
// =============================================================================

func (s *HandlerSuite) TestConsentLifecycle() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/v1/consents", map[string]any{
		"patient_id":      "patient-1",
		"organization_id": "org-1",
		"purpose":         "treatment",
		"scope":           []string{"full_access"},
	})
	rr := testutil.DoRequest(s.router, s.authed(req))
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)

	granted := testutil.UnmarshalResponse[consentResponse](s.T(), rr)
	s.Equal("active", granted.Status)
	s.Regexp("^[0-9A-F]{16}$", granted.ConsentID)

	rr = testutil.DoRequest(s.router, s.authed(testutil.NewRequest(s.T(), http.MethodGet, "/api/v1/patients/patient-1/consents")))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	listed := testutil.UnmarshalResponse[[]consentResponse](s.T(), rr)
	s.Len(*listed, 1)

	rr = testutil.DoRequest(s.router, s.authed(testutil.NewRequest(s.T(), http.MethodPost, "/api/v1/consents/"+granted.ConsentID+"/revoke")))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
}

func (s *HandlerSuite) TestGrantConsentRejectsBadRequest() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/v1/consents", map[string]any{
		"patient_id": "patient-1",
	})
	rr := testutil.DoRequest(s.router, s.authed(req))
	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
}

// =============================================================================
// Audit Endpoint
// =============================================================================

func (s *HandlerSuite) TestListAuditAfterProcessing() {
	s.grantConsent("patient-1")

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/v1/documents/process", map[string]any{
		"document_ref":    "/inbox/claim.pdf",
		"patient_id":      "patient-1",
		"organization_id": "org-1",
	})
	testutil.DoRequest(s.router, s.authed(req))

	rr := testutil.DoRequest(s.router, s.authed(testutil.NewRequest(s.T(), http.MethodGet, "/api/v1/patients/patient-1/audit")))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	entries := testutil.UnmarshalResponse[[]auditEntryResponse](s.T(), rr)
	s.Require().Len(*entries, 1)
	s.Equal("ACCESS_GRANTED", (*entries)[0].Action)
}
