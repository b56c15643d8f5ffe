package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/riskassessment/internal/risk/domain"
)

type mockRiskService struct {
	mock.Mock
}

func (m *mockRiskService) AssessRisk(ctx context.Context, in domain.ApplicationInput) *domain.RiskAssessment {
	args := m.Called(ctx, in)
	return args.Get(0).(*domain.RiskAssessment)
}

func (m *mockRiskService) GetRiskAssessmentByApplicationID(ctx context.Context, applicationID string) (*domain.RiskAssessment, error) {
	args := m.Called(ctx, applicationID)
	a, _ := args.Get(0).(*domain.RiskAssessment)
	return a, args.Error(1)
}

func (m *mockRiskService) ReassessRisk(ctx context.Context, applicationID string) (*domain.RiskAssessment, error) {
	args := m.Called(ctx, applicationID)
	a, _ := args.Get(0).(*domain.RiskAssessment)
	return a, args.Error(1)
}

type envelope struct {
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Data    *domain.RiskAssessment `json:"data"`
}

func setupRouter(svc RiskService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewRiskHandler(svc).RegisterRoutes(r)
	return r
}

func serve(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(rec, req)
	return rec
}

func TestGetAssessmentFound(t *testing.T) {
	svc := new(mockRiskService)
	appID := uuid.NewString()
	svc.On("GetRiskAssessmentByApplicationID", mock.Anything, appID).
		Return(&domain.RiskAssessment{ID: "a1", ApplicationID: appID, Decision: domain.DecisionApproved, RiskScore: decimal.RequireFromString("76.8864")}, nil)

	rec := serve(setupRouter(svc), http.MethodGet, "/api/risk/assessments/"+appID, "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "a1", body.Data.ID)
	assert.Equal(t, domain.DecisionApproved, body.Data.Decision)
	svc.AssertExpectations(t)
}

func TestGetAssessmentNotFound(t *testing.T) {
	svc := new(mockRiskService)
	appID := uuid.NewString()
	svc.On("GetRiskAssessmentByApplicationID", mock.Anything, appID).Return(nil, nil)

	rec := serve(setupRouter(svc), http.MethodGet, "/api/risk/assessments/"+appID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetAssessmentInvalidID(t *testing.T) {
	svc := new(mockRiskService)
	rec := serve(setupRouter(svc), http.MethodGet, "/api/risk/assessments/not-a-uuid", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "GetRiskAssessmentByApplicationID", mock.Anything, mock.Anything)
}

func TestGetAssessmentStorageError(t *testing.T) {
	svc := new(mockRiskService)
	appID := uuid.NewString()
	svc.On("GetRiskAssessmentByApplicationID", mock.Anything, appID).Return(nil, errors.New("db down"))

	rec := serve(setupRouter(svc), http.MethodGet, "/api/risk/assessments/"+appID, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db down")
}

func TestReassessNotImplemented(t *testing.T) {
	svc := new(mockRiskService)
	appID := uuid.NewString()
	svc.On("ReassessRisk", mock.Anything, appID).Return(nil, domain.ErrReassessmentNotSupported)

	rec := serve(setupRouter(svc), http.MethodPost, "/api/risk/reassess/"+appID, "")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.Contains(t, rec.Body.String(), "not supported")
}

func TestAssessRisk(t *testing.T) {
	svc := new(mockRiskService)
	appID := uuid.NewString()
	svc.On("AssessRisk", mock.Anything, mock.MatchedBy(func(in domain.ApplicationInput) bool {
		return in.ApplicationID == appID && in.LoanAmount.Equal(decimal.NewFromInt(10000))
	})).Return(&domain.RiskAssessment{ID: "a2", ApplicationID: appID, Decision: domain.DecisionRejected})

	payload := `{"applicationId":"` + appID + `","customerId":"C1","loanAmount":10000,"income":5000,"loanPurpose":"HOME"}`
	rec := serve(setupRouter(svc), http.MethodPost, "/api/risk/assess", payload)

	require.Equal(t, http.StatusOK, rec.Code)
	var body envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, domain.DecisionRejected, body.Data.Decision)
	svc.AssertExpectations(t)
}

func TestAssessRiskRejectsBadPayload(t *testing.T) {
	svc := new(mockRiskService)
	r := setupRouter(svc)

	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodPost, "/api/risk/assess", `{"applicationId":`).Code)
	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodPost, "/api/risk/assess", `{"applicationId":"x","customerId":"C1"}`).Code)
	svc.AssertNotCalled(t, "AssessRisk", mock.Anything, mock.Anything)
}

func TestHealth(t *testing.T) {
	rec := serve(setupRouter(new(mockRiskService)), http.MethodGet, "/api/risk/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "UP")
}
