package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/wyfcoding/riskassessment/internal/risk/domain"
	"github.com/wyfcoding/riskassessment/pkg/logger"
	"github.com/wyfcoding/riskassessment/pkg/response"
)

// RiskService 处理器依赖的评估用例
type RiskService interface {
	AssessRisk(ctx context.Context, in domain.ApplicationInput) *domain.RiskAssessment
	GetRiskAssessmentByApplicationID(ctx context.Context, applicationID string) (*domain.RiskAssessment, error)
	ReassessRisk(ctx context.Context, applicationID string) (*domain.RiskAssessment, error)
}

// RiskHandler 负责处理与风险评估相关的 HTTP 请求
type RiskHandler struct {
	svc RiskService
}

// NewRiskHandler 创建 HTTP 处理器
func NewRiskHandler(svc RiskService) *RiskHandler {
	return &RiskHandler{svc: svc}
}

// RegisterRoutes 注册路由
func (h *RiskHandler) RegisterRoutes(router gin.IRouter) {
	api := router.Group("/api/risk")
	{
		api.POST("/assess", h.AssessRisk)
		api.GET("/assessments/:applicationId", h.GetAssessment)
		api.POST("/reassess/:applicationId", h.Reassess)
		api.GET("/health", h.Health)
	}
}

// AssessRisk 同步执行一次评估，流程失败时返回 decision=ERROR 的评估
func (h *RiskHandler) AssessRisk(c *gin.Context) {
	var in domain.ApplicationInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := in.Validate(); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid application", err.Error())
		return
	}

	response.Success(c, h.svc.AssessRisk(c.Request.Context(), in))
}

// GetAssessment 按申请 ID 查询最近一次评估
func (h *RiskHandler) GetAssessment(c *gin.Context) {
	applicationID, ok := applicationIDParam(c)
	if !ok {
		return
	}

	assessment, err := h.svc.GetRiskAssessmentByApplicationID(c.Request.Context(), applicationID)
	if err != nil {
		logger.Error(c.Request.Context(), "Failed to get risk assessment", "application_id", applicationID, "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, "failed to load assessment", "")
		return
	}
	if assessment == nil {
		response.ErrorWithStatus(c, http.StatusNotFound, "assessment not found", applicationID)
		return
	}
	response.Success(c, assessment)
}

// Reassess 触发重新评估
func (h *RiskHandler) Reassess(c *gin.Context) {
	applicationID, ok := applicationIDParam(c)
	if !ok {
		return
	}

	assessment, err := h.svc.ReassessRisk(c.Request.Context(), applicationID)
	if errors.Is(err, domain.ErrReassessmentNotSupported) {
		response.ErrorWithStatus(c, http.StatusNotImplemented, err.Error(), applicationID)
		return
	}
	if err != nil {
		logger.Error(c.Request.Context(), "Failed to reassess", "application_id", applicationID, "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, "failed to reassess", "")
		return
	}
	response.Success(c, assessment)
}

// Health 服务存活检查
func (h *RiskHandler) Health(c *gin.Context) {
	response.Success(c, gin.H{"status": "UP"})
}

func applicationIDParam(c *gin.Context) (string, bool) {
	id := c.Param("applicationId")
	if _, err := uuid.Parse(id); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "applicationId must be a UUID", id)
		return "", false
	}
	return id, true
}
