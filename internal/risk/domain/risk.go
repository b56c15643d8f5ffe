// Package domain 贷款风险评估的领域模型、评分规则与端口接口
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Decision 评估决策
type Decision string

const (
	DecisionApproved Decision = "APPROVED"
	DecisionRejected Decision = "REJECTED"
	DecisionError    Decision = "ERROR"
)

// 征信报告状态
const (
	CreditStatusActive   = "ACTIVE"
	CreditStatusOK       = "OK"
	CreditStatusFallback = "FALLBACK_API_UNAVAILABLE"

	FallbackCreditDetails = "Service temporarily unavailable. Please try again later."
)

// ApplicationInput 一次评估的申请数据，来自初审完成事件或 HTTP 请求
type ApplicationInput struct {
	ApplicationID      string           `json:"applicationId"`
	CustomerID         string           `json:"customerId"`
	LoanAmount         decimal.Decimal  `json:"loanAmount"`
	Income             decimal.Decimal  `json:"income"`
	LoanPurpose        string           `json:"loanPurpose"`
	InitialScoreWeight *decimal.Decimal `json:"initialScoreWeight,omitempty"`
}

// ScoreWeight 初始评分权重，缺省为 1
func (in ApplicationInput) ScoreWeight() decimal.Decimal {
	if in.InitialScoreWeight == nil {
		return decimal.NewFromInt(1)
	}
	return *in.InitialScoreWeight
}

// Validate 校验申请数据
func (in ApplicationInput) Validate() error {
	if _, err := uuid.Parse(in.ApplicationID); err != nil {
		return fmt.Errorf("%w: applicationId %q is not a valid UUID", ErrInvalidApplication, in.ApplicationID)
	}
	if in.CustomerID == "" {
		return fmt.Errorf("%w: customerId is required", ErrInvalidApplication)
	}
	if in.LoanAmount.IsNegative() {
		return fmt.Errorf("%w: loanAmount must not be negative", ErrInvalidApplication)
	}
	if in.Income.IsNegative() {
		return fmt.Errorf("%w: income must not be negative", ErrInvalidApplication)
	}
	if in.InitialScoreWeight != nil && in.InitialScoreWeight.IsNegative() {
		return fmt.Errorf("%w: initialScoreWeight must not be negative", ErrInvalidApplication)
	}
	return nil
}

// CreditReport 央行征信报告
type CreditReport struct {
	CustomerID  string `json:"customerId"`
	CreditScore int    `json:"creditScore"`
	Status      string `json:"status"`
	Details     string `json:"details"`
}

// FallbackCreditReport 征信接口不可用时使用的降级报告
func FallbackCreditReport(customerID string) CreditReport {
	return CreditReport{
		CustomerID:  customerID,
		CreditScore: 0,
		Status:      CreditStatusFallback,
		Details:     FallbackCreditDetails,
	}
}

// Succeeded 报告状态是否代表征信查询成功
func (r CreditReport) Succeeded() bool {
	return r.Status == CreditStatusActive || r.Status == CreditStatusOK
}

// RiskFactor 评分因子明细，归属于单个评估
type RiskFactor struct {
	Name         string          `json:"name"`
	Value        decimal.Decimal `json:"value"`
	Weight       decimal.Decimal `json:"weight"`
	Contribution decimal.Decimal `json:"contribution"`
}

// RiskAssessment 风险评估结果，构造后不可变
type RiskAssessment struct {
	ID               string          `json:"id"`
	ApplicationID    string          `json:"applicationId"`
	AssessmentDate   time.Time       `json:"assessmentDate"`
	CreditScore      int             `json:"creditScore"`
	DebtRatio        decimal.Decimal `json:"debtRatio"`
	RiskScore        decimal.Decimal `json:"riskScore"`
	Decision         Decision        `json:"decision"`
	DecisionReason   string          `json:"decisionReason"`
	ProcessingTimeMs int64           `json:"processingTimeMs"`
	RiskFactors      []RiskFactor    `json:"riskFactors"`
}

// NewRiskAssessment 由评分结果一次性构建完整的评估
func NewRiskAssessment(in ApplicationInput, report CreditReport, debt DebtRatioResult, score ScoreBreakdown, startedAt, now time.Time) *RiskAssessment {
	decision, reason := Decide(score.RiskScore)
	factors := make([]RiskFactor, len(score.Factors))
	copy(factors, score.Factors)

	return &RiskAssessment{
		ID:               uuid.NewString(),
		ApplicationID:    in.ApplicationID,
		AssessmentDate:   startedAt.UTC(),
		CreditScore:      report.CreditScore,
		DebtRatio:        debt.Percentage,
		RiskScore:        score.RiskScore,
		Decision:         decision,
		DecisionReason:   reason,
		ProcessingTimeMs: now.Sub(startedAt).Milliseconds(),
		RiskFactors:      factors,
	}
}

// NewErrorAssessment 流程失败或超时时的 ERROR 评估
func NewErrorAssessment(in ApplicationInput, cause error, startedAt, now time.Time) *RiskAssessment {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return &RiskAssessment{
		ID:               uuid.NewString(),
		ApplicationID:    in.ApplicationID,
		AssessmentDate:   startedAt.UTC(),
		DebtRatio:        decimal.Zero,
		RiskScore:        decimal.Zero,
		Decision:         DecisionError,
		DecisionReason:   "Processing error: " + msg,
		ProcessingTimeMs: now.Sub(startedAt).Milliseconds(),
		RiskFactors:      []RiskFactor{},
	}
}

// ExternalAPICall 外部接口调用审计记录，只追加
type ExternalAPICall struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"applicationId"`
	APIName       string    `json:"apiName"`
	RequestTime   time.Time `json:"requestTime"`
	ResponseTime  time.Time `json:"responseTime"`
	StatusCode    int       `json:"statusCode"`
	Cached        bool      `json:"cached"`
}

// 审计记录的 APIName 取值
const (
	APICallSuccess  = "CentralBankAPI_Success"
	APICallNoData   = "CentralBankAPI_NoData"
	APICallError    = "CentralBankAPI_Error"
	APICallFallback = "CentralBankAPI_Fallback"
	APICallCacheHit = "CentralBankAPI_CacheHit"
)

// 缓存 key
const (
	CreditCacheKeyPrefix     = "credit:"
	AssessmentCacheKeyPrefix = "risk_assessment:"
)

// CreditCacheKey 征信报告缓存 key
func CreditCacheKey(customerID string) string { return CreditCacheKeyPrefix + customerID }

// AssessmentCacheKey 评估结果缓存 key
func AssessmentCacheKey(applicationID string) string { return AssessmentCacheKeyPrefix + applicationID }
