package gormrepo

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/riskassessment/internal/risk/domain"
	"gorm.io/gorm"
)

// RiskAssessmentModel 风险评估表映射
type RiskAssessmentModel struct {
	ID               string            `gorm:"primaryKey;type:varchar(36);column:id"`
	ApplicationID    string            `gorm:"column:application_id;type:varchar(36);index:idx_assessment_app_date,priority:1;not null"`
	AssessmentDate   time.Time         `gorm:"column:assessment_date;index:idx_assessment_app_date,priority:2;not null"`
	CreditScore      int               `gorm:"column:credit_score;not null"`
	DebtRatio        decimal.Decimal   `gorm:"column:debt_ratio;type:decimal(10,4);not null"`
	RiskScore        decimal.Decimal   `gorm:"column:risk_score;type:decimal(10,4);not null"`
	Decision         string            `gorm:"column:decision;type:varchar(20);not null"`
	DecisionReason   string            `gorm:"column:decision_reason;type:text"`
	ProcessingTimeMs int64             `gorm:"column:processing_time_ms;not null"`
	CreatedAt        time.Time         `gorm:"column:created_at"`
	Factors          []RiskFactorModel `gorm:"foreignKey:AssessmentID;references:ID;constraint:OnDelete:CASCADE"`
}

func (RiskAssessmentModel) TableName() string { return "risk_assessments" }

// RiskFactorModel 评分因子表映射，随评估级联删除
type RiskFactorModel struct {
	ID           uint            `gorm:"primaryKey;autoIncrement;column:id"`
	AssessmentID string          `gorm:"column:assessment_id;type:varchar(36);index;not null"`
	Position     int             `gorm:"column:position;not null"`
	Name         string          `gorm:"column:name;type:varchar(50);not null"`
	Value        decimal.Decimal `gorm:"column:value;type:decimal(12,4);not null"`
	Weight       decimal.Decimal `gorm:"column:weight;type:decimal(6,4);not null"`
	Contribution decimal.Decimal `gorm:"column:contribution;type:decimal(12,4);not null"`
}

func (RiskFactorModel) TableName() string { return "risk_factors" }

// ExternalAPICallModel 外部接口调用审计表映射
type ExternalAPICallModel struct {
	ID            string    `gorm:"primaryKey;type:varchar(36);column:id"`
	ApplicationID string    `gorm:"column:application_id;type:varchar(36);index;not null"`
	APIName       string    `gorm:"column:api_name;type:varchar(100);not null"`
	RequestTime   time.Time `gorm:"column:request_time;not null"`
	ResponseTime  time.Time `gorm:"column:response_time;not null"`
	StatusCode    int       `gorm:"column:status_code;not null"`
	Cached        bool      `gorm:"column:cached;not null;default:false"`
}

func (ExternalAPICallModel) TableName() string { return "external_api_calls" }

// AutoMigrate 建表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&RiskAssessmentModel{}, &RiskFactorModel{}, &ExternalAPICallModel{})
}

// --- mapping helpers ---

func toRiskAssessmentModel(a *domain.RiskAssessment) *RiskAssessmentModel {
	m := &RiskAssessmentModel{
		ID:               a.ID,
		ApplicationID:    a.ApplicationID,
		AssessmentDate:   a.AssessmentDate,
		CreditScore:      a.CreditScore,
		DebtRatio:        a.DebtRatio,
		RiskScore:        a.RiskScore,
		Decision:         string(a.Decision),
		DecisionReason:   a.DecisionReason,
		ProcessingTimeMs: a.ProcessingTimeMs,
		Factors:          make([]RiskFactorModel, 0, len(a.RiskFactors)),
	}
	for i, f := range a.RiskFactors {
		m.Factors = append(m.Factors, RiskFactorModel{
			AssessmentID: a.ID,
			Position:     i,
			Name:         f.Name,
			Value:        f.Value,
			Weight:       f.Weight,
			Contribution: f.Contribution,
		})
	}
	return m
}

func toRiskAssessment(m *RiskAssessmentModel) *domain.RiskAssessment {
	if m == nil {
		return nil
	}
	factors := make([]domain.RiskFactor, 0, len(m.Factors))
	for _, f := range m.Factors {
		factors = append(factors, domain.RiskFactor{
			Name:         f.Name,
			Value:        f.Value,
			Weight:       f.Weight,
			Contribution: f.Contribution,
		})
	}
	return &domain.RiskAssessment{
		ID:               m.ID,
		ApplicationID:    m.ApplicationID,
		AssessmentDate:   m.AssessmentDate.UTC(),
		CreditScore:      m.CreditScore,
		DebtRatio:        m.DebtRatio,
		RiskScore:        m.RiskScore,
		Decision:         domain.Decision(m.Decision),
		DecisionReason:   m.DecisionReason,
		ProcessingTimeMs: m.ProcessingTimeMs,
		RiskFactors:      factors,
	}
}

func toExternalAPICallModel(c *domain.ExternalAPICall) *ExternalAPICallModel {
	return &ExternalAPICallModel{
		ID:            c.ID,
		ApplicationID: c.ApplicationID,
		APIName:       c.APIName,
		RequestTime:   c.RequestTime,
		ResponseTime:  c.ResponseTime,
		StatusCode:    c.StatusCode,
		Cached:        c.Cached,
	}
}
