package domain

import "github.com/shopspring/decimal"

// DecisionEvent 决策事件，持久化成功后发布
type DecisionEvent struct {
	ApplicationID  string          `json:"applicationId"`
	AssessmentID   string          `json:"assessmentId"`
	Decision       Decision        `json:"decision"`
	Reason         string          `json:"reason"`
	FinalRiskScore decimal.Decimal `json:"finalRiskScore"`
}

// NewDecisionEvent 由评估结果构建决策事件
func NewDecisionEvent(a *RiskAssessment) DecisionEvent {
	return DecisionEvent{
		ApplicationID:  a.ApplicationID,
		AssessmentID:   a.ID,
		Decision:       a.Decision,
		Reason:         a.DecisionReason,
		FinalRiskScore: a.RiskScore,
	}
}
