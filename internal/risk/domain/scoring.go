package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// 评分因子名称
const (
	FactorCreditScore = "CREDIT_SCORE"
	FactorDebtRatio   = "DEBT_RATIO"
	FactorCollateral  = "COLLATERAL"
	FactorFraudRisk   = "FRAUD_RISK"
)

var (
	// ApprovalThreshold 批准阈值，评分 >= 阈值即批准
	ApprovalThreshold = decimal.NewFromInt(60)

	creditWeight     = decimal.RequireFromString("0.35")
	debtRatioWeight  = decimal.RequireFromString("0.30")
	collateralWeight = decimal.RequireFromString("0.20")
	fraudWeight      = decimal.RequireFromString("0.15")

	minCreditScore   = decimal.NewFromInt(300)
	creditScoreRange = decimal.NewFromInt(550)

	debtRatioLowTier  = decimal.NewFromInt(30)
	debtRatioHighTier = decimal.NewFromInt(50)
)

// ScoreBreakdown 四个归一化分量（0~100）及加权结果
type ScoreBreakdown struct {
	Credit     decimal.Decimal
	DebtRatio  decimal.Decimal
	Collateral decimal.Decimal
	Fraud      decimal.Decimal
	Factors    []RiskFactor
	RiskScore  decimal.Decimal
}

// ScoreCredit 征信分 300~850 线性映射到 0~100。查询失败且分数不为正时按 300 计
func ScoreCredit(report CreditReport) decimal.Decimal {
	score := decimal.NewFromInt(int64(report.CreditScore))
	if !report.Succeeded() && report.CreditScore <= 0 {
		score = minCreditScore
	}
	normalized := score.Sub(minCreditScore).Div(creditScoreRange).Mul(hundred)
	return clamp(normalized)
}

// ScoreDebtRatio 负债率分段：<30% 得 100，30%~50% 得 60，>50% 得 20
func ScoreDebtRatio(percentage decimal.Decimal) decimal.Decimal {
	switch {
	case percentage.LessThan(debtRatioLowTier):
		return decimal.NewFromInt(100)
	case percentage.LessThanOrEqual(debtRatioHighTier):
		return decimal.NewFromInt(60)
	default:
		return decimal.NewFromInt(20)
	}
}

// ScoreCollateral 有已核验抵押物得 80，否则 30
func ScoreCollateral(verifiedValue decimal.Decimal) decimal.Decimal {
	if verifiedValue.IsPositive() {
		return decimal.NewFromInt(80)
	}
	return decimal.NewFromInt(30)
}

// ScoreFraud (1 - 欺诈风险) × 100
func ScoreFraud(fraudRisk decimal.Decimal) decimal.Decimal {
	return clamp(decimal.NewFromInt(1).Sub(fraudRisk).Mul(hundred))
}

// Aggregate 计算加权总分：征信×0.35 + 负债率×0.30 + 抵押×0.20 + 反欺诈×0.15，再乘以初始权重。
// 纯函数，相同输入得到相同结果；总分保留 4 位小数
func Aggregate(report CreditReport, debt DebtRatioResult, collateral CollateralResult, fraud FraudCheckResult, weight decimal.Decimal) ScoreBreakdown {
	b := ScoreBreakdown{
		Credit:     ScoreCredit(report),
		DebtRatio:  ScoreDebtRatio(debt.Percentage),
		Collateral: ScoreCollateral(collateral.VerifiedValue),
		Fraud:      ScoreFraud(fraud.FraudRiskScore),
	}

	b.Factors = []RiskFactor{
		newFactor(FactorCreditScore, decimal.NewFromInt(int64(report.CreditScore)), creditWeight, b.Credit),
		newFactor(FactorDebtRatio, debt.Percentage, debtRatioWeight, b.DebtRatio),
		newFactor(FactorCollateral, collateral.VerifiedValue, collateralWeight, b.Collateral),
		newFactor(FactorFraudRisk, fraud.FraudRiskScore, fraudWeight, b.Fraud),
	}

	raw := decimal.Zero
	for _, f := range b.Factors {
		raw = raw.Add(f.Contribution)
	}
	b.RiskScore = raw.Mul(weight).Round(4)
	return b
}

// Decide 评分 >= 60 批准，否则拒绝
func Decide(riskScore decimal.Decimal) (Decision, string) {
	if riskScore.GreaterThanOrEqual(ApprovalThreshold) {
		return DecisionApproved, fmt.Sprintf("Risk score %s is at or above threshold %s.", riskScore.StringFixed(2), ApprovalThreshold)
	}
	return DecisionRejected, fmt.Sprintf("Risk score %s is below threshold %s.", riskScore.StringFixed(2), ApprovalThreshold)
}

func newFactor(name string, value, weight, normalized decimal.Decimal) RiskFactor {
	return RiskFactor{
		Name:         name,
		Value:        value,
		Weight:       weight,
		Contribution: normalized.Mul(weight),
	}
}

func clamp(v decimal.Decimal) decimal.Decimal {
	return decimal.Max(decimal.Zero, decimal.Min(hundred, v))
}
