package domain

import "github.com/shopspring/decimal"

var (
	assumedDebtShare   = decimal.RequireFromString("0.3")
	collateralCoverage = decimal.RequireFromString("0.8")
	baselineFraudRisk  = decimal.RequireFromString("0.05")
	hundred            = decimal.NewFromInt(100)
)

// DebtRatioResult 负债率计算结果，Percentage 为百分比
type DebtRatioResult struct {
	Percentage decimal.Decimal
	Note       string
}

// CollateralResult 抵押物分析结果
type CollateralResult struct {
	VerifiedValue decimal.Decimal
	Note          string
}

// FraudCheckResult 反欺诈检查结果，FraudRiskScore 位于 [0,1]
type FraudCheckResult struct {
	FraudRiskScore decimal.Decimal
	Note           string
}

// CalculateDebtRatio 以收入的 30% 估算月负债，比率保留 4 位小数（四舍五入）后换算为百分比。
// 收入不为正时返回 0
func CalculateDebtRatio(income, loanAmount decimal.Decimal) DebtRatioResult {
	if !income.IsPositive() {
		return DebtRatioResult{Percentage: decimal.Zero, Note: "Income not positive"}
	}
	monthlyDebt := income.Mul(assumedDebtShare)
	ratio := monthlyDebt.DivRound(income, 4)
	return DebtRatioResult{Percentage: ratio.Mul(hundred), Note: "Calculated"}
}

// AnalyzeCollateral 按贷款金额的 80% 估算已核验抵押物价值
func AnalyzeCollateral(loanAmount decimal.Decimal, loanPurpose string) CollateralResult {
	return CollateralResult{VerifiedValue: loanAmount.Mul(collateralCoverage), Note: "Property Verified"}
}

// PerformFraudCheck 反欺诈检查，目前返回基线风险
func PerformFraudCheck(applicationID, customerID string) FraudCheckResult {
	return FraudCheckResult{FraudRiskScore: baselineFraudRisk, Note: "No obvious fraud detected"}
}
