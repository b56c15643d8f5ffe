package domain

import (
	"context"
	"time"
)

// AssessmentRepository 评估结果仓储
type AssessmentRepository interface {
	Save(ctx context.Context, assessment *RiskAssessment) error
	// FindLatestByApplicationID 返回申请最近一次评估，不存在时返回 nil, nil
	FindLatestByApplicationID(ctx context.Context, applicationID string) (*RiskAssessment, error)
}

// APICallRepository 外部接口调用审计仓储
type APICallRepository interface {
	Save(ctx context.Context, call *ExternalAPICall) error
}

// CacheStore 带 TTL 的键值缓存。key 不存在（或值为 null）时 found 为 false，条目只会被整体覆盖
type CacheStore interface {
	Get(ctx context.Context, key string, dest any) (found bool, err error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// CreditBureauClient 央行征信远程接口
type CreditBureauClient interface {
	FetchCreditReport(ctx context.Context, customerID string) (*CreditReport, error)
}

// CreditBureau 对评估流程暴露的征信网关，从不返回错误
type CreditBureau interface {
	GetCreditReport(ctx context.Context, customerID, applicationID string) CreditReport
}
