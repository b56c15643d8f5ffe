package application

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/wyfcoding/riskassessment/internal/risk/domain"
	"github.com/wyfcoding/riskassessment/pkg/async"
	"github.com/wyfcoding/riskassessment/pkg/logger"
	"github.com/wyfcoding/riskassessment/pkg/metrics"
	"github.com/wyfcoding/riskassessment/pkg/resilience"
)

const creditReportCache = "credit_report"

// CreditGateway 央行征信网关：缓存旁路 + 隔离舱/熔断/重试策略 + 降级。
// 对调用方从不返回错误，任何下游故障都落到降级报告上
type CreditGateway struct {
	client    domain.CreditBureauClient
	cache     domain.CacheStore
	policy    *resilience.Policy
	audit     *AuditLogger
	runner    *async.Runner
	collector metrics.MetricsCollector
	cacheTTL  time.Duration
	now       func() time.Time
}

var _ domain.CreditBureau = (*CreditGateway)(nil)

// NewCreditGateway 创建征信网关
func NewCreditGateway(
	client domain.CreditBureauClient,
	cache domain.CacheStore,
	policy *resilience.Policy,
	audit *AuditLogger,
	runner *async.Runner,
	collector metrics.MetricsCollector,
	cacheTTL time.Duration,
) *CreditGateway {
	return &CreditGateway{
		client:    client,
		cache:     cache,
		policy:    policy,
		audit:     audit,
		runner:    runner,
		collector: collector,
		cacheTTL:  cacheTTL,
		now:       time.Now,
	}
}

// GetCreditReport 查询征信报告
// 1. 命中缓存直接返回并记录 CacheHit 审计
// 2. 未命中时在策略保护下调用远程接口，每次失败的尝试记录 Error 审计
// 3. 成功且分数为正时后台回写缓存
// 4. 最终失败返回降级报告
func (g *CreditGateway) GetCreditReport(ctx context.Context, customerID, applicationID string) domain.CreditReport {
	key := domain.CreditCacheKey(customerID)

	var cached domain.CreditReport
	found, err := g.cache.Get(ctx, key, &cached)
	if err != nil {
		logger.Warn(ctx, "Credit report cache read failed, treating as miss", "customer_id", customerID, "error", err)
		found = false
	}
	if found {
		g.collector.RecordCacheRequest(creditReportCache, true)
		now := g.now()
		g.record(ctx, applicationID, domain.APICallCacheHit, now, now, http.StatusOK, true)
		return cached
	}
	g.collector.RecordCacheRequest(creditReportCache, false)

	start := g.now()
	report, err := resilience.Execute(ctx, g.policy, func(ctx context.Context) (*domain.CreditReport, error) {
		attemptStart := g.now()
		r, err := g.client.FetchCreditReport(ctx, customerID)
		if err != nil {
			g.record(ctx, applicationID, domain.APICallError, attemptStart, g.now(), statusOf(err), false)
			return nil, err
		}
		return r, nil
	})
	end := g.now()

	if err != nil {
		g.collector.RecordCreditCall("fallback", end.Sub(start))
		g.collector.RecordCreditFallback()
		logger.Warn(ctx, "Credit bureau unavailable, using fallback report",
			"customer_id", customerID,
			"application_id", applicationID,
			"circuit_state", g.policy.State(),
			"error", err)
		g.record(ctx, applicationID, domain.APICallFallback, start, end, http.StatusServiceUnavailable, false)
		return domain.FallbackCreditReport(customerID)
	}

	if report.CreditScore <= 0 {
		g.collector.RecordCreditCall("no_data", end.Sub(start))
		logger.Info(ctx, "Credit bureau returned no usable score", "customer_id", customerID, "status", report.Status)
		g.record(ctx, applicationID, domain.APICallNoData, start, end, http.StatusOK, false)
		return *report
	}

	g.collector.RecordCreditCall("success", end.Sub(start))
	g.record(ctx, applicationID, domain.APICallSuccess, start, end, http.StatusOK, false)

	value := *report
	g.runner.Go(ctx, "cache_credit_report", func(ctx context.Context) error {
		if err := g.cache.Set(ctx, key, value, g.cacheTTL); err != nil {
			g.collector.RecordCacheWriteFailure(creditReportCache)
			return err
		}
		return nil
	})
	return value
}

func (g *CreditGateway) record(ctx context.Context, applicationID, apiName string, requestTime, responseTime time.Time, status int, cached bool) {
	g.audit.Record(ctx, &domain.ExternalAPICall{
		ApplicationID: applicationID,
		APIName:       apiName,
		RequestTime:   requestTime.UTC(),
		ResponseTime:  responseTime.UTC(),
		StatusCode:    status,
		Cached:        cached,
	})
}

// statusOf 远程返回的 HTTP 状态码；传输层错误记为 503
func statusOf(err error) int {
	var statusErr *domain.RemoteStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return http.StatusServiceUnavailable
}
