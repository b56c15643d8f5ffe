// Package application 贷款风险评估用例：评分编排、读路径与审计
package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wyfcoding/riskassessment/internal/risk/domain"
	"github.com/wyfcoding/riskassessment/pkg/async"
	"github.com/wyfcoding/riskassessment/pkg/logger"
	"github.com/wyfcoding/riskassessment/pkg/metrics"
)

const assessmentCache = "risk_assessment"

// ServiceConfig 评估服务配置
type ServiceConfig struct {
	// 单次评估的整体超时
	Timeout time.Duration
	// 评估结果缓存时长
	CacheTTL time.Duration
	// ERROR 评估尽力落库的超时
	FallbackPersistTimeout time.Duration
}

// RiskAssessmentService 风险评估应用服务
type RiskAssessmentService struct {
	bureau    domain.CreditBureau
	repo      domain.AssessmentRepository
	cache     domain.CacheStore
	publisher domain.EventPublisher
	pool      *async.Pool
	runner    *async.Runner
	collector metrics.MetricsCollector
	cfg       ServiceConfig
	now       func() time.Time
}

// NewRiskAssessmentService 创建风险评估应用服务
func NewRiskAssessmentService(
	bureau domain.CreditBureau,
	repo domain.AssessmentRepository,
	cache domain.CacheStore,
	publisher domain.EventPublisher,
	pool *async.Pool,
	runner *async.Runner,
	collector metrics.MetricsCollector,
	cfg ServiceConfig,
) *RiskAssessmentService {
	if cfg.FallbackPersistTimeout <= 0 {
		cfg.FallbackPersistTimeout = 5 * time.Second
	}
	return &RiskAssessmentService{
		bureau:    bureau,
		repo:      repo,
		cache:     cache,
		publisher: publisher,
		pool:      pool,
		runner:    runner,
		collector: collector,
		cfg:       cfg,
		now:       time.Now,
	}
}

// AssessRisk 评估一笔贷款申请，从不返回错误
// 用例流程：
// 1. 并发获取征信报告并计算负债率、抵押物、反欺诈
// 2. 加权评分并给出决策
// 3. 落库，成功后后台回写缓存并发布决策事件
// 任一步骤失败或超时，返回并尽力落库一条 ERROR 评估；调用方主动取消时只返回 ERROR 值，不落库
func (s *RiskAssessmentService) AssessRisk(ctx context.Context, in domain.ApplicationInput) *domain.RiskAssessment {
	startedAt := s.now()

	assessment, err := s.assess(ctx, in, startedAt)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return s.abandon(ctx, in, err, startedAt)
		}
		return s.fail(ctx, in, err, startedAt)
	}

	s.collector.RecordAssessment(string(assessment.Decision), s.now().Sub(startedAt))
	logger.Info(ctx, "Risk assessment completed",
		"application_id", assessment.ApplicationID,
		"assessment_id", assessment.ID,
		"risk_score", assessment.RiskScore.String(),
		"decision", assessment.Decision,
		"processing_time_ms", assessment.ProcessingTimeMs)

	s.cacheAssessment(ctx, assessment)
	event := domain.NewDecisionEvent(assessment)
	s.runner.Go(ctx, "publish_decision", func(ctx context.Context) error {
		return s.publisher.PublishDecision(ctx, event)
	})
	return assessment
}

func (s *RiskAssessmentService) assess(parent context.Context, in domain.ApplicationInput, startedAt time.Time) (*domain.RiskAssessment, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(parent, s.cfg.Timeout)
	defer cancel()

	var (
		report     domain.CreditReport
		debt       domain.DebtRatioResult
		collateral domain.CollateralResult
		fraud      domain.FraudCheckResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(guard("credit_report", func() error {
		report = s.bureau.GetCreditReport(gctx, in.CustomerID, in.ApplicationID)
		return nil
	}))
	g.Go(guard("debt_ratio", func() error {
		debt = domain.CalculateDebtRatio(in.Income, in.LoanAmount)
		return nil
	}))
	g.Go(guard("collateral", func() error {
		collateral = domain.AnalyzeCollateral(in.LoanAmount, in.LoanPurpose)
		return nil
	}))
	g.Go(guard("fraud_check", func() error {
		fraud = domain.PerformFraudCheck(in.ApplicationID, in.CustomerID)
		return nil
	}))

	joined := make(chan error, 1)
	go func() { joined <- g.Wait() }()

	select {
	case err := <-joined:
		if err != nil {
			return nil, err
		}
	case <-ctx.Done():
		return nil, s.timeoutError(ctx)
	}
	if ctx.Err() != nil {
		return nil, s.timeoutError(ctx)
	}

	score := domain.Aggregate(report, debt, collateral, fraud, in.ScoreWeight())
	assessment := domain.NewRiskAssessment(in, report, debt, score, startedAt, s.now())

	if err := s.pool.Do(ctx, func(ctx context.Context) error {
		return s.repo.Save(ctx, assessment)
	}); err != nil {
		if ctx.Err() != nil {
			return nil, s.timeoutError(ctx)
		}
		return nil, fmt.Errorf("failed to persist assessment: %w", err)
	}
	return assessment, nil
}

func (s *RiskAssessmentService) timeoutError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("assessment timeout after %s: %w", s.cfg.Timeout, ctx.Err())
	}
	return fmt.Errorf("assessment cancelled: %w", ctx.Err())
}

// fail 构建 ERROR 评估并尽力落库一次，落库失败只记录日志
func (s *RiskAssessmentService) fail(ctx context.Context, in domain.ApplicationInput, cause error, startedAt time.Time) *domain.RiskAssessment {
	assessment := domain.NewErrorAssessment(in, cause, startedAt, s.now())
	logger.Error(ctx, "Risk assessment failed",
		"application_id", in.ApplicationID,
		"assessment_id", assessment.ID,
		"error", cause)

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.FallbackPersistTimeout)
	defer cancel()
	if err := s.pool.Do(persistCtx, func(ctx context.Context) error {
		return s.repo.Save(ctx, assessment)
	}); err != nil {
		logger.Error(ctx, "Failed to persist error assessment",
			"application_id", in.ApplicationID,
			"assessment_id", assessment.ID,
			"error", err)
	}

	s.collector.RecordAssessment(string(domain.DecisionError), s.now().Sub(startedAt))
	return assessment
}

// abandon 调用方已放弃等待（客户端断开等），结果无人接收，不落库也不计入评估指标
func (s *RiskAssessmentService) abandon(ctx context.Context, in domain.ApplicationInput, cause error, startedAt time.Time) *domain.RiskAssessment {
	logger.Warn(ctx, "Risk assessment cancelled by caller",
		"application_id", in.ApplicationID,
		"error", cause)
	return domain.NewErrorAssessment(in, cause, startedAt, s.now())
}

// GetRiskAssessmentByApplicationID 缓存旁路读取申请最近一次评估，不存在时返回 nil, nil
func (s *RiskAssessmentService) GetRiskAssessmentByApplicationID(ctx context.Context, applicationID string) (*domain.RiskAssessment, error) {
	var cached domain.RiskAssessment
	found, err := s.cache.Get(ctx, domain.AssessmentCacheKey(applicationID), &cached)
	if err != nil {
		logger.Warn(ctx, "Assessment cache read failed, treating as miss", "application_id", applicationID, "error", err)
		found = false
	}
	s.collector.RecordCacheRequest(assessmentCache, found)
	if found {
		return &cached, nil
	}

	assessment, err := async.Submit(ctx, s.pool, func(ctx context.Context) (*domain.RiskAssessment, error) {
		return s.repo.FindLatestByApplicationID(ctx, applicationID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load assessment for application %s: %w", applicationID, err)
	}
	if assessment == nil {
		return nil, nil
	}

	s.cacheAssessment(ctx, assessment)
	return assessment, nil
}

// ReassessRisk 重新评估，当前未支持
func (s *RiskAssessmentService) ReassessRisk(ctx context.Context, applicationID string) (*domain.RiskAssessment, error) {
	logger.Info(ctx, "Reassessment requested", "application_id", applicationID)
	return nil, domain.ErrReassessmentNotSupported
}

// cacheAssessment 后台回写评估缓存。ERROR 评估不进入缓存
func (s *RiskAssessmentService) cacheAssessment(ctx context.Context, a *domain.RiskAssessment) {
	if a.Decision == domain.DecisionError {
		return
	}
	key := domain.AssessmentCacheKey(a.ApplicationID)
	s.runner.Go(ctx, "cache_assessment", func(ctx context.Context) error {
		if err := s.cache.Set(ctx, key, a, s.cfg.CacheTTL); err != nil {
			s.collector.RecordCacheWriteFailure(assessmentCache)
			return err
		}
		return nil
	})
}

// guard 把子任务中的 panic 转为错误
func guard(task string, fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic in %s: %v", task, r)
			}
		}()
		return fn()
	}
}
