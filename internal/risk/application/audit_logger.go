package application

import (
	"context"

	"github.com/google/uuid"
	"github.com/wyfcoding/riskassessment/internal/risk/domain"
	"github.com/wyfcoding/riskassessment/pkg/async"
)

// AuditLogger 外部接口调用审计。写入在后台执行，失败只记录日志与计数
type AuditLogger struct {
	repo   domain.APICallRepository
	pool   *async.Pool
	runner *async.Runner
}

// NewAuditLogger 创建审计记录器
func NewAuditLogger(repo domain.APICallRepository, pool *async.Pool, runner *async.Runner) *AuditLogger {
	return &AuditLogger{repo: repo, pool: pool, runner: runner}
}

// Record 异步追加一条审计记录，不阻塞调用方
func (l *AuditLogger) Record(ctx context.Context, call *domain.ExternalAPICall) {
	if call.ID == "" {
		call.ID = uuid.NewString()
	}
	l.runner.Go(ctx, "audit_api_call", func(ctx context.Context) error {
		return l.pool.Do(ctx, func(ctx context.Context) error {
			return l.repo.Save(ctx, call)
		})
	})
}
