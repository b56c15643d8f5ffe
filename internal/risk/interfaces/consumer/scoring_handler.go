// Package consumer 消费初审完成事件并触发风险评估
package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/wyfcoding/riskassessment/internal/risk/domain"
	"github.com/wyfcoding/riskassessment/pkg/logger"
	"github.com/wyfcoding/riskassessment/pkg/metrics"
)

const traceIDHeader = "x-trace-id"

// Assessor 评估用例
type Assessor interface {
	AssessRisk(ctx context.Context, in domain.ApplicationInput) *domain.RiskAssessment
}

// DeadLetterSink 死信出口，由 mq.DeadLetterQueue 实现
type DeadLetterSink interface {
	Send(ctx context.Context, msg kafka.Message, reason string, cause error) error
}

// ScoringHandler 处理 scoring-events 消息。评估失败会被吸收为 ERROR 评估，消息总是被确认
type ScoringHandler struct {
	assessor  Assessor
	dlq       DeadLetterSink
	collector metrics.MetricsCollector
}

// NewScoringHandler 创建消息处理器
func NewScoringHandler(assessor Assessor, dlq DeadLetterSink, collector metrics.MetricsCollector) *ScoringHandler {
	return &ScoringHandler{assessor: assessor, dlq: dlq, collector: collector}
}

// Handle 实现 mq.Handler
func (h *ScoringHandler) Handle(ctx context.Context, msg kafka.Message) error {
	ctx = logger.ContextWithTraceID(ctx, traceID(msg))

	var in domain.ApplicationInput
	if err := json.Unmarshal(msg.Value, &in); err != nil {
		h.collector.RecordEventConsumed(msg.Topic, false)
		logger.Warn(ctx, "Malformed scoring event, sending to dead letter queue",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"error", err)
		if dlqErr := h.dlq.Send(ctx, msg, "malformed_payload", err); dlqErr != nil {
			return fmt.Errorf("failed to dead-letter message at offset %d: %w", msg.Offset, dlqErr)
		}
		return nil
	}

	// 停机时已取出的消息继续评估完成，评估自身仍受超时约束
	assessment := h.assessor.AssessRisk(context.WithoutCancel(ctx), in)
	h.collector.RecordEventConsumed(msg.Topic, assessment.Decision != domain.DecisionError)
	logger.Info(ctx, "Scoring event processed",
		"application_id", in.ApplicationID,
		"decision", assessment.Decision)
	return nil
}

func traceID(msg kafka.Message) string {
	for _, h := range msg.Headers {
		if h.Key == traceIDHeader && len(h.Value) > 0 {
			return string(h.Value)
		}
	}
	return uuid.NewString()
}
