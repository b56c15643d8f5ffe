package messaging

import (
	"context"
	"fmt"

	"github.com/wyfcoding/riskassessment/internal/risk/domain"
	"github.com/wyfcoding/riskassessment/pkg/logger"
	"github.com/wyfcoding/riskassessment/pkg/metrics"
)

// MessageSender 消息发送端口，由 mq.KafkaProducer 实现
type MessageSender interface {
	SendMessage(ctx context.Context, topic, key string, value any) error
}

// KafkaDecisionPublisher 将决策事件发布到 Kafka，以 applicationId 作为分区 key
type KafkaDecisionPublisher struct {
	sender    MessageSender
	topic     string
	collector metrics.MetricsCollector
}

var _ domain.EventPublisher = (*KafkaDecisionPublisher)(nil)

// NewKafkaDecisionPublisher 创建决策事件发布者
func NewKafkaDecisionPublisher(sender MessageSender, topic string, collector metrics.MetricsCollector) *KafkaDecisionPublisher {
	return &KafkaDecisionPublisher{sender: sender, topic: topic, collector: collector}
}

func (p *KafkaDecisionPublisher) PublishDecision(ctx context.Context, event domain.DecisionEvent) error {
	err := p.sender.SendMessage(ctx, p.topic, event.ApplicationID, event)
	if p.collector != nil {
		p.collector.RecordEventPublished(p.topic, err == nil)
	}
	if err != nil {
		return fmt.Errorf("failed to publish decision for application %s: %w", event.ApplicationID, err)
	}
	logger.Info(ctx, "Decision event published",
		"topic", p.topic,
		"application_id", event.ApplicationID,
		"decision", event.Decision)
	return nil
}
