package domain

import "context"

// EventPublisher 决策事件发布者
type EventPublisher interface {
	// PublishDecision 发布决策事件，按 applicationId 分区
	PublishDecision(ctx context.Context, event DecisionEvent) error
}
