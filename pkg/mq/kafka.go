// Package mq 提供 Kafka 生产者、消费循环与死信队列
package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/wyfcoding/riskassessment/pkg/logger"
)

const commitTimeout = 5 * time.Second

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	Brokers        []string
	GroupID        string
	MaxAttempts    int
	SessionTimeout time.Duration
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer Kafka 生产者
type KafkaProducer struct {
	writer messageWriter
}

// NewProducer 创建 Kafka 生产者
func NewProducer(cfg KafkaConfig) *KafkaProducer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            cfg.MaxAttempts,
		WriteBackoffMin:        100 * time.Millisecond,
		WriteBackoffMax:        time.Second,
	}
	logger.Info(context.Background(), "Kafka producer created", "brokers", cfg.Brokers)
	return &KafkaProducer{writer: writer}
}

// NewProducerWithWriter 使用自定义 writer 创建生产者
func NewProducerWithWriter(w messageWriter) *KafkaProducer {
	return &KafkaProducer{writer: w}
}

// SendMessage 以 JSON 编码 value 并按 key 分区发送
func (kp *KafkaProducer) SendMessage(ctx context.Context, topic, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := kp.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
	}); err != nil {
		logger.Error(ctx, "Failed to send Kafka message", "topic", topic, "key", key, "error", err)
		return err
	}

	logger.Debug(ctx, "Kafka message sent", "topic", topic, "key", key)
	return nil
}

// Close 关闭生产者
func (kp *KafkaProducer) Close() error {
	return kp.writer.Close()
}

// Handler 消息处理函数
type Handler func(ctx context.Context, msg kafka.Message) error

// KafkaConsumer Kafka 消费者，消息处理完成后显式提交偏移量
type KafkaConsumer struct {
	reader messageReader
	topic  string
}

// NewConsumer 创建消费组内的 Kafka 消费者
func NewConsumer(cfg KafkaConfig, topic string) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		SessionTimeout: cfg.SessionTimeout,
		StartOffset:    kafka.FirstOffset,
	})
	return &KafkaConsumer{reader: reader, topic: topic}
}

// NewConsumerWithReader 使用自定义 reader 创建消费者
func NewConsumerWithReader(r messageReader, topic string) *KafkaConsumer {
	return &KafkaConsumer{reader: r, topic: topic}
}

// Run 持续拉取并处理消息直到 ctx 结束。处理结果不影响提交，失败由 handler 自行记录或转入死信
func (kc *KafkaConsumer) Run(ctx context.Context, handle Handler) error {
	logger.Info(ctx, "Kafka consumer started", "topic", kc.topic)
	for {
		msg, err := kc.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				logger.Info(ctx, "Kafka consumer stopped", "topic", kc.topic)
				return nil
			}
			return fmt.Errorf("failed to fetch message from %s: %w", kc.topic, err)
		}

		if err := handle(ctx, msg); err != nil {
			logger.Error(ctx, "Failed to handle Kafka message",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}

		if err := kc.commit(ctx, msg); err != nil {
			logger.Error(ctx, "Failed to commit Kafka message", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		}
		if ctx.Err() != nil {
			logger.Info(ctx, "Kafka consumer stopped", "topic", kc.topic)
			return nil
		}
	}
}

// commit 提交已处理的消息。停机期间 ctx 已取消，仍需提交最后一条，避免重复投递
func (kc *KafkaConsumer) commit(ctx context.Context, msg kafka.Message) error {
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	return kc.reader.CommitMessages(commitCtx, msg)
}

// Close 关闭消费者
func (kc *KafkaConsumer) Close() error {
	return kc.reader.Close()
}

// DeadLetter 死信消息
type DeadLetter struct {
	OriginalTopic     string    `json:"original_topic"`
	OriginalPartition int       `json:"original_partition"`
	OriginalOffset    int64     `json:"original_offset"`
	OriginalKey       string    `json:"original_key"`
	OriginalValue     string    `json:"original_value"`
	FailureReason     string    `json:"failure_reason"`
	FailureError      string    `json:"failure_error"`
	FailedAt          time.Time `json:"failed_at"`
}

// DeadLetterQueue 死信队列
type DeadLetterQueue struct {
	producer *KafkaProducer
	topic    string
}

// NewDeadLetterQueue 创建死信队列
func NewDeadLetterQueue(producer *KafkaProducer, topic string) *DeadLetterQueue {
	return &DeadLetterQueue{producer: producer, topic: topic}
}

// Send 将无法处理的原始消息转入死信主题
func (dlq *DeadLetterQueue) Send(ctx context.Context, msg kafka.Message, reason string, cause error) error {
	dl := DeadLetter{
		OriginalTopic:     msg.Topic,
		OriginalPartition: msg.Partition,
		OriginalOffset:    msg.Offset,
		OriginalKey:       string(msg.Key),
		OriginalValue:     string(msg.Value),
		FailureReason:     reason,
		FailedAt:          time.Now().UTC(),
	}
	if cause != nil {
		dl.FailureError = cause.Error()
	}
	return dlq.producer.SendMessage(ctx, dlq.topic, dl.OriginalKey, dl)
}
