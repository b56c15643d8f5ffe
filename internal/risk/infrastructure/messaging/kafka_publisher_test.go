package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/riskassessment/internal/risk/domain"
	"github.com/wyfcoding/riskassessment/pkg/metrics"
	"github.com/wyfcoding/riskassessment/pkg/mq"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestPublishDecisionKeysByApplication(t *testing.T) {
	w := &recordingWriter{}
	m := metrics.New("test")
	pub := NewKafkaDecisionPublisher(mq.NewProducerWithWriter(w), "decision-events", metrics.NewDefaultMetricsCollector(m))

	event := domain.DecisionEvent{
		ApplicationID:  "app-1",
		AssessmentID:   "a-1",
		Decision:       domain.DecisionApproved,
		Reason:         "Risk score 76.8864 is at or above threshold 60.",
		FinalRiskScore: decimal.RequireFromString("76.8864"),
	}
	require.NoError(t, pub.PublishDecision(context.Background(), event))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "decision-events", w.msgs[0].Topic)
	assert.Equal(t, "app-1", string(w.msgs[0].Key))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, "APPROVED", decoded["decision"])
	assert.Equal(t, "a-1", decoded["assessmentId"])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsPublishedTotal.WithLabelValues("decision-events", "success")))
}

func TestPublishDecisionFailure(t *testing.T) {
	m := metrics.New("test")
	w := &recordingWriter{err: errors.New("broker down")}
	pub := NewKafkaDecisionPublisher(mq.NewProducerWithWriter(w), "decision-events", metrics.NewDefaultMetricsCollector(m))

	err := pub.PublishDecision(context.Background(), domain.DecisionEvent{ApplicationID: "app-2"})
	assert.ErrorContains(t, err, "app-2")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsPublishedTotal.WithLabelValues("decision-events", "failure")))
}
