package application

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/wyfcoding/riskassessment/internal/risk/domain"
	"github.com/wyfcoding/riskassessment/pkg/async"
	"github.com/wyfcoding/riskassessment/pkg/metrics"
	"github.com/wyfcoding/riskassessment/pkg/resilience"
)

type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	ttls    map[string]time.Duration
	getErr  error
	setErr  error
}

func newMemCache() *memCache {
	return &memCache{entries: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (c *memCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return false, c.getErr
	}
	data, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, dest)
}

func (c *memCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = data
	c.ttls[key] = ttl
	return nil
}

func (c *memCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

func (c *memCache) ttl(key string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttls[key]
}

type fakeAssessmentRepo struct {
	mu      sync.Mutex
	saved   []*domain.RiskAssessment
	saveErr error
	findErr error
	block   chan struct{}
}

func (r *fakeAssessmentRepo) Save(ctx context.Context, a *domain.RiskAssessment) error {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.saved = append(r.saved, a)
	return nil
}

func (r *fakeAssessmentRepo) FindLatestByApplicationID(_ context.Context, applicationID string) (*domain.RiskAssessment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	var latest *domain.RiskAssessment
	for _, a := range r.saved {
		if a.ApplicationID == applicationID && (latest == nil || !a.AssessmentDate.Before(latest.AssessmentDate)) {
			latest = a
		}
	}
	return latest, nil
}

func (r *fakeAssessmentRepo) all() []*domain.RiskAssessment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.RiskAssessment(nil), r.saved...)
}

type fakeAPICallRepo struct {
	mu    sync.Mutex
	calls []domain.ExternalAPICall
}

func (r *fakeAPICallRepo) Save(_ context.Context, c *domain.ExternalAPICall) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, *c)
	return nil
}

func (r *fakeAPICallRepo) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, c.APIName)
	}
	return out
}

func (r *fakeAPICallRepo) byName(name string) []domain.ExternalAPICall {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ExternalAPICall
	for _, c := range r.calls {
		if c.APIName == name {
			out = append(out, c)
		}
	}
	return out
}

type stubBureauClient struct {
	calls atomic.Int32
	fn    func(ctx context.Context, customerID string) (*domain.CreditReport, error)
}

func (c *stubBureauClient) FetchCreditReport(ctx context.Context, customerID string) (*domain.CreditReport, error) {
	c.calls.Add(1)
	return c.fn(ctx, customerID)
}

func scoreClient(score int) *stubBureauClient {
	return &stubBureauClient{fn: func(_ context.Context, customerID string) (*domain.CreditReport, error) {
		return &domain.CreditReport{CustomerID: customerID, CreditScore: score, Status: domain.CreditStatusActive, Details: "on time"}, nil
	}}
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishDecision(ctx context.Context, event domain.DecisionEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type bureauFunc func(ctx context.Context, customerID, applicationID string) domain.CreditReport

func (f bureauFunc) GetCreditReport(ctx context.Context, customerID, applicationID string) domain.CreditReport {
	return f(ctx, customerID, applicationID)
}

// harness 组装网关与服务使用的共享依赖
type harness struct {
	cache     *memCache
	repo      *fakeAssessmentRepo
	apiCalls  *fakeAPICallRepo
	pool      *async.Pool
	runner    *async.Runner
	metrics   *metrics.Metrics
	collector metrics.MetricsCollector
}

func newHarness() *harness {
	m := metrics.New("test")
	return &harness{
		cache:     newMemCache(),
		repo:      &fakeAssessmentRepo{},
		apiCalls:  &fakeAPICallRepo{},
		pool:      async.NewPool(4),
		runner:    async.NewRunner(time.Second, nil),
		metrics:   m,
		collector: metrics.NewDefaultMetricsCollector(m),
	}
}

func testPolicy(maxAttempts uint, onState func(name string, from, to resilience.State)) *resilience.Policy {
	return resilience.NewPolicy(resilience.Config{
		Name:               "credit-bureau",
		MaxConcurrentCalls: 4,
		MaxWait:            50 * time.Millisecond,
		CircuitBreaker: resilience.CircuitBreakerConfig{
			FailureRatio:        0.5,
			MinimumCalls:        2,
			ConsecutiveFailures: 2,
			OpenTimeout:         time.Minute,
			HalfOpenMaxCalls:    1,
		},
		Retry: resilience.RetryConfig{
			MaxAttempts:     maxAttempts,
			InitialInterval: time.Millisecond,
			MaxInterval:     2 * time.Millisecond,
		},
		OnStateChange: onState,
	})
}

func (h *harness) gateway(client domain.CreditBureauClient, policy *resilience.Policy) *CreditGateway {
	return NewCreditGateway(client, h.cache, policy, NewAuditLogger(h.apiCalls, h.pool, h.runner), h.runner, h.collector, time.Hour)
}

func (h *harness) service(bureau domain.CreditBureau, publisher domain.EventPublisher, timeout time.Duration) *RiskAssessmentService {
	return NewRiskAssessmentService(bureau, h.repo, h.cache, publisher, h.pool, h.runner, h.collector, ServiceConfig{
		Timeout:                timeout,
		CacheTTL:               24 * time.Hour,
		FallbackPersistTimeout: time.Second,
	})
}
