//go:build integration

package gormrepo

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/wyfcoding/riskassessment/internal/risk/domain"
	"github.com/wyfcoding/riskassessment/pkg/db"
)

func setupTestDB(t *testing.T) *db.DB {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:15-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "risk_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("host=%s port=%s user=test password=test dbname=risk_test sslmode=disable", host, port.Port())
	gdb, err := db.Init(ctx, db.Config{Driver: "postgres", DSN: dsn, MaxOpenConns: 5, MaxIdleConns: 2, ConnMaxLifetime: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { _ = gdb.Close() })

	require.NoError(t, AutoMigrate(gdb.DB))
	return gdb
}

func assessment(appID string, at time.Time, decision domain.Decision) *domain.RiskAssessment {
	return &domain.RiskAssessment{
		ID:             uuid.NewString(),
		ApplicationID:  appID,
		AssessmentDate: at,
		CreditScore:    700,
		DebtRatio:      decimal.NewFromInt(30),
		RiskScore:      decimal.RequireFromString("65.5"),
		Decision:       decision,
		DecisionReason: "test",
		RiskFactors: []domain.RiskFactor{
			{Name: domain.FactorCreditScore, Value: decimal.NewFromInt(72), Weight: decimal.RequireFromString("0.4"), Contribution: decimal.RequireFromString("28.8")},
			{Name: domain.FactorDebtRatio, Value: decimal.NewFromInt(60), Weight: decimal.RequireFromString("0.3"), Contribution: decimal.NewFromInt(18)},
		},
	}
}

func TestAssessmentRepositoryLatestWins(t *testing.T) {
	gdb := setupTestDB(t)
	repo := NewAssessmentRepository(gdb)
	ctx := context.Background()
	appID := uuid.NewString()

	base := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, repo.Save(ctx, assessment(appID, base, domain.DecisionRejected)))
	newer := assessment(appID, base.Add(time.Minute), domain.DecisionApproved)
	require.NoError(t, repo.Save(ctx, newer))

	got, err := repo.FindLatestByApplicationID(ctx, appID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, newer.ID, got.ID)
	assert.Equal(t, domain.DecisionApproved, got.Decision)
	require.Len(t, got.RiskFactors, 2)
	assert.Equal(t, domain.FactorCreditScore, got.RiskFactors[0].Name)
	assert.True(t, got.RiskFactors[0].Contribution.Equal(decimal.RequireFromString("28.8")))
}

func TestAssessmentRepositoryTieBrokenByWriteOrder(t *testing.T) {
	gdb := setupTestDB(t)
	repo := NewAssessmentRepository(gdb)
	ctx := context.Background()
	appID := uuid.NewString()

	at := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, repo.Save(ctx, assessment(appID, at, domain.DecisionApproved)))
	time.Sleep(10 * time.Millisecond)
	later := assessment(appID, at, domain.DecisionError)
	require.NoError(t, repo.Save(ctx, later))

	got, err := repo.FindLatestByApplicationID(ctx, appID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, later.ID, got.ID)
}

func TestAssessmentRepositoryNotFound(t *testing.T) {
	gdb := setupTestDB(t)
	got, err := NewAssessmentRepository(gdb).FindLatestByApplicationID(context.Background(), uuid.NewString())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAPICallRepositorySave(t *testing.T) {
	gdb := setupTestDB(t)
	now := time.Now().UTC()
	call := &domain.ExternalAPICall{
		ID: uuid.NewString(), ApplicationID: uuid.NewString(), APIName: domain.APICallSuccess,
		RequestTime: now, ResponseTime: now, StatusCode: 200,
	}
	require.NoError(t, NewAPICallRepository(gdb).Save(context.Background(), call))

	var count int64
	require.NoError(t, gdb.Model(&ExternalAPICallModel{}).Where("id = ?", call.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
