// Package gormrepo 基于 GORM 的评估与审计仓储实现，方言（postgres/mysql）由 pkg/db 选择
package gormrepo

import (
	"context"
	"errors"
	"fmt"

	"github.com/wyfcoding/riskassessment/internal/risk/domain"
	"github.com/wyfcoding/riskassessment/pkg/db"
	"gorm.io/gorm"
)

type assessmentRepository struct {
	database *db.DB
}

// NewAssessmentRepository 创建评估仓储
func NewAssessmentRepository(database *db.DB) domain.AssessmentRepository {
	return &assessmentRepository{database: database}
}

// Save 保存评估及其因子，单个事务内完成
func (r *assessmentRepository) Save(ctx context.Context, assessment *domain.RiskAssessment) error {
	if assessment == nil {
		return nil
	}
	model := toRiskAssessmentModel(assessment)
	err := r.database.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(model).Error
	})
	if err != nil {
		return fmt.Errorf("failed to save assessment %s: %w", assessment.ID, err)
	}
	return nil
}

// FindLatestByApplicationID 评估时间相同时以写入时间较晚者为准
func (r *assessmentRepository) FindLatestByApplicationID(ctx context.Context, applicationID string) (*domain.RiskAssessment, error) {
	var model RiskAssessmentModel
	err := r.database.WithContext(ctx).
		Preload("Factors", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("application_id = ?", applicationID).
		Order("assessment_date DESC").
		Order("created_at DESC").
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load assessment for application %s: %w", applicationID, err)
	}
	return toRiskAssessment(&model), nil
}

type apiCallRepository struct {
	database *db.DB
}

// NewAPICallRepository 创建外部接口审计仓储
func NewAPICallRepository(database *db.DB) domain.APICallRepository {
	return &apiCallRepository{database: database}
}

func (r *apiCallRepository) Save(ctx context.Context, call *domain.ExternalAPICall) error {
	if call == nil {
		return nil
	}
	return r.database.WithContext(ctx).Create(toExternalAPICallModel(call)).Error
}
