package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/trpgsessionhub/server/internal/model"
)

type ScenarioRepository interface {
	Create(ctx context.Context, scenario *model.Scenario) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Scenario, error)
	Save(ctx context.Context, scenario *model.Scenario) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]model.Scenario, error)
}

type scenarioRepository struct {
	db *gorm.DB
}

func NewScenarioRepository(db *gorm.DB) ScenarioRepository {
	return &scenarioRepository{db: db}
}

func (r *scenarioRepository) Create(ctx context.Context, scenario *model.Scenario) error {
	return r.db.WithContext(ctx).Create(scenario).Error
}

func (r *scenarioRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Scenario, error) {
	var scenario model.Scenario
	if err := r.db.WithContext(ctx).First(&scenario, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &scenario, nil
}

func (r *scenarioRepository) Save(ctx context.Context, scenario *model.Scenario) error {
	return r.db.WithContext(ctx).Save(scenario).Error
}

func (r *scenarioRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&model.Scenario{}, "id = ?", id).Error
}

func (r *scenarioRepository) List(ctx context.Context, limit, offset int) ([]model.Scenario, error) {
	var scenarios []model.Scenario
	err := r.db.WithContext(ctx).
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&scenarios).Error
	return scenarios, err
}
