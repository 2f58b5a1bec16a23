package service

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"github.com/meilisearch/meilisearch-go"
	"github.com/microcosm-cc/bluemonday"

	"github.com/trpgsessionhub/server/internal/model"
	"github.com/trpgsessionhub/server/internal/repository"
	"github.com/trpgsessionhub/server/pkg/apperror"
)

const scenarioIndex = "scenarios"

type CreateScenarioInput struct {
	Title       string `json:"title" binding:"required,max=255"`
	Author      string `json:"author" binding:"omitempty,max=100"`
	GameSystem  string `json:"game_system" binding:"required,max=50"`
	Description string `json:"description"`
	MinPlayers  *int   `json:"min_players,omitempty" binding:"omitempty,min=1"`
	MaxPlayers  *int   `json:"max_players,omitempty" binding:"omitempty,min=1"`
}

type ScenarioService interface {
	Create(ctx context.Context, actorID uuid.UUID, input CreateScenarioInput) (*model.Scenario, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Scenario, error)
	Search(ctx context.Context, query string, limit, offset int) ([]model.Scenario, error)
	Delete(ctx context.Context, actorID, id uuid.UUID) error
}

type scenarioService struct {
	repo      repository.ScenarioRepository
	search    meilisearch.ServiceManager
	sanitizer *bluemonday.Policy
}

type meiliScenarioDoc struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	GameSystem  string `json:"game_system"`
	Description string `json:"description"`
	CreatedAt   int64  `json:"created_at"`
}

// NewScenarioService wires the scenario library. The meilisearch client is
// optional; without it Search falls back to a plain DB listing.
func NewScenarioService(repo repository.ScenarioRepository, search meilisearch.ServiceManager) ScenarioService {
	s := &scenarioService{
		repo:      repo,
		search:    search,
		sanitizer: bluemonday.UGCPolicy(),
	}
	s.initIndex()
	return s
}

func (s *scenarioService) initIndex() {
	if s.search == nil {
		return
	}
	sortable := []string{"created_at"}
	if _, err := s.search.Index(scenarioIndex).UpdateSortableAttributes(&sortable); err != nil {
		log.Printf("failed to update scenario sortable attributes: %v", err)
	}
	searchable := []string{"title", "author", "game_system", "description"}
	if _, err := s.search.Index(scenarioIndex).UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("failed to update scenario searchable attributes: %v", err)
	}
}

func (s *scenarioService) Create(ctx context.Context, actorID uuid.UUID, input CreateScenarioInput) (*model.Scenario, error) {
	if input.MinPlayers != nil && input.MaxPlayers != nil && *input.MinPlayers > *input.MaxPlayers {
		return nil, apperror.New(apperror.KindValidationError, "min_players cannot exceed max_players")
	}

	scenario := &model.Scenario{
		Title:       input.Title,
		Author:      input.Author,
		GameSystem:  input.GameSystem,
		Description: s.sanitizer.Sanitize(input.Description),
		MinPlayers:  input.MinPlayers,
		MaxPlayers:  input.MaxPlayers,
		CreatedBy:   actorID,
	}
	if err := s.repo.Create(ctx, scenario); err != nil {
		return nil, err
	}

	s.indexScenario(scenario)
	return scenario, nil
}

func (s *scenarioService) Get(ctx context.Context, id uuid.UUID) (*model.Scenario, error) {
	scenario, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, apperror.ErrNotFound
		}
		return nil, err
	}
	return scenario, nil
}

func (s *scenarioService) Search(ctx context.Context, query string, limit, offset int) ([]model.Scenario, error) {
	if limit <= 0 {
		limit = 20
	}
	if s.search == nil || query == "" {
		return s.repo.List(ctx, limit, offset)
	}

	resp, err := s.search.Index(scenarioIndex).Search(query, &meilisearch.SearchRequest{
		Limit:  int64(limit),
		Offset: int64(offset),
	})
	if err != nil {
		log.Printf("scenario search failed, falling back to listing: %v", err)
		return s.repo.List(ctx, limit, offset)
	}

	scenarios := make([]model.Scenario, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		var idStr string
		if raw, ok := hit["id"]; ok {
			if err := json.Unmarshal(raw, &idStr); err != nil {
				continue
			}
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			continue
		}
		scenario, err := s.repo.FindByID(ctx, id)
		if err != nil {
			// Index entries can outlive their row briefly; skip strays.
			continue
		}
		scenarios = append(scenarios, *scenario)
	}
	return scenarios, nil
}

func (s *scenarioService) Delete(ctx context.Context, actorID, id uuid.UUID) error {
	scenario, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if scenario.CreatedBy != actorID {
		return apperror.ErrForbidden
	}

	if err := s.repo.Delete(ctx, scenario.ID); err != nil {
		return err
	}
	if s.search != nil {
		if _, err := s.search.Index(scenarioIndex).DeleteDocument(scenario.ID.String()); err != nil {
			log.Printf("failed to remove scenario %s from index: %v", scenario.ID, err)
		}
	}
	return nil
}

func (s *scenarioService) indexScenario(scenario *model.Scenario) {
	if s.search == nil {
		return
	}
	doc := meiliScenarioDoc{
		ID:          scenario.ID.String(),
		Title:       scenario.Title,
		Author:      scenario.Author,
		GameSystem:  scenario.GameSystem,
		Description: s.sanitizer.Sanitize(scenario.Description),
		CreatedAt:   scenario.CreatedAt.Unix(),
	}
	primaryKey := "id"
	if _, err := s.search.Index(scenarioIndex).AddDocuments([]meiliScenarioDoc{doc}, &primaryKey); err != nil {
		log.Printf("failed to index scenario %s: %v", scenario.ID, err)
	}
}
