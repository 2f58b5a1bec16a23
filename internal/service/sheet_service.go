package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/trpgsessionhub/server/internal/model"
	"github.com/trpgsessionhub/server/internal/repository"
	"github.com/trpgsessionhub/server/pkg/apperror"
)

type CreateSheetInput struct {
	Name    string `json:"name" binding:"required,max=100"`
	Edition string `json:"edition" binding:"required,oneof=coc6 coc7"`
}

// SheetService covers the character sheet surface the session roster needs:
// owning, listing and referencing sheets. Stats stay out of scope.
type SheetService interface {
	Create(ctx context.Context, ownerID uuid.UUID, input CreateSheetInput) (*model.CharacterSheet, error)
	ListOwn(ctx context.Context, ownerID uuid.UUID) ([]model.CharacterSheet, error)
	Get(ctx context.Context, actorID, sheetID uuid.UUID) (*model.CharacterSheet, error)
}

type sheetService struct {
	userRepo repository.UserRepository
}

func NewSheetService(userRepo repository.UserRepository) SheetService {
	return &sheetService{userRepo: userRepo}
}

func (s *sheetService) Create(ctx context.Context, ownerID uuid.UUID, input CreateSheetInput) (*model.CharacterSheet, error) {
	sheet := &model.CharacterSheet{
		OwnerID: ownerID,
		Name:    input.Name,
		Edition: model.SheetEdition(input.Edition),
	}
	if err := s.userRepo.CreateSheet(ctx, sheet); err != nil {
		return nil, err
	}
	return sheet, nil
}

func (s *sheetService) ListOwn(ctx context.Context, ownerID uuid.UUID) ([]model.CharacterSheet, error) {
	return s.userRepo.ListSheetsByOwner(ctx, ownerID)
}

func (s *sheetService) Get(ctx context.Context, actorID, sheetID uuid.UUID) (*model.CharacterSheet, error) {
	sheet, err := s.userRepo.FindSheetByID(ctx, sheetID)
	if err != nil {
		if isNotFound(err) {
			return nil, apperror.ErrNotFound
		}
		return nil, err
	}
	if sheet.OwnerID != actorID {
		return nil, apperror.ErrNotFound
	}
	return sheet, nil
}
