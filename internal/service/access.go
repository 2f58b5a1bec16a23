package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/trpgsessionhub/server/internal/authz"
	"github.com/trpgsessionhub/server/internal/model"
	"github.com/trpgsessionhub/server/internal/repository"
)

// accessChecker loads the facts the authorization predicate needs for a
// (actor, session) pair. Shared by every service that guards session-scoped
// resources.
type accessChecker struct {
	sessionRepo repository.SessionRepository
	groupRepo   repository.GroupRepository
}

func (a *accessChecker) sessionEnv(ctx context.Context, actorID uuid.UUID, session *model.Session) (authz.Env, error) {
	env := authz.Env{Actor: actorID, Session: session}

	participant, err := a.sessionRepo.FindParticipant(ctx, session.ID, actorID)
	if err != nil {
		return env, err
	}
	env.ActorParticipant = participant

	isMember, err := a.groupRepo.IsMember(ctx, session.GroupID, actorID)
	if err != nil {
		return env, err
	}
	env.IsGroupMember = isMember

	return env, nil
}

// isUniqueViolation detects a duplicate-key failure from either the gorm
// translator or the raw driver message.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint failed")
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// newShareToken mints the opaque session share token.
func newShareToken() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return uuid.NewString()
	}
	return hex.EncodeToString(buf)
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return strings.ReplaceAll(uuid.NewString(), "-", "")[:n*2]
	}
	return hex.EncodeToString(buf)
}
