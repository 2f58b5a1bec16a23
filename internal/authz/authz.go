package authz

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/trpgsessionhub/server/internal/model"
)

// Action names every authorizable operation. Anything not listed here is
// denied by May.
type Action string

const (
	ActionSessionView            Action = "session.view"
	ActionSessionModify          Action = "session.modify"
	ActionSessionJoin            Action = "session.join"
	ActionParticipantManageOther Action = "participant.manage_other"
	ActionParticipantSelfUpdate  Action = "participant.self_update"
	ActionHandoutCreate          Action = "handout.create"
	ActionHandoutModify          Action = "handout.modify"
	ActionHandoutDelete          Action = "handout.delete"
	ActionHandoutView            Action = "handout.view"
	ActionAttachmentUpload       Action = "attachment.upload"
	ActionAttachmentDelete       Action = "attachment.delete"
	ActionAttachmentView         Action = "attachment.view"
	ActionInvitationRespond      Action = "invitation.respond"
)

// Env carries the facts the predicate consults. Callers load them inside the
// mutating transaction so the decision and the write see the same state.
type Env struct {
	Actor uuid.UUID

	Session          *model.Session
	ActorParticipant *model.Participant // nil when the actor is not on the roster
	IsGroupMember    bool

	Handout *model.Handout // Participant association must be loaded

	Attachment *model.Attachment

	Invitation *model.SessionInvitation
	Now        time.Time
}

// May is the single authorization predicate. Every rule in the system lives
// here; callers never inline policy. Unknown actions are denied.
func May(action Action, env Env) bool {
	switch action {
	case ActionSessionView:
		return canViewSession(env)
	case ActionSessionModify, ActionParticipantManageOther,
		ActionHandoutCreate, ActionHandoutModify, ActionHandoutDelete,
		ActionAttachmentUpload:
		return isGM(env)
	case ActionSessionJoin:
		return canJoinSession(env)
	case ActionParticipantSelfUpdate:
		return env.ActorParticipant != nil && env.ActorParticipant.UserID == env.Actor
	case ActionHandoutView:
		return CanViewHandout(env.Actor, env.Session, env.Handout, env.ActorParticipant)
	case ActionAttachmentDelete:
		return isGM(env) || (env.Attachment != nil && env.Attachment.UploaderID == env.Actor)
	case ActionAttachmentView:
		return CanViewHandout(env.Actor, env.Session, env.Handout, env.ActorParticipant)
	case ActionInvitationRespond:
		return canRespondToInvitation(env)
	}
	return false
}

func isGM(env Env) bool {
	return env.Session != nil && env.Session.GMUserID == env.Actor
}

func canViewSession(env Env) bool {
	if env.Session == nil {
		return false
	}
	if isGM(env) || env.ActorParticipant != nil {
		return true
	}
	switch env.Session.Visibility {
	case model.SessionVisibilityPublic:
		return true
	case model.SessionVisibilityGroup:
		return env.IsGroupMember
	}
	return false
}

func canJoinSession(env Env) bool {
	if env.Session == nil {
		return false
	}
	if isGM(env) {
		return true
	}
	switch env.Session.Visibility {
	case model.SessionVisibilityPublic:
		return true
	case model.SessionVisibilityGroup:
		return env.IsGroupMember
	}
	return false
}

func canRespondToInvitation(env Env) bool {
	inv := env.Invitation
	if inv == nil || inv.InviteeID != env.Actor {
		return false
	}
	return inv.Status == model.InvitationPending && !inv.IsExpired(env.Now)
}

// CanViewHandout is the handout visibility predicate, applied identically by
// the detail handler and (via VisibleHandoutsScope) the list query:
//
//  1. the session GM sees everything;
//  2. the target participant sees their own handout, secret or not;
//  3. a participant whose slot matches assigned_player_slot sees it;
//  4. public handouts are visible to every participant of the session;
//  5. everyone else sees nothing.
func CanViewHandout(actor uuid.UUID, session *model.Session, h *model.Handout, actorParticipant *model.Participant) bool {
	if session == nil || h == nil {
		return false
	}
	if session.GMUserID == actor {
		return true
	}
	if actorParticipant == nil || actorParticipant.SessionID != h.SessionID {
		return false
	}
	if h.Participant != nil && h.Participant.UserID == actor {
		return true
	}
	if h.AssignedPlayerSlot != nil && actorParticipant.PlayerSlot != nil &&
		*h.AssignedPlayerSlot == *actorParticipant.PlayerSlot {
		return true
	}
	return !h.IsSecret
}

// VisibleHandoutsScope builds the WHERE clause equivalent of CanViewHandout so
// list endpoints omit hidden rows instead of leaking then 403-ing them.
// A nil actorParticipant with isGM=false yields an always-false filter.
func VisibleHandoutsScope(actor uuid.UUID, isGM bool, actorParticipant *model.Participant) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if isGM {
			return db
		}
		if actorParticipant == nil {
			return db.Where("1 = 0")
		}

		cond := db.Session(&gorm.Session{NewDB: true}).
			Where("handouts.participant_id = ?", actorParticipant.ID).
			Or("handouts.is_secret = ?", false)
		if actorParticipant.PlayerSlot != nil {
			cond = cond.Or("handouts.assigned_player_slot = ?", *actorParticipant.PlayerSlot)
		}
		return db.Where(cond)
	}
}
