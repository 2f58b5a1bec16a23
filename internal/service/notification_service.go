package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/trpgsessionhub/server/internal/model"
	"github.com/trpgsessionhub/server/internal/repository"
	"github.com/trpgsessionhub/server/pkg/apperror"
	"github.com/trpgsessionhub/server/pkg/mailer"
)

// NotificationEvent is a lifecycle event with a pre-computed recipient set.
// The producer decides the audience; this service only applies preferences
// and delivery.
type NotificationEvent struct {
	Type         model.NotificationType
	SenderID     uuid.UUID
	RecipientIDs []uuid.UUID
	SubjectKind  string
	SubjectID    uuid.UUID
	Message      string
	Metadata     map[string]interface{}
}

// Delivery holds the post-commit side effects of a dispatch: redis publishes
// and email sends. Both are best-effort and never fail the originating request.
type Delivery struct {
	Notifications []model.Notification
	Emails        []emailTask
}

type emailTask struct {
	To      string
	Subject string
	Body    string
}

type NotificationService interface {
	// DispatchTx inserts notification rows inside the caller's transaction so
	// the state change and its notifications commit atomically. The returned
	// Delivery must be handed to Deliver after the transaction commits.
	DispatchTx(ctx context.Context, tx *gorm.DB, event NotificationEvent) (*Delivery, error)
	// Deliver performs the post-commit channels (email, redis publish).
	Deliver(delivery *Delivery)

	List(ctx context.Context, recipientID uuid.UUID, unreadOnly bool, limit, offset int) ([]model.Notification, error)
	MarkAsRead(ctx context.Context, recipientID, notificationID uuid.UUID) error
	MarkAllAsRead(ctx context.Context, recipientID uuid.UUID) error
	UnreadCount(ctx context.Context, recipientID uuid.UUID) (int64, error)

	GetPreferences(ctx context.Context, userID uuid.UUID) (*model.NotificationPreferences, error)
	UpdatePreferences(ctx context.Context, userID uuid.UUID, prefs model.NotificationPreferences) (*model.NotificationPreferences, error)
}

type notificationService struct {
	repo        repository.NotificationRepository
	userRepo    repository.UserRepository
	redisClient *redis.Client
	mail        mailer.Mailer
}

func NewNotificationService(repo repository.NotificationRepository, userRepo repository.UserRepository, redisClient *redis.Client, mail mailer.Mailer) NotificationService {
	return &notificationService{
		repo:        repo,
		userRepo:    userRepo,
		redisClient: redisClient,
		mail:        mail,
	}
}

func (s *notificationService) DispatchTx(ctx context.Context, tx *gorm.DB, event NotificationEvent) (*Delivery, error) {
	txRepo := repository.NewNotificationRepository(tx)
	txUsers := repository.NewUserRepository(tx)

	var metadata []byte
	if len(event.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(event.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal notification metadata: %w", err)
		}
	}

	category := event.Type.Category()
	delivery := &Delivery{}

	for _, recipientID := range event.RecipientIDs {
		prefs, err := txRepo.GetPreferences(ctx, recipientID)
		if err != nil {
			return nil, err
		}

		inApp, email := prefs.ChannelsFor(category)
		if !inApp && !email {
			continue
		}

		if inApp {
			notification := model.Notification{
				RecipientID: recipientID,
				SenderID:    event.SenderID,
				Type:        event.Type,
				SubjectKind: event.SubjectKind,
				SubjectID:   event.SubjectID,
				Message:     event.Message,
				Metadata:    metadata,
			}
			if err := txRepo.Create(ctx, &notification); err != nil {
				return nil, err
			}
			delivery.Notifications = append(delivery.Notifications, notification)
		}

		if email && s.mail != nil {
			user, err := txUsers.FindByID(ctx, recipientID)
			if err != nil {
				return nil, err
			}
			delivery.Emails = append(delivery.Emails, emailTask{
				To:      user.Email,
				Subject: fmt.Sprintf("[TRPG Session Hub] %s", event.Type),
				Body:    event.Message,
			})
		}
	}

	return delivery, nil
}

func (s *notificationService) Deliver(delivery *Delivery) {
	if delivery == nil {
		return
	}

	if s.redisClient != nil {
		ctx := context.Background()
		for _, n := range delivery.Notifications {
			channel := fmt.Sprintf("user_notifications:%s", n.RecipientID.String())
			payload, err := json.Marshal(n)
			if err == nil {
				s.redisClient.Publish(ctx, channel, payload)
			}
		}
	}

	for _, task := range delivery.Emails {
		if err := s.mail.Send(task.To, task.Subject, task.Body); err != nil {
			// Email is best-effort; the in-app notification already committed.
			log.Printf("failed to send notification email to %s: %v", task.To, err)
		}
	}
}

func (s *notificationService) List(ctx context.Context, recipientID uuid.UUID, unreadOnly bool, limit, offset int) ([]model.Notification, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.repo.ListByRecipient(ctx, recipientID, unreadOnly, limit, offset)
}

func (s *notificationService) MarkAsRead(ctx context.Context, recipientID, notificationID uuid.UUID) error {
	if err := s.repo.MarkAsRead(ctx, notificationID, recipientID); err != nil {
		if err == gorm.ErrRecordNotFound {
			return apperror.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *notificationService) MarkAllAsRead(ctx context.Context, recipientID uuid.UUID) error {
	return s.repo.MarkAllAsRead(ctx, recipientID)
}

func (s *notificationService) UnreadCount(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	return s.repo.CountUnread(ctx, recipientID)
}

func (s *notificationService) GetPreferences(ctx context.Context, userID uuid.UUID) (*model.NotificationPreferences, error) {
	return s.repo.GetPreferences(ctx, userID)
}

func (s *notificationService) UpdatePreferences(ctx context.Context, userID uuid.UUID, prefs model.NotificationPreferences) (*model.NotificationPreferences, error) {
	prefs.UserID = userID
	if !prefs.AnyEnabled() {
		return nil, apperror.Validation("at least one notification channel must stay enabled", nil)
	}
	if err := s.repo.SavePreferences(ctx, &prefs); err != nil {
		return nil, err
	}
	return &prefs, nil
}
