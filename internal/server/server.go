package server

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/meilisearch/meilisearch-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/trpgsessionhub/server/internal/config"
	"github.com/trpgsessionhub/server/internal/handler"
	"github.com/trpgsessionhub/server/internal/middleware"
	"github.com/trpgsessionhub/server/internal/repository"
	"github.com/trpgsessionhub/server/internal/service"
	"github.com/trpgsessionhub/server/pkg/mailer"
	"github.com/trpgsessionhub/server/pkg/storage"
)

type Server struct {
	engine      *gin.Engine
	db          *gorm.DB
	redisClient *redis.Client
}

func NewServer(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) *Server {
	blobStorage, err := storage.NewCloudinaryStorage()
	if err != nil {
		log.Fatalf("failed to initialize cloudinary storage: %v", err)
	}

	mail, err := mailer.NewSMTPMailer()
	if err != nil {
		log.Fatalf("failed to initialize mailer: %v", err)
	}
	if mail == nil {
		log.Println("SMTP_HOST not set, email channel disabled")
	}

	meiliHost := cfg.MeiliSearchHost
	if !strings.HasPrefix(meiliHost, "http") {
		meiliHost = "http://" + meiliHost + ":7700"
	}
	meiliClient := meilisearch.New(meiliHost, meilisearch.WithAPIKey(cfg.MeiliMasterKey))

	userRepo := repository.NewUserRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	handoutRepo := repository.NewHandoutRepository(db)
	attachmentRepo := repository.NewAttachmentRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	invitationRepo := repository.NewInvitationRepository(db)
	scenarioRepo := repository.NewScenarioRepository(db)
	socialRepo := repository.NewSocialRepository(db)

	notificationSvc := service.NewNotificationService(notificationRepo, userRepo, redisClient, mail)
	authSvc := service.NewAuthService(db, userRepo)
	sessionSvc := service.NewSessionService(db, sessionRepo, groupRepo, userRepo, notificationSvc, redisClient, cfg.SessionCreateLimit)
	invitationSvc := service.NewInvitationService(db, invitationRepo, sessionRepo, groupRepo, userRepo, notificationSvc)
	handoutSvc := service.NewHandoutService(db, handoutRepo, sessionRepo, groupRepo, attachmentRepo, notificationSvc)
	attachmentSvc := service.NewAttachmentService(db, attachmentRepo, handoutRepo, sessionRepo, groupRepo, blobStorage)
	scenarioSvc := service.NewScenarioService(scenarioRepo, meiliClient)
	socialSvc := service.NewSocialService(db, groupRepo, socialRepo, userRepo, notificationSvc)
	sheetSvc := service.NewSheetService(userRepo)

	authHandler := handler.NewAuthHandler(authSvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc, invitationSvc)
	handoutHandler := handler.NewHandoutHandler(handoutSvc)
	attachmentHandler := handler.NewAttachmentHandler(attachmentSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	scenarioHandler := handler.NewScenarioHandler(scenarioSvc)
	socialHandler := handler.NewSocialHandler(socialSvc, sheetSvc)

	startBackgroundJobs(cfg, sessionSvc, invitationSvc, attachmentSvc)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	setupCORS(router, cfg)

	authMiddleware := middleware.NewAuthMiddleware()

	api := router.Group("/api")

	auth := api.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
	}

	// Share links resolve without an account.
	api.GET("/sessions/shared/:token", sessionHandler.GetShared)

	protected := api.Group("")
	protected.Use(authMiddleware.RequireAuth())
	{
		protected.POST("/sessions", sessionHandler.Create)
		protected.GET("/sessions", sessionHandler.List)
		protected.GET("/sessions/:id", sessionHandler.Get)
		protected.PATCH("/sessions/:id", sessionHandler.Update)
		protected.DELETE("/sessions/:id", sessionHandler.Delete)

		protected.POST("/sessions/:id/join", sessionHandler.Join)
		protected.POST("/sessions/:id/assign", sessionHandler.AssignPlayer)
		protected.PATCH("/sessions/:id/participants/:participant_id", sessionHandler.UpdateParticipant)
		protected.DELETE("/sessions/:id/participants/:participant_id", sessionHandler.RemoveParticipant)

		protected.POST("/sessions/:id/invitations", sessionHandler.Invite)
		protected.POST("/invitations/:id/accept", sessionHandler.AcceptInvitation)
		protected.POST("/invitations/:id/decline", sessionHandler.DeclineInvitation)

		protected.POST("/sessions/:id/handouts", handoutHandler.Create)
		protected.POST("/sessions/:id/handouts/bulk", handoutHandler.BulkCreate)
		protected.GET("/sessions/:id/handouts", handoutHandler.ListBySession)
		protected.GET("/handouts/:id", handoutHandler.Get)
		protected.PATCH("/handouts/:id", handoutHandler.Update)
		protected.POST("/handouts/:id/toggle-visibility", handoutHandler.ToggleVisibility)
		protected.DELETE("/handouts/:id", handoutHandler.Delete)

		protected.POST("/handouts/:id/attachments", attachmentHandler.Upload)
		protected.GET("/handouts/:id/attachments", attachmentHandler.ListByHandout)
		protected.GET("/attachments/:id", attachmentHandler.Get)
		protected.DELETE("/attachments/:id", attachmentHandler.Delete)

		protected.GET("/notifications", notificationHandler.List)
		protected.GET("/notifications/unread_count", notificationHandler.UnreadCount)
		protected.PUT("/notifications/:id/read", notificationHandler.MarkAsRead)
		protected.PUT("/notifications/read-all", notificationHandler.MarkAllAsRead)
		protected.GET("/notifications/preferences", notificationHandler.GetPreferences)
		protected.PUT("/notifications/preferences", notificationHandler.UpdatePreferences)

		protected.POST("/groups", socialHandler.CreateGroup)
		protected.GET("/groups/:id", socialHandler.GetGroup)
		protected.POST("/groups/:id/invite", socialHandler.InviteToGroup)
		protected.POST("/groups/:id/join", socialHandler.JoinGroup)

		protected.POST("/friends/requests", socialHandler.SendFriendRequest)
		protected.POST("/friends/requests/:id/accept", socialHandler.AcceptFriendRequest)

		protected.POST("/sheets", socialHandler.CreateSheet)
		protected.GET("/sheets", socialHandler.ListSheets)

		protected.GET("/scenarios", scenarioHandler.Search)
		protected.POST("/scenarios", scenarioHandler.Create)
		protected.GET("/scenarios/:id", scenarioHandler.Get)
		protected.DELETE("/scenarios/:id", scenarioHandler.Delete)
	}

	return &Server{
		engine:      router,
		db:          db,
		redisClient: redisClient,
	}
}

func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}

// startBackgroundJobs runs the periodic maintenance loops: session reminders,
// invitation expiry and the orphan blob sweep.
func startBackgroundJobs(cfg *config.Config, sessions service.SessionService, invitations service.InvitationService, attachments service.AttachmentService) {
	go func() {
		ticker := time.NewTicker(cfg.ReminderInterval)
		defer ticker.Stop()
		for range ticker.C {
			if err := sessions.SendDueReminders(context.Background()); err != nil {
				log.Printf("session reminder run failed: %v", err)
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(cfg.InvitationInterval)
		defer ticker.Stop()
		for range ticker.C {
			expired, err := invitations.ExpireStale(context.Background())
			if err != nil {
				log.Printf("invitation expiry run failed: %v", err)
			} else if expired > 0 {
				log.Printf("expired %d stale invitations", expired)
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for range ticker.C {
			if err := attachments.SweepOrphanBlobs(context.Background(), 50); err != nil {
				log.Printf("orphan blob sweep failed: %v", err)
			}
		}
	}()
}

func setupCORS(router *gin.Engine, cfg *config.Config) {
	origins := strings.Split(cfg.AllowedOrigins, ",")

	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
}
