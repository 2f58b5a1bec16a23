package main

import (
	"log"

	"gorm.io/gorm"

	"github.com/trpgsessionhub/server/internal/config"
	"github.com/trpgsessionhub/server/internal/model"
	"github.com/trpgsessionhub/server/internal/server"
	"github.com/trpgsessionhub/server/pkg/database"

	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db := database.Connect()
	if err := migrate(db); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("invalid REDIS_URL: %v", err)
		}
		redisClient = redis.NewClient(opts)
	} else {
		log.Println("REDIS_URL not set, realtime publish and rate limiting disabled")
	}

	srv := server.NewServer(cfg, db, redisClient)
	if err := srv.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server exited with error: %v", err)
	}
}

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.FriendRequest{},
		&model.Friendship{},
		&model.Group{},
		&model.GroupMembership{},
		&model.CharacterSheet{},
		&model.Scenario{},
		&model.Session{},
		&model.Participant{},
		&model.PlayHistory{},
		&model.SessionInvitation{},
		&model.Handout{},
		&model.Attachment{},
		&model.Notification{},
		&model.NotificationPreferences{},
		&model.OrphanBlob{},
	)
}
