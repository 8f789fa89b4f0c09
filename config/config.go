package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/fhdautomacao/fhdautomacaosite-sub001/models"
)

type Config struct {
	Port        string
	DatabaseURL string
	JWTSecret   string
	LogLevel    string

	// ReconcileSpec is a robfig/cron schedule for the overdue check.
	ReconcileSpec string

	// SMTP settings for the e-mail dispatcher. Leaving SMTPHost empty
	// disables e-mail and falls back to log-only notifications.
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SenderEmail  string
	NotifyEmail  string
}

func LoadConfig() (*Config, error) {
	godotenv.Load()

	return &Config{
		Port:          os.Getenv("PORT"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		JWTSecret:     getEnvOrDefault("JWT_SECRET", "dev-secret"),
		LogLevel:      getEnvOrDefault("LOG_LEVEL", "info"),
		ReconcileSpec: getEnvOrDefault("RECONCILE_SPEC", "@every 30m"),
		SMTPHost:      os.Getenv("SMTP_HOST"),
		SMTPPort:      getEnvOrDefault("SMTP_PORT", "587"),
		SMTPUsername:  os.Getenv("SMTP_USERNAME"),
		SMTPPassword:  os.Getenv("SMTP_PASSWORD"),
		SenderEmail:   os.Getenv("SENDER_EMAIL"),
		NotifyEmail:   os.Getenv("NOTIFY_EMAIL"),
	}, nil
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&models.Obligation{}, &models.Installment{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
