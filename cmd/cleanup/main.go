package main

import (
	"log"
	"time"

	"github.com/campus-erp/backend/internal/config"
	"github.com/campus-erp/backend/internal/database"
	"github.com/campus-erp/backend/internal/models"
)

// Periodic maintenance: drops dead refresh tokens and switches off grace
// policies whose validity window has lapsed. Intended to run from cron.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	now := time.Now()

	res := db.Where("revoked = ? OR expires_at < ?", true, now).
		Delete(&models.RefreshToken{})
	if res.Error != nil {
		log.Printf("Error purging refresh tokens: %v", res.Error)
	} else {
		log.Printf("Purged %d expired/revoked refresh tokens", res.RowsAffected)
	}

	res = db.Model(&models.GracePolicy{}).
		Where("is_active = ? AND valid_until IS NOT NULL AND valid_until < ?", true, now).
		Update("is_active", false)
	if res.Error != nil {
		log.Printf("Error deactivating grace policies: %v", res.Error)
	} else {
		log.Printf("Deactivated %d lapsed grace policies", res.RowsAffected)
	}

	log.Println("Cleanup completed")
}
