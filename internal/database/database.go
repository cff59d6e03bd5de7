package database

import (
	"fmt"
	"log"

	"github.com/campus-erp/backend/internal/config"
	"github.com/campus-erp/backend/internal/models"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func Connect(cfg *config.Config) (*gorm.DB, error) {
	var logLevel logger.LogLevel
	if cfg.Server.Env == "development" {
		logLevel = logger.Info
	} else {
		logLevel = logger.Silent
	}

	log.Printf("Attempting database connection (%s) with DSN: %s",
		cfg.Database.Driver, maskPassword(cfg.Database.DSN))

	var dialector gorm.Dialector
	if cfg.Database.Driver == "mysql" {
		dialector = mysql.Open(cfg.Database.DSN)
	} else {
		dialector = postgres.Open(cfg.Database.DSN)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Println("Database connection successful")
	return db, nil
}

func maskPassword(dsn string) string {
	// Simple password masking for logging
	if len(dsn) > 20 {
		return dsn[:20] + "...***..."
	}
	return "***"
}

func Migrate(db *gorm.DB) error {
	log.Println("Running migrations...")

	err := db.AutoMigrate(
		&models.User{},
		&models.Course{},
		&models.AcademicTerm{},
		&models.ComponentType{},
		&models.ComponentDefinition{},
		&models.MarksLedgerRecord{},
		&models.GracePolicy{},
		&models.RevaluationSubject{},
		&models.AuditLog{},
		&models.RefreshToken{},
	)
	if err != nil {
		return err
	}

	// Add performance indexes
	db.Exec("CREATE INDEX IF NOT EXISTS idx_users_email ON users(email)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_ledger_status ON marks_ledger_records(component_id, status)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_components_course ON component_definitions(course_id, term_id)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_grace_course_active ON grace_policies(course_id, is_active)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_reval_status ON revaluation_subjects(status)")

	return nil
}
