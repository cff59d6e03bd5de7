package services

import (
	"github.com/campus-erp/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AuditService struct {
	db *gorm.DB
}

func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{db: db}
}

func (s *AuditService) Log(actorID uuid.UUID, action, resourceType string, resourceID uuid.UUID, before, after models.JSONB, ip string) error {
	entry := &models.AuditLog{
		ActorUserID:  actorID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Before:       before,
		After:        after,
		IP:           ip,
	}
	return s.db.Create(entry).Error
}

// Recent returns the latest audit entries, newest first.
func (s *AuditService) Recent(limit int) ([]models.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var entries []models.AuditLog
	err := s.db.Order("timestamp DESC").Limit(limit).Find(&entries).Error
	return entries, err
}

// ForResource returns the audit trail of one record, oldest first.
func (s *AuditService) ForResource(resourceType string, resourceID uuid.UUID) ([]models.AuditLog, error) {
	var entries []models.AuditLog
	err := s.db.Where("resource_type = ? AND resource_id = ?", resourceType, resourceID).
		Order("timestamp").Find(&entries).Error
	return entries, err
}
