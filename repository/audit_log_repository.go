// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"gorm.io/gorm"

	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/models"
)

// AuditLogRepositoryImpl implements AuditLogRepository interface
type AuditLogRepositoryImpl struct {
	*BaseRepository[models.AuditLog]
}

// NewAuditLogRepository creates a new audit log repository
func NewAuditLogRepository(db *gorm.DB) AuditLogRepository {
	return &AuditLogRepositoryImpl{
		BaseRepository: NewBaseRepository[models.AuditLog](db),
	}
}
