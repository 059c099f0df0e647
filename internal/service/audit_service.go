package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/vantagepsp/psp-core/internal/core/domain"
	"github.com/vantagepsp/psp-core/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type auditService struct {
	repo ports.AuditRepository
	log  zerolog.Logger
}

// NewAuditService creates a new audit service.
// If repo is nil, audit records are only written to the logger.
func NewAuditService(repo ports.AuditRepository, log zerolog.Logger) ports.AuditService {
	return &auditService{repo: repo, log: log}
}

// Record writes an audit entry asynchronously (fire-and-forget). An audit
// failure never affects the operation that produced it.
func (s *auditService) Record(merchantID *uuid.UUID, action domain.AuditAction, entity string, entityID string, metadata any) {
	var meta string
	if metadata != nil {
		if data, err := json.Marshal(metadata); err == nil {
			meta = string(data)
		}
	}

	entry := &domain.AuditLog{
		ID:         uuid.New(),
		MerchantID: merchantID,
		Action:     action,
		Entity:     entity,
		EntityID:   entityID,
		Metadata:   meta,
		CreatedAt:  time.Now().UTC(),
	}

	go func() {
		s.log.Info().
			Str("action", string(entry.Action)).
			Str("entity", entry.Entity).
			Str("entity_id", entry.EntityID).
			Msg("audit")

		if s.repo != nil {
			if err := s.repo.Create(context.Background(), entry); err != nil {
				s.log.Warn().Err(err).Str("action", string(entry.Action)).Msg("failed to persist audit log")
			}
		}
	}()
}
