package service

import (
	"context"
	"fmt"

	"github.com/vantagepsp/psp-core/internal/core/domain"
	"github.com/vantagepsp/psp-core/internal/core/ports"
	"github.com/vantagepsp/psp-core/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// FraudCaseServiceImpl implements ports.FraudCaseService.
type FraudCaseServiceImpl struct {
	caseRepo ports.FraudCaseRepository
	audit    ports.AuditService
	log      zerolog.Logger
}

// NewFraudCaseService creates a new FraudCaseServiceImpl.
func NewFraudCaseService(caseRepo ports.FraudCaseRepository, audit ports.AuditService, log zerolog.Logger) *FraudCaseServiceImpl {
	return &FraudCaseServiceImpl{caseRepo: caseRepo, audit: audit, log: log}
}

// GetCase returns a fraud case by id.
func (s *FraudCaseServiceImpl) GetCase(ctx context.Context, id uuid.UUID) (*domain.FraudCase, error) {
	c, err := s.caseRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if c == nil {
		return nil, apperror.ErrNotFound("fraud case")
	}
	return c, nil
}

// ResolveCase moves an open or under-review case to a terminal decision.
// A decision on an already-resolved case is rejected.
func (s *FraudCaseServiceImpl) ResolveCase(ctx context.Context, id uuid.UUID, decision domain.FraudCaseStatus, reviewer string) (*domain.FraudCase, error) {
	if decision != domain.FraudCaseStatusApproved && decision != domain.FraudCaseStatusRejected {
		return nil, apperror.Validation(fmt.Sprintf("invalid decision %q", decision))
	}

	c, err := s.caseRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if c == nil {
		return nil, apperror.ErrNotFound("fraud case")
	}
	if c.IsResolved() {
		return nil, apperror.ErrFraudCaseClosed()
	}

	if err := s.caseRepo.UpdateStatus(ctx, id, decision); err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	c.Status = decision

	s.audit.Record(&c.MerchantID, domain.AuditActionFraudCaseResolved, "fraud_case", c.ID.String(), map[string]any{
		"decision": decision,
		"reviewer": reviewer,
	})

	s.log.Info().
		Str("case_id", c.ID.String()).
		Str("decision", string(decision)).
		Str("reviewer", reviewer).
		Msg("fraud case resolved")

	return c, nil
}
