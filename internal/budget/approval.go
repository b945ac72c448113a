package budget

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/xard1993/komun-api/internal/models"
	"github.com/xard1993/komun-api/internal/store"
	"github.com/xard1993/komun-api/internal/telemetry"
	"github.com/xard1993/komun-api/internal/tenancy"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MaxRejectionReasonLength is the number of characters of a rejection reason that are kept.
const MaxRejectionReasonLength = 2000

// ApprovalResult reports the state of a period after a unit responded.
type ApprovalResult struct {
	Outcome           Outcome
	PeriodStatus      models.BudgetStatus
	ApprovedUnits     int
	RequiredApprovals int
	TotalUnits        int
	// QuorumReached is set when this response promoted the period to approved.
	QuorumReached bool
}

// ApproveByToken records a unit's approval. The token is the only credential.
// Approving twice is AlreadyDone without a recount; approving a rejected token fails with
// ErrConflictingResponse. After the write the approved units are recounted and the period
// is promoted to approved once the two-thirds quorum of the current unit count is met.
func (s *Service) ApproveByToken(ctx context.Context, slug string, periodID uuid.UUID, token string) (ApprovalResult, error) {
	if err := checkTokenRequest(slug, token); err != nil {
		return ApprovalResult{}, err
	}

	result := ApprovalResult{Outcome: Applied}

	err := s.tenants.InTenant(ctx, slug, func(ctx context.Context, bs store.BuildingStore) error {
		approval, err := lookupApproval(ctx, bs, periodID, token)
		if err != nil {
			return err
		}

		if approval.ApprovedAt != nil {
			result.Outcome = AlreadyDone
			period, err := bs.GetPeriod(ctx, periodID)
			if err != nil {
				return err
			}
			result.PeriodStatus = period.Status
			return nil
		}
		if approval.RejectedAt != nil {
			return fmt.Errorf("%w: this unit already declined the budget, contact management", ErrConflictingResponse)
		}

		period, err := bs.LockPeriod(ctx, periodID)
		if err != nil {
			return err
		}

		now := s.now()
		if err := bs.MarkApproved(ctx, approval.ID, now); err != nil {
			return err
		}

		approved, err := bs.CountApprovedUnits(ctx, periodID)
		if err != nil {
			return err
		}
		units, err := bs.CountUnits(ctx, period.BuildingID)
		if err != nil {
			return err
		}

		result.ApprovedUnits = approved
		result.TotalUnits = units
		result.RequiredApprovals = RequiredApprovals(units)

		// closed periods went through approved already and stay closed
		if QuorumReached(approved, units) && period.Status == models.BudgetProposed {
			period.Status = models.BudgetApproved
			period.ApprovedAt = &now
			if err := bs.UpdatePeriod(ctx, period); err != nil {
				return err
			}
			result.QuorumReached = true
		}
		result.PeriodStatus = period.Status
		return nil
	})
	if err != nil {
		return ApprovalResult{}, err
	}

	if result.Outcome == Applied {
		m := telemetry.GetMetrics()
		m.ApprovalResponsesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("response", "approve")))
		if result.QuorumReached {
			m.QuorumReachedTotal.Add(ctx, 1)
		}

		log.Info().
			Str("tenant", slug).
			Str("period_id", periodID.String()).
			Int("approved_units", result.ApprovedUnits).
			Int("required", result.RequiredApprovals).
			Bool("quorum_reached", result.QuorumReached).
			Msg("Budget approval recorded")
	}

	return result, nil
}

// RejectByToken records a unit's rejection with a reason truncated to
// MaxRejectionReasonLength characters. Rejections never change the period status.
func (s *Service) RejectByToken(ctx context.Context, slug string, periodID uuid.UUID, token, reason string) (ApprovalResult, error) {
	if err := checkTokenRequest(slug, token); err != nil {
		return ApprovalResult{}, err
	}
	reason = truncateRunes(reason, MaxRejectionReasonLength)

	result := ApprovalResult{Outcome: Applied}

	err := s.tenants.InTenant(ctx, slug, func(ctx context.Context, bs store.BuildingStore) error {
		approval, err := lookupApproval(ctx, bs, periodID, token)
		if err != nil {
			return err
		}

		if approval.ApprovedAt != nil {
			return fmt.Errorf("%w: this unit already approved the budget", ErrConflictingResponse)
		}

		if approval.RejectedAt == nil {
			if err := bs.MarkRejected(ctx, approval.ID, s.now(), reason); err != nil {
				return err
			}
		} else {
			result.Outcome = AlreadyDone
		}

		period, err := bs.GetPeriod(ctx, periodID)
		if err != nil {
			return err
		}
		result.PeriodStatus = period.Status
		return nil
	})
	if err != nil {
		return ApprovalResult{}, err
	}

	if result.Outcome == Applied {
		telemetry.GetMetrics().ApprovalResponsesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("response", "reject")))
		log.Info().Str("tenant", slug).Str("period_id", periodID.String()).Msg("Budget rejection recorded")
	}

	return result, nil
}

// lookupApproval finds the approval holding token and checks it belongs to periodID.
// checkTokenRequest rejects bad tenant slugs before malformed tokens so callers see the
// more specific error.
func checkTokenRequest(slug, token string) error {
	if err := tenancy.ValidateSlug(slug); err != nil {
		return err
	}
	if !wellFormedToken(token) {
		return ErrTokenNotFound
	}
	return nil
}

func lookupApproval(ctx context.Context, bs store.BuildingStore, periodID uuid.UUID, token string) (*models.BudgetApproval, error) {
	approval, err := bs.GetApprovalByToken(ctx, token)
	if errors.Is(err, store.ErrApprovalNotFound) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	if approval.BudgetPeriodID != periodID {
		return nil, ErrTokenNotFound
	}
	return approval, nil
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

// Summary counts the responses of a period against its quorum.
type Summary struct {
	PeriodID          uuid.UUID
	Status            models.BudgetStatus
	TotalUnits        int
	Approved          int
	Rejected          int
	Pending           int
	RequiredApprovals int
}

// ApprovalSummary returns the response counts of a period.
func (s *Service) ApprovalSummary(ctx context.Context, slug string, periodID uuid.UUID) (*Summary, error) {
	var summary *Summary
	err := s.tenants.InTenant(ctx, slug, func(ctx context.Context, bs store.BuildingStore) error {
		period, err := bs.GetPeriod(ctx, periodID)
		if err != nil {
			return err
		}
		units, err := bs.CountUnits(ctx, period.BuildingID)
		if err != nil {
			return err
		}
		approvals, err := bs.ListApprovals(ctx, periodID)
		if err != nil {
			return err
		}

		summary = &Summary{
			PeriodID:          periodID,
			Status:            period.Status,
			TotalUnits:        units,
			RequiredApprovals: RequiredApprovals(units),
		}
		for _, a := range approvals {
			switch {
			case a.ApprovedAt != nil:
				summary.Approved++
			case a.RejectedAt != nil:
				summary.Rejected++
			default:
				summary.Pending++
			}
		}
		return nil
	})
	return summary, err
}
