package demand

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pedraum/phone"
	"pedraum/pricing"
)

var (
	// ErrValidation wraps any rejected admin input.
	ErrValidation = errors.New("demand: validation failed")
	// ErrInvalidTransition signals a curation move the workflow does not allow.
	ErrInvalidTransition = errors.New("demand: invalid status transition")
)

// Service holds the curation workflow over a Repository.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context, id string) (Demand, error) {
	if id == "" {
		return Demand{}, fmt.Errorf("%w: missing id", ErrValidation)
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filters) ([]Demand, int, error) {
	if f.Status != "" && !ValidStatus(f.Status) {
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrValidation, f.Status)
	}
	return s.repo.List(ctx, f)
}

// Update persists the admin form. The WhatsApp contact is normalized to the
// 55-prefixed digit form plus its display mask before it reaches storage.
func (s *Service) Update(ctx context.Context, id string, p UpdateParams) (Demand, error) {
	if id == "" {
		return Demand{}, fmt.Errorf("%w: missing id", ErrValidation)
	}
	p.Title = strings.TrimSpace(p.Title)
	if p.Title == "" {
		return Demand{}, fmt.Errorf("%w: title required", ErrValidation)
	}
	if len(p.Tags) > MaxTags {
		return Demand{}, fmt.Errorf("%w: at most %d tags", ErrValidation, MaxTags)
	}
	if len(p.Images) > MaxImages {
		return Demand{}, fmt.Errorf("%w: at most %d images", ErrValidation, MaxImages)
	}
	if p.DefaultPriceCents < pricing.MinSendAmountCents {
		return Demand{}, fmt.Errorf("%w: price below %d cents", ErrValidation, pricing.MinSendAmountCents)
	}
	if p.UnlockCap != nil && *p.UnlockCap < 0 {
		return Demand{}, fmt.Errorf("%w: negative unlock cap", ErrValidation)
	}

	var digits, mask string
	if strings.TrimSpace(p.ContactWhatsApp) != "" {
		digits = phone.NormalizeBR(p.ContactWhatsApp)
		if !phone.IsValid55(digits) {
			return Demand{}, fmt.Errorf("%w: invalid whatsapp %q", ErrValidation, p.ContactWhatsApp)
		}
		mask = phone.Mask55(digits)
	}

	return s.repo.Update(ctx, id, p, mask, digits)
}

// Approve moves a pending or rejected demand into the approved pool and
// stamps curated_at. Publishing makes it visible to the sender screens.
func (s *Service) Approve(ctx context.Context, id string, notes string, publish bool) error {
	return s.transition(ctx, id, StatusApproved, CurationUpdate{
		Status:         StatusApproved,
		Curated:        true,
		StampCuratedAt: true,
		Publish:        publish,
		Notes:          strings.TrimSpace(notes),
	})
}

// Reject marks the demand as refused. Notes are required so suppliers and
// buyers can be told why.
func (s *Service) Reject(ctx context.Context, id string, notes string) error {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return fmt.Errorf("%w: rejection notes required", ErrValidation)
	}
	return s.transition(ctx, id, StatusRejected, CurationUpdate{
		Status:         StatusRejected,
		Curated:        true,
		StampCuratedAt: true,
		Notes:          notes,
	})
}

// BackToPending returns a curated demand to the review queue, clearing the
// curation stamps.
func (s *Service) BackToPending(ctx context.Context, id string) error {
	return s.transition(ctx, id, StatusPending, CurationUpdate{
		Status: StatusPending,
	})
}

// SetStatus moves an approved demand along the forward states
// (in_progress, closed) without touching the curation stamps.
func (s *Service) SetStatus(ctx context.Context, id string, next Status) error {
	if next != StatusInProgress && next != StatusClosed {
		return fmt.Errorf("%w: %s", ErrInvalidTransition, next)
	}
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if current.Status != StatusApproved && current.Status != StatusInProgress {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, next)
	}
	return s.repo.SetCuration(ctx, id, CurationUpdate{
		Status:         next,
		Curated:        current.Curated,
		StampCuratedAt: current.CuratedAt != nil,
		Publish:        current.PublishedAt != nil,
		Notes:          current.CurationNotes,
	})
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: missing id", ErrValidation)
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) transition(ctx context.Context, id string, next Status, c CurationUpdate) error {
	if id == "" {
		return fmt.Errorf("%w: missing id", ErrValidation)
	}
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !allowedTransition(current.Status, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, next)
	}
	return s.repo.SetCuration(ctx, id, c)
}

// allowedTransition encodes the curation moves the admin screens offer.
// pending can be approved or rejected; approved and rejected can flip to
// each other or go back to pending for another look.
func allowedTransition(from, to Status) bool {
	switch to {
	case StatusApproved:
		return from == StatusPending || from == StatusRejected
	case StatusRejected:
		return from == StatusPending || from == StatusApproved
	case StatusPending:
		return from == StatusApproved || from == StatusRejected
	default:
		return false
	}
}
