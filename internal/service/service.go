package service

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Emmanuelombaye/POS-System-sub000/internal/analytics"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/domain"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/events"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/store"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	DefaultBranchID string
	// MissingCountsAsZero closes a shift even when some ledger products have
	// no physical count, recording them as zero.
	MissingCountsAsZero bool
}

type Service struct {
	repo            store.Repository
	analytics       *analytics.Aggregator
	events          events.Broker
	logger          zerolog.Logger
	now             func() time.Time
	defaultBranchID string
	missingAsZero   bool
}

func New(repo store.Repository, aggregator *analytics.Aggregator, broker events.Broker, logger zerolog.Logger, opts Options) *Service {
	if opts.DefaultBranchID == "" {
		opts.DefaultBranchID = "branch1"
	}
	return &Service{
		repo:            repo,
		analytics:       aggregator,
		events:          broker,
		logger:          logger.With().Str("component", "service").Logger(),
		now:             func() time.Time { return time.Now().UTC() },
		defaultBranchID: opts.DefaultBranchID,
		missingAsZero:   opts.MissingCountsAsZero,
	}
}

// WithClock replaces the time source; tests pin it to a fixed instant.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.ID == "" {
		return domain.Actor{}, domain.ErrUnauthorized
	}
	return actor, nil
}

func requireSupervisor(ctx context.Context) (domain.Actor, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return actor, err
	}
	if !domain.IsSupervisor(actor.Role) {
		return actor, domain.Forbiddenf("manager or admin role required")
	}
	return actor, nil
}

func requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return actor, err
	}
	if actor.Role != domain.RoleAdmin {
		return actor, domain.Forbiddenf("admin role required")
	}
	return actor, nil
}

// requireBranchAccess keeps managers and cashiers inside their home branch.
// Admins, and actors without a home branch, reach every branch.
func requireBranchAccess(actor domain.Actor, branchID string) error {
	if actor.Role == domain.RoleAdmin || actor.BranchID == "" || actor.BranchID == branchID {
		return nil
	}
	return domain.Forbiddenf("branch %s is outside %s", branchID, actor.BranchID)
}

// requireShiftAccess lets supervisors act on shifts of their branch and
// cashiers only on their own.
func requireShiftAccess(actor domain.Actor, shift domain.Shift) error {
	if !domain.IsSupervisor(actor.Role) && shift.CashierID != actor.ID {
		return domain.Forbiddenf("shift %s belongs to another cashier", shift.ID)
	}
	return requireBranchAccess(actor, shift.BranchID)
}

// branchFor resolves the branch a request works on: the requested one when
// the actor may reach it, else the actor's home branch.
func (s *Service) branchFor(actor domain.Actor, requested string) (string, error) {
	if b := strings.TrimSpace(requested); b != "" {
		if err := requireBranchAccess(actor, b); err != nil {
			return "", err
		}
		return b, nil
	}
	if actor.BranchID != "" {
		return actor.BranchID, nil
	}
	return s.defaultBranchID, nil
}

func (s *Service) logAudit(ctx context.Context, branchID string, action string, entityType string, entityID string, detail string) {
	if branchID == "" {
		branchID = s.defaultBranchID
	}
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{ID: "system", Name: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:         xid.New("audit"),
		BranchID:   branchID,
		ActorID:    actor.ID,
		ActorName:  actor.Name,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  s.now(),
	}); err != nil {
		s.logger.Warn().Err(err).Str("action", action).Str("entity", entityType+"/"+entityID).Msg("failed to write audit log")
	}
}

func (s *Service) publish(ctx context.Context, eventType, branchID, shiftID, entityID string) {
	if s.events == nil {
		return
	}
	event := domain.ChangeEvent{Type: eventType, BranchID: branchID, ShiftID: shiftID, EntityID: entityID, At: s.now()}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Str("shift_id", shiftID).Msg("failed to publish change event")
	}
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
