// ABOUTME: Core registry service: registration, gated reputation mutation, queries
// ABOUTME: Owns the authorization check guarding apply-reputation

package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/intellex/agent-registry/internal/store"
)

// ErrUnauthorized is returned when a caller other than the configured
// reputation service attempts to apply a reputation snapshot. The check runs
// before any store access; rejected calls never mutate state.
var ErrUnauthorized = errors.New("only the reputation service can update reputation")

// ErrEmptyIdentity is returned when a mutating call carries no caller identity.
var ErrEmptyIdentity = errors.New("empty caller identity")

// ReputationNotifier initializes an agent's record on the reputation service.
// Called fire-and-forget after a successful registration.
type ReputationNotifier interface {
	InitializeAgent(ctx context.Context, identity string) error
}

// BalanceChecker reports the token balance held by an identity.
type BalanceChecker interface {
	BalanceOf(ctx context.Context, identity string) (uint64, error)
}

// Options configures a Service.
type Options struct {
	// ServiceID is the identity of the reputation service; the only caller
	// allowed to apply reputation snapshots.
	ServiceID string

	// MinBalance is the advisory stake minimum logged by the registration
	// balance probe. The probe result never gates registration.
	MinBalance uint64

	// Notifier and Balances are optional; nil disables the respective
	// outbound call.
	Notifier ReputationNotifier
	Balances BalanceChecker

	Logger *slog.Logger

	// Now returns the registry's logical timestamp. Defaults to wall-clock
	// nanoseconds.
	Now func() uint64
}

// Service implements the registry operations over a Store.
type Service struct {
	store      store.Store
	serviceID  string
	minBalance uint64
	notifier   ReputationNotifier
	balances   BalanceChecker
	logger     *slog.Logger
	now        func() uint64
}

// NewService creates a registry service.
func NewService(st store.Store, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = func() uint64 { return uint64(time.Now().UnixNano()) }
	}
	return &Service{
		store:      st,
		serviceID:  opts.ServiceID,
		minBalance: opts.MinBalance,
		notifier:   opts.Notifier,
		balances:   opts.Balances,
		logger:     logger.With("component", "registry"),
		now:        now,
	}
}

// ServiceID returns the configured reputation service identity.
func (s *Service) ServiceID() string {
	return s.serviceID
}

// Register creates an agent record for the caller. The record and its skill
// index rows are written as one atomic unit; a second registration for the
// same identity fails with store.ErrAlreadyRegistered and changes nothing.
func (s *Service) Register(ctx context.Context, caller string, metadata store.AgentMetadata) error {
	if caller == "" {
		return ErrEmptyIdentity
	}

	s.probeBalance(ctx, caller)

	now := s.now()
	agent := &store.Agent{
		Owner:        caller,
		Metadata:     metadata,
		RegisteredAt: now,
		Reputation: store.Snapshot{
			Reputation:        0,
			TaskHistory:       []store.TaskResult{},
			ReputationHistory: []store.ReputationPoint{{Timestamp: now, Reputation: 0}},
		},
	}

	if err := s.store.CreateAgent(ctx, agent); err != nil {
		return err
	}

	s.logger.Info("agent registered",
		"owner", caller, "name", metadata.Name, "skills", len(metadata.Skills))

	s.notifyReputationService(ctx, caller)
	return nil
}

// probeBalance checks the caller's stake against the advisory minimum.
// Result ignored: a failed probe or low balance is logged, never enforced.
func (s *Service) probeBalance(ctx context.Context, caller string) {
	if s.balances == nil {
		return
	}
	balance, err := s.balances.BalanceOf(ctx, caller)
	if err != nil {
		s.logger.Warn("balance probe failed", "owner", caller, "error", err)
		return
	}
	if balance < s.minBalance {
		s.logger.Warn("agent registered below advisory stake minimum",
			"owner", caller, "balance", balance, "min_balance", s.minBalance)
		return
	}
	s.logger.Debug("balance probe ok", "owner", caller, "balance", balance)
}

// notifyReputationService fires the initialize call without blocking the
// registration response. Failures are logged only.
func (s *Service) notifyReputationService(ctx context.Context, caller string) {
	if s.notifier == nil {
		return
	}
	// The registration response must not wait on the reputation service,
	// and the call must survive the request context ending.
	bg := context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(bg, 30*time.Second)
		defer cancel()
		if err := s.notifier.InitializeAgent(ctx, caller); err != nil {
			s.logger.Warn("reputation initialize failed", "owner", caller, "error", err)
		}
	}()
}

// ApplyReputation replaces an agent's reputation snapshot. Only the
// configured reputation service identity may call this; anyone else is
// rejected before the store is touched. seq carries the sync sequence for
// orchestrated applies, or store.DirectPush for direct pushes.
func (s *Service) ApplyReputation(ctx context.Context, caller, owner string, snap *store.Snapshot, seq int64) error {
	if caller == "" {
		return ErrEmptyIdentity
	}
	if caller != s.serviceID {
		s.logger.Warn("unauthorized reputation update rejected", "caller", caller, "owner", owner)
		return ErrUnauthorized
	}

	if err := s.store.ApplyReputation(ctx, owner, snap, seq); err != nil {
		return err
	}

	s.logger.Info("reputation updated", "owner", owner, "reputation", snap.Reputation, "seq", seq)
	return nil
}

// Get returns the full agent record.
func (s *Service) Get(ctx context.Context, owner string) (*store.Agent, error) {
	return s.store.GetAgent(ctx, owner)
}

// AgentsBySkill returns the identities holding a skill in index insertion order.
func (s *Service) AgentsBySkill(ctx context.Context, skill string) ([]string, error) {
	return s.store.AgentsBySkill(ctx, skill)
}

// TotalAgents returns the number of registered agents.
func (s *Service) TotalAgents(ctx context.Context) (uint64, error) {
	return s.store.CountAgents(ctx)
}

// SkillsOf returns the declared skills of an agent.
func (s *Service) SkillsOf(ctx context.Context, owner string) ([]string, error) {
	return s.store.AgentSkills(ctx, owner)
}

// ReputationOf returns the agent's current reputation score.
func (s *Service) ReputationOf(ctx context.Context, owner string) (uint64, error) {
	agent, err := s.store.GetAgent(ctx, owner)
	if err != nil {
		return 0, err
	}
	return agent.Reputation.Reputation, nil
}

// TaskHistory returns a chronological page of the agent's task history.
func (s *Service) TaskHistory(ctx context.Context, owner string, offset, limit uint64) ([]store.TaskResult, error) {
	return s.store.TaskHistory(ctx, owner, offset, limit)
}

// ReputationHistory returns the agent's full reputation history.
func (s *Service) ReputationHistory(ctx context.Context, owner string) ([]store.ReputationPoint, error) {
	return s.store.ReputationHistory(ctx, owner)
}

// VerifyRegistered returns an error if the identity has no agent record.
func (s *Service) VerifyRegistered(ctx context.Context, owner string) error {
	if _, err := s.store.GetAgent(ctx, owner); err != nil {
		return fmt.Errorf("looking up agent %q: %w", owner, err)
	}
	return nil
}
