package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"Terminal/internal/model"
)

// Txn is one read-modify-write span over both state maps.
// Mutations go through the setters so only touched maps are written back.
type Txn struct {
	Policies  model.PolicyStates
	Cooldowns model.CooldownRecords

	policiesDirty  bool
	cooldownsDirty bool
}

// SetPolicy records a learned state. Updates never go backwards.
func (t *Txn) SetPolicy(st model.EntityPolicyState) error {
	if prev, ok := t.Policies[st.ID]; ok && st.Updates < prev.Updates {
		return fmt.Errorf("policy state %s: updates would decrease from %d to %d", st.ID, prev.Updates, st.Updates)
	}
	t.Policies[st.ID] = st
	t.policiesDirty = true
	return nil
}

// SetCooldown records a cooldown.
func (t *Txn) SetCooldown(rec model.CooldownRecord) {
	t.Cooldowns[rec.ID] = rec
	t.cooldownsDirty = true
}

// Store serializes access to the repository so concurrent suggest, apply and
// learn calls never interleave their load and save.
type Store struct {
	mu   sync.Mutex
	repo Repository
	now  func() time.Time
}

// NewStore wraps repo.
func NewStore(repo Repository) *Store {
	return &Store{repo: repo, now: time.Now}
}

// Run loads both maps, calls fn, and saves whichever maps fn changed.
// If fn returns an error nothing is written.
func (s *Store) Run(ctx context.Context, fn func(*Txn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	policies, err := s.repo.LoadPolicies(ctx)
	if err != nil {
		return err
	}
	cooldowns, err := s.repo.LoadCooldowns(ctx)
	if err != nil {
		return err
	}
	txn := &Txn{Policies: policies.Clone(), Cooldowns: cooldowns.Clone()}
	if err := fn(txn); err != nil {
		return err
	}
	if txn.policiesDirty {
		if err := s.repo.SavePolicies(ctx, txn.Policies); err != nil {
			return err
		}
	}
	if txn.cooldownsDirty {
		if err := s.repo.SaveCooldowns(ctx, txn.Cooldowns); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot returns copies of both maps.
func (s *Store) Snapshot(ctx context.Context) (model.PolicyStates, model.CooldownRecords, error) {
	var (
		p model.PolicyStates
		c model.CooldownRecords
	)
	err := s.Run(ctx, func(t *Txn) error {
		p, c = t.Policies, t.Cooldowns
		return nil
	})
	return p, c, err
}

// PruneCooldowns drops records whose window closed more than keep ago.
// It returns how many were removed.
func (s *Store) PruneCooldowns(ctx context.Context, keep time.Duration) (int, error) {
	removed := 0
	cutoff := s.now().Add(-keep)
	err := s.Run(ctx, func(t *Txn) error {
		for id, rec := range t.Cooldowns {
			if rec.NextEligibleTS.Before(cutoff) && rec.LastChangeTS.Before(cutoff) {
				delete(t.Cooldowns, id)
				removed++
			}
		}
		if removed > 0 {
			t.cooldownsDirty = true
		}
		return nil
	})
	return removed, err
}
