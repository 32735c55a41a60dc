package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ringworld/server/internal/clock"
	"github.com/ringworld/server/internal/ringmap"
)

// ActorID identifies the player or process holding a lease.
type ActorID string

// Lock is an exclusive-modification lease over a section. Holders must
// renew before ExpiresAt or the lease lapses; an expired lock is treated
// as absent by all checks, whether or not the sweeper has removed it yet.
type Lock struct {
	ID         string
	Section    Section
	Holder     ActorID
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

var (
	ErrLockConflict = errors.New("section overlaps an active lock")
	ErrLockNotFound = errors.New("lock not found or expired")
	ErrNotHolder    = errors.New("lock held by a different actor")
)

// ConflictError carries the lock that blocked an acquisition.
type ConflictError struct {
	Existing Lock
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("section overlaps lock %s held by %s until %s",
		e.Existing.ID, e.Existing.Holder, e.Existing.ExpiresAt.Format(time.RFC3339))
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrLockConflict
}

// Manager tracks active leases. Locks are bucketed per floor so claims on
// different floors never contend on the same mutex.
type Manager struct {
	clk    clock.Clock
	floors [ringmap.FloorMax - ringmap.FloorMin + 1]floorLocks
	byID   sync.Map // lock ID -> floor
}

type floorLocks struct {
	mu    sync.Mutex
	locks map[string]*Lock
}

// NewManager creates a lock manager using the given time source.
func NewManager(clk clock.Clock) *Manager {
	m := &Manager{clk: clk}
	for i := range m.floors {
		m.floors[i].locks = make(map[string]*Lock)
	}
	return m
}

func (m *Manager) bucket(floor int) *floorLocks {
	return &m.floors[floor-ringmap.FloorMin]
}

// Acquire grants a lease on a section unless it overlaps an active lock.
// On conflict the returned error is a *ConflictError matching
// ErrLockConflict and carrying the blocking lock.
func (m *Manager) Acquire(section Section, actor ActorID, ttl time.Duration) (*Lock, error) {
	if actor == "" {
		return nil, fmt.Errorf("empty actor id")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("invalid lock ttl: %v", ttl)
	}
	if err := ringmap.ValidateFloor(section.Floor); err != nil {
		return nil, err
	}
	if len(section.Intervals) == 0 {
		return nil, fmt.Errorf("section covers no chunks")
	}

	now := m.clk.Now()
	fl := m.bucket(section.Floor)
	fl.mu.Lock()
	defer fl.mu.Unlock()

	for _, existing := range fl.locks {
		if !existing.ExpiresAt.After(now) {
			continue
		}
		if section.Overlaps(existing.Section) {
			return nil, &ConflictError{Existing: *existing}
		}
	}

	lk := &Lock{
		ID:         newLockID(),
		Section:    section,
		Holder:     actor,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	fl.locks[lk.ID] = lk
	m.byID.Store(lk.ID, section.Floor)

	granted := *lk
	return &granted, nil
}

// Renew extends an active lease. The lock must still be held by actor and
// must not have expired.
func (m *Manager) Renew(lockID string, actor ActorID, ttl time.Duration) (*Lock, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("invalid lock ttl: %v", ttl)
	}

	fl, lk, err := m.lookup(lockID)
	if err != nil {
		return nil, err
	}
	defer fl.mu.Unlock()

	if lk.Holder != actor {
		return nil, ErrNotHolder
	}
	now := m.clk.Now()
	if !lk.ExpiresAt.After(now) {
		delete(fl.locks, lockID)
		m.byID.Delete(lockID)
		return nil, ErrLockNotFound
	}

	lk.ExpiresAt = now.Add(ttl)
	renewed := *lk
	return &renewed, nil
}

// Release drops a lease. Releasing an already-expired lock is not an
// error; releasing someone else's lock is.
func (m *Manager) Release(lockID string, actor ActorID) error {
	fl, lk, err := m.lookup(lockID)
	if err != nil {
		return err
	}
	defer fl.mu.Unlock()

	if lk.Holder != actor {
		return ErrNotHolder
	}
	delete(fl.locks, lockID)
	m.byID.Delete(lockID)
	return nil
}

// Get returns a copy of an active lock by id, or ErrLockNotFound if the
// lock is absent or expired.
func (m *Manager) Get(lockID string) (*Lock, error) {
	fl, lk, err := m.lookup(lockID)
	if err != nil {
		return nil, err
	}
	defer fl.mu.Unlock()

	if !lk.ExpiresAt.After(m.clk.Now()) {
		return nil, ErrLockNotFound
	}
	found := *lk
	return &found, nil
}

// HolderOf returns the active lock covering a chunk, or nil.
func (m *Manager) HolderOf(id ringmap.ChunkID) *Lock {
	now := m.clk.Now()
	fl := m.bucket(id.Floor)
	fl.mu.Lock()
	defer fl.mu.Unlock()

	for _, lk := range fl.locks {
		if lk.ExpiresAt.After(now) && lk.Section.Contains(id) {
			found := *lk
			return &found
		}
	}
	return nil
}

// lookup finds a lock and returns with its floor bucket still locked.
func (m *Manager) lookup(lockID string) (*floorLocks, *Lock, error) {
	floorVal, ok := m.byID.Load(lockID)
	if !ok {
		return nil, nil, ErrLockNotFound
	}
	fl := m.bucket(floorVal.(int))
	fl.mu.Lock()
	lk, ok := fl.locks[lockID]
	if !ok {
		fl.mu.Unlock()
		return nil, nil, ErrLockNotFound
	}
	return fl, lk, nil
}

// SweepExpired removes lapsed leases and returns how many were dropped.
// Expired locks are already invisible to Acquire and Renew; the sweep only
// keeps the table from growing without bound.
func (m *Manager) SweepExpired() int {
	now := m.clk.Now()
	removed := 0
	for i := range m.floors {
		fl := &m.floors[i]
		fl.mu.Lock()
		for id, lk := range fl.locks {
			if !lk.ExpiresAt.After(now) {
				delete(fl.locks, id)
				m.byID.Delete(id)
				removed++
			}
		}
		fl.mu.Unlock()
	}
	return removed
}

// RunSweeper periodically sweeps expired leases until the context ends.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.SweepExpired(); n > 0 {
				log.Printf("[LockManager] Swept %d expired locks", n)
			}
		}
	}
}

func newLockID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("failed to generate lock id: %v", err))
	}
	return hex.EncodeToString(buf)
}
