// Package identity resolves terminal badge codes to employee records,
// auto-provisioning employees the datastore has never seen.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/smartstock-pro/zkbridge-go/internal/domain/branch"
	"github.com/smartstock-pro/zkbridge-go/internal/domain/employee"
)

// ErrUnresolvable is returned when a badge code cannot be resolved even
// after a reload and a provisioning attempt.
var ErrUnresolvable = errors.New("badge code could not be resolved")

// Resolver is the identity cache: badge code → employee projection.
// A miss triggers a full reload rather than a point lookup; entries are
// never invalidated individually.
type Resolver struct {
	employeeRepo employee.EmployeeRepository
	branchRepo   branch.BranchRepository

	mu    sync.RWMutex
	cache map[string]employee.Identity

	provisionMu sync.Mutex // one auto-provision at a time per process
}

func NewResolver(employeeRepo employee.EmployeeRepository, branchRepo branch.BranchRepository) *Resolver {
	return &Resolver{
		employeeRepo: employeeRepo,
		branchRepo:   branchRepo,
		cache:        make(map[string]employee.Identity),
	}
}

// Resolve maps a badge code to an employee. On a cache miss the whole cache
// is reloaded; if the badge is still unknown a new employee row is
// provisioned with a placeholder name. A unique violation during
// provisioning means another worker won the race; the reload that follows
// picks up their row, so every concurrent caller converges on one employee
// key.
func (r *Resolver) Resolve(ctx context.Context, badgeCode string) (employee.Identity, error) {
	if id, ok := r.lookup(badgeCode); ok {
		return id, nil
	}

	if err := r.Refresh(ctx); err != nil {
		return employee.Identity{}, fmt.Errorf("refresh identity cache: %w", err)
	}
	if id, ok := r.lookup(badgeCode); ok {
		return id, nil
	}

	if err := r.provision(ctx, badgeCode); err != nil {
		return employee.Identity{}, err
	}

	if err := r.Refresh(ctx); err != nil {
		return employee.Identity{}, fmt.Errorf("refresh identity cache after provision: %w", err)
	}
	if id, ok := r.lookup(badgeCode); ok {
		return id, nil
	}

	return employee.Identity{}, fmt.Errorf("%w: %s", ErrUnresolvable, badgeCode)
}

// Refresh reloads the cache from the employees table.
func (r *Resolver) Refresh(ctx context.Context) error {
	identities, err := r.employeeRepo.ListIdentities(ctx)
	if err != nil {
		return err
	}

	fresh := make(map[string]employee.Identity, len(identities))
	for _, id := range identities {
		fresh[id.BadgeCode] = id
	}

	r.mu.Lock()
	r.cache = fresh
	r.mu.Unlock()

	slog.Info("Identity cache refreshed", "employees", len(fresh))
	return nil
}

// Size returns the number of cached identities, for /status.
func (r *Resolver) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

func (r *Resolver) lookup(badgeCode string) (employee.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.cache[badgeCode]
	return id, ok
}

func (r *Resolver) provision(ctx context.Context, badgeCode string) error {
	r.provisionMu.Lock()
	defer r.provisionMu.Unlock()

	branchID, err := r.defaultBranchID(ctx)
	if err != nil {
		return fmt.Errorf("resolve default branch: %w", err)
	}

	avatar := "https://api.dicebear.com/7.x/avataaars/svg?seed=" + badgeCode
	newEmp := employee.Employee{
		ID:         uuid.NewString(),
		Name:       "Staff " + badgeCode,
		BadgeCode:  badgeCode,
		Position:   "STAFF",
		Status:     employee.StatusActive,
		JoinedDate: time.Now(),
		BranchID:   branchID,
		AvatarURL:  &avatar,
	}

	if _, err := r.employeeRepo.Create(ctx, newEmp); err != nil {
		if errors.Is(err, employee.ErrDuplicateBadgeCode) {
			// Someone else just created this badge; the caller's reload
			// will resolve it.
			slog.Warn("Badge already provisioned elsewhere, reloading", "badge_code", badgeCode)
			return nil
		}
		return fmt.Errorf("auto-provision employee %s: %w", badgeCode, err)
	}

	slog.Info("Auto-registered new employee", "badge_code", badgeCode)
	return nil
}

// defaultBranchID returns the first available organizational unit, seeding
// one when the table is empty.
func (r *Resolver) defaultBranchID(ctx context.Context) (*string, error) {
	first, err := r.branchRepo.First(ctx)
	if err != nil {
		return nil, err
	}
	if first != nil {
		return &first.ID, nil
	}

	created, err := r.branchRepo.Create(ctx, branch.Branch{
		ID:       "x1",
		Name:     "Main HQ",
		Location: "Default",
	})
	if err != nil {
		return nil, err
	}
	return &created.ID, nil
}
