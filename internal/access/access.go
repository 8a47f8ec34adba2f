// Package access provides the shared authorization primitives.
//
// Two global roles exist: the platform admin (singleton, explicit transfer
// lifecycle) and the keeper, the single trusted oracle identity allowed to
// push current-value and current-allocation updates. Per-entity ownership
// (portfolio owner, investment owner, manager lists) is stored on the
// entities; this package only answers the global role questions and supplies
// the identity-comparison helper the per-entity checks use.
//
// The two roles are deliberately distinct from per-portfolio ownership:
// being admin does not make a caller the owner of anyone's portfolio.
package access

import (
	"errors"
	"strings"
	"sync"

	"github.com/chainfolio/chainfolio/internal/validation"
)

var (
	ErrNotAdmin     = errors.New("caller is not the platform admin")
	ErrNotKeeper    = errors.New("caller is not the keeper")
	ErrEmptyAddress = errors.New("address must not be empty")
	ErrBadAddress   = errors.New("address is not a valid EVM address")
)

// Guard holds the globally configured role identities.
type Guard struct {
	mu     sync.RWMutex
	admin  string
	keeper string
}

// NewGuard creates a guard with normalized admin and keeper identities.
func NewGuard(admin, keeper string) (*Guard, error) {
	if admin == "" || keeper == "" {
		return nil, ErrEmptyAddress
	}
	if !validation.IsValidAddress(admin) || !validation.IsValidAddress(keeper) {
		return nil, ErrBadAddress
	}
	return &Guard{
		admin:  validation.NormalizeAddress(admin),
		keeper: validation.NormalizeAddress(keeper),
	}, nil
}

// Admin returns the current platform admin identity.
func (g *Guard) Admin() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.admin
}

// Keeper returns the current keeper identity.
func (g *Guard) Keeper() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.keeper
}

// RequireAdmin fails unless the caller is the platform admin.
func (g *Guard) RequireAdmin(caller string) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !Same(caller, g.admin) {
		return ErrNotAdmin
	}
	return nil
}

// RequireKeeper fails unless the caller is the keeper.
func (g *Guard) RequireKeeper(caller string) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !Same(caller, g.keeper) {
		return ErrNotKeeper
	}
	return nil
}

// TransferAdmin hands the admin role to a new identity. Admin-only;
// rejects empty or malformed targets so the role cannot be burned.
func (g *Guard) TransferAdmin(caller, newAdmin string) error {
	if err := g.RequireAdmin(caller); err != nil {
		return err
	}
	if newAdmin == "" {
		return ErrEmptyAddress
	}
	if !validation.IsValidAddress(newAdmin) {
		return ErrBadAddress
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.admin = validation.NormalizeAddress(newAdmin)
	return nil
}

// SetKeeper rotates the keeper identity. Admin-only.
func (g *Guard) SetKeeper(caller, keeper string) error {
	if err := g.RequireAdmin(caller); err != nil {
		return err
	}
	if keeper == "" {
		return ErrEmptyAddress
	}
	if !validation.IsValidAddress(keeper) {
		return ErrBadAddress
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.keeper = validation.NormalizeAddress(keeper)
	return nil
}

// Same compares two identities case-insensitively.
func Same(a, b string) bool {
	return a != "" && strings.EqualFold(a, b)
}
