package referral

import (
	"errors"
	"sync"

	"github.com/xtrntr/tokenmarket/internal/models"
)

var (
	// ErrSelfReferral is returned when a user tries to refer themselves
	ErrSelfReferral = errors.New("can't be self-referrer")
	// ErrAlreadyRegistered is returned when a user already has a referrer
	ErrAlreadyRegistered = errors.New("already has a referrer")
	// ErrEmptyAddress is returned when user or referrer is missing
	ErrEmptyAddress = errors.New("user and referrer are required")
)

// Registry maps every user to at most one referrer. Edges are never updated
// nor deleted.
type Registry struct {
	mu        sync.RWMutex
	referrers map[models.Address]models.Address
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{referrers: make(map[models.Address]models.Address)}
}

// Register records referrer as the upline of user. The referrer doesn't need
// to be registered itself.
func (r *Registry) Register(user, referrer models.Address) error {
	if user.IsZero() || referrer.IsZero() {
		return ErrEmptyAddress
	}
	if user == referrer {
		return ErrSelfReferral
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.referrers[user]; ok {
		return ErrAlreadyRegistered
	}
	r.referrers[user] = referrer
	return nil
}

// Referrer returns the direct referrer of user, or NoAddress.
func (r *Registry) Referrer(user models.Address) models.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.referrers[user]
}

// HasReferrer reports whether user registered a referrer.
func (r *Registry) HasReferrer(user models.Address) bool {
	return !r.Referrer(user).IsZero()
}

// Upline resolves the two-level referrer chain of user. Absent levels are
// NoAddress.
func (r *Registry) Upline(user models.Address) models.Upline {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var upline models.Upline
	upline.Level1 = r.referrers[user]
	if !upline.Level1.IsZero() {
		upline.Level2 = r.referrers[upline.Level1]
	}
	return upline
}

// Len returns the number of registered edges.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.referrers)
}
