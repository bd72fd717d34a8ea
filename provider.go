package authcore

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/techbridge/authcore/permission"
)

// ErrUserNotFound is returned by user providers for unknown identifiers
// or ids. The authority folds it into [ErrInvalidCredentials] before it
// reaches a client.
var ErrUserNotFound = errors.New("user not found")

// UserRecord is the stored account shape the local authority works with.
type UserRecord struct {
	ID           string
	Identifier   string
	PasswordHash string
	Role         permission.Role
	// TOTPSecret is the enrolled second-factor secret; empty means no
	// MFA enrollment.
	TOTPSecret []byte
}

// MFAEnrolled reports whether the account has a second factor.
func (u *UserRecord) MFAEnrolled() bool {
	return u != nil && len(u.TOTPSecret) > 0
}

// UserProvider resolves accounts for the local authority. Deployments
// back this with their user store; [MemoryUserProvider] serves tests and
// the demo server.
type UserProvider interface {
	FindByIdentifier(ctx context.Context, identifier string) (*UserRecord, error)
	FindByID(ctx context.Context, id string) (*UserRecord, error)
}

// MemoryUserProvider is an in-process UserProvider. Safe for concurrent
// use.
type MemoryUserProvider struct {
	mu     sync.RWMutex
	byID   map[string]*UserRecord
	byName map[string]*UserRecord
}

// NewMemoryUserProvider returns an empty provider.
func NewMemoryUserProvider() *MemoryUserProvider {
	return &MemoryUserProvider{
		byID:   make(map[string]*UserRecord),
		byName: make(map[string]*UserRecord),
	}
}

// Add registers or replaces an account. Identifiers are matched
// case-insensitively.
func (p *MemoryUserProvider) Add(record UserRecord) error {
	if record.ID == "" || record.Identifier == "" {
		return errors.New("user record requires id and identifier")
	}
	if !record.Role.Valid() {
		return errors.New("user record has unknown role")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	stored := record
	p.byID[record.ID] = &stored
	p.byName[strings.ToLower(record.Identifier)] = &stored
	return nil
}

// FindByIdentifier implements [UserProvider].
func (p *MemoryUserProvider) FindByIdentifier(_ context.Context, identifier string) (*UserRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	record, ok := p.byName[strings.ToLower(strings.TrimSpace(identifier))]
	if !ok {
		return nil, ErrUserNotFound
	}
	copied := *record
	return &copied, nil
}

// FindByID implements [UserProvider].
func (p *MemoryUserProvider) FindByID(_ context.Context, id string) (*UserRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	record, ok := p.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	copied := *record
	return &copied, nil
}
