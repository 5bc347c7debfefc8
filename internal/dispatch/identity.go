package dispatch

import (
	"context"
	"sync"

	"github.com/fieldworks/dispatchboard/internal/remote"
)

// FallbackUserName is attributed to audit notes when no identity can be
// resolved.
const FallbackUserName = "Dispatch Board"

// IdentityResolver names the current user for audit-note attribution.
type IdentityResolver interface {
	DisplayName(ctx context.Context) string
}

// StaticIdentity returns a fixed name. Used in tests and headless runs.
type StaticIdentity struct {
	Name string
}

func (s StaticIdentity) DisplayName(ctx context.Context) string {
	if s.Name == "" {
		return FallbackUserName
	}
	return s.Name
}

// DirectoryIdentity resolves the session user through the remote user
// directory, caching the first successful lookup. First+last name wins,
// then email, then the literal fallback.
type DirectoryIdentity struct {
	Users  remote.UserDirectory
	UserID string

	mu     sync.Mutex
	cached string
}

func (d *DirectoryIdentity) DisplayName(ctx context.Context) string {
	d.mu.Lock()
	if d.cached != "" {
		name := d.cached
		d.mu.Unlock()
		return name
	}
	d.mu.Unlock()

	u, err := d.Users.GetByID(ctx, d.UserID)
	if err != nil {
		return FallbackUserName
	}
	name := FallbackUserName
	switch {
	case u.FirstName != "" || u.LastName != "":
		name = joinName(u.FirstName, u.LastName)
	case u.Email != "":
		name = u.Email
	}

	d.mu.Lock()
	d.cached = name
	d.mu.Unlock()
	return name
}

func joinName(first, last string) string {
	if first == "" {
		return last
	}
	if last == "" {
		return first
	}
	return first + " " + last
}
