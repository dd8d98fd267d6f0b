package testutil

import (
	"context"
	"sync"
	"time"

	"media-broker/internal/broker"
)

// FakeIssuer hands out fixed credentials and records the workspaces it
// was asked for.
type FakeIssuer struct {
	mu         sync.Mutex
	cred       broker.Credentials
	err        error
	workspaces []string
}

// NewFakeIssuer returns an issuer whose grants expire an hour after now.
func NewFakeIssuer(now time.Time) *FakeIssuer {
	return &FakeIssuer{cred: broker.Credentials{
		AccessKeyID:     "AKTEST",
		SecretAccessKey: "secret-test",
		SessionToken:    "token-test",
		Expiration:      now.Add(time.Hour),
		ExpireSeconds:   3600,
	}}
}

// SetExpireSeconds changes the remaining lifetime of future grants.
func (f *FakeIssuer) SetExpireSeconds(secs int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cred.ExpireSeconds = secs
}

// FailWith makes every Issue return err. Pass nil to recover.
func (f *FakeIssuer) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Workspaces returns the workspace ids Issue was called with.
func (f *FakeIssuer) Workspaces() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.workspaces...)
}

func (f *FakeIssuer) Issue(_ context.Context, workspaceID string) (*broker.Credentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.workspaces = append(f.workspaces, workspaceID)
	if f.err != nil {
		return nil, f.err
	}
	cred := f.cred
	return &cred, nil
}

var _ broker.CredentialIssuer = (*FakeIssuer)(nil)
