package app

import (
	"context"

	"media-broker/internal/broker"
	"media-broker/internal/sts"
)

// issuerAdapter exposes an *sts.Issuer as a broker.CredentialIssuer.
type issuerAdapter struct {
	issuer *sts.Issuer
}

func (a *issuerAdapter) Issue(ctx context.Context, workspaceID string) (*broker.Credentials, error) {
	cred, err := a.issuer.Issue(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	return &broker.Credentials{
		AccessKeyID:     cred.AccessKeyID,
		SecretAccessKey: cred.SecretAccessKey,
		SessionToken:    cred.SessionToken,
		Expiration:      cred.Expiration,
		ExpireSeconds:   cred.ExpireSeconds,
	}, nil
}

var _ broker.CredentialIssuer = (*issuerAdapter)(nil)
