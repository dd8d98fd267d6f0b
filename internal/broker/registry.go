package broker

import "context"

// RegistryTx is the set of registry operations available both directly and
// inside a transaction scope. Lookups return "" or nil when nothing matches.
type RegistryTx interface {
	// UpsertFile inserts rec or, on a (workspace, fingerprint) collision,
	// overwrites every field except the row id and creation time.
	UpsertFile(ctx context.Context, rec *MediaRecord) error

	// UpsertFingerprintTiny pre-registers a placeholder with an empty object
	// key. On collision an existing non-empty object key is kept while the
	// tiny fingerprint, name and path are refreshed. rec.ObjectKey is ignored.
	UpsertFingerprintTiny(ctx context.Context, rec *MediaRecord) error

	GetObjectKeyByFingerprint(ctx context.Context, workspaceID, fingerprint string) (string, error)
	GetObjectKeyByTiny(ctx context.Context, workspaceID, tinyFingerprint string) (string, error)
	GetTinyByFingerprint(ctx context.Context, workspaceID, fingerprint string) (string, error)

	DeleteByFingerprint(ctx context.Context, workspaceID, fingerprint string) error
	DeleteByTiny(ctx context.Context, workspaceID, tinyFingerprint string) error

	// FindRecord returns the full row for a fingerprint.
	FindRecord(ctx context.Context, workspaceID, fingerprint string) (*MediaRecord, error)
}

// Registry is the durable fingerprint to object key mapping.
type Registry interface {
	RegistryTx

	// ListRecords returns up to limit rows of a workspace, newest first.
	ListRecords(ctx context.Context, workspaceID string, limit int) ([]*MediaRecord, error)

	// WithTx runs fn in a single write transaction. The transaction commits
	// when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(tx RegistryTx) error) error

	Close() error
}

// ObjectStore verifies that objects exist. A missing object is reported as
// (false, nil); errors mean the answer is unknown.
type ObjectStore interface {
	HeadObject(ctx context.Context, objectKey string) (bool, error)
}

// CredentialIssuer exchanges the service's keys for a short-lived grant
// scoped to a workspace.
type CredentialIssuer interface {
	Issue(ctx context.Context, workspaceID string) (*Credentials, error)
}
