// Package broker implements the upload lifecycle: dedup checks against the
// registry, existence verification against the object store, credential
// issuance and upload finalization.
package broker

import (
	"context"
	"fmt"
	"strings"

	"media-broker/internal/metrics"
)

// StorageInfo describes the bucket devices upload to. It is echoed back in
// every credential grant.
type StorageInfo struct {
	Provider string
	Endpoint string
	Bucket   string
	Region   string
}

// Service coordinates the registry, the object store and the credential
// issuer. It holds no per-fingerprint state of its own.
type Service struct {
	registry Registry
	store    ObjectStore
	issuer   CredentialIssuer
	storage  StorageInfo
	logger   Logger
	clock    Clock
}

// NewService creates a Service with the provided dependencies.
func NewService(registry Registry, store ObjectStore, issuer CredentialIssuer, storage StorageInfo, logger Logger, clock Clock) *Service {
	if logger == nil {
		logger = NewNopLogger()
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &Service{
		registry: registry,
		store:    store,
		issuer:   issuer,
		storage:  storage,
		logger:   logger,
		clock:    clock,
	}
}

// FastUpload reports whether content with req.Fingerprint is already
// stored. A tiny fingerprint, when given, is pre-registered first. A
// stored key that the object store confirms absent is evicted and reported
// as a miss. Object store failures abort without touching the registry.
func (s *Service) FastUpload(ctx context.Context, workspaceID string, req FastUploadRequest) (*FastUploadResult, error) {
	if err := requireWorkspace(workspaceID); err != nil {
		return nil, err
	}
	if req.Fingerprint == "" || req.Name == "" {
		return nil, &ValidationError{Field: "fingerprint", Message: "missing fingerprint/name"}
	}

	if req.TinyFingerprint != "" {
		err := s.registry.UpsertFingerprintTiny(ctx, &MediaRecord{
			WorkspaceID:     workspaceID,
			Fingerprint:     req.Fingerprint,
			TinyFingerprint: req.TinyFingerprint,
			FileName:        req.Name,
			FilePath:        req.Path,
		})
		if err != nil {
			return nil, fmt.Errorf("pre-registering tiny fingerprint: %w", err)
		}
	}

	s.logger.Info("fast-upload", "workspace", workspaceID, "name", req.Name, "fingerprint", req.Fingerprint)

	key, err := s.registry.GetObjectKeyByFingerprint(ctx, workspaceID, req.Fingerprint)
	if err != nil {
		return nil, fmt.Errorf("looking up fingerprint: %w", err)
	}
	if key == "" {
		metrics.RecordDedup("fast_upload", "miss")
		return &FastUploadResult{}, nil
	}

	exists, err := s.store.HeadObject(ctx, key)
	if err != nil {
		s.logger.Error("fast-upload head check failed", "key", key, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrObjectCheckFailed, err)
	}
	if exists {
		metrics.RecordDedup("fast_upload", "hit")
		return &FastUploadResult{Exists: true, ObjectKey: key}, nil
	}

	s.logger.Warn("evicting stale record", "workspace", workspaceID, "fingerprint", req.Fingerprint, "key", key)
	if err := s.registry.DeleteByFingerprint(ctx, workspaceID, req.Fingerprint); err != nil {
		return nil, fmt.Errorf("deleting stale record: %w", err)
	}
	metrics.RecordDedup("fast_upload", "stale")
	return &FastUploadResult{}, nil
}

// CheckTinyFingerprints returns the subset of tinyFingerprints whose
// registered object is confirmed present, in request order. Mappings whose
// object is confirmed absent are deleted.
func (s *Service) CheckTinyFingerprints(ctx context.Context, workspaceID string, tinyFingerprints []string) ([]string, error) {
	if err := requireWorkspace(workspaceID); err != nil {
		return nil, err
	}

	found := make([]string, 0, len(tinyFingerprints))
	seen := make(map[string]bool, len(tinyFingerprints))
	for _, tiny := range tinyFingerprints {
		if tiny == "" || seen[tiny] {
			continue
		}
		seen[tiny] = true

		key, err := s.registry.GetObjectKeyByTiny(ctx, workspaceID, tiny)
		if err != nil {
			return nil, fmt.Errorf("looking up tiny fingerprint %s: %w", tiny, err)
		}
		if key == "" {
			metrics.RecordDedup("tiny", "miss")
			continue
		}

		exists, err := s.store.HeadObject(ctx, key)
		if err != nil {
			s.logger.Error("tiny-fingerprints head check failed", "key", key, "error", err)
			return nil, fmt.Errorf("%w: %w", ErrObjectCheckFailed, err)
		}
		if exists {
			metrics.RecordDedup("tiny", "hit")
			found = append(found, tiny)
			continue
		}

		s.logger.Warn("evicting stale tiny mapping", "workspace", workspaceID, "tiny", tiny, "key", key)
		if err := s.registry.DeleteByTiny(ctx, workspaceID, tiny); err != nil {
			return nil, fmt.Errorf("deleting stale tiny mapping: %w", err)
		}
		metrics.RecordDedup("tiny", "stale")
	}

	s.logger.Info("tiny-fingerprints", "workspace", workspaceID, "requested", len(tinyFingerprints), "found", len(found))
	return found, nil
}

// IssueCredentials obtains a short-lived grant for workspaceID. The object
// key prefix is always the workspace itself.
func (s *Service) IssueCredentials(ctx context.Context, workspaceID string) (*Grant, error) {
	if err := requireWorkspace(workspaceID); err != nil {
		return nil, err
	}

	cred, err := s.issuer.Issue(ctx, workspaceID)
	if err != nil {
		s.logger.Error("sts exchange failed", "workspace", workspaceID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrCredentialIssue, err)
	}
	if cred.ExpireSeconds <= 0 {
		s.logger.Error("sts returned expired credentials", "workspace", workspaceID, "expiration", cred.Expiration)
		return nil, ErrCredentialExpired
	}

	s.logger.Info("sts issued", "workspace", workspaceID, "access_key_id", cred.AccessKeyID, "expire_seconds", cred.ExpireSeconds)
	return &Grant{
		Provider:        s.storage.Provider,
		Endpoint:        s.storage.Endpoint,
		Bucket:          s.storage.Bucket,
		Region:          s.storage.Region,
		ObjectKeyPrefix: workspaceID + "/",
		Credentials:     *cred,
	}, nil
}

// FinalizeUpload records a completed upload. The object must exist in the
// store; otherwise ErrObjectNotFound is returned and nothing is written.
// The tiny fingerprint, when omitted, is recovered from an earlier
// pre-registration in the same transaction as the final upsert. A callback
// without a fingerprint is verified but not recorded.
func (s *Service) FinalizeUpload(ctx context.Context, workspaceID string, cb UploadCallback) (string, error) {
	if err := requireWorkspace(workspaceID); err != nil {
		return "", err
	}
	if strings.TrimLeft(cb.ObjectKey, "/") == "" {
		return "", &ValidationError{Field: "object_key", Message: "missing object_key"}
	}

	exists, err := s.store.HeadObject(ctx, cb.ObjectKey)
	if err != nil {
		s.logger.Error("upload-callback head check failed", "key", cb.ObjectKey, "error", err)
		return "", fmt.Errorf("%w: %w", ErrObjectCheckFailed, err)
	}
	if !exists {
		s.logger.Warn("upload-callback object missing", "workspace", workspaceID, "key", cb.ObjectKey)
		return "", ErrObjectNotFound
	}

	if cb.Fingerprint == "" {
		s.logger.Info("upload-callback without fingerprint", "workspace", workspaceID, "key", cb.ObjectKey)
		return cb.ObjectKey, nil
	}

	tiny := cb.TinyFingerprint
	err = s.registry.WithTx(ctx, func(tx RegistryTx) error {
		if tiny == "" {
			recovered, err := tx.GetTinyByFingerprint(ctx, workspaceID, cb.Fingerprint)
			if err != nil {
				return fmt.Errorf("recovering tiny fingerprint: %w", err)
			}
			tiny = recovered
		}
		return tx.UpsertFile(ctx, &MediaRecord{
			WorkspaceID:     workspaceID,
			Fingerprint:     cb.Fingerprint,
			TinyFingerprint: tiny,
			ObjectKey:       cb.ObjectKey,
			FileName:        cb.Name,
			FilePath:        cb.Path,
		})
	})
	if err != nil {
		return "", fmt.Errorf("finalizing upload: %w", err)
	}

	s.logger.Info("upload-callback", "workspace", workspaceID, "name", cb.Name, "key", cb.ObjectKey)
	s.logger.Debug("upload-callback fingerprints", "fingerprint", cb.Fingerprint, "tiny", tiny)
	return cb.ObjectKey, nil
}

// Status reports the lifecycle state of a fingerprint. A record with an
// object key is checked against the object store; nothing is deleted.
func (s *Service) Status(ctx context.Context, workspaceID, fingerprint string) (*StatusReport, error) {
	rec, err := s.registry.FindRecord(ctx, workspaceID, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("finding record: %w", err)
	}
	if rec == nil || rec.ObjectKey == "" {
		return &StatusReport{State: RecordState(rec, false), Record: rec}, nil
	}

	exists, err := s.store.HeadObject(ctx, rec.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrObjectCheckFailed, err)
	}
	return &StatusReport{State: RecordState(rec, exists), Record: rec}, nil
}

// StorageInfo returns the bucket description served with grants.
func (s *Service) StorageInfo() StorageInfo {
	return s.storage
}

func requireWorkspace(workspaceID string) error {
	if strings.TrimSpace(workspaceID) == "" {
		return &ValidationError{Field: "workspace_id", Message: "missing workspace_id"}
	}
	return nil
}
