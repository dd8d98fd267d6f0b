package broker

import "time"

// MediaRecord is one registry row, unique per (WorkspaceID, Fingerprint).
// An empty ObjectKey marks a pending pre-registration.
type MediaRecord struct {
	ID              int64
	WorkspaceID     string
	Fingerprint     string
	TinyFingerprint string
	ObjectKey       string
	FileName        string
	FilePath        string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// State is the upload lifecycle position of a fingerprint.
type State int

const (
	// StateUnknown means the registry has no row for the fingerprint.
	StateUnknown State = iota
	// StatePending means a tiny fingerprint was registered but no object key is known.
	StatePending
	// StateUploaded means the object key is known and the object exists.
	StateUploaded
	// StateStale means the object key is known but the object store reports it absent.
	StateStale
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StatePending:
		return "pending"
	case StateUploaded:
		return "uploaded"
	case StateStale:
		return "stale"
	}
	return "invalid"
}

// RecordState derives the state of rec given the outcome of an existence
// check. A nil record is unknown; exists is ignored unless the record
// carries an object key.
func RecordState(rec *MediaRecord, exists bool) State {
	switch {
	case rec == nil:
		return StateUnknown
	case rec.ObjectKey == "":
		return StatePending
	case exists:
		return StateUploaded
	default:
		return StateStale
	}
}

// Credentials is a short-lived grant handed to a device. It is never
// persisted.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Expiration      time.Time
	ExpireSeconds   int64
}

// Grant is what a device needs to upload directly to the object store.
type Grant struct {
	Provider        string
	Endpoint        string
	Bucket          string
	Region          string
	ObjectKeyPrefix string
	Credentials     Credentials
}

// FastUploadRequest asks whether content with Fingerprint is already stored.
type FastUploadRequest struct {
	Fingerprint     string
	Name            string
	Path            string
	TinyFingerprint string
}

// FastUploadResult is the outcome of a fast-upload check. ObjectKey is set
// only when Exists is true.
type FastUploadResult struct {
	Exists    bool
	ObjectKey string
}

// UploadCallback reports that a device finished uploading ObjectKey.
type UploadCallback struct {
	ObjectKey       string
	Fingerprint     string
	TinyFingerprint string
	Name            string
	Path            string
}

// StatusReport describes a fingerprint for operators.
type StatusReport struct {
	State  State
	Record *MediaRecord
}
