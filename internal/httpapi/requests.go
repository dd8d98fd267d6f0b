package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

const maxBodyBytes = 1 << 20

type fastUploadRequest struct {
	Fingerprint string          `json:"fingerprint"`
	Name        string          `json:"name"`
	Path        string          `json:"path"`
	Ext         json.RawMessage `json:"ext"`
}

// tinyFingerprint returns ext.tinny_fingerprint. The misspelling is what
// devices send. A malformed ext is ignored.
func (r *fastUploadRequest) tinyFingerprint() string {
	if len(r.Ext) == 0 {
		return ""
	}
	var ext struct {
		TinyFingerprint string `json:"tinny_fingerprint"`
	}
	if err := json.Unmarshal(r.Ext, &ext); err != nil {
		return ""
	}
	return ext.TinyFingerprint
}

type tinyFingerprintsRequest struct {
	TinyFingerprints json.RawMessage `json:"tiny_fingerprints"`
}

// list decodes tiny_fingerprints. Absent or null means an empty list.
// Entries that are not strings are skipped.
func (r *tinyFingerprintsRequest) list() ([]string, bool) {
	raw := bytes.TrimSpace(r.TinyFingerprints)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []string{}, true
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err != nil || s == "" {
			continue
		}
		out = append(out, s)
	}
	return out, true
}

type uploadCallbackRequest struct {
	ObjectKey       string `json:"object_key"`
	Fingerprint     string `json:"fingerprint"`
	TinyFingerprint string `json:"tiny_fingerprint"`
	TinnyAlias      string `json:"tinny_fingerprint"`
	Name            string `json:"name"`
	Path            string `json:"path"`
}

func (r *uploadCallbackRequest) tinyFingerprint() string {
	if r.TinyFingerprint != "" {
		return r.TinyFingerprint
	}
	return r.TinnyAlias
}

// bindBody decodes the JSON request body into v. An empty body decodes as
// an empty object. On failure the 400 response is written and false is
// returned.
func bindBody(c *gin.Context, v any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return false
	}
	if len(bytes.TrimSpace(body)) == 0 {
		body = []byte("{}")
	}
	if err := binding.JSON.BindBody(body, v); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}
