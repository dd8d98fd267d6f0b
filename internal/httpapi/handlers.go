package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"media-broker/internal/broker"
)

type handlers struct {
	workflow Workflow
	logger   broker.Logger
}

func (h *handlers) fail(c *gin.Context, err error) {
	status, message := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "path", c.Request.URL.Path, "status", status, "error", err)
	} else {
		h.logger.Warn("client error", "path", c.Request.URL.Path, "status", status, "error", err)
	}
	writeError(c, status, message)
}

func (h *handlers) fastUpload(c *gin.Context) {
	var req fastUploadRequest
	if !bindBody(c, &req) {
		return
	}

	res, err := h.workflow.FastUpload(c.Request.Context(), c.Param("workspace_id"), broker.FastUploadRequest{
		Fingerprint:     req.Fingerprint,
		Name:            req.Name,
		Path:            req.Path,
		TinyFingerprint: req.tinyFingerprint(),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	if !res.Exists {
		writeOK(c, gin.H{}, req.Fingerprint+" don't exist.", codeNotFound)
		return
	}
	writeOK(c, gin.H{"object_key": res.ObjectKey}, "success", codeSuccess)
}

func (h *handlers) tinyFingerprints(c *gin.Context) {
	var req tinyFingerprintsRequest
	if !bindBody(c, &req) {
		return
	}
	requested, ok := req.list()
	if !ok {
		writeError(c, http.StatusBadRequest, "invalid tiny_fingerprints")
		return
	}

	found, err := h.workflow.CheckTinyFingerprints(c.Request.Context(), c.Param("workspace_id"), requested)
	if err != nil {
		h.fail(c, err)
		return
	}
	writeOK(c, gin.H{"tiny_fingerprints": found}, "success", codeSuccess)
}

func (h *handlers) uploadCallback(c *gin.Context) {
	var req uploadCallbackRequest
	if !bindBody(c, &req) {
		return
	}

	key, err := h.workflow.FinalizeUpload(c.Request.Context(), c.Param("workspace_id"), broker.UploadCallback{
		ObjectKey:       req.ObjectKey,
		Fingerprint:     req.Fingerprint,
		TinyFingerprint: req.tinyFingerprint(),
		Name:            req.Name,
		Path:            req.Path,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	writeOK(c, key, "success", codeSuccess)
}

// stsCredentials repeats every field under the snake_case and camelCase
// names the different pilot clients read.
type stsCredentials struct {
	AccessKeyID          string `json:"access_key_id"`
	AccessKeySecret      string `json:"access_key_secret"`
	SecurityToken        string `json:"security_token"`
	SessionToken         string `json:"session_token"`
	AccessKeyIDCamel     string `json:"accessKeyId"`
	AccessKeySecretCamel string `json:"accessKeySecret"`
	SecurityTokenCamel   string `json:"securityToken"`
	SessionTokenCamel    string `json:"sessionToken"`
	Expire               int64  `json:"expire"`
}

type stsData struct {
	Provider        string `json:"provider"`
	Endpoint        string `json:"endpoint"`
	Bucket          string `json:"bucket"`
	Region          string `json:"region"`
	ObjectKeyPrefix string `json:"object_key_prefix"`
	stsCredentials
	Credentials stsCredentials `json:"credentials"`
}

func newSTSCredentials(cred broker.Credentials) stsCredentials {
	return stsCredentials{
		AccessKeyID:          cred.AccessKeyID,
		AccessKeySecret:      cred.SecretAccessKey,
		SecurityToken:        cred.SessionToken,
		SessionToken:         cred.SessionToken,
		AccessKeyIDCamel:     cred.AccessKeyID,
		AccessKeySecretCamel: cred.SecretAccessKey,
		SecurityTokenCamel:   cred.SessionToken,
		SessionTokenCamel:    cred.SessionToken,
		Expire:               cred.ExpireSeconds,
	}
}

func (h *handlers) sts(c *gin.Context) {
	grant, err := h.workflow.IssueCredentials(c.Request.Context(), c.Param("workspace_id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	cred := newSTSCredentials(grant.Credentials)
	writeOK(c, stsData{
		Provider:        grant.Provider,
		Endpoint:        grant.Endpoint,
		Bucket:          grant.Bucket,
		Region:          grant.Region,
		ObjectKeyPrefix: grant.ObjectKeyPrefix,
		stsCredentials:  cred,
		Credentials:     cred,
	}, "success", codeSuccess)
}
