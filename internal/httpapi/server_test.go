package httpapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"media-broker/internal/broker"
	"media-broker/internal/httpapi"
	"media-broker/internal/testutil"
)

const token = "secret-token"

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type harness struct {
	handler  http.Handler
	registry broker.Registry
	store    *testutil.FakeObjectStore
	issuer   *testutil.FakeIssuer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := testutil.FixedClock()
	h := &harness{
		registry: testutil.NewTestRegistry(t, clock),
		store:    testutil.NewFakeObjectStore(),
		issuer:   testutil.NewFakeIssuer(clock.Now()),
	}
	storage := broker.StorageInfo{Provider: "minio", Endpoint: "http://127.0.0.1:9000", Bucket: "media", Region: "us-east-1"}
	svc := broker.NewService(h.registry, h.store, h.issuer, storage, nil, clock)
	h.handler = httpapi.New(httpapi.Options{AuthToken: token, Metrics: true}, svc, nil).Handler()
	return h
}

type response struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (h *harness) do(t *testing.T, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, response) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	var resp response
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("response is not an envelope: %v: %s", err, rec.Body.String())
		}
	}
	return rec, resp
}

func (h *harness) post(t *testing.T, path, body string) (*httptest.ResponseRecorder, response) {
	t.Helper()
	return h.do(t, http.MethodPost, path, body, map[string]string{"x-auth-token": token})
}

func TestAuth(t *testing.T) {
	h := newHarness(t)
	path := "/media/api/v1/workspaces/ws1/fast-upload"

	t.Run("missing token", func(t *testing.T) {
		rec, resp := h.do(t, http.MethodPost, path, `{}`, nil)
		if rec.Code != http.StatusUnauthorized || resp.Message != "missing x-auth-token" || resp.Code != 401 {
			t.Errorf("got %d %+v", rec.Code, resp)
		}
	})

	t.Run("wrong token", func(t *testing.T) {
		rec, resp := h.do(t, http.MethodPost, path, `{}`, map[string]string{"x-auth-token": "nope"})
		if rec.Code != http.StatusUnauthorized || resp.Message != "invalid x-auth-token" {
			t.Errorf("got %d %+v", rec.Code, resp)
		}
	})

	t.Run("token checked before body", func(t *testing.T) {
		rec, _ := h.do(t, http.MethodPost, path, `not json`, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("sts requires token", func(t *testing.T) {
		rec, _ := h.do(t, http.MethodPost, "/storage/api/v1/workspaces/ws1/sts", "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
		if len(h.issuer.Workspaces()) != 0 {
			t.Error("issuer reached without a token")
		}
	})
}

func TestFastUpload(t *testing.T) {
	path := "/media/api/v1/workspaces/ws1/fast-upload"

	t.Run("miss", func(t *testing.T) {
		h := newHarness(t)
		rec, resp := h.post(t, path, `{"fingerprint":"fp1","name":"a.jpg"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		if resp.Code != 1 || resp.Message != "fp1 don't exist." || string(resp.Data) != "{}" {
			t.Errorf("response = %+v", resp)
		}
	})

	t.Run("hit", func(t *testing.T) {
		h := newHarness(t)
		_ = h.registry.UpsertFile(context.Background(), &broker.MediaRecord{WorkspaceID: "ws1", Fingerprint: "fp1", ObjectKey: "ws1/20240115/a.jpg"})
		h.store.Put("ws1/20240115/a.jpg")

		_, resp := h.post(t, path, `{"fingerprint":"fp1","name":"a.jpg"}`)
		if resp.Code != 0 || resp.Message != "success" || string(resp.Data) != `{"object_key":"ws1/20240115/a.jpg"}` {
			t.Errorf("response = %+v", resp)
		}
	})

	t.Run("ext tinny_fingerprint is pre-registered", func(t *testing.T) {
		h := newHarness(t)
		h.post(t, path, `{"fingerprint":"fp1","name":"a.jpg","path":"DCIM","ext":{"tinny_fingerprint":"t1"}}`)

		tiny, err := h.registry.GetTinyByFingerprint(context.Background(), "ws1", "fp1")
		if err != nil || tiny != "t1" {
			t.Errorf("GetTinyByFingerprint() = %q, %v; want t1", tiny, err)
		}
	})

	t.Run("non-object ext is ignored", func(t *testing.T) {
		h := newHarness(t)
		rec, resp := h.post(t, path, `{"fingerprint":"fp1","name":"a.jpg","ext":"x"}`)
		if rec.Code != http.StatusOK || resp.Code != 1 {
			t.Errorf("got %d %+v", rec.Code, resp)
		}
	})

	t.Run("missing name", func(t *testing.T) {
		h := newHarness(t)
		rec, resp := h.post(t, path, `{"fingerprint":"fp1"}`)
		if rec.Code != http.StatusBadRequest || resp.Message != "missing fingerprint/name" {
			t.Errorf("got %d %+v", rec.Code, resp)
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		h := newHarness(t)
		rec, resp := h.post(t, path, `{"fingerprint":`)
		if rec.Code != http.StatusBadRequest || resp.Message != "invalid json" {
			t.Errorf("got %d %+v", rec.Code, resp)
		}
	})

	t.Run("object store failure", func(t *testing.T) {
		h := newHarness(t)
		_ = h.registry.UpsertFile(context.Background(), &broker.MediaRecord{WorkspaceID: "ws1", Fingerprint: "fp1", ObjectKey: "k"})
		h.store.FailWith(errors.New("unreachable"))

		rec, resp := h.post(t, path, `{"fingerprint":"fp1","name":"a.jpg"}`)
		if rec.Code != http.StatusBadGateway || resp.Message != "object check failed" || resp.Code != 502 {
			t.Errorf("got %d %+v", rec.Code, resp)
		}
	})
}

func TestTinyFingerprints(t *testing.T) {
	path := "/media/api/v1/workspaces/ws1/files/tiny-fingerprints"

	t.Run("returns confirmed subset", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		_ = h.registry.UpsertFile(ctx, &broker.MediaRecord{WorkspaceID: "ws1", Fingerprint: "fp1", TinyFingerprint: "t1", ObjectKey: "k1"})
		_ = h.registry.UpsertFile(ctx, &broker.MediaRecord{WorkspaceID: "ws1", Fingerprint: "fp2", TinyFingerprint: "t2", ObjectKey: "k2"})
		h.store.Put("k1")

		rec, resp := h.post(t, path, `{"tiny_fingerprints":["t1","t2"]}`)
		if rec.Code != http.StatusOK || resp.Code != 0 {
			t.Fatalf("got %d %+v", rec.Code, resp)
		}
		if string(resp.Data) != `{"tiny_fingerprints":["t1"]}` {
			t.Errorf("data = %s", resp.Data)
		}
	})

	t.Run("missing list is empty", func(t *testing.T) {
		h := newHarness(t)
		_, resp := h.post(t, path, ``)
		if string(resp.Data) != `{"tiny_fingerprints":[]}` {
			t.Errorf("data = %s", resp.Data)
		}
	})

	t.Run("non-string entries skipped", func(t *testing.T) {
		h := newHarness(t)
		_ = h.registry.UpsertFile(context.Background(), &broker.MediaRecord{WorkspaceID: "ws1", Fingerprint: "fp1", TinyFingerprint: "t1", ObjectKey: "k1"})
		h.store.Put("k1")

		rec, resp := h.post(t, path, `{"tiny_fingerprints":["t1",2,null,{"a":1}]}`)
		if rec.Code != http.StatusOK || resp.Code != 0 {
			t.Fatalf("got %d %+v", rec.Code, resp)
		}
		if string(resp.Data) != `{"tiny_fingerprints":["t1"]}` {
			t.Errorf("data = %s", resp.Data)
		}
	})

	t.Run("non-list rejected", func(t *testing.T) {
		h := newHarness(t)
		rec, resp := h.post(t, path, `{"tiny_fingerprints":"t1"}`)
		if rec.Code != http.StatusBadRequest || resp.Message != "invalid tiny_fingerprints" {
			t.Errorf("got %d %+v", rec.Code, resp)
		}
	})
}

func TestUploadCallback(t *testing.T) {
	path := "/media/api/v1/workspaces/ws1/upload-callback"

	t.Run("records upload", func(t *testing.T) {
		h := newHarness(t)
		h.store.Put("ws1/20240115/a.jpg")

		rec, resp := h.post(t, path, `{"object_key":"ws1/20240115/a.jpg","fingerprint":"fp1","tinny_fingerprint":"t1","name":"a.jpg"}`)
		if rec.Code != http.StatusOK || resp.Code != 0 || string(resp.Data) != `"ws1/20240115/a.jpg"` {
			t.Fatalf("got %d %+v", rec.Code, resp)
		}

		rec2, _ := h.registry.FindRecord(context.Background(), "ws1", "fp1")
		if rec2 == nil || rec2.TinyFingerprint != "t1" {
			t.Errorf("record = %+v, want tiny from tinny_fingerprint alias", rec2)
		}
	})

	t.Run("missing object", func(t *testing.T) {
		h := newHarness(t)
		rec, resp := h.post(t, path, `{"object_key":"ws1/nope.jpg","fingerprint":"fp1"}`)
		if rec.Code != http.StatusNotFound || resp.Message != "object not found" {
			t.Errorf("got %d %+v", rec.Code, resp)
		}
	})

	t.Run("missing object key", func(t *testing.T) {
		h := newHarness(t)
		rec, resp := h.post(t, path, `{"fingerprint":"fp1"}`)
		if rec.Code != http.StatusBadRequest || resp.Message != "missing object_key" {
			t.Errorf("got %d %+v", rec.Code, resp)
		}
	})
}

func TestSTS(t *testing.T) {
	path := "/storage/api/v1/workspaces/ws1/sts"

	t.Run("grant with aliases", func(t *testing.T) {
		h := newHarness(t)
		rec, resp := h.post(t, path, "")
		if rec.Code != http.StatusOK || resp.Code != 0 {
			t.Fatalf("got %d %s", rec.Code, rec.Body.String())
		}

		var data map[string]any
		if err := json.Unmarshal(resp.Data, &data); err != nil {
			t.Fatal(err)
		}
		if data["object_key_prefix"] != "ws1/" || data["bucket"] != "media" || data["provider"] != "minio" {
			t.Errorf("storage fields = %v", data)
		}
		if data["session_token"] != "token-test" || data["securityToken"] != "token-test" || data["expire"] != float64(3600) {
			t.Errorf("flat credential fields = %v", data)
		}
		creds, ok := data["credentials"].(map[string]any)
		if !ok {
			t.Fatalf("credentials = %v", data["credentials"])
		}
		for _, k := range []string{"access_key_id", "access_key_secret", "security_token", "session_token", "accessKeyId", "accessKeySecret", "securityToken", "sessionToken", "expire"} {
			if _, ok := creds[k]; !ok {
				t.Errorf("credentials missing %q", k)
			}
		}
		if creds["access_key_secret"] != "secret-test" {
			t.Errorf("access_key_secret = %v", creds["access_key_secret"])
		}
	})

	t.Run("issuer failure", func(t *testing.T) {
		h := newHarness(t)
		h.issuer.FailWith(errors.New("sts returned 403"))
		rec, resp := h.post(t, path, "")
		if rec.Code != http.StatusInternalServerError || resp.Message != "sts failed" {
			t.Errorf("got %d %+v", rec.Code, resp)
		}
	})

	t.Run("expired grant", func(t *testing.T) {
		h := newHarness(t)
		h.issuer.SetExpireSeconds(0)
		rec, resp := h.post(t, path, "")
		if rec.Code != http.StatusInternalServerError || resp.Message != "sts failed" {
			t.Errorf("got %d %+v", rec.Code, resp)
		}
	})
}

func TestRouting(t *testing.T) {
	h := newHarness(t)

	t.Run("health", func(t *testing.T) {
		rec, resp := h.do(t, http.MethodGet, "/health", "", nil)
		if rec.Code != http.StatusOK || resp.Message != "ok" {
			t.Errorf("got %d %+v", rec.Code, resp)
		}
	})

	t.Run("unknown route", func(t *testing.T) {
		rec, resp := h.do(t, http.MethodPost, "/media/api/v1/workspaces/ws1/other", "{}", map[string]string{"x-auth-token": token})
		if rec.Code != http.StatusNotFound || resp.Code != 404 || resp.Message != "not found" {
			t.Errorf("got %d %+v", rec.Code, resp)
		}
	})

	t.Run("wrong method", func(t *testing.T) {
		rec, _ := h.do(t, http.MethodGet, "/media/api/v1/workspaces/ws1/fast-upload", "", map[string]string{"x-auth-token": token})
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("trailing slash", func(t *testing.T) {
		rec, _ := h.post(t, "/media/api/v1/workspaces/ws1/fast-upload/", "{}")
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("preflight", func(t *testing.T) {
		rec, _ := h.do(t, http.MethodOptions, "/media/api/v1/workspaces/ws1/fast-upload", "", nil)
		if rec.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", rec.Code)
		}
		if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
			t.Error("missing Access-Control-Allow-Origin")
		}
		if !strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), "x-auth-token") {
			t.Errorf("Access-Control-Allow-Headers = %q", rec.Header().Get("Access-Control-Allow-Headers"))
		}
	})

	t.Run("json responses allow any origin", func(t *testing.T) {
		rec, _ := h.do(t, http.MethodGet, "/health", "", nil)
		if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
			t.Error("missing Access-Control-Allow-Origin")
		}
	})

	t.Run("metrics", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		rec := httptest.NewRecorder()
		h.handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "media_broker_requests_total") {
			t.Errorf("metrics status = %d", rec.Code)
		}
	})
}
