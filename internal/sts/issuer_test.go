package sts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fixedIDs struct{ id string }

func (g fixedIDs) New() string { return g.id }

var testNow = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

func assumeRoleXML(accessKey, secret, token, expiration string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<AssumeRoleResponse xmlns="https://sts.amazonaws.com/doc/2011-06-15/">
  <AssumeRoleResult>
    <Credentials>
      <AccessKeyId>%s</AccessKeyId>
      <SecretAccessKey>%s</SecretAccessKey>
      <SessionToken>%s</SessionToken>
      <Expiration>%s</Expiration>
    </Credentials>
  </AssumeRoleResult>
  <ResponseMetadata><RequestId>abc</RequestId></ResponseMetadata>
</AssumeRoleResponse>`, accessKey, secret, token, expiration)
}

// stsStub answers every request with the configured status and body and
// keeps the last request it saw.
type stsStub struct {
	mu      sync.Mutex
	status  int
	body    string
	form    url.Values
	headers http.Header
	calls   int
}

func (s *stsStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	s.calls++
	s.form, _ = url.ParseQuery(string(raw))
	s.headers = r.Header.Clone()
	s.mu.Unlock()
	w.WriteHeader(s.status)
	io.WriteString(w, s.body)
}

func newTestIssuer(t *testing.T, stub *stsStub, cfg Config) *Issuer {
	t.Helper()
	server := httptest.NewServer(stub)
	t.Cleanup(server.Close)

	cfg.Endpoint = server.URL
	if cfg.RoleARN == "" {
		cfg.RoleARN = "arn:aws:iam::minio:role/dji-pilot"
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	cfg.AccessKey, cfg.SecretKey = "minioadmin", "minioadmin"

	issuer, err := NewIssuer(cfg,
		WithClock(fixedClock{testNow}),
		WithIDGenerator(fixedIDs{"0123abcd-ef45-6789-abcd-ef0123456789"}),
	)
	if err != nil {
		t.Fatalf("NewIssuer() error = %v", err)
	}
	return issuer
}

func TestNewIssuer_Validation(t *testing.T) {
	if _, err := NewIssuer(Config{Endpoint: "not a url", RoleARN: "arn"}); err == nil {
		t.Error("expected error for invalid endpoint")
	}
	if _, err := NewIssuer(Config{Endpoint: "http://127.0.0.1:9000"}); err == nil {
		t.Error("expected error for missing role arn")
	}
}

func TestIssuer_Issue(t *testing.T) {
	ctx := context.Background()

	t.Run("returns parsed credentials", func(t *testing.T) {
		exp := testNow.Add(10 * time.Minute).Format(expirationLayout)
		stub := &stsStub{status: http.StatusOK, body: assumeRoleXML("AK", "SK", "TOKEN", exp)}
		issuer := newTestIssuer(t, stub, Config{})

		cred, err := issuer.Issue(ctx, "ws-1234567890")
		if err != nil {
			t.Fatalf("Issue() error = %v", err)
		}
		if cred.AccessKeyID != "AK" || cred.SecretAccessKey != "SK" || cred.SessionToken != "TOKEN" {
			t.Errorf("credential = %+v", cred)
		}
		if cred.ExpireSeconds != 600 {
			t.Errorf("ExpireSeconds = %d, want 600", cred.ExpireSeconds)
		}
	})

	t.Run("sends a signed assume role form", func(t *testing.T) {
		exp := testNow.Add(time.Hour).Format(expirationLayout)
		stub := &stsStub{status: http.StatusOK, body: assumeRoleXML("AK", "SK", "TOKEN", exp)}
		issuer := newTestIssuer(t, stub, Config{
			Duration: 900 * time.Second,
			Policy:   `{"Resource":["arn:aws:s3:::media/{workspace_id}/*"]}`,
		})

		if _, err := issuer.Issue(ctx, "ws-1234567890"); err != nil {
			t.Fatalf("Issue() error = %v", err)
		}

		want := map[string]string{
			"Action":          "AssumeRole",
			"Version":         "2011-06-15",
			"DurationSeconds": "900",
			"RoleArn":         "arn:aws:iam::minio:role/dji-pilot",
			"RoleSessionName": "media-ws-12345-0123abcd",
			"Policy":          `{"Resource":["arn:aws:s3:::media/ws-1234567890/*"]}`,
		}
		for k, v := range want {
			if got := stub.form.Get(k); got != v {
				t.Errorf("form[%s] = %q, want %q", k, got, v)
			}
		}
		auth := stub.headers.Get("Authorization")
		if !strings.HasPrefix(auth, "AWS4-HMAC-SHA256 Credential=minioadmin/20240115/us-east-1/sts/aws4_request") {
			t.Errorf("Authorization = %q", auth)
		}
		if stub.headers.Get("Content-Type") != "application/x-www-form-urlencoded" {
			t.Errorf("Content-Type = %q", stub.headers.Get("Content-Type"))
		}
	})

	t.Run("omits policy when not configured", func(t *testing.T) {
		exp := testNow.Add(time.Hour).Format(expirationLayout)
		stub := &stsStub{status: http.StatusOK, body: assumeRoleXML("AK", "SK", "TOKEN", exp)}
		issuer := newTestIssuer(t, stub, Config{})

		if _, err := issuer.Issue(ctx, "ws1"); err != nil {
			t.Fatalf("Issue() error = %v", err)
		}
		if _, ok := stub.form["Policy"]; ok {
			t.Error("Policy sent without configuration")
		}
		if got := stub.form.Get("DurationSeconds"); got != "3600" {
			t.Errorf("DurationSeconds = %q, want default 3600", got)
		}
	})

	t.Run("non-2xx is an http error", func(t *testing.T) {
		stub := &stsStub{status: http.StatusForbidden, body: "<Error><Code>AccessDenied</Code></Error>"}
		issuer := newTestIssuer(t, stub, Config{})

		_, err := issuer.Issue(ctx, "ws1")
		var httpErr *HTTPError
		if !errors.As(err, &httpErr) {
			t.Fatalf("Issue() error = %v, want *HTTPError", err)
		}
		if httpErr.Status != http.StatusForbidden || !strings.Contains(httpErr.Body, "AccessDenied") {
			t.Errorf("HTTPError = %+v", httpErr)
		}
	})

	t.Run("missing session token is incomplete", func(t *testing.T) {
		exp := testNow.Add(time.Hour).Format(expirationLayout)
		stub := &stsStub{status: http.StatusOK, body: assumeRoleXML("AK", "SK", "", exp)}
		issuer := newTestIssuer(t, stub, Config{})

		cred, err := issuer.Issue(ctx, "ws1")
		if !errors.Is(err, ErrIncompleteResponse) {
			t.Errorf("Issue() error = %v, want ErrIncompleteResponse", err)
		}
		if cred != nil {
			t.Errorf("credential = %+v, want nil", cred)
		}
	})

	t.Run("network failure is unreachable", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		endpoint := server.URL
		server.Close()

		issuer, err := NewIssuer(Config{Endpoint: endpoint, RoleARN: "arn", Region: "us-east-1"})
		if err != nil {
			t.Fatalf("NewIssuer() error = %v", err)
		}
		if _, err := issuer.Issue(ctx, "ws1"); !errors.Is(err, ErrUnreachable) {
			t.Errorf("Issue() error = %v, want ErrUnreachable", err)
		}
	})
}

func TestIssuer_Issue_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	t.Cleanup(server.Close)

	issuer, err := NewIssuer(Config{
		Endpoint: server.URL,
		RoleARN:  "arn",
		Region:   "us-east-1",
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewIssuer() error = %v", err)
	}

	start := time.Now()
	cred, err := issuer.Issue(context.Background(), "ws1")
	elapsed := time.Since(start)

	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("Issue() error = %v, want ErrUnreachable", err)
	}
	if cred != nil {
		t.Errorf("credential = %+v, want nil", cred)
	}
	if elapsed > 2*time.Second {
		t.Errorf("Issue() took %v, want it bounded by the sts timeout", elapsed)
	}
}

func TestIssuer_Issue_BodyLimits(t *testing.T) {
	ctx := context.Background()

	t.Run("oversized success body is invalid", func(t *testing.T) {
		body := "<AssumeRoleResponse>" + strings.Repeat("x", maxResponseBytes+16) + "</AssumeRoleResponse>"
		stub := &stsStub{status: http.StatusOK, body: body}
		issuer := newTestIssuer(t, stub, Config{})

		if _, err := issuer.Issue(ctx, "ws1"); !errors.Is(err, ErrInvalidResponse) {
			t.Errorf("Issue() error = %v, want ErrInvalidResponse", err)
		}
	})

	t.Run("error body is truncated", func(t *testing.T) {
		stub := &stsStub{status: http.StatusInternalServerError, body: strings.Repeat("e", 3*maxErrorBodyBytes)}
		issuer := newTestIssuer(t, stub, Config{})

		_, err := issuer.Issue(ctx, "ws1")
		var httpErr *HTTPError
		if !errors.As(err, &httpErr) {
			t.Fatalf("Issue() error = %v, want *HTTPError", err)
		}
		if len(httpErr.Body) != maxErrorBodyBytes {
			t.Errorf("len(Body) = %d, want %d", len(httpErr.Body), maxErrorBodyBytes)
		}
	})
}

func TestParseResponse(t *testing.T) {
	t.Run("ten minutes ahead", func(t *testing.T) {
		exp := testNow.Add(10 * time.Minute).Format(expirationLayout)
		cred, err := ParseResponse([]byte(assumeRoleXML("AK", "SK", "T", exp)), testNow.Add(2*time.Second), time.Hour)
		if err != nil {
			t.Fatalf("ParseResponse() error = %v", err)
		}
		if cred.ExpireSeconds < 595 || cred.ExpireSeconds > 600 {
			t.Errorf("ExpireSeconds = %d, want about 600", cred.ExpireSeconds)
		}
	})

	t.Run("past expiration is zero", func(t *testing.T) {
		exp := testNow.Add(-5 * time.Minute).Format(expirationLayout)
		cred, err := ParseResponse([]byte(assumeRoleXML("AK", "SK", "T", exp)), testNow, time.Hour)
		if err != nil {
			t.Fatalf("ParseResponse() error = %v", err)
		}
		if cred.ExpireSeconds != 0 {
			t.Errorf("ExpireSeconds = %d, want 0", cred.ExpireSeconds)
		}
	})

	t.Run("missing expiration uses requested duration", func(t *testing.T) {
		cred, err := ParseResponse([]byte(assumeRoleXML("AK", "SK", "T", "")), testNow, 15*time.Minute)
		if err != nil {
			t.Fatalf("ParseResponse() error = %v", err)
		}
		if cred.ExpireSeconds != 900 {
			t.Errorf("ExpireSeconds = %d, want 900", cred.ExpireSeconds)
		}
	})

	t.Run("prefixed element names", func(t *testing.T) {
		body := `<sts:Response xmlns:sts="urn:x"><sts:Credentials>
			<sts:AccessKeyId> AK </sts:AccessKeyId>
			<sts:SecretAccessKey>SK</sts:SecretAccessKey>
			<sts:SessionToken>T</sts:SessionToken>
			<sts:Expiration>2024-01-15T11:30:00Z</sts:Expiration>
		</sts:Credentials></sts:Response>`
		cred, err := ParseResponse([]byte(body), testNow, time.Hour)
		if err != nil {
			t.Fatalf("ParseResponse() error = %v", err)
		}
		if cred.AccessKeyID != "AK" {
			t.Errorf("AccessKeyID = %q, want AK", cred.AccessKeyID)
		}
		if cred.ExpireSeconds != 3600 {
			t.Errorf("ExpireSeconds = %d, want 3600", cred.ExpireSeconds)
		}
	})

	t.Run("malformed xml", func(t *testing.T) {
		for _, body := range []string{"", "not xml", "<a><b></a>"} {
			if _, err := ParseResponse([]byte(body), testNow, time.Hour); !errors.Is(err, ErrInvalidResponse) {
				t.Errorf("ParseResponse(%q) error = %v, want ErrInvalidResponse", body, err)
			}
		}
	})
}

func TestIssuer_SessionName(t *testing.T) {
	issuer, err := NewIssuer(Config{Endpoint: "http://127.0.0.1:9000", RoleARN: "arn", SessionPrefix: "pilot"},
		WithIDGenerator(fixedIDs{"deadbeef-0000"}))
	if err != nil {
		t.Fatalf("NewIssuer() error = %v", err)
	}

	tests := []struct {
		ws   string
		want string
	}{
		{"abc", "pilot-abc-deadbeef"},
		{"0123456789abcdef", "pilot-01234567-deadbeef"},
		{"ws/1 2#", "pilot-ws_1_2_-deadbeef"},
	}
	for _, tt := range tests {
		if got := issuer.SessionName(tt.ws); got != tt.want {
			t.Errorf("SessionName(%q) = %q, want %q", tt.ws, got, tt.want)
		}
	}
}

func TestRemainingSeconds(t *testing.T) {
	if got := RemainingSeconds(testNow.Add(90*time.Second), testNow); got != 90 {
		t.Errorf("RemainingSeconds() = %d, want 90", got)
	}
	if got := RemainingSeconds(testNow.Add(-time.Second), testNow); got != 0 {
		t.Errorf("RemainingSeconds() = %d, want 0", got)
	}
}
