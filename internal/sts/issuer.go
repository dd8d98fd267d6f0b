// Package sts exchanges the broker's long-lived storage keys for short-lived
// credentials with a single AssumeRole call.
package sts

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"media-broker/internal/metrics"
	"media-broker/internal/sigv4"
)

const (
	apiVersion         = "2011-06-15"
	expirationLayout   = "2006-01-02T15:04:05Z"
	defaultTimeout     = 10 * time.Second
	defaultDuration    = time.Hour
	defaultPrefix      = "media"
	maxErrorBodyBytes  = 4096
	maxResponseBytes   = 1 << 20
	maxSessionNameLen  = 64
	workspacePlacehold = "{workspace_id}"
)

var (
	// ErrUnreachable is returned when the STS endpoint could not be reached.
	ErrUnreachable = errors.New("sts unreachable")

	// ErrIncompleteResponse is returned when the response parsed but one of
	// AccessKeyId, SecretAccessKey or SessionToken is empty.
	ErrIncompleteResponse = errors.New("incomplete sts response")

	// ErrInvalidResponse is returned when the response body is not XML.
	ErrInvalidResponse = errors.New("invalid sts response")
)

// HTTPError is returned for a non-2xx response.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("sts http %d: %s", e.Status, e.Body)
}

// Config holds AssumeRole settings. Endpoint defaults to the storage
// endpoint when the object store also serves STS (MinIO).
type Config struct {
	Endpoint      string
	Region        string
	AccessKey     string
	SecretKey     string
	RoleARN       string
	Policy        string
	Duration      time.Duration
	SessionPrefix string
	Timeout       time.Duration
}

// Credential is a set of temporary keys. It is handed to the caller and
// never persisted.
type Credential struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Expiration      time.Time
	ExpireSeconds   int64
}

// Clock abstracts time retrieval.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces the random part of a session name.
type IDGenerator interface {
	New() string
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type uuidGenerator struct{}

func (uuidGenerator) New() string { return uuid.New().String() }

// Issuer performs AssumeRole exchanges. It is safe for concurrent use.
type Issuer struct {
	cfg        Config
	endpoint   *url.URL
	clock      Clock
	ids        IDGenerator
	signer     *sigv4.Signer
	httpClient *http.Client
}

// Option customizes an Issuer.
type Option func(*Issuer)

// WithClock sets the clock used for signing and expiry accounting.
func WithClock(clock Clock) Option {
	return func(i *Issuer) { i.clock = clock }
}

// WithIDGenerator sets the session-name suffix source.
func WithIDGenerator(ids IDGenerator) Option {
	return func(i *Issuer) { i.ids = ids }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(i *Issuer) { i.httpClient = hc }
}

// NewIssuer validates cfg and creates an Issuer.
func NewIssuer(cfg Config, opts ...Option) (*Issuer, error) {
	endpoint, err := url.Parse(cfg.Endpoint)
	if err != nil || endpoint.Scheme == "" || endpoint.Host == "" {
		return nil, fmt.Errorf("invalid sts endpoint: %s", cfg.Endpoint)
	}
	if cfg.RoleARN == "" {
		return nil, fmt.Errorf("sts role arn is required")
	}
	if cfg.Duration <= 0 {
		cfg.Duration = defaultDuration
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.SessionPrefix == "" {
		cfg.SessionPrefix = defaultPrefix
	}

	i := &Issuer{
		cfg:        cfg,
		endpoint:   endpoint,
		clock:      realClock{},
		ids:        uuidGenerator{},
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(i)
	}
	i.signer = sigv4.NewSigner(cfg.Region, "sts", i.clock)
	return i, nil
}

// Issue performs a signed AssumeRole POST for workspaceID. Credentials are
// returned only when all three key fields are present.
func (i *Issuer) Issue(ctx context.Context, workspaceID string) (*Credential, error) {
	ctx, cancel := context.WithTimeout(ctx, i.cfg.Timeout)
	defer cancel()

	body := []byte(i.form(workspaceID).Encode())
	path := i.endpoint.Path
	if path == "" {
		path = "/"
	}
	target := sigv4.ObjectURL(i.endpoint, path)
	canonicalURI := target.EscapedPath()
	headers := i.signer.Sign(sigv4.Credentials{
		AccessKey: i.cfg.AccessKey,
		SecretKey: i.cfg.SecretKey,
	}, sigv4.Request{
		Method:       http.MethodPost,
		Host:         i.endpoint.Host,
		CanonicalURI: canonicalURI,
		Body:         body,
		Headers:      map[string]string{"content-type": "application/x-www-form-urlencoded"},
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building sts request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := i.httpClient.Do(req)
	if err != nil {
		metrics.RecordSTS("unreachable")
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	ok := resp.StatusCode >= 200 && resp.StatusCode <= 299
	limit := int64(maxResponseBytes)
	if !ok {
		limit = maxErrorBodyBytes
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		metrics.RecordSTS("unreachable")
		return nil, fmt.Errorf("%w: reading response: %v", ErrUnreachable, err)
	}
	if !ok {
		metrics.RecordSTS(strconv.Itoa(resp.StatusCode))
		if int64(len(raw)) > limit {
			raw = raw[:limit]
		}
		return nil, &HTTPError{Status: resp.StatusCode, Body: string(raw)}
	}
	if int64(len(raw)) > limit {
		metrics.RecordSTS("invalid")
		return nil, fmt.Errorf("%w: response larger than %d bytes", ErrInvalidResponse, limit)
	}

	cred, err := ParseResponse(raw, i.clock.Now(), i.cfg.Duration)
	if err != nil {
		metrics.RecordSTS("invalid")
		return nil, err
	}
	metrics.RecordSTS("ok")
	return cred, nil
}

// form builds the AssumeRole parameters for workspaceID.
func (i *Issuer) form(workspaceID string) url.Values {
	params := url.Values{}
	params.Set("Action", "AssumeRole")
	params.Set("Version", apiVersion)
	params.Set("DurationSeconds", strconv.FormatInt(int64(i.cfg.Duration/time.Second), 10))
	params.Set("RoleSessionName", i.SessionName(workspaceID))
	params.Set("RoleArn", i.cfg.RoleARN)
	if i.cfg.Policy != "" {
		params.Set("Policy", strings.ReplaceAll(i.cfg.Policy, workspacePlacehold, workspaceID))
	}
	return params
}

// SessionName returns "<prefix>-<first 8 of workspace>-<8 random hex>".
// Characters AssumeRole rejects are replaced with '_'.
func (i *Issuer) SessionName(workspaceID string) string {
	ws := workspaceID
	if len(ws) > 8 {
		ws = ws[:8]
	}
	suffix := strings.ReplaceAll(i.ids.New(), "-", "")
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	name := sanitizeSessionName(i.cfg.SessionPrefix + "-" + ws + "-" + suffix)
	if len(name) > maxSessionNameLen {
		name = name[:maxSessionNameLen]
	}
	return name
}

func sanitizeSessionName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case 'a' <= r && r <= 'z', 'A' <= r && r <= 'Z', '0' <= r && r <= '9':
			return r
		case strings.ContainsRune("+=,.@_-", r):
			return r
		}
		return '_'
	}, s)
}

// ParseResponse extracts credentials from an AssumeRole XML body. Elements
// are matched on their local name so namespaced or prefixed documents parse
// the same. Expiry is max(0, Expiration-now) in whole seconds; an absent or
// unparsable Expiration falls back to fallback.
func ParseResponse(raw []byte, now time.Time, fallback time.Duration) (*Credential, error) {
	fields, err := collectText(raw, "AccessKeyId", "SecretAccessKey", "SessionToken", "Expiration")
	if err != nil {
		return nil, err
	}

	cred := &Credential{
		AccessKeyID:     fields["AccessKeyId"],
		SecretAccessKey: fields["SecretAccessKey"],
		SessionToken:    fields["SessionToken"],
	}
	if cred.AccessKeyID == "" || cred.SecretAccessKey == "" || cred.SessionToken == "" {
		return nil, ErrIncompleteResponse
	}

	if exp, err := time.Parse(expirationLayout, fields["Expiration"]); err == nil {
		cred.Expiration = exp.UTC()
	} else if exp, err := time.Parse(time.RFC3339, fields["Expiration"]); err == nil {
		cred.Expiration = exp.UTC()
	} else {
		cred.Expiration = now.Add(fallback).UTC()
	}
	cred.ExpireSeconds = RemainingSeconds(cred.Expiration, now)
	return cred, nil
}

// RemainingSeconds returns whole seconds until expiration, never negative.
func RemainingSeconds(expiration, now time.Time) int64 {
	secs := int64(expiration.Sub(now) / time.Second)
	if secs < 0 {
		return 0
	}
	return secs
}

// collectText returns the trimmed text of the first element with each of
// the given local names.
func collectText(raw []byte, names ...string) (map[string]string, error) {
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}
	found := make(map[string]string, len(names))

	dec := xml.NewDecoder(bytes.NewReader(raw))
	var current string
	var text strings.Builder
	sawElement := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			sawElement = true
			local := t.Name.Local
			if idx := strings.LastIndex(local, ":"); idx >= 0 {
				local = local[idx+1:]
			}
			if _, done := found[local]; wanted[local] && !done {
				current = local
				text.Reset()
			}
		case xml.CharData:
			if current != "" {
				text.Write(t)
			}
		case xml.EndElement:
			if current != "" {
				found[current] = strings.TrimSpace(text.String())
				current = ""
			}
		}
	}
	if !sawElement {
		return nil, fmt.Errorf("%w: no xml elements", ErrInvalidResponse)
	}
	return found, nil
}
