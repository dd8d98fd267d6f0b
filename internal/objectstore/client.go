// Package objectstore issues signed requests against an S3-compatible
// bucket using path-style addressing: {endpoint}/{bucket}/{key}.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"media-broker/internal/metrics"
	"media-broker/internal/sigv4"
)

// ErrUnreachable is returned when the object store could not be reached at
// all (DNS, connect, timeout). It says nothing about whether the object
// exists.
var ErrUnreachable = errors.New("object store unreachable")

// StatusError is returned for any response other than 200 or 404.
type StatusError struct {
	Op     string
	Key    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("object store %s %s: unexpected status %d", e.Op, e.Key, e.Status)
}

const (
	defaultHeadTimeout = 5 * time.Second
	defaultPutTimeout  = 30 * time.Second
)

// Config holds the connection settings for one bucket.
type Config struct {
	Endpoint     string
	Bucket       string
	Region       string
	AccessKey    string
	SecretKey    string
	SessionToken string
	HeadTimeout  time.Duration
	PutTimeout   time.Duration
}

// Client talks to a single bucket. It is safe for concurrent use.
type Client struct {
	cfg        Config
	endpoint   *url.URL
	signer     *sigv4.Signer
	httpClient *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithClock sets the clock used for request signing.
func WithClock(clock sigv4.Clock) Option {
	return func(c *Client) { c.signer = sigv4.NewSigner(c.cfg.Region, "s3", clock) }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New validates cfg and creates a Client.
func New(cfg Config, opts ...Option) (*Client, error) {
	endpoint, err := url.Parse(cfg.Endpoint)
	if err != nil || endpoint.Scheme == "" || endpoint.Host == "" {
		return nil, fmt.Errorf("invalid storage endpoint: %s", cfg.Endpoint)
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}
	if cfg.HeadTimeout <= 0 {
		cfg.HeadTimeout = defaultHeadTimeout
	}
	if cfg.PutTimeout <= 0 {
		cfg.PutTimeout = defaultPutTimeout
	}

	c := &Client{
		cfg:        cfg,
		endpoint:   endpoint,
		signer:     sigv4.NewSigner(cfg.Region, "s3", nil),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Bucket returns the configured bucket name.
func (c *Client) Bucket() string {
	return c.cfg.Bucket
}

// HeadObject reports whether objectKey exists. A 404 is not an error.
// Keys recorded without the bucket prefix are retried once with it
// prepended, to tolerate records written with an inconsistent key shape.
func (c *Client) HeadObject(ctx context.Context, objectKey string) (bool, error) {
	for _, candidate := range c.candidates(objectKey) {
		status, err := c.do(ctx, http.MethodHead, candidate, nil, nil, c.cfg.HeadTimeout)
		if err != nil {
			return false, err
		}
		switch status {
		case http.StatusOK:
			return true, nil
		case http.StatusNotFound:
			continue
		default:
			return false, &StatusError{Op: "head", Key: candidate, Status: status}
		}
	}
	return false, nil
}

// PutObject uploads body under objectKey.
func (c *Client) PutObject(ctx context.Context, objectKey string, body []byte, contentType string) error {
	key := strings.TrimLeft(objectKey, "/")
	if key == "" {
		return fmt.Errorf("object key is required")
	}
	headers := map[string]string{}
	if contentType != "" {
		headers["content-type"] = contentType
	}
	status, err := c.do(ctx, http.MethodPut, key, body, headers, c.cfg.PutTimeout)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return &StatusError{Op: "put", Key: key, Status: status}
	}
	return nil
}

// DeleteObject removes objectKey. Deleting an absent object succeeds.
func (c *Client) DeleteObject(ctx context.Context, objectKey string) error {
	key := strings.TrimLeft(objectKey, "/")
	if key == "" {
		return fmt.Errorf("object key is required")
	}
	status, err := c.do(ctx, http.MethodDelete, key, nil, nil, c.cfg.HeadTimeout)
	if err != nil {
		return err
	}
	if status != http.StatusNotFound && (status < 200 || status > 299) {
		return &StatusError{Op: "delete", Key: key, Status: status}
	}
	return nil
}

func (c *Client) candidates(objectKey string) []string {
	key := strings.TrimLeft(objectKey, "/")
	if key == "" {
		return nil
	}
	prefix := c.cfg.Bucket + "/"
	if strings.HasPrefix(key, prefix) {
		return []string{key}
	}
	return []string{key, prefix + key}
}

// do signs and sends one request and returns the response status. The
// response body is drained and discarded.
func (c *Client) do(ctx context.Context, method, key string, body []byte, headers map[string]string, timeout time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	op := strings.ToLower(method)
	start := time.Now()

	u := sigv4.ObjectURL(c.endpoint, "/"+c.cfg.Bucket+"/"+key)
	signed := c.signer.Sign(sigv4.Credentials{
		AccessKey:    c.cfg.AccessKey,
		SecretKey:    c.cfg.SecretKey,
		SessionToken: c.cfg.SessionToken,
	}, sigv4.Request{
		Method:       method,
		Host:         c.endpoint.Host,
		CanonicalURI: u.EscapedPath(),
		Body:         body,
		Headers:      headers,
	})

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return 0, fmt.Errorf("building %s request: %w", op, err)
	}
	req.URL = u
	for k, v := range signed {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordObjectStoreOperation(op, "error", time.Since(start).Seconds())
		return 0, fmt.Errorf("%w: %s %s: %v", ErrUnreachable, op, key, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	metrics.RecordObjectStoreOperation(op, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())
	return resp.StatusCode, nil
}
