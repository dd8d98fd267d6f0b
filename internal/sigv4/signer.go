// Package sigv4 builds AWS Signature Version 4 headers for requests to the
// object store and its STS endpoint.
package sigv4

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	algorithm     = "AWS4-HMAC-SHA256"
	amzDateFormat = "20060102T150405Z"
	dateFormat    = "20060102"

	HeaderAuthorization = "authorization"
	HeaderDate          = "x-amz-date"
	HeaderContentSHA256 = "x-amz-content-sha256"
	HeaderSecurityToken = "x-amz-security-token"
)

// EmptyPayloadHash is the hex SHA-256 of a zero-length body.
const EmptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// Clock abstracts time retrieval so signatures are reproducible in tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Credentials are the long- or short-lived keys a request is signed with.
// SessionToken is optional; when set it is sent and signed as
// x-amz-security-token.
type Credentials struct {
	AccessKey    string
	SecretKey    string
	SessionToken string
}

// Request describes everything that contributes to a signature.
// CanonicalURI must already be percent-encoded (see EncodePath).
type Request struct {
	Method       string
	Host         string
	CanonicalURI string
	Body         []byte
	Headers      map[string]string
}

// Signer signs requests for a single region and service.
type Signer struct {
	Region  string
	Service string
	clock   Clock
}

// NewSigner creates a Signer. A nil clock uses the wall clock.
func NewSigner(region, service string, clock Clock) *Signer {
	if clock == nil {
		clock = realClock{}
	}
	return &Signer{Region: region, Service: service, clock: clock}
}

// Sign returns the headers to attach to the request: the caller's extra
// headers plus x-amz-date, x-amz-content-sha256, the optional security
// token and Authorization. Keys are lowercase. Host is signed but not
// returned; net/http sends it from the request URL.
func (s *Signer) Sign(creds Credentials, r Request) map[string]string {
	now := s.clock.Now().UTC()
	amzDate := now.Format(amzDateFormat)
	shortDate := now.Format(dateFormat)
	payloadHash := HashPayload(r.Body)

	headers := make(map[string]string, len(r.Headers)+4)
	for k, v := range r.Headers {
		headers[strings.ToLower(k)] = v
	}
	headers[HeaderDate] = amzDate
	headers[HeaderContentSHA256] = payloadHash
	if creds.SessionToken != "" {
		headers[HeaderSecurityToken] = creds.SessionToken
	}
	delete(headers, HeaderAuthorization)

	signing := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		signing[k] = v
	}
	signing["host"] = r.Host

	canonicalHeaders, signedHeaders := canonicalizeHeaders(signing)
	uri := r.CanonicalURI
	if uri == "" {
		uri = "/"
	}

	canonicalRequest := strings.Join([]string{
		strings.ToUpper(r.Method),
		uri,
		"", // no query string on any request this service makes
		canonicalHeaders,
		signedHeaders,
		payloadHash,
	}, "\n")

	scope := fmt.Sprintf("%s/%s/%s/aws4_request", shortDate, s.Region, s.Service)
	stringToSign := strings.Join([]string{
		algorithm,
		amzDate,
		scope,
		hashHex([]byte(canonicalRequest)),
	}, "\n")

	key := deriveSigningKey(creds.SecretKey, shortDate, s.Region, s.Service)
	signature := hex.EncodeToString(hmacSHA256(key, []byte(stringToSign)))

	headers[HeaderAuthorization] = fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		algorithm, creds.AccessKey, scope, signedHeaders, signature)
	return headers
}

// canonicalizeHeaders lowercases names, trims and collapses value
// whitespace, and sorts by name. The second result is the
// semicolon-separated SignedHeaders list.
func canonicalizeHeaders(headers map[string]string) (string, string) {
	names := make([]string, 0, len(headers))
	for k := range headers {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteByte(':')
		b.WriteString(strings.Join(strings.Fields(headers[name]), " "))
		b.WriteByte('\n')
	}
	return b.String(), strings.Join(names, ";")
}

func deriveSigningKey(secret, shortDate, region, service string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secret), []byte(shortDate))
	kRegion := hmacSHA256(kDate, []byte(region))
	kService := hmacSHA256(kRegion, []byte(service))
	return hmacSHA256(kService, []byte("aws4_request"))
}

// HashPayload returns the hex SHA-256 of body.
func HashPayload(body []byte) string {
	if len(body) == 0 {
		return EmptyPayloadHash
	}
	return hashHex(body)
}

func hashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

// EncodePath percent-encodes every byte of path except unreserved
// characters (A-Z a-z 0-9 - _ . ~) and '/'. The result is used both as the
// signed canonical URI and as the raw path on the wire, so the two can never
// disagree.
func EncodePath(path string) string {
	var b strings.Builder
	b.Grow(len(path))
	for i := 0; i < len(path); i++ {
		c := path[i]
		if isUnreserved(c) || c == '/' {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9':
		return true
	case c == '-' || c == '_' || c == '.' || c == '~':
		return true
	}
	return false
}

// ObjectURL returns the wire URL for path under base (scheme and host are
// taken from base) with the path encoded exactly as EncodePath signs it.
func ObjectURL(base *url.URL, path string) *url.URL {
	encoded := EncodePath(path)
	decoded, err := url.PathUnescape(encoded)
	if err != nil {
		decoded = path
	}
	return &url.URL{
		Scheme:  base.Scheme,
		Host:    base.Host,
		Path:    decoded,
		RawPath: encoded,
	}
}
