package app

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-resty/resty/v2"

	"media-broker/internal/broker"
	"media-broker/internal/objectstore"
)

// Upload clients the probe can drive.
const (
	ProbeClientSDK     = "sdk"
	ProbeClientBuiltin = "builtin"
)

// ProbeOptions configures a device simulation against a running broker.
type ProbeOptions struct {
	Server    string // broker base URL
	Token     string
	Workspace string
	FileName  string
	Payload   []byte
	Client    string // ProbeClientSDK or ProbeClientBuiltin
	Timeout   time.Duration
	Clock     broker.Clock
}

// ProbeStep is one stage of a probe run.
type ProbeStep struct {
	Name   string
	Status string // "success" or "error"
	Detail string
}

// ProbeReport describes a probe run. Steps are recorded up to and
// including the first failure.
type ProbeReport struct {
	ObjectKey   string
	Fingerprint string
	Steps       []ProbeStep
}

func (r *ProbeReport) record(name string, err error, detail string) error {
	step := ProbeStep{Name: name, Status: "success", Detail: detail}
	if err != nil {
		step.Status = "error"
		step.Detail = err.Error()
	}
	r.Steps = append(r.Steps, step)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// brokerEnvelope is the broker's {code, message, data} response body.
type brokerEnvelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type probeGrant struct {
	Endpoint        string `json:"endpoint"`
	Bucket          string `json:"bucket"`
	Region          string `json:"region"`
	ObjectKeyPrefix string `json:"object_key_prefix"`
	Credentials     struct {
		AccessKeyID     string `json:"access_key_id"`
		AccessKeySecret string `json:"access_key_secret"`
		SecurityToken   string `json:"security_token"`
		Expire          int64  `json:"expire"`
	} `json:"credentials"`
}

// objectClient is what the probe needs from an upload client.
type objectClient interface {
	put(ctx context.Context, key string, body []byte) error
	head(ctx context.Context, key string) (bool, error)
	remove(ctx context.Context, key string) error
}

// Probe walks the device upload flow: obtain STS credentials, upload an
// object directly to the bucket, report it through upload-callback, confirm
// fast-upload now hits, delete the object and confirm the broker evicts the
// stale record.
func Probe(ctx context.Context, opts ProbeOptions) (*ProbeReport, error) {
	if opts.Workspace == "" {
		return nil, fmt.Errorf("workspace is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = broker.RealClock{}
	}
	if opts.FileName == "" {
		opts.FileName = "probe-" + opts.Clock.Now().UTC().Format("150405") + ".txt"
	}
	if len(opts.Payload) == 0 {
		opts.Payload = []byte("hello-from-media-broker-probe")
	}

	sum := md5.Sum(opts.Payload)
	fingerprint := hex.EncodeToString(sum[:])
	report := &ProbeReport{
		ObjectKey:   broker.BuildObjectKey(opts.Workspace, opts.FileName, opts.Clock.Now()),
		Fingerprint: fingerprint,
	}
	tiny := fmt.Sprintf("%s_%d", fingerprint[:8], len(opts.Payload))

	api := resty.New().
		SetBaseURL(strings.TrimRight(opts.Server, "/")).
		SetHeader("Content-Type", "application/json").
		SetHeader("x-auth-token", opts.Token).
		SetTimeout(opts.Timeout)
	media := "/media/api/v1/workspaces/" + opts.Workspace

	var grant probeGrant
	err := call(ctx, api, "/storage/api/v1/workspaces/"+opts.Workspace+"/sts", map[string]any{}, 0, &grant)
	if err == nil && !strings.HasPrefix(report.ObjectKey, grant.ObjectKeyPrefix) {
		err = fmt.Errorf("object key %s outside granted prefix %s", report.ObjectKey, grant.ObjectKeyPrefix)
	}
	if err := report.record("sts", err, fmt.Sprintf("expire=%ds", grant.Credentials.Expire)); err != nil {
		return report, err
	}

	objects, err := newObjectClient(ctx, opts.Client, grant)
	if err := report.record("client", err, opts.Client); err != nil {
		return report, err
	}

	err = objects.put(ctx, report.ObjectKey, opts.Payload)
	if err := report.record("put", err, fmt.Sprintf("%d bytes", len(opts.Payload))); err != nil {
		return report, err
	}

	exists, err := objects.head(ctx, report.ObjectKey)
	if err == nil && !exists {
		err = errors.New("object missing after upload")
	}
	if err := report.record("head", err, "present"); err != nil {
		return report, err
	}

	var key string
	err = call(ctx, api, media+"/upload-callback", map[string]any{
		"object_key":       report.ObjectKey,
		"fingerprint":      fingerprint,
		"tiny_fingerprint": tiny,
		"name":             opts.FileName,
	}, 0, &key)
	if err := report.record("upload-callback", err, key); err != nil {
		return report, err
	}

	fastUpload := map[string]any{"fingerprint": fingerprint, "name": opts.FileName}
	var hit struct {
		ObjectKey string `json:"object_key"`
	}
	err = call(ctx, api, media+"/fast-upload", fastUpload, 0, &hit)
	if err == nil && hit.ObjectKey != report.ObjectKey {
		err = fmt.Errorf("fast-upload returned %q, want %q", hit.ObjectKey, report.ObjectKey)
	}
	if err := report.record("fast-upload", err, "hit"); err != nil {
		return report, err
	}

	err = objects.remove(ctx, report.ObjectKey)
	if err := report.record("delete", err, ""); err != nil {
		return report, err
	}

	err = call(ctx, api, media+"/fast-upload", fastUpload, 1, nil)
	if err := report.record("fast-upload-after-delete", err, "evicted"); err != nil {
		return report, err
	}
	return report, nil
}

// call POSTs body to path and decodes the envelope data into out. The
// envelope code must equal wantCode.
func call(ctx context.Context, api *resty.Client, path string, body any, wantCode int, out any) error {
	var env brokerEnvelope
	resp, err := api.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&env).
		SetError(&env).
		Post(path)
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("http %d: %s", resp.StatusCode(), env.Message)
	}
	if env.Code != wantCode {
		return fmt.Errorf("code %d: %s", env.Code, env.Message)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decoding data: %w", err)
	}
	return nil
}

func newObjectClient(ctx context.Context, kind string, grant probeGrant) (objectClient, error) {
	switch kind {
	case "", ProbeClientSDK:
		return newSDKClient(ctx, grant)
	case ProbeClientBuiltin:
		c, err := objectstore.New(objectstore.Config{
			Endpoint:     grant.Endpoint,
			Bucket:       grant.Bucket,
			Region:       grant.Region,
			AccessKey:    grant.Credentials.AccessKeyID,
			SecretKey:    grant.Credentials.AccessKeySecret,
			SessionToken: grant.Credentials.SecurityToken,
		})
		if err != nil {
			return nil, err
		}
		return &builtinClient{c: c}, nil
	default:
		return nil, fmt.Errorf("unknown probe client: %s", kind)
	}
}

// sdkClient uploads with the AWS SDK, as the pilot apps do.
type sdkClient struct {
	bucket string
	s3     *s3.Client
}

func newSDKClient(ctx context.Context, grant probeGrant) (*sdkClient, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(grant.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			grant.Credentials.AccessKeyID,
			grant.Credentials.AccessKeySecret,
			grant.Credentials.SecurityToken,
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(grant.Endpoint)
		o.UsePathStyle = true
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})
	return &sdkClient{bucket: grant.Bucket, s3: client}, nil
}

func (c *sdkClient) put(ctx context.Context, key string, body []byte) error {
	_, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String("application/octet-stream"),
	})
	return err
}

func (c *sdkClient) head(ctx context.Context, key string) (bool, error) {
	_, err := c.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf interface{ ErrorCode() string }
		if errors.As(err, &nf) && (nf.ErrorCode() == "NotFound" || nf.ErrorCode() == "NoSuchKey") {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *sdkClient) remove(ctx context.Context, key string) error {
	_, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	return err
}

// builtinClient uploads with the broker's own signer.
type builtinClient struct {
	c *objectstore.Client
}

func (b *builtinClient) put(ctx context.Context, key string, body []byte) error {
	return b.c.PutObject(ctx, key, body, "application/octet-stream")
}

func (b *builtinClient) head(ctx context.Context, key string) (bool, error) {
	return b.c.HeadObject(ctx, key)
}

func (b *builtinClient) remove(ctx context.Context, key string) error {
	return b.c.DeleteObject(ctx, key)
}
