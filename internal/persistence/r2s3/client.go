// Package r2s3 uploads snapshot and archive files to an S3-compatible
// bucket (Cloudflare R2, MinIO) using SigV4 signed PUT requests.
package r2s3

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"time"
)

const (
	sigV4Algorithm = "AWS4-HMAC-SHA256"
	sigV4Service   = "s3"
)

var ErrIncompleteConfig = errors.New("mirror endpoint, bucket and credentials are required")

// Config describes the target bucket. Region defaults to "auto" as R2
// expects.
type Config struct {
	Endpoint        string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Prefix          string
	Workers         int
}

// ConfigFromEnv reads TILEFORGE_MIRROR_* variables. ok is false when
// TILEFORGE_MIRROR is unset or false.
func ConfigFromEnv(lookup func(string) (string, bool)) (cfg Config, ok bool, err error) {
	get := func(k string) string {
		v, _ := lookup(k)
		return strings.TrimSpace(v)
	}
	if on, _ := strconv.ParseBool(get("TILEFORGE_MIRROR")); !on {
		return Config{}, false, nil
	}
	cfg = Config{
		Endpoint:        get("TILEFORGE_MIRROR_ENDPOINT"),
		Bucket:          get("TILEFORGE_MIRROR_BUCKET"),
		AccessKeyID:     get("TILEFORGE_MIRROR_ACCESS_KEY_ID"),
		SecretAccessKey: get("TILEFORGE_MIRROR_SECRET_ACCESS_KEY"),
		Region:          get("TILEFORGE_MIRROR_REGION"),
		Prefix:          get("TILEFORGE_MIRROR_PREFIX"),
	}
	if n, err := strconv.Atoi(get("TILEFORGE_MIRROR_WORKERS")); err == nil && n > 0 {
		cfg.Workers = n
	}
	if cfg.Endpoint == "" || cfg.Bucket == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return cfg, true, ErrIncompleteConfig
	}
	return cfg, true, nil
}

type Client struct {
	endpoint        string
	bucket          string
	region          string
	accessKeyID     string
	secretAccessKey string
	httpClient      *http.Client
	now             func() time.Time
}

func New(cfg Config) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" || cfg.Bucket == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, ErrIncompleteConfig
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid endpoint: %s", endpoint)
	}
	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	return &Client{
		endpoint:        strings.TrimRight(u.String(), "/"),
		bucket:          cfg.Bucket,
		region:          region,
		accessKeyID:     cfg.AccessKeyID,
		secretAccessKey: cfg.SecretAccessKey,
		httpClient:      &http.Client{Timeout: 2 * time.Minute},
		now:             time.Now,
	}, nil
}

func (c *Client) PutFile(ctx context.Context, objectKey, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return err
	}
	if st.IsDir() {
		return fmt.Errorf("path is directory: %s", localPath)
	}
	return c.Put(ctx, objectKey, f, st.Size())
}

func (c *Client) PutBytes(ctx context.Context, objectKey string, b []byte) error {
	return c.Put(ctx, objectKey, bytes.NewReader(b), int64(len(b)))
}

// Put uploads body under objectKey. body is read twice: once to hash the
// payload and once to send it.
func (c *Client) Put(ctx context.Context, objectKey string, body io.ReadSeeker, size int64) error {
	objectKey = normalizeObjectKey(objectKey)
	if objectKey == "" {
		return fmt.Errorf("empty object key")
	}
	h := sha256.New()
	if _, err := io.Copy(h, body); err != nil {
		return err
	}
	payloadHash := hex.EncodeToString(h.Sum(nil))
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return err
	}

	canonicalURI := "/" + c.bucket + "/" + escapePath(objectKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.endpoint+canonicalURI, body)
	if err != nil {
		return err
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", "application/octet-stream")
	c.sign(req, canonicalURI, payloadHash)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
	return fmt.Errorf("put %s: status %d: %s", objectKey, resp.StatusCode, strings.TrimSpace(string(msg)))
}

func (c *Client) sign(req *http.Request, canonicalURI, payloadHash string) {
	now := c.now().UTC()
	amzDate := now.Format("20060102T150405Z")
	dateStamp := now.Format("20060102")
	host := req.URL.Host

	req.Header.Set("Host", host)
	req.Header.Set("x-amz-content-sha256", payloadHash)
	req.Header.Set("x-amz-date", amzDate)

	const signedHeaders = "host;x-amz-content-sha256;x-amz-date"
	canonicalRequest := strings.Join([]string{
		req.Method,
		canonicalURI,
		"",
		"host:" + host + "\nx-amz-content-sha256:" + payloadHash + "\nx-amz-date:" + amzDate + "\n",
		signedHeaders,
		payloadHash,
	}, "\n")
	scope := strings.Join([]string{dateStamp, c.region, sigV4Service, "aws4_request"}, "/")
	stringToSign := strings.Join([]string{sigV4Algorithm, amzDate, scope, sha256Hex([]byte(canonicalRequest))}, "\n")

	key := hmacSHA256([]byte("AWS4"+c.secretAccessKey), []byte(dateStamp))
	key = hmacSHA256(key, []byte(c.region))
	key = hmacSHA256(key, []byte(sigV4Service))
	key = hmacSHA256(key, []byte("aws4_request"))
	signature := hex.EncodeToString(hmacSHA256(key, []byte(stringToSign)))

	req.Header.Set("Authorization", fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		sigV4Algorithm, c.accessKeyID, scope, signedHeaders, signature))
}

func normalizeObjectKey(key string) string {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	clean := strings.TrimPrefix(path.Clean("/"+key), "/")
	if clean == "" || clean == "." || strings.HasPrefix(clean, "../") {
		return ""
	}
	return clean
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i := range parts {
		parts[i] = url.PathEscape(parts[i])
	}
	return strings.Join(parts, "/")
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	_, _ = h.Write(data)
	return h.Sum(nil)
}
