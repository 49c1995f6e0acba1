package gcs

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/shubhampathak24/shape-to-bq/internal/gauth"
)

const (
	defaultBaseURL       = "https://storage.googleapis.com/storage/v1"
	defaultUploadBaseURL = "https://storage.googleapis.com/upload/storage/v1"
)

// Client talks to the GCS JSON API: downloading source archives and staging
// merged NDJSON for warehouse load jobs.
type Client struct {
	http      *resty.Client
	uploadURL string
	tokens    gauth.TokenSource
}

type Option func(*Client)

// WithBaseURLs points the client at a test server.
func WithBaseURLs(baseURL, uploadBaseURL string) Option {
	return func(c *Client) {
		c.http.SetBaseURL(baseURL)
		c.uploadURL = uploadBaseURL
	}
}

func NewClient(tokens gauth.TokenSource, opts ...Option) *Client {
	c := &Client{
		http: resty.New().
			SetBaseURL(defaultBaseURL).
			SetTimeout(5 * time.Minute).
			SetRetryCount(3).
			SetRetryWaitTime(200 * time.Millisecond),
		uploadURL: defaultUploadBaseURL,
		tokens:    tokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Download fetches gs://bucket/object into destPath.
func (c *Client) Download(ctx context.Context, bucket, object, destPath string) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetQueryParam("alt", "media").
		SetOutput(destPath).
		Get(fmt.Sprintf("/b/%s/o/%s", url.PathEscape(bucket), url.PathEscape(object)))
	if err != nil {
		return fmt.Errorf("failed to download gs://%s/%s: %w", bucket, object, err)
	}
	if resp.IsError() {
		return fmt.Errorf("failed to download gs://%s/%s: status %s", bucket, object, resp.Status())
	}
	return nil
}

// Upload stages srcPath as gs://bucket/object and returns the gs:// URI.
func (c *Client) Upload(ctx context.Context, bucket, object, srcPath string) (string, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", err
	}

	f, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s for upload: %w", srcPath, err)
	}
	defer f.Close()

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetQueryParams(map[string]string{
			"uploadType": "media",
			"name":       object,
		}).
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(f).
		Post(fmt.Sprintf("%s/b/%s/o", c.uploadURL, url.PathEscape(bucket)))
	if err != nil {
		return "", fmt.Errorf("failed to upload gs://%s/%s: %w", bucket, object, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("failed to upload gs://%s/%s: status %s", bucket, object, resp.Status())
	}
	return fmt.Sprintf("gs://%s/%s", bucket, object), nil
}
