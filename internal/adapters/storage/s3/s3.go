// Package s3 stores render artifacts in an Amazon S3 bucket.
package s3

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"renderhub/internal/ports"
)

// Options select the bucket and how object URLs are produced.
type Options struct {
	Bucket string
	Region string
	// Presign makes ObjectURL return time-limited GET URLs instead of the
	// public virtual-hosted URL.
	Presign    bool
	PresignTTL time.Duration
}

// Client implements ports.StorageProvider on S3. Uploads go through the
// multipart upload manager so large renders stream without buffering.
type Client struct {
	api      *s3.Client
	uploader *manager.Uploader
	presign  *s3.PresignClient
	opts     Options
}

func New(api *s3.Client, opts Options) *Client {
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = 15 * time.Minute
	}
	return &Client{
		api:      api,
		uploader: manager.NewUploader(api),
		presign:  s3.NewPresignClient(api),
		opts:     opts,
	}
}

// Dial loads the default AWS credential chain for opts.Region.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}
	return New(s3.NewFromConfig(cfg), opts), nil
}

func (c *Client) Provider() string { return "s3" }

func (c *Client) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	if in.ObjectKey == "" {
		return ports.PutObjectOutput{}, fmt.Errorf("object_key is required")
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(c.opts.Bucket),
		Key:    aws.String(in.ObjectKey),
		Body:   in.Reader,
	}
	if in.ContentType != "" {
		input.ContentType = aws.String(in.ContentType)
	}

	if _, err := c.uploader.Upload(ctx, input); err != nil {
		return ports.PutObjectOutput{}, fmt.Errorf("s3 upload %s: %w", in.ObjectKey, err)
	}
	return ports.PutObjectOutput{ObjectKey: in.ObjectKey, Size: in.Size}, nil
}

func (c *Client) GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error) {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.opts.Bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return nil, "", 0, fmt.Errorf("s3 get %s: %w", objectKey, err)
	}
	return out.Body, aws.ToString(out.ContentType), aws.ToInt64(out.ContentLength), nil
}

func (c *Client) ObjectURL(ctx context.Context, objectKey string) (string, error) {
	if !c.opts.Presign {
		return publicURL(c.opts.Bucket, c.opts.Region, objectKey), nil
	}
	req, err := c.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.opts.Bucket),
		Key:    aws.String(objectKey),
	}, s3.WithPresignExpires(c.opts.PresignTTL))
	if err != nil {
		return "", fmt.Errorf("s3 presign %s: %w", objectKey, err)
	}
	return req.URL, nil
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.opts.Bucket)})
	if err != nil {
		return fmt.Errorf("s3 head bucket %s: %w", c.opts.Bucket, err)
	}
	return nil
}

// publicURL is the virtual-hosted style URL of a public object.
func publicURL(bucket, region, key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, region, strings.Join(parts, "/"))
}
