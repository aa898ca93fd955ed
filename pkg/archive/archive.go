// Package archive stores sent digests in an S3-compatible bucket (AWS S3,
// Cloudflare R2, MinIO).
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/elonfeng/pitchpulse/pkg/alert"
)

// Config selects the bucket and, for non-AWS providers, the endpoint.
type Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Prefix    string
}

// putter is the one S3 call the archive needs.
type putter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archive writes each digest as JSON plus its HTML body.
type Archive struct {
	client putter
	bucket string
	prefix string
}

// New builds an S3 client from cfg. Static keys are used when given,
// otherwise the default AWS credential chain.
func New(ctx context.Context, cfg Config) (*Archive, error) {
	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

func newWithClient(client putter, bucket, prefix string) *Archive {
	return &Archive{client: client, bucket: bucket, prefix: prefix}
}

// Keys returns the object keys a digest for date is stored under.
func (a *Archive) Keys(date time.Time) (jsonKey, htmlKey string) {
	base := path.Join(a.prefix, date.UTC().Format("2006/01/02"), "digest")
	return base + ".json", base + ".html"
}

// Save uploads n. Re-sending on the same day overwrites that day's objects.
func (a *Archive) Save(ctx context.Context, n *alert.Notification) error {
	data, err := json.MarshalIndent(n, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal digest: %w", err)
	}
	jsonKey, htmlKey := a.Keys(n.Date)

	if err := a.put(ctx, jsonKey, "application/json", data); err != nil {
		return err
	}
	return a.put(ctx, htmlKey, "text/html; charset=utf-8", []byte(n.HTML))
}

func (a *Archive) put(ctx context.Context, key, contentType string, body []byte) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", a.bucket, key, err)
	}
	return nil
}
