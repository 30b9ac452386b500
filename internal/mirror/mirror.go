// Package mirror uploads new and changed documents to an S3 compatible bucket.
package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dustin/go-humanize"
	"github.com/openmined/docsync/internal/config"
)

// MetadataChecksum is the object metadata key holding the document fingerprint.
const MetadataChecksum = "checksum"

// PutObjectAPI is the part of the S3 client the mirror uses.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Mirror struct {
	client PutObjectAPI
	bucket string
	prefix string
}

func NewS3Mirror(client PutObjectAPI, bucket, prefix string) *S3Mirror {
	return &S3Mirror{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

// New builds an S3Mirror from configuration. A custom endpoint (minio and friends) switches
// to path style addressing. The http client stays buildable so AWS_CA_BUNDLE can add roots.
func New(ctx context.Context, cfg *config.MirrorConfig) (*S3Mirror, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("mirror: no bucket configured")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithHTTPClient(awshttp.NewBuildableClient().
			WithTimeout(5 * time.Minute).
			WithTransportOptions(func(tr *http.Transport) {
				tr.Proxy = http.ProxyFromEnvironment
				tr.MaxIdleConns = 16
				tr.IdleConnTimeout = 90 * time.Second
				tr.TLSHandshakeTimeout = 10 * time.Second
				tr.ExpectContinueTimeout = 1 * time.Second
				tr.ForceAttemptHTTP2 = true
			})),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("mirror: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	slog.Info("mirror enabled", "bucket", cfg.Bucket, "endpoint", cfg.Endpoint, "prefix", cfg.Prefix)
	return NewS3Mirror(client, cfg.Bucket, cfg.Prefix), nil
}

// Key is the object key of a document: <prefix>/<target>/<documentID>.
func (m *S3Mirror) Key(target, documentID string) string {
	return strings.TrimPrefix(path.Join(m.prefix, target, documentID), "/")
}

func (m *S3Mirror) Put(ctx context.Context, target, documentID, localPath, fingerprint string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("mirror: open %q: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("mirror: stat %q: %w", localPath, err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(documentID))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := m.Key(target, documentID)
	resp, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType),
		Metadata: map[string]string{
			MetadataChecksum: fingerprint,
			"target":         target,
		},
	})
	if err != nil {
		return fmt.Errorf("mirror: put %s/%s: %w", m.bucket, key, err)
	}

	slog.Debug("mirror put",
		"bucket", m.bucket,
		"key", key,
		"size", humanize.Bytes(uint64(info.Size())),
		"etag", strings.ReplaceAll(aws.ToString(resp.ETag), "\"", ""),
	)
	return nil
}
