// Package s3 implements storage.Storage on Amazon S3 or an S3-compatible
// service, signing read URLs with SigV4 query presigning.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/kbukum/playurl/clock"
	"github.com/kbukum/playurl/logger"
	"github.com/kbukum/playurl/storage"
)

// MaxPresignTTL is the longest validity SigV4 query signing allows.
const MaxPresignTTL = 7 * 24 * time.Hour

func init() {
	storage.RegisterFactory(storage.ProviderS3, func(providerCfg any, deps storage.Deps) (storage.Storage, error) {
		c, ok := providerCfg.(*Config)
		if !ok || c == nil {
			return nil, fmt.Errorf("s3: expected *s3.Config, got %T", providerCfg)
		}
		c.ApplyDefaults()
		if err := c.Validate(); err != nil {
			return nil, err
		}
		return NewStorage(context.Background(), c, deps)
	})
}

// Storage serves objects from a single bucket.
type Storage struct {
	client  *awss3.Client
	presign *awss3.PresignClient
	bucket  *string
	cacheCC *string
	clock   clock.Clock
	log     *logger.Logger
}

// NewStorage resolves AWS credentials (static keys when both are configured,
// otherwise the default chain) and builds the client.
func NewStorage(ctx context.Context, cfg *Config, deps storage.Deps) (*Storage, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}
	return newWithClient(awss3.NewFromConfig(awsCfg, clientOptions(cfg)), cfg, deps), nil
}

func loadOptions(cfg *Config) []func(*awsconfig.LoadOptions) error {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return opts
	}
	static := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
	return append(opts, awsconfig.WithCredentialsProvider(static))
}

// clientOptions forces path-style addressing for custom endpoints such as
// MinIO, where virtual-host buckets rarely resolve.
func clientOptions(cfg *Config) func(*awss3.Options) {
	return func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle || cfg.Endpoint != ""
	}
}

func newWithClient(client *awss3.Client, cfg *Config, deps storage.Deps) *Storage {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	s := &Storage{
		client:  client,
		presign: awss3.NewPresignClient(client),
		bucket:  aws.String(cfg.Bucket),
		clock:   clock.OrReal(deps.Clock),
		log:     log.WithComponent("storage.s3"),
	}
	if cfg.ResponseCacheControl != "" {
		s.cacheCC = aws.String(cfg.ResponseCacheControl)
	}
	return s
}

// SignedURL presigns a GetObject for key. The returned expiry is read from
// the injected clock so callers can compare it against their own margin.
func (s *Storage) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 || ttl > MaxPresignTTL {
		return "", time.Time{}, fmt.Errorf("storage: s3 presign ttl %v out of range (0, %v]", ttl, MaxPresignTTL)
	}
	expiresAt := s.clock.Now().Add(ttl)
	req, err := s.presign.PresignGetObject(ctx, &awss3.GetObjectInput{
		Bucket:               s.bucket,
		Key:                  aws.String(key),
		ResponseCacheControl: s.cacheCC,
	}, awss3.WithPresignExpires(ttl))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("storage: s3 presign %q: %w", key, err)
	}
	return req.URL, expiresAt, nil
}

func (s *Storage) Upload(ctx context.Context, key string, reader io.Reader) error {
	in := &awss3.PutObjectInput{Bucket: s.bucket, Key: aws.String(key), Body: reader}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return fmt.Errorf("storage: s3 upload %q: %w", key, err)
	}
	return nil
}

// Delete reports storage.ErrNotFound for absent keys. S3 itself answers 204
// either way, hence the HEAD first.
func (s *Storage) Delete(ctx context.Context, key string) error {
	switch exists, err := s.Exists(ctx, key); {
	case err != nil:
		return err
	case !exists:
		return storage.ErrNotFound
	}
	in := &awss3.DeleteObjectInput{Bucket: s.bucket, Key: aws.String(key)}
	if _, err := s.client.DeleteObject(ctx, in); err != nil {
		return fmt.Errorf("storage: s3 delete %q: %w", key, err)
	}
	s.log.Debug("object deleted", logger.Fields(logger.FieldObjectKey, key))
	return nil
}

func (s *Storage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &awss3.HeadObjectInput{Bucket: s.bucket, Key: aws.String(key)})
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	switch {
	case err == nil:
		return true, nil
	case errors.As(err, &nf), errors.As(err, &nsk):
		return false, nil
	default:
		return false, fmt.Errorf("storage: s3 head %q: %w", key, err)
	}
}

// Walk visits every object under prefix, one ListObjectsV2 page at a time.
func (s *Storage) Walk(ctx context.Context, prefix string, fn func(storage.ObjectInfo) error) error {
	pages := awss3.NewListObjectsV2Paginator(s.client, &awss3.ListObjectsV2Input{
		Bucket: s.bucket,
		Prefix: aws.String(prefix),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("storage: s3 list %q: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			err := fn(storage.ObjectInfo{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

var _ storage.Storage = (*Storage)(nil)
