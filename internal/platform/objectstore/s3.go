package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/pcbuilder/pkg/config"
)

var Module = fx.Options(
	fx.Provide(New),
)

// API is the subset of *s3.Client the store uses.
type API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// Store stages merchant uploads in a bucket Shopify can fetch from.
type Store struct {
	api     API
	bucket  string
	baseURL string
}

func New(cfg *config.Config, l *zap.SugaredLogger) (*Store, error) {
	sc := cfg.Storage
	if sc.Bucket == "" {
		l.Warnw("storage bucket empty; uploads disabled")
		return &Store{}, nil
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(sc.Region)}
	if sc.AccessKey != "" && sc.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(sc.AccessKey, sc.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if sc.Endpoint != "" {
			o.BaseEndpoint = aws.String(sc.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewWithAPI(client, sc), nil
}

func NewWithAPI(api API, sc config.StorageConfig) *Store {
	base := sc.PublicBaseURL
	if base == "" && sc.Bucket != "" {
		base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", sc.Bucket, sc.Region)
	}
	return &Store{api: api, bucket: sc.Bucket, baseURL: strings.TrimRight(base, "/")}
}

func (s *Store) Enabled() bool {
	return s != nil && s.api != nil && s.bucket != ""
}

// ShopPrefix is the key prefix owning all uploads of a shop.
func ShopPrefix(shop string) string {
	return "uploads/" + shop + "/"
}

// Put stores data under prefix/name and returns its public URL.
func (s *Store) Put(ctx context.Context, prefix, name, contentType string, data []byte) (string, error) {
	if !s.Enabled() {
		return "", fmt.Errorf("object storage is not configured")
	}
	key := path.Join(prefix, path.Base(name))
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return s.PublicURL(key), nil
}

func (s *Store) PublicURL(key string) string {
	segs := strings.Split(key, "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return s.baseURL + "/" + strings.Join(segs, "/")
}

// DeletePrefix removes every object under prefix and returns how many went.
func (s *Store) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if !s.Enabled() {
		return 0, fmt.Errorf("object storage is not configured")
	}
	deleted := 0
	var token *string
	for {
		page, err := s.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return deleted, fmt.Errorf("failed to list %s: %w", prefix, err)
		}
		if len(page.Contents) > 0 {
			ids := make([]s3types.ObjectIdentifier, 0, len(page.Contents))
			for _, o := range page.Contents {
				ids = append(ids, s3types.ObjectIdentifier{Key: o.Key})
			}
			if _, err := s.api.DeleteObjects(ctx, &s3.DeleteObjectsInput{
				Bucket: aws.String(s.bucket),
				Delete: &s3types.Delete{Objects: ids, Quiet: aws.Bool(true)},
			}); err != nil {
				return deleted, fmt.Errorf("failed to delete under %s: %w", prefix, err)
			}
			deleted += len(ids)
		}
		if !aws.ToBool(page.IsTruncated) {
			return deleted, nil
		}
		token = page.NextContinuationToken
	}
}
