package blob

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"medoai/internal/config"
	"medoai/internal/logger"
)

// presignTTL is the longest expiry S3 presigned URLs allow.
const presignTTL = 7 * 24 * time.Hour

// minioAPI is the part of *minio.Client the store uses.
type minioAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	SetBucketPolicy(ctx context.Context, bucketName, policy string) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	EndpointURL() *url.URL
}

// MinioStore stores blobs in an S3-compatible bucket. A public bucket hands
// out plain object URLs; a private one presigns, and those URLs expire.
type MinioStore struct {
	client    minioAPI
	bucket    string
	public    bool
	publicURL string
	log       *logger.Logger
}

func NewMinioStore(ctx context.Context, sc config.StorageConfig, log *logger.Logger) (*MinioStore, error) {
	client, err := minio.New(sc.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(sc.AccessKey, sc.SecretKey, ""),
		Secure: sc.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	s := newMinioStore(client, sc, log)
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func newMinioStore(client minioAPI, sc config.StorageConfig, log *logger.Logger) *MinioStore {
	return &MinioStore{
		client:    client,
		bucket:    sc.Bucket,
		public:    sc.PublicBucket,
		publicURL: strings.TrimRight(sc.PublicURL, "/"),
		log:       log.With("service", "blob.MinioStore"),
	}
}

func (s *MinioStore) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.bucket, err)
		}
		s.log.Info("bucket created", "bucket", s.bucket)
	}
	if s.public {
		if err := s.client.SetBucketPolicy(ctx, s.bucket, publicReadPolicy(s.bucket)); err != nil {
			return fmt.Errorf("set public policy on %s: %w", s.bucket, err)
		}
	}
	return nil
}

func publicReadPolicy(bucket string) string {
	return fmt.Sprintf(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/*"]}]}`, bucket)
}

func (s *MinioStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string, progress ProgressFunc) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	if progress != nil {
		opts.Progress = &progressSink{total: size, fn: progress}
	}
	if _, err := s.client.PutObject(ctx, s.bucket, key, r, size, opts); err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

func (s *MinioStore) URL(ctx context.Context, key string) (string, error) {
	if s.public {
		return s.objectURL(key), nil
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, presignTTL, nil)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}

// URLsExpire reports whether URL results are presigned.
func (s *MinioStore) URLsExpire() bool { return !s.public }

func (s *MinioStore) objectURL(key string) string {
	base := s.publicURL
	if base == "" {
		base = strings.TrimRight(s.client.EndpointURL().String(), "/")
	}
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return base + "/" + url.PathEscape(s.bucket) + "/" + strings.Join(segments, "/")
}

// Delete stats first because RemoveObject succeeds silently for missing keys.
func (s *MinioStore) Delete(ctx context.Context, key string) error {
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return ErrNotFound
		}
		return fmt.Errorf("stat object %s: %w", key, err)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}
