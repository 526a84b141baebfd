package gallery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/maykecorrea/dressup/internal/imagegen"
)

// MinioOptions configures the S3 compatible backend.
type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioStore keeps images in a bucket under "<owner>/<key>". Dimensions are
// stored as user metadata on each object.
type MinioStore struct {
	client *minio.Client
	bucket string
	now    func() time.Time
}

// NewMinioStore connects to the endpoint and creates the bucket when missing.
func NewMinioStore(ctx context.Context, opts MinioOptions) (*MinioStore, error) {
	if strings.TrimSpace(opts.Endpoint) == "" || strings.TrimSpace(opts.Bucket) == "" {
		return nil, errors.New("gallery: minio endpoint and bucket are required")
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("gallery: minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("gallery: check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("gallery: create bucket: %w", err)
		}
	}
	return &MinioStore{client: client, bucket: opts.Bucket, now: time.Now}, nil
}

func (s *MinioStore) Save(ctx context.Context, owner string, img imagegen.ImageRef) (Item, error) {
	owner, err := checkOwner(owner)
	if err != nil {
		return Item{}, err
	}
	if img.Empty() {
		return Item{}, fmt.Errorf("%w: image is empty", imagegen.ErrInvalidRequest)
	}
	item, ref := newItem(img, s.now())
	meta := map[string]string{
		"width":      strconv.Itoa(item.Width),
		"height":     strconv.Itoa(item.Height),
		"created-at": item.CreatedAt.Format(time.RFC3339Nano),
	}
	_, err = s.client.PutObject(ctx, s.bucket, owner+"/"+item.Key, bytes.NewReader(ref.Data), item.Size, minio.PutObjectOptions{
		ContentType:  item.ContentType,
		UserMetadata: meta,
	})
	if err != nil {
		return Item{}, fmt.Errorf("gallery: put object: %w", err)
	}
	return item, nil
}

// List returns the owner's items, newest first.
func (s *MinioStore) List(ctx context.Context, owner string) ([]Item, error) {
	owner, err := checkOwner(owner)
	if err != nil {
		return nil, err
	}
	prefix := owner + "/"
	items := []Item{}
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("gallery: list objects: %w", obj.Err)
		}
		info, err := s.client.StatObject(ctx, s.bucket, obj.Key, minio.StatObjectOptions{})
		if err != nil {
			return nil, fmt.Errorf("gallery: stat object: %w", err)
		}
		items = append(items, itemFromInfo(strings.TrimPrefix(obj.Key, prefix), info))
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items, nil
}

func (s *MinioStore) Open(ctx context.Context, owner, key string) (imagegen.ImageRef, error) {
	object, err := s.object(owner, key)
	if err != nil {
		return imagegen.ImageRef{}, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, object, minio.GetObjectOptions{})
	if err != nil {
		return imagegen.ImageRef{}, mapMinioError(err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return imagegen.ImageRef{}, mapMinioError(err)
	}
	return imagegen.Sniff(data, ""), nil
}

func (s *MinioStore) Delete(ctx context.Context, owner, key string) error {
	object, err := s.object(owner, key)
	if err != nil {
		return err
	}
	if _, err := s.client.StatObject(ctx, s.bucket, object, minio.StatObjectOptions{}); err != nil {
		return mapMinioError(err)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, object, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("gallery: remove object: %w", err)
	}
	return nil
}

func (s *MinioStore) object(owner, key string) (string, error) {
	owner, err := checkOwner(owner)
	if err != nil {
		return "", err
	}
	key, err = checkKey(key)
	if err != nil {
		return "", err
	}
	return owner + "/" + key, nil
}

func itemFromInfo(key string, info minio.ObjectInfo) Item {
	item := Item{
		Key:         key,
		ContentType: info.ContentType,
		Size:        info.Size,
		CreatedAt:   info.LastModified.UTC(),
	}
	item.Width, _ = strconv.Atoi(metaValue(info.UserMetadata, "width"))
	item.Height, _ = strconv.Atoi(metaValue(info.UserMetadata, "height"))
	if ts, err := time.Parse(time.RFC3339Nano, metaValue(info.UserMetadata, "created-at")); err == nil {
		item.CreatedAt = ts.UTC()
	}
	return item
}

// metaValue looks a user metadata key up regardless of header casing.
func metaValue(meta map[string]string, key string) string {
	for k, v := range meta {
		k = strings.TrimPrefix(strings.ToLower(k), "x-amz-meta-")
		if k == key {
			return v
		}
	}
	return ""
}

func mapMinioError(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrNotFound
	}
	return fmt.Errorf("gallery: %w", err)
}

var _ Store = (*MinioStore)(nil)
