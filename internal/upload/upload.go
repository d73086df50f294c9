// Package upload issues presigned S3 URLs for product images and deletes
// uploaded objects on behalf of their owner.
package upload

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DefaultURLTTL is how long a presigned upload URL stays valid.
const DefaultURLTTL = time.Hour

// AllowedTypes are the content types accepted for product images.
var AllowedTypes = []string{
	"image/jpeg",
	"image/jpg",
	"image/png",
	"image/gif",
	"image/webp",
}

// ErrInvalidFileType is returned for content types outside AllowedTypes.
var ErrInvalidFileType = errors.New("invalid file type")

// Presigned is an upload target handed to the client.
type Presigned struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

type presignAPI interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type objectAPI interface {
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Presigner creates upload URLs and deletes objects in one bucket.
type Presigner struct {
	bucket  string
	ttl     time.Duration
	presign presignAPI
	objects objectAPI
	now     func() time.Time
}

// New creates a Presigner using the default AWS credential chain.
func New(ctx context.Context, region, bucket string, ttl time.Duration) (*Presigner, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	return newPresigner(bucket, ttl, s3.NewPresignClient(client), client), nil
}

func newPresigner(bucket string, ttl time.Duration, presign presignAPI, objects objectAPI) *Presigner {
	if ttl <= 0 {
		ttl = DefaultURLTTL
	}
	return &Presigner{
		bucket:  bucket,
		ttl:     ttl,
		presign: presign,
		objects: objects,
		now:     time.Now,
	}
}

// IsAllowedType reports whether fileType may be uploaded.
func IsAllowedType(fileType string) bool {
	return slices.Contains(AllowedTypes, strings.ToLower(fileType))
}

// PresignPut returns a URL the client can PUT fileName's content to. The
// object key is namespaced under the owner's ID.
func (p *Presigner) PresignPut(ctx context.Context, ownerID, fileName, fileType string) (*Presigned, error) {
	if !IsAllowedType(fileType) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFileType, fileType)
	}

	key, err := p.objectKey(ownerID, fileName, fileType)
	if err != nil {
		return nil, err
	}

	req, err := p.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(fileType),
	}, s3.WithPresignExpires(p.ttl))
	if err != nil {
		return nil, fmt.Errorf("failed to presign upload: %w", err)
	}

	return &Presigned{URL: req.URL, Key: key}, nil
}

// Delete removes the object at key.
func (p *Presigner) Delete(ctx context.Context, key string) error {
	_, err := p.objects.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

// OwnerPrefix is the key prefix of every object uploaded by ownerID.
func OwnerPrefix(ownerID string) string {
	return "products/" + ownerID + "/"
}

// OwnsKey reports whether key was issued to ownerID. Keys that escape the
// owner's prefix through path segments are rejected.
func OwnsKey(ownerID, key string) bool {
	prefix := OwnerPrefix(ownerID)
	if ownerID == "" || !strings.HasPrefix(key, prefix) || len(key) == len(prefix) {
		return false
	}
	return path.Clean(key) == key
}

// objectKey builds products/<owner>/<unix millis>-<16 hex>.<ext>.
func (p *Presigner) objectKey(ownerID, fileName, fileType string) (string, error) {
	suffix := make([]byte, 8)
	if _, err := rand.Read(suffix); err != nil {
		return "", fmt.Errorf("failed to generate key suffix: %w", err)
	}

	return fmt.Sprintf("%s%d-%s.%s",
		OwnerPrefix(ownerID),
		p.now().UnixMilli(),
		hex.EncodeToString(suffix),
		extension(fileName, fileType),
	), nil
}

// extension takes the file name's extension, falling back to the content
// type's subtype when the name has none.
func extension(fileName, fileType string) string {
	if i := strings.LastIndexByte(fileName, '.'); i >= 0 && i < len(fileName)-1 {
		if ext := sanitize(fileName[i+1:]); ext != "" {
			return ext
		}
	}
	_, subtype, _ := strings.Cut(strings.ToLower(fileType), "/")
	return sanitize(subtype)
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
