package upload

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	putInput   *s3.PutObjectInput
	expires    time.Duration
	deleted    []string
	presignErr error
	deleteErr  error
}

func (f *fakeS3) PresignPutObject(_ context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	if f.presignErr != nil {
		return nil, f.presignErr
	}
	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	f.putInput = params
	f.expires = opts.Expires
	return &v4.PresignedHTTPRequest{
		URL:    "https://bucket.s3.amazonaws.com/" + aws.ToString(params.Key) + "?X-Amz-Signature=abc",
		Method: "PUT",
	}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, params *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	f.deleted = append(f.deleted, aws.ToString(params.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func newTestPresigner(fake *fakeS3) *Presigner {
	p := newPresigner("marketplace-images", 0, fake, fake)
	p.now = func() time.Time { return time.UnixMilli(1700000000123) }
	return p
}

var keyPattern = regexp.MustCompile(`^products/user-1/1700000000123-[0-9a-f]{16}\.png$`)

func TestPresignPut(t *testing.T) {
	fake := &fakeS3{}
	p := newTestPresigner(fake)

	out, err := p.PresignPut(context.Background(), "user-1", "shoe.PNG", "image/png")
	require.NoError(t, err)

	assert.Regexp(t, keyPattern, out.Key)
	assert.Contains(t, out.URL, out.Key)
	assert.Equal(t, "marketplace-images", aws.ToString(fake.putInput.Bucket))
	assert.Equal(t, "image/png", aws.ToString(fake.putInput.ContentType))
	assert.Equal(t, DefaultURLTTL, fake.expires)
}

func TestPresignPut_UniqueKeys(t *testing.T) {
	p := newTestPresigner(&fakeS3{})

	a, err := p.PresignPut(context.Background(), "user-1", "a.png", "image/png")
	require.NoError(t, err)
	b, err := p.PresignPut(context.Background(), "user-1", "a.png", "image/png")
	require.NoError(t, err)
	assert.NotEqual(t, a.Key, b.Key)
}

func TestPresignPut_Errors(t *testing.T) {
	p := newTestPresigner(&fakeS3{})
	_, err := p.PresignPut(context.Background(), "user-1", "doc.pdf", "application/pdf")
	assert.ErrorIs(t, err, ErrInvalidFileType)

	failing := newTestPresigner(&fakeS3{presignErr: errors.New("no credentials")})
	_, err = failing.PresignPut(context.Background(), "user-1", "a.png", "image/png")
	assert.ErrorContains(t, err, "no credentials")
}

func TestExtension(t *testing.T) {
	tests := []struct {
		fileName, fileType, want string
	}{
		{"photo.jpeg", "image/jpeg", "jpeg"},
		{"archive.tar.GIF", "image/gif", "gif"},
		{"noext", "image/webp", "webp"},
		{"trailing.", "image/png", "png"},
		{"weird.p/../ng", "image/png", "ng"},
	}
	for _, tt := range tests {
		t.Run(tt.fileName, func(t *testing.T) {
			assert.Equal(t, tt.want, extension(tt.fileName, tt.fileType))
		})
	}
}

func TestIsAllowedType(t *testing.T) {
	for _, ft := range AllowedTypes {
		assert.True(t, IsAllowedType(ft), ft)
	}
	assert.True(t, IsAllowedType("IMAGE/PNG"))
	assert.False(t, IsAllowedType("image/svg+xml"))
	assert.False(t, IsAllowedType(""))
}

func TestOwnsKey(t *testing.T) {
	tests := []struct {
		name  string
		owner string
		key   string
		want  bool
	}{
		{"own key", "user-1", "products/user-1/1-ab.png", true},
		{"other owner", "user-2", "products/user-1/1-ab.png", false},
		{"prefix of owner id", "user-1", "products/user-10/1-ab.png", false},
		{"bare prefix", "user-1", "products/user-1/", false},
		{"traversal", "user-1", "products/user-1/../user-2/1-ab.png", false},
		{"empty owner", "", "products//x.png", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OwnsKey(tt.owner, tt.key))
		})
	}
}

func TestDelete(t *testing.T) {
	fake := &fakeS3{}
	p := newTestPresigner(fake)

	require.NoError(t, p.Delete(context.Background(), "products/user-1/1-ab.png"))
	assert.Equal(t, []string{"products/user-1/1-ab.png"}, fake.deleted)

	fake.deleteErr = errors.New("access denied")
	assert.ErrorContains(t, p.Delete(context.Background(), "k"), "access denied")
}
