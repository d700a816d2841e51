package objectstore

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/require"

	"github.com/fatflowers/pcbuilder/pkg/config"
)

type fakeS3 struct {
	objects map[string][]byte
	pageLen int
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b, _ := io.ReadAll(in.Body)
	f.objects[aws.ToString(in.Key)] = b
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	var out s3.ListObjectsV2Output
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			out.Contents = append(out.Contents, s3types.Object{Key: aws.String(k)})
			if len(out.Contents) == f.pageLen {
				out.IsTruncated = aws.Bool(true)
				out.NextContinuationToken = aws.String("next")
				break
			}
		}
	}
	return &out, nil
}

func (f *fakeS3) DeleteObjects(_ context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	for _, o := range in.Delete.Objects {
		delete(f.objects, aws.ToString(o.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func TestStore_PutAndDeletePrefix(t *testing.T) {
	api := &fakeS3{objects: map[string][]byte{}, pageLen: 1}
	s := NewWithAPI(api, config.StorageConfig{Bucket: "assets", Region: "us-east-1", PublicBaseURL: "https://cdn.test/"})
	ctx := context.Background()

	u, err := s.Put(ctx, ShopPrefix("demo.myshopify.com"), "../cpu fan.png", "image/png", []byte("png"))
	require.NoError(t, err)
	require.Equal(t, "https://cdn.test/uploads/demo.myshopify.com/cpu%20fan.png", u)
	require.Equal(t, []byte("png"), api.objects["uploads/demo.myshopify.com/cpu fan.png"])

	_, err = s.Put(ctx, ShopPrefix("demo.myshopify.com"), "gpu.png", "image/png", []byte("x"))
	require.NoError(t, err)
	_, err = s.Put(ctx, ShopPrefix("other.myshopify.com"), "gpu.png", "image/png", []byte("x"))
	require.NoError(t, err)

	n, err := s.DeletePrefix(ctx, ShopPrefix("demo.myshopify.com"))
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Len(t, api.objects, 1)
}

func TestStore_DefaultURLAndDisabled(t *testing.T) {
	s := NewWithAPI(&fakeS3{objects: map[string][]byte{}}, config.StorageConfig{Bucket: "assets", Region: "eu-west-1"})
	require.Equal(t, "https://assets.s3.eu-west-1.amazonaws.com/a/b.png", s.PublicURL("a/b.png"))

	var disabled Store
	require.False(t, disabled.Enabled())
	_, err := disabled.Put(context.Background(), "p", "n", "image/png", nil)
	require.Error(t, err)
}
