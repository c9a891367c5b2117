package storagebackend

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/payloadmgr/internal/payload"
)

type fakeS3 struct {
	objects map[string][]byte
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: make(map[string][]byte)} }

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	n := int64(len(data))
	return &s3.HeadObjectOutput{ContentLength: &n}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestObjectWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	obj := newObjectWithClient(newFakeS3(), "bucket", "payloads")
	id := payload.NewID()

	require.NoError(t, obj.Write(ctx, id, []byte("hello object"), false))

	data, err := obj.Read(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello object"), data)

	size, err := obj.Size(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(len("hello object")), size)
}

func TestObjectKeyLayoutUsesBucketPrefixUUID(t *testing.T) {
	obj := newObjectWithClient(newFakeS3(), "bucket", "payloads")
	id := payload.NewID()
	assert.Equal(t, "payloads/"+id.String()+".bin", obj.key(id))
}

func TestObjectReadMissingIsNotFound(t *testing.T) {
	ctx := context.Background()
	obj := newObjectWithClient(newFakeS3(), "bucket", "payloads")

	_, err := obj.Read(ctx, payload.NewID())
	assert.Equal(t, payload.KindNotFound, payload.KindOf(err))
}

func TestObjectAllocateUnsupported(t *testing.T) {
	ctx := context.Background()
	obj := newObjectWithClient(newFakeS3(), "bucket", "payloads")

	_, err := obj.Allocate(ctx, payload.NewID(), 128)
	assert.Equal(t, payload.KindUnsupported, payload.KindOf(err))
}

func TestObjectRemoveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	obj := newObjectWithClient(newFakeS3(), "bucket", "payloads")
	id := payload.NewID()

	require.NoError(t, obj.Remove(ctx, id))
	require.NoError(t, obj.Write(ctx, id, []byte("x"), false))
	require.NoError(t, obj.Remove(ctx, id))

	_, err := obj.Read(ctx, id)
	assert.Equal(t, payload.KindNotFound, payload.KindOf(err))
}
