package storagebackend

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/orneryd/payloadmgr/internal/payload"
)

// s3API is the subset of the S3 client the Object backend calls, so tests
// can substitute a fake without standing up a real bucket. The production
// path is satisfied by *s3.Client from aws-sdk-go-v2.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Object is the remote-object-store storage backend. Grounded on
// original_source/internal/storage/object/object_arrow_store.cpp: the
// object key layout is bucket/prefix/<uuid>.bin, Allocate is unsupported
// (object stores have no writable-in-place concept), and a Write's fsync
// flag is ignored because a single PUT is already atomic and durable once
// it returns.
type Object struct {
	client s3API
	bucket string
	prefix string
}

// NewObject constructs an Object backend against a real S3-compatible
// endpoint using the ambient AWS credential chain (env vars, shared
// config, IMDS, etc — whatever aws-sdk-go-v2's default config resolution
// finds).
func NewObject(ctx context.Context, bucket, prefix string) (*Object, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, payload.WrapError(payload.KindIOError, err, "load aws config")
	}
	return &Object{client: s3.NewFromConfig(cfg), bucket: bucket, prefix: prefix}, nil
}

// newObjectWithClient is the test/internal constructor taking a pre-built
// client (real or fake).
func newObjectWithClient(client s3API, bucket, prefix string) *Object {
	return &Object{client: client, bucket: bucket, prefix: prefix}
}

func (o *Object) key(id payload.ID) string {
	if o.prefix == "" {
		return fmt.Sprintf("%s.bin", id)
	}
	return fmt.Sprintf("%s/%s.bin", o.prefix, id)
}

func (o *Object) TierType() payload.Tier { return payload.TierObject }

// Allocate is unsupported: object stores have no writable-in-place
// concept, matching the reference ObjectArrowStore::Allocate, which
// throws.
func (o *Object) Allocate(ctx context.Context, id payload.ID, size uint64) (Buffer, error) {
	return nil, payload.WrapError(payload.KindUnsupported, nil, "object tier does not support direct allocation")
}

func (o *Object) Read(ctx context.Context, id payload.ID) ([]byte, error) {
	out, err := o.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.key(id)),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, payload.WrapError(payload.KindNotFound, nil, "object payload %s not found", id)
		}
		return nil, payload.WrapError(payload.KindIOError, err, "get object %s", id)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, payload.WrapError(payload.KindIOError, err, "read object body %s", id)
	}
	return data, nil
}

func (o *Object) Size(ctx context.Context, id payload.ID) (uint64, error) {
	out, err := o.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.key(id)),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return 0, payload.WrapError(payload.KindNotFound, nil, "object payload %s not found", id)
		}
		return 0, payload.WrapError(payload.KindIOError, err, "head object %s", id)
	}
	if out.ContentLength == nil {
		return 0, nil
	}
	return uint64(*out.ContentLength), nil
}

// Write uploads data as a single PUT. fsync is ignored: once PutObject
// returns without error, the write is durable per the object store's own
// consistency guarantees.
func (o *Object) Write(ctx context.Context, id payload.ID, data []byte, fsync bool) error {
	_, err := o.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.key(id)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return payload.WrapError(payload.KindIOError, err, "put object %s", id)
	}
	return nil
}

func (o *Object) Remove(ctx context.Context, id payload.ID) error {
	_, err := o.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.key(id)),
	})
	if err != nil && !isNoSuchKey(err) {
		return payload.WrapError(payload.KindIOError, err, "delete object %s", id)
	}
	return nil
}

func isNoSuchKey(err error) bool {
	var nsk *types.NoSuchKey
	return asType(err, &nsk)
}

func asType(err error, target any) bool {
	type asser interface{ As(any) bool }
	if a, ok := err.(asser); ok {
		return a.As(target)
	}
	return false
}

var _ Backend = (*Object)(nil)
