package resourceset

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeS3 struct {
	objects map[string][]byte
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestS3Source(t *testing.T) {
	client := &fakeS3{objects: map[string][]byte{
		"mirror/resources.json": []byte(`{"posts/1":{"title":"a","content":"b"}}`),
	}}
	src := S3Source{Client: client, Bucket: "bkt", Key: "mirror/resources.json"}

	doc, hash, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if doc.Len() != 1 || hash == "" {
		t.Errorf("doc len = %d, hash = %q", doc.Len(), hash)
	}
}

func TestS3SourceMissingKey(t *testing.T) {
	src := S3Source{Client: &fakeS3{objects: map[string][]byte{}}, Bucket: "bkt", Key: "nope.json"}
	if _, _, err := src.Fetch(context.Background()); err == nil {
		t.Error("missing key: want error")
	}
}
