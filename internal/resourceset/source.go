package resourceset

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/contentmirror/contentmirror/internal/cryptoutil"
	"github.com/contentmirror/contentmirror/internal/cval"
	"github.com/contentmirror/contentmirror/internal/xerrors"
)

// Source fetches the current resource-set document. The returned hash
// identifies the raw bytes so callers can skip re-applying an
// unchanged document.
type Source interface {
	Fetch(ctx context.Context) (doc cval.Value, hash string, err error)
}

// FileSource reads the document from a local JSON file.
type FileSource struct {
	Path string
}

func (f FileSource) Fetch(ctx context.Context) (cval.Value, string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return cval.Value{}, "", xerrors.Wrapf(err, "read %s", f.Path)
	}
	return decode(data, f.Path)
}

// S3Client is the slice of the S3 API the source needs.
type S3Client interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads the document from a single S3 object.
type S3Source struct {
	Client S3Client
	Bucket string
	Key    string
}

func (s S3Source) Fetch(ctx context.Context) (cval.Value, string, error) {
	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return cval.Value{}, "", xerrors.Newf("s3://%s/%s does not exist", s.Bucket, s.Key)
		}
		return cval.Value{}, "", xerrors.Wrapf(err, "get s3://%s/%s", s.Bucket, s.Key)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return cval.Value{}, "", xerrors.Wrapf(err, "read s3://%s/%s", s.Bucket, s.Key)
	}
	return decode(data, "s3://"+s.Bucket+"/"+s.Key)
}

func decode(data []byte, origin string) (cval.Value, string, error) {
	doc, err := cval.FromJSON(data)
	if err != nil {
		return cval.Value{}, "", xerrors.Wrapf(err, "decode %s", origin)
	}
	return doc, cryptoutil.SHA256Hex(data), nil
}
