package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/spacebio/knowledge-engine/backend/pkg/loader/pdf"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type objectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3TextLoader loads objects referenced as s3://bucket/key. A location
// without a bucket uses the default bucket. PDF objects are converted to
// text.
type S3TextLoader struct {
	bucket string
	client objectGetter
}

// NewS3TextLoaderParams configures the S3 client. Endpoint allows
// S3-compatible storage such as MinIO.
type NewS3TextLoaderParams struct {
	Bucket    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

func NewS3TextLoader(ctx context.Context, params NewS3TextLoaderParams) (*S3TextLoader, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(params.Region),
	}
	if params.Endpoint != "" {
		opts = append(opts, config.WithBaseEndpoint(params.Endpoint))
	}
	if params.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(params.AccessKey, params.SecretKey, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = params.Endpoint != ""
	})
	return NewS3TextLoaderWithClient(params.Bucket, client), nil
}

func NewS3TextLoaderWithClient(bucket string, client objectGetter) *S3TextLoader {
	return &S3TextLoader{bucket: bucket, client: client}
}

// ParseLocation splits s3://bucket/key. An empty bucket falls back to def.
func ParseLocation(location, def string) (bucket, key string, err error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "" && u.Scheme != "s3" {
		return "", "", fmt.Errorf("not an s3 location: %s", location)
	}
	if u.Scheme == "" {
		return def, strings.TrimPrefix(location, "/"), nil
	}
	bucket = u.Host
	if bucket == "" {
		bucket = def
	}
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("incomplete s3 location: %s", location)
	}
	return bucket, key, nil
}

func (l *S3TextLoader) LoadText(ctx context.Context, location string) ([]byte, error) {
	bucket, key, err := ParseLocation(location, l.bucket)
	if err != nil {
		return nil, err
	}
	out, err := l.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, out.Body); err != nil {
		return nil, err
	}
	if pdf.IsPDF(buf.Bytes()) {
		return pdf.ExtractText(ctx, buf.Bytes(), 0)
	}
	return buf.Bytes(), nil
}
