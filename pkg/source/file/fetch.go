package file

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"google.golang.org/api/option"

	"github.com/ajitpratap0/edgesql/pkg/config"
)

// fetch opens location and returns its body with the object name used for
// format detection.
func fetch(ctx context.Context, location string, objects config.ObjectConfig) (io.ReadCloser, string, error) {
	switch {
	case strings.HasPrefix(location, "s3://"):
		return fetchS3(ctx, strings.TrimPrefix(location, "s3://"), objects)
	case strings.HasPrefix(location, "gs://"):
		return fetchGCS(ctx, strings.TrimPrefix(location, "gs://"), objects)
	}

	p := strings.TrimPrefix(location, "file://")
	f, err := os.Open(p) //nolint:gosec // G304: reading user-named files is the point
	if err != nil {
		return nil, "", err
	}
	return f, filepath.Base(p), nil
}

func splitObject(rest string) (bucket, key string, ok bool) {
	bucket, key, ok = strings.Cut(rest, "/")
	return bucket, key, ok && bucket != "" && key != ""
}

// fetchS3 downloads the object to a temporary file, removed on Close.
func fetchS3(ctx context.Context, rest string, objects config.ObjectConfig) (io.ReadCloser, string, error) {
	bucket, key, ok := splitObject(rest)
	if !ok {
		return nil, "", os.ErrNotExist
	}

	var opts []func(*awsconfig.LoadOptions) error
	if objects.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(objects.S3Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, "", err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if objects.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(objects.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	downloader := manager.NewDownloader(client)

	tmp, err := os.CreateTemp("", "edgesql-s3-*")
	if err != nil {
		return nil, "", err
	}
	if _, err := downloader.Download(ctx, tmp, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, "", err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, "", err
	}
	return &tempFile{File: tmp}, path.Base(key), nil
}

func fetchGCS(ctx context.Context, rest string, objects config.ObjectConfig) (io.ReadCloser, string, error) {
	bucket, object, ok := splitObject(rest)
	if !ok {
		return nil, "", os.ErrNotExist
	}

	var opts []option.ClientOption
	if objects.GCSCredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(objects.GCSCredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, "", err
	}

	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		client.Close()
		return nil, "", err
	}
	return &multiCloser{Reader: r, closers: []io.Closer{r, client}}, path.Base(object), nil
}

// tempFile deletes itself on Close.
type tempFile struct {
	*os.File
}

func (t *tempFile) Close() error {
	err := t.File.Close()
	if rmErr := os.Remove(t.File.Name()); err == nil {
		err = rmErr
	}
	return err
}

// multiCloser reads from Reader and closes every closer in order.
type multiCloser struct {
	io.Reader
	closers []io.Closer
}

func (m *multiCloser) Close() error {
	var first error
	for _, c := range m.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
