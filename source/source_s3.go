package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const s3Scheme = "s3://"

// S3API is the part of the S3 client used by S3Source.
type S3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// AWSOptions selects the region and, optionally, static credentials.
// Empty keys fall back to the default AWS credential chain.
type AWSOptions struct {
	Region    string
	AccessKey string
	SecretKey string
}

// S3Source reads input files from a bucket prefix, downloading them to temporary local files.
type S3Source struct {
	client S3API
	bucket string
	prefix string
	// tempDir where downloaded files are kept until disposed; empty means os.TempDir()
	tempDir string
}

// IsS3URL reports whether the location has the s3:// scheme.
func IsS3URL(location string) bool {
	return strings.HasPrefix(location, s3Scheme)
}

// ParseS3URL splits s3://bucket/some/prefix into the bucket and the prefix without slashes at the ends.
func ParseS3URL(location string) (bucket string, prefix string, err error) {
	if !IsS3URL(location) {
		return "", "", fmt.Errorf("not an S3 URL: %s", location)
	}
	rest := strings.TrimPrefix(location, s3Scheme)
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("missing bucket name in %s", location)
	}
	return bucket, strings.Trim(prefix, "/"), nil
}

// NewS3Source creates an S3 client from the AWS options and wraps it for the given s3:// location.
func NewS3Source(ctx context.Context, location string, opts AWSOptions) (*S3Source, error) {
	bucket, prefix, err := ParseS3URL(location)
	if err != nil {
		return nil, err
	}
	loadOptions := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOptions = append(loadOptions, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewS3SourceWithClient(s3.NewFromConfig(awsConfig), bucket, prefix), nil
}

// NewS3SourceWithClient wraps an existing client, used by tests with a fake S3API.
func NewS3SourceWithClient(client S3API, bucket string, prefix string) *S3Source {
	return &S3Source{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (l *S3Source) Location() string {
	if l.prefix == "" {
		return s3Scheme + l.bucket
	}
	return s3Scheme + l.bucket + "/" + l.prefix
}

func (l *S3Source) key(relativePath string) string {
	return path.Join(l.prefix, relativePath)
}

func (l *S3Source) Exists(ctx context.Context, relativePath string) (bool, error) {
	_, err := l.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(l.key(relativePath)),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, errors.Wrapf(err, "failed to check s3://%s/%s", l.bucket, l.key(relativePath))
}

func (l *S3Source) GetFile(ctx context.Context, relativePath string) (FileInfo, error) {
	key := l.key(relativePath)
	out, err := l.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return FileInfo{}, errors.Wrapf(err, "failed to download s3://%s/%s", l.bucket, key)
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			log.Error("Failed to close the S3 object body", zap.String("key", key), zap.Error(err))
		}
	}(out.Body)

	tmp, err := os.CreateTemp(l.tempDir, "parquet2json-*-"+path.Base(key))
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to create a temporary file: %w", err)
	}
	file := FileInfo{RelativePath: relativePath, LocalPath: tmp.Name(), Temp: true}
	size, err := io.Copy(tmp, out.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		l.Dispose(file)
		return FileInfo{}, errors.Wrapf(err, "failed to save s3://%s/%s to %s", l.bucket, key, file.LocalPath)
	}
	file.Size = size
	log.Debug("Downloaded", zap.String("key", key), zap.String("localPath", file.LocalPath), zap.Int64("size", size))
	return file, nil
}

func (l *S3Source) Dispose(file FileInfo) {
	if file.Temp {
		err := os.Remove(file.LocalPath) // Delete the file
		if err != nil {
			log.Error("Failed to delete file", zap.String("path", file.LocalPath), zap.Error(err))
		}
	}
}

func (l *S3Source) ListFiles(ctx context.Context, relativePath string, fileMask string) ([]string, error) {
	dirKey := l.key(relativePath)
	if dirKey != "" {
		dirKey += "/"
	}
	prefix, suffix := splitMask(fileMask)
	files := []string{}

	paginator := s3.NewListObjectsV2Paginator(l.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(l.bucket),
		Prefix:    aws.String(dirKey),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return []string{}, errors.Wrapf(err, "failed to list s3://%s/%s", l.bucket, dirKey)
		}
		for _, object := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(object.Key), dirKey)
			if name != "" && !strings.Contains(name, "/") && matchMask(name, prefix, suffix) {
				files = append(files, path.Join(relativePath, name))
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	return errors.As(err, &notFound) || errors.As(err, &noSuchKey)
}
