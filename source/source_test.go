package source

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitMask(t *testing.T) {
	tests := []struct {
		mask           string
		prefix, suffix string
	}{
		{"*.parquet", "", ".parquet"},
		{"part-*.parquet", "part-", ".parquet"},
		{"2021.parquet", "2021.parquet", ""},
		{"*", "", ""},
	}
	for _, tt := range tests {
		prefix, suffix := splitMask(tt.mask)
		if prefix != tt.prefix || suffix != tt.suffix {
			t.Errorf("splitMask(%q) = (%q, %q); want (%q, %q)", tt.mask, prefix, suffix, tt.prefix, tt.suffix)
		}
	}
}

func writeFile(t *testing.T, path string, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLocalSource(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "1d", "2021.parquet"), "abc")
	writeFile(t, filepath.Join(root, "1d", "2020.parquet"), "a")
	writeFile(t, filepath.Join(root, "1d", "notes.txt"), "x")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "1d", "dir.parquet"), 0o755))

	src, err := NewLocalSource(root)
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := src.Exists(ctx, "1d/2021.parquet")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = src.Exists(ctx, "1d/2019.parquet")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = src.Exists(ctx, "1d/dir.parquet")
	require.NoError(t, err)
	assert.False(t, ok, "directories are not input files")

	file, err := src.GetFile(ctx, "1d/2021.parquet")
	require.NoError(t, err)
	assert.Equal(t, int64(3), file.Size)
	assert.False(t, file.Temp)
	assert.Equal(t, filepath.Join(root, "1d", "2021.parquet"), file.LocalPath)
	src.Dispose(file)
	_, err = os.Stat(file.LocalPath)
	assert.NoError(t, err, "Dispose must keep non-temporary files")

	files, err := src.ListFiles(ctx, "1d", "*.parquet")
	require.NoError(t, err)
	assert.Equal(t, []string{"1d/2020.parquet", "1d/2021.parquet"}, files)

	files, err = src.ListFiles(ctx, "4h", "*.parquet")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestNewLocalSourceRejectsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	writeFile(t, path, "x")
	_, err := NewLocalSource(path)
	assert.Error(t, err)
}

// fakeS3 keeps objects in memory and lists them with a "/" delimiter.
type fakeS3 struct {
	objects map[string][]byte
	heads   int
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.heads++
	b, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(b)))}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	b, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	prefix := aws.ToString(in.Prefix)
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) && !strings.Contains(strings.TrimPrefix(k, prefix), "/") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func TestParseS3URL(t *testing.T) {
	tests := []struct {
		url            string
		bucket, prefix string
		wantErr        bool
	}{
		{"s3://bucket/data/prices/", "bucket", "data/prices", false},
		{"s3://bucket", "bucket", "", false},
		{"s3:///prefix", "", "", true},
		{"/local/dir", "", "", true},
	}
	for _, tt := range tests {
		bucket, prefix, err := ParseS3URL(tt.url)
		if tt.wantErr {
			assert.Error(t, err, tt.url)
			continue
		}
		require.NoError(t, err, tt.url)
		assert.Equal(t, tt.bucket, bucket)
		assert.Equal(t, tt.prefix, prefix)
	}
}

func TestS3Source(t *testing.T) {
	client := &fakeS3{objects: map[string][]byte{
		"data/1d/2021.parquet":     []byte("parquet-bytes"),
		"data/1d/2022.parquet":     []byte("p"),
		"data/1d/deeper/x.parquet": []byte("p"),
		"data/4h/2021.parquet":     []byte("p"),
	}}
	src := NewS3SourceWithClient(client, "bucket", "/data/")
	src.tempDir = t.TempDir()
	ctx := context.Background()
	assert.Equal(t, "s3://bucket/data", src.Location())

	ok, err := src.Exists(ctx, "1d/2021.parquet")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = src.Exists(ctx, "1d/2019.parquet")
	require.NoError(t, err)
	assert.False(t, ok)

	file, err := src.GetFile(ctx, "1d/2021.parquet")
	require.NoError(t, err)
	assert.True(t, file.Temp)
	assert.Equal(t, int64(len("parquet-bytes")), file.Size)
	content, err := os.ReadFile(file.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, "parquet-bytes", string(content))
	src.Dispose(file)
	_, err = os.Stat(file.LocalPath)
	assert.True(t, os.IsNotExist(err), "Dispose must remove downloaded files")

	_, err = src.GetFile(ctx, "1d/2019.parquet")
	assert.Error(t, err)

	files, err := src.ListFiles(ctx, "1d", "*.parquet")
	require.NoError(t, err)
	assert.Equal(t, []string{"1d/2021.parquet", "1d/2022.parquet"}, files)
}
