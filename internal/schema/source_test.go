package schema

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSchemaSourceLoadsYAMLAndJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "person.json"), []byte(`{"name":"person"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "post.yaml"), []byte("name: post\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignore.txt"), []byte("not a schema"), 0o644))

	src := NewFileSchemaSource(dir)
	docs, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)

	byID := map[string]Document{}
	for _, d := range docs {
		byID[d.ID] = d
	}
	assert.Equal(t, "json", byID["person"].Kind)
	assert.Equal(t, "yaml", byID["post"].Kind)
}

type fakeS3Client struct {
	objects map[string][]byte
}

func (f *fakeS3Client) ListObjectsV2(_ context.Context, params *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	prefix := aws.ToString(params.Prefix)
	var contents []types.Object
	for key := range f.objects {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			contents = append(contents, types.Object{Key: aws.String(key)})
		}
	}
	return &s3.ListObjectsV2Output{Contents: contents}, nil
}

func (f *fakeS3Client) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(params.Key)
	data, ok := f.objects[key]
	if !ok {
		return nil, assert.AnError
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestS3SchemaSourceLoadsObjectsUnderPrefix(t *testing.T) {
	client := &fakeS3Client{objects: map[string][]byte{
		"schemas/person.json": []byte(`{"name":"person"}`),
		"schemas/post.json":   []byte(`{"name":"post"}`),
		"other/ignored.json":  []byte(`{}`),
	}}

	src := &S3SchemaSource{client: client, bucket: "b", prefix: "schemas/"}
	docs, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)
}
