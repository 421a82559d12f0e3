package schema

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Source is the SchemaSource capability spec §6.1 describes: it pulls
// candidate schema documents from an external substrate. The core only
// parses and validates what comes back; it never reaches into the
// substrate itself.
type Source interface {
	Load(ctx context.Context) ([]Document, error)
}

// FileSchemaSource walks a directory of *.yaml/*.json schema documents,
// grounded on the teacher's filesystem-backed Storage implementations.
type FileSchemaSource struct {
	Dir string
}

func NewFileSchemaSource(dir string) *FileSchemaSource {
	return &FileSchemaSource{Dir: dir}
}

func (f *FileSchemaSource) Load(ctx context.Context) ([]Document, error) {
	entries, err := os.ReadDir(f.Dir)
	if err != nil {
		return nil, fmt.Errorf("read schema dir %q: %w", f.Dir, err)
	}

	var docs []Document
	for _, entry := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		var kind string
		switch ext {
		case ".yaml", ".yml":
			kind = "yaml"
		case ".json":
			kind = "json"
		default:
			continue
		}
		path := filepath.Join(f.Dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read schema file %q: %w", path, err)
		}
		docs = append(docs, Document{
			ID:   strings.TrimSuffix(entry.Name(), ext),
			Raw:  raw,
			Kind: kind,
		})
	}
	return docs, nil
}

// s3Client is the subset of *s3.Client a SchemaSource needs, narrowed so
// tests can substitute a fake the way the teacher's reg_s3_test.go does.
type s3Client interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3SchemaSource lists and fetches schema documents under a bucket
// prefix, grounded on the teacher's schema/reg_s3.go S3Storage.
type S3SchemaSource struct {
	client s3Client
	bucket string
	prefix string
}

func NewS3SchemaSource(client *s3.Client, bucket, prefix string) *S3SchemaSource {
	if !strings.HasSuffix(prefix, "/") && prefix != "" {
		prefix += "/"
	}
	return &S3SchemaSource{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3SchemaSource) Load(ctx context.Context) ([]Document, error) {
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("list schema objects under %q: %w", s.prefix, err)
	}

	docs := make([]Document, 0, len(out.Contents))
	for _, obj := range out.Contents {
		key := aws.ToString(obj.Key)
		res, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, fmt.Errorf("get schema object %q: %w", key, err)
		}
		raw, err := readAllClose(res.Body)
		if err != nil {
			return nil, fmt.Errorf("read schema object %q: %w", key, err)
		}
		id := strings.TrimSuffix(strings.TrimPrefix(key, s.prefix), filepath.Ext(key))
		kind := "json"
		if strings.HasSuffix(key, ".yaml") || strings.HasSuffix(key, ".yml") {
			kind = "yaml"
		}
		docs = append(docs, Document{ID: id, Raw: raw, Kind: kind})
	}
	return docs, nil
}

func readAllClose(body io.ReadCloser) ([]byte, error) {
	defer body.Close()
	return io.ReadAll(body)
}
