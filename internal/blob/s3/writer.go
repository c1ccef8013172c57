package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const (
	// minPartSize is the S3 minimum multipart part size (5 MiB).
	minPartSize int64 = 5 * 1024 * 1024

	contentTypeJSONL = "application/x-ndjson"
)

// Writer implements domain.BlobWriter.
type Writer struct {
	client *s3.Client
	bucket string
}

// NewWriter creates a Writer for the client's bucket.
func NewWriter(c *Client) *Writer {
	return &Writer{client: c.S3(), bucket: c.Bucket()}
}

// Put uploads data with a single PutObject request.
func (w *Writer) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	_, err := w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(path),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3blob: put object %s: %w", path, err)
	}
	return nil
}

// PutMultipart uploads data through the multipart upload manager. partSize
// is clamped to the S3 minimum.
func (w *Writer) PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error {
	if partSize < minPartSize {
		partSize = minPartSize
	}
	uploader := manager.NewUploader(w.client, func(u *manager.Uploader) {
		u.PartSize = partSize
	})
	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(path),
		Body:        data,
		ContentType: aws.String(contentTypeJSONL),
	})
	if err != nil {
		return fmt.Errorf("s3blob: multipart upload %s: %w", path, err)
	}
	return nil
}

// blobPutter is the subset of domain.BlobWriter the jobs in this package
// need.
type blobPutter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// putJSONL uploads a JSONL buffer, switching to multipart once it exceeds
// one part.
func putJSONL(ctx context.Context, w blobPutter, path string, buf []byte) error {
	if int64(len(buf)) > minPartSize {
		return w.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	}
	return w.Put(ctx, path, bytes.NewReader(buf), contentTypeJSONL)
}
