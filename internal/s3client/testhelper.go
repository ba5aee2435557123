package s3client

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
)

// NewInMemory starts a gofakes3 server backed by memory and returns a client
// for bucketName on it. The caller must call the returned stop function.
func NewInMemory(ctx context.Context, bucketName string) (*Client, func(), error) {
	faker := gofakes3.New(s3mem.New())
	ts := httptest.NewServer(faker.Server())

	sdkConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("test-key", "test-secret", ""),
		),
	)
	if err != nil {
		ts.Close()
		return nil, nil, err
	}

	s3Client := s3.NewFromConfig(sdkConfig, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(ts.URL)
		o.UsePathStyle = true
	})

	client := NewFromS3Client(s3Client, bucketName, ts.URL+"/"+bucketName)
	if err := client.EnsureBucket(ctx); err != nil {
		ts.Close()
		return nil, nil, err
	}
	return client, ts.Close, nil
}

// TestClient creates a client backed by gofakes3 for testing. The server is
// closed when the test completes.
func TestClient(t testing.TB, bucketName string) *Client {
	t.Helper()

	client, stop, err := NewInMemory(context.Background(), bucketName)
	if err != nil {
		t.Fatalf("failed to start in-memory S3: %v", err)
	}
	t.Cleanup(stop)
	return client
}
