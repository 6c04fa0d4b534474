package health

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// Mock S3 client
type mockS3Client struct {
	err error
}

func (m *mockS3Client) HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &s3.HeadBucketOutput{}, nil
}

// Mock SQS client
type mockSQSClient struct {
	err error
}

func (m *mockSQSClient) GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &sqs.GetQueueAttributesOutput{}, nil
}

// Mock database
type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(ctx context.Context) error {
	return m.err
}

func testConfig() *Config {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	return &Config{
		ServiceName:    "test-service",
		S3Client:       &mockS3Client{},
		SQSClient:      &mockSQSClient{},
		Database:       &mockPinger{},
		S3Bucket:       "test-bucket",
		SQSQueueURL:    "https://sqs.test",
		Logger:         logger,
		CacheTTL:       time.Second,
		CheckTimeout:   time.Second,
		DeepCheckLimit: time.Millisecond,
	}
}

func TestChecker_Check_Shallow(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	config := DefaultConfig("test-service", logger)
	checker := NewChecker(config)

	status := checker.Check(context.Background(), false)

	if status.Status != "healthy" {
		t.Errorf("Status = %s, want healthy", status.Status)
	}
	if status.Service != "test-service" {
		t.Errorf("Service = %s, want test-service", status.Service)
	}
	if len(status.Checks) != 0 {
		t.Errorf("Checks should be empty for shallow check, got %d", len(status.Checks))
	}
}

func TestChecker_Check_Deep_AllHealthy(t *testing.T) {
	checker := NewChecker(testConfig())

	status := checker.Check(context.Background(), true)

	if status.Status != "healthy" {
		t.Errorf("Status = %s, want healthy", status.Status)
	}
	if len(status.Checks) != 3 {
		t.Errorf("Checks should have 3 entries, got %d", len(status.Checks))
	}
	for _, name := range []string{"s3", "sqs", "database"} {
		if status.Checks[name].Status != "healthy" {
			t.Errorf("%s check status = %s, want healthy", name, status.Checks[name].Status)
		}
	}
}

func TestChecker_Check_Deep_S3Unhealthy(t *testing.T) {
	config := testConfig()
	config.S3Client = &mockS3Client{err: errors.New("s3 error")}
	checker := NewChecker(config)

	status := checker.Check(context.Background(), true)

	if status.Status != "degraded" {
		t.Errorf("Status = %s, want degraded", status.Status)
	}
	if status.Checks["s3"].Status != "unhealthy" {
		t.Errorf("S3 check status = %s, want unhealthy", status.Checks["s3"].Status)
	}
	if status.Checks["s3"].Error != "s3 error" {
		t.Errorf("S3 check error = %s, want 's3 error'", status.Checks["s3"].Error)
	}
}

func TestChecker_Check_Deep_DatabaseUnhealthy(t *testing.T) {
	config := testConfig()
	config.Database = &mockPinger{err: errors.New("connection refused")}
	checker := NewChecker(config)

	status := checker.Check(context.Background(), true)

	if status.Status != "degraded" {
		t.Errorf("Status = %s, want degraded", status.Status)
	}
	if status.Checks["database"].Status != "unhealthy" {
		t.Errorf("database check status = %s, want unhealthy", status.Checks["database"].Status)
	}
}

func TestChecker_QueueDegraded(t *testing.T) {
	config := testConfig()
	config.QueueDegraded = true
	checker := NewChecker(config)

	status := checker.Check(context.Background(), false)

	if status.Status != "degraded" {
		t.Errorf("Status = %s, want degraded", status.Status)
	}
	if status.Checks["queue"].Status != "degraded" {
		t.Errorf("queue check status = %s, want degraded", status.Checks["queue"].Status)
	}
}

func TestChecker_Check_Caching(t *testing.T) {
	config := testConfig()
	s3Mock := &mockS3Client{}
	config.S3Client = s3Mock
	checker := NewChecker(config)

	// Prime the cache with a deep check
	first := checker.Check(context.Background(), true)

	// Break S3; the shallow check should still return the cached result
	s3Mock.err = errors.New("s3 down")
	second := checker.Check(context.Background(), false)

	if second != first {
		t.Error("shallow check within TTL should return the cached status")
	}
}

func TestChecker_Handler(t *testing.T) {
	checker := NewChecker(testConfig())

	req := httptest.NewRequest("GET", "/healthz", nil)
	rr := httptest.NewRecorder()

	checker.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("handler returned %d, want %d", rr.Code, http.StatusOK)
	}

	var status Status
	if err := json.Unmarshal(rr.Body.Bytes(), &status); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if status.Status != "healthy" {
		t.Errorf("Status = %s, want healthy", status.Status)
	}
}

func TestChecker_DeepHandler_RateLimit(t *testing.T) {
	config := testConfig()
	config.DeepCheckLimit = time.Hour
	checker := NewChecker(config)

	// First deep check passes
	req := httptest.NewRequest("GET", "/healthz/deep", nil)
	rr := httptest.NewRecorder()
	checker.DeepHandler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("first deep check returned %d, want %d", rr.Code, http.StatusOK)
	}

	// Immediate second deep check is rate limited
	rr = httptest.NewRecorder()
	checker.DeepHandler().ServeHTTP(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("second deep check returned %d, want %d", rr.Code, http.StatusTooManyRequests)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("rate limited response missing Retry-After header")
	}
}
