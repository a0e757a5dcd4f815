package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestContextAwareTransport_InjectsRequestID(t *testing.T) {
	var receivedHeader string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedHeader = r.Header.Get(requestIDHeader)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newHTTPClient()

	ctx := WithRequestID(context.Background(), "req-123")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if receivedHeader != "req-123" {
		t.Errorf("expected X-Request-Id header req-123, got %q", receivedHeader)
	}
}

func TestContextAwareTransport_NoHeaderWithoutRequestID(t *testing.T) {
	var headerPresent bool

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, headerPresent = r.Header[requestIDHeader]
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	resp, err := newHTTPClient().Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if headerPresent {
		t.Error("expected X-Request-Id header to be absent")
	}
}

func TestWithRequestID_EmptyIsNoop(t *testing.T) {
	ctx := context.Background()
	if WithRequestID(ctx, "") != ctx {
		t.Error("expected same context for empty request ID")
	}
	if RequestIDFromContext(ctx) != "" {
		t.Error("expected empty request ID")
	}
}
