package vision

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   Kind
	}{
		{401, `{"error":"invalid api key"}`, KindUnauthorized},
		{403, "forbidden", KindUnauthorized},
		{429, "too many requests", KindRateLimit},
		{429, `{"error":{"type":"insufficient_quota"}}`, KindQuota},
		{402, "payment required", KindQuota},
		{400, "bad request", KindInvalidRequest},
		{404, "model not found", KindInvalidRequest},
		{500, "internal error", KindServerError},
		{503, "overloaded", KindServerError},
		{418, "teapot", KindUnknown},
	}

	for _, tc := range cases {
		got := classifyStatus(tc.status, tc.body)
		if got.Kind != tc.want {
			t.Errorf("classifyStatus(%d, %q) = %s, want %s", tc.status, tc.body, got.Kind, tc.want)
		}
		if got.Status != tc.status {
			t.Errorf("status not preserved: got %d, want %d", got.Status, tc.status)
		}
	}
}

func TestClassifyTransport(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{context.DeadlineExceeded, KindTimeout},
		{errors.New("dial tcp: connection refused"), KindNetwork},
		{errors.New("lookup api.example.com: no such host"), KindNetwork},
		{errors.New("request timed out"), KindTimeout},
		{fmt.Errorf("wrap: %w", &Error{Kind: KindUnauthorized, Status: 401}), KindUnauthorized},
	}

	for _, tc := range cases {
		if got := classifyTransport(tc.err); got.Kind != tc.want {
			t.Errorf("classifyTransport(%v) = %s, want %s", tc.err, got.Kind, tc.want)
		}
	}
}

func TestErrorTransient(t *testing.T) {
	transient := []Kind{KindTimeout, KindNetwork, KindServerError, KindRateLimit}
	for _, k := range transient {
		if !(&Error{Kind: k}).Transient() {
			t.Errorf("%s should be transient", k)
		}
	}

	permanent := []Kind{KindUnauthorized, KindQuota, KindInvalidRequest, KindUnknown}
	for _, k := range permanent {
		if (&Error{Kind: k}).Transient() {
			t.Errorf("%s should be permanent", k)
		}
	}
}

func TestErrorMessagesCovered(t *testing.T) {
	kinds := []Kind{
		KindUnauthorized, KindQuota, KindRateLimit, KindTimeout,
		KindNetwork, KindInvalidRequest, KindServerError, KindUnknown,
	}
	for _, k := range kinds {
		e := &Error{Kind: k}
		if e.Message() == "" {
			t.Errorf("no message for %s", k)
		}
		if e.Hint() == "" {
			t.Errorf("no hint for %s", k)
		}
	}
}
