package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pitabwire/suitekit/internal/observability"
	"github.com/pitabwire/suitekit/model"
)

func TestClient_defaults(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New()
	if c.Timeout() != 10*time.Second {
		t.Errorf("Timeout() = %v, want 10s", c.Timeout())
	}

	resp, err := c.Get(context.Background(), srv.URL+"/ping")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d", resp.StatusCode)
	}
	if ct := got.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if a := got.Header.Get("Accept"); a != "application/json" {
		t.Errorf("Accept = %q", a)
	}
	if got.Header.Get("Authorization") != "" {
		t.Error("unexpected Authorization header")
	}

	var body struct{ OK bool }
	if err := resp.Decode(&body); err != nil || !body.OK {
		t.Errorf("Decode = %+v, %v", body, err)
	}
}

func TestClient_verbsSendBodiesAndOverrides(t *testing.T) {
	type seen struct {
		method string
		header string
		body   string
	}
	var calls []seen
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		calls = append(calls, seen{method: r.Method, header: r.Header.Get("X-Custom"), body: string(b)})
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New()
	ctx := context.Background()
	payload := map[string]any{"name": "Acme"}

	if _, err := c.Post(ctx, srv.URL, payload, WithHeader("X-Custom", "post")); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Put(ctx, srv.URL, payload); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Patch(ctx, srv.URL, []byte(`{"raw":1}`)); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Delete(ctx, srv.URL, WithHeader("X-Custom", "del")); err != nil {
		t.Fatal(err)
	}

	want := []seen{
		{method: http.MethodPost, header: "post", body: `{"name":"Acme"}`},
		{method: http.MethodPut, body: `{"name":"Acme"}`},
		{method: http.MethodPatch, body: `{"raw":1}`},
		{method: http.MethodDelete, header: "del"},
	}
	if len(calls) != len(want) {
		t.Fatalf("got %d calls, want %d", len(calls), len(want))
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %+v, want %+v", i, calls[i], want[i])
		}
	}
}

func TestClient_callOverrideBeatsDefault(t *testing.T) {
	var ct string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ct = r.Header.Get("Content-Type")
	}))
	defer srv.Close()

	if _, err := New().Post(context.Background(), srv.URL, []byte("a=1"),
		WithHeader("Content-Type", "application/x-www-form-urlencoded")); err != nil {
		t.Fatal(err)
	}
	if ct != "application/x-www-form-urlencoded" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestClient_non2xxReturnsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"amount":["must be positive"]}`))
	}))
	defer srv.Close()

	resp, err := New().Post(context.Background(), srv.URL+"/tx", map[string]int{"amount": -1})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %T %v, want *model.APIError", err, err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Method != http.MethodPost {
		t.Errorf("APIError = %+v", apiErr)
	}
	if _, ok := apiErr.Payload["amount"]; !ok {
		t.Errorf("Payload = %v, want amount key", apiErr.Payload)
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Errorf("response should accompany the error, got %+v", resp)
	}
}

func TestClient_nonJSONErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New().Get(context.Background(), srv.URL)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v", err)
	}
	if apiErr.Payload != nil {
		t.Errorf("Payload = %v, want nil for a text body", apiErr.Payload)
	}
	if !strings.Contains(string(apiErr.Body), "upstream exploded") {
		t.Errorf("Body = %q", apiErr.Body)
	}
}

func TestClient_timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := New(WithTimeout(50*time.Millisecond)).Get(context.Background(), srv.URL)

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || !apiErr.Transport() {
		t.Fatalf("error = %v, want transport APIError", err)
	}
	var env *model.ErrorEnvelope
	if !errors.As(err, &env) || env.Code != model.ErrBackendTimeout {
		t.Errorf("envelope = %v, want %s", env, model.ErrBackendTimeout)
	}
}

func TestClient_connectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := New().Get(context.Background(), addr)

	var env *model.ErrorEnvelope
	if !errors.As(err, &env) || env.Code != model.ErrBackendUnavailable {
		t.Fatalf("error = %v, want %s", err, model.ErrBackendUnavailable)
	}
	if model.StatusCode(err) != 0 {
		t.Errorf("StatusCode = %d, want 0", model.StatusCode(err))
	}
	if strings.Contains(err.Error(), model.ErrBackendUnavailable) {
		t.Errorf("message %q should be the transport's own", err.Error())
	}
}

func TestClient_middlewareOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Order", r.Header.Get("X-Order"))
	}))
	defer srv.Close()

	var trail []string
	appendHeader := func(tag string) RequestMiddleware {
		return func(_ context.Context, req *Request) error {
			req.Header.Set("X-Order", req.Header.Get("X-Order")+tag)
			trail = append(trail, "req-"+tag)
			return nil
		}
	}
	record := func(tag string) ResponseMiddleware {
		return func(_ context.Context, _ *Request, resp *Response, err error) (*Response, error) {
			trail = append(trail, "resp-"+tag)
			return resp, err
		}
	}

	c := New(
		WithRequestMiddleware(appendHeader("a"), appendHeader("b")),
		WithResponseMiddleware(record("1"), record("2")),
	)
	resp, err := c.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if got := resp.Header.Get("X-Order"); got != "ab" {
		t.Errorf("X-Order = %q, want ab", got)
	}
	want := []string{"req-a", "req-b", "resp-1", "resp-2"}
	if strings.Join(trail, ",") != strings.Join(want, ",") {
		t.Errorf("trail = %v, want %v", trail, want)
	}
}

func TestClient_requestMiddlewareErrorAborts(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))
	defer srv.Close()

	boom := errors.New("boom")
	c := New(WithRequestMiddleware(func(context.Context, *Request) error { return boom }))

	if _, err := c.Get(context.Background(), srv.URL); !errors.Is(err, boom) {
		t.Errorf("error = %v, want boom", err)
	}
	if called {
		t.Error("transport should not run after a middleware error")
	}
}

func TestClient_metrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	m := observability.InitMetrics(reg)
	c := New(WithMetrics(m))

	_, _ = c.Get(context.Background(), srv.URL+"/ok")
	_, _ = c.Get(context.Background(), srv.URL+"/missing")

	host := strings.TrimPrefix(srv.URL, "http://")
	if v := testutil.ToFloat64(m.ClientRequestsTotal.WithLabelValues("GET", host, "200")); v != 1 {
		t.Errorf("200 count = %v", v)
	}
	if v := testutil.ToFloat64(m.ClientRequestsTotal.WithLabelValues("GET", host, "404")); v != 1 {
		t.Errorf("404 count = %v", v)
	}
}

func TestResponse_Decode(t *testing.T) {
	r := &Response{Body: []byte(`{"count":2}`)}
	var out map[string]int
	if err := r.Decode(&out); err != nil || out["count"] != 2 {
		t.Errorf("Decode = %v, %v", out, err)
	}
	if err := (&Response{}).Decode(&out); err == nil {
		t.Error("expected error for empty body")
	}
	if err := (&Response{Body: []byte("nope")}).Decode(&out); err == nil {
		t.Error("expected error for invalid JSON")
	}
	var syntaxErr *json.SyntaxError
	if err := (&Response{Body: []byte("{")}).Decode(&out); !errors.As(err, &syntaxErr) {
		t.Errorf("Decode error = %v, want wrapped *json.SyntaxError", err)
	}
}
