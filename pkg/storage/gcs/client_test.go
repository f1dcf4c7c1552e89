package gcs

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/api/googleapi"
)

type roundTripFunc func(*http.Request) *http.Response

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req), nil
}

func newTestClient(t *testing.T, fn roundTripFunc) *Client {
	t.Helper()
	return &Client{
		defaultBucket: "bucket",
		apiBase:       "https://gcs.test",
		tokenSource: &tokenSource{fetch: func(context.Context) (string, time.Time, error) {
			return "token", time.Now().Add(time.Hour), nil
		}},
		httpClient: &http.Client{Transport: fn},
	}
}

func response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{},
	}
}

func TestUploadObjectSendsMediaUpload(t *testing.T) {
	t.Parallel()

	var gotBody string
	client := newTestClient(t, func(req *http.Request) *http.Response {
		if req.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", req.Method)
		}
		if req.URL.Path != "/upload/storage/v1/b/bucket/o" {
			t.Fatalf("unexpected path %s", req.URL.Path)
		}
		if req.URL.Query().Get("uploadType") != "media" || req.URL.Query().Get("name") != "service_reports/26030100001.pdf" {
			t.Fatalf("unexpected query %s", req.URL.RawQuery)
		}
		if req.Header.Get("Content-Type") != "application/pdf" {
			t.Fatalf("unexpected content type %s", req.Header.Get("Content-Type"))
		}
		if req.Header.Get("Authorization") != "Bearer token" {
			t.Fatalf("unexpected auth %s", req.Header.Get("Authorization"))
		}
		raw, _ := io.ReadAll(req.Body)
		gotBody = string(raw)
		return response(http.StatusOK, `{"name":"service_reports/26030100001.pdf"}`)
	})

	err := client.UploadObject(context.Background(), "", "service_reports/26030100001.pdf", "application/pdf", []byte("%PDF-1.4"))
	if err != nil {
		t.Fatalf("UploadObject: %v", err)
	}
	if gotBody != "%PDF-1.4" {
		t.Fatalf("unexpected body %q", gotBody)
	}
}

func TestUploadObjectSurfacesAPIError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(*http.Request) *http.Response {
		return response(http.StatusForbidden, `{"error":{"code":403,"message":"no write access"}}`)
	})

	err := client.UploadObject(context.Background(), "bucket", "a.pdf", "application/pdf", []byte("x"))
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusForbidden {
		t.Fatalf("expected googleapi 403, got %v", err)
	}
}

func TestUploadObjectValidatesInput(t *testing.T) {
	t.Parallel()

	client := &Client{}
	if err := client.UploadObject(context.Background(), "", "a.pdf", "application/pdf", nil); err == nil {
		t.Fatal("expected missing bucket error")
	}
	client.defaultBucket = "bucket"
	if err := client.UploadObject(context.Background(), "", "", "application/pdf", nil); err == nil {
		t.Fatal("expected missing object error")
	}
}

func TestDeleteObjectSuccess(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(req *http.Request) *http.Response {
		if req.Method != http.MethodDelete {
			t.Fatalf("expected DELETE, got %s", req.Method)
		}
		if req.URL.EscapedPath() != "/storage/v1/b/bucket/o/service_reports%2F1.pdf" {
			t.Fatalf("unexpected path %s", req.URL.EscapedPath())
		}
		return response(http.StatusNoContent, "")
	})

	if err := client.DeleteObject(context.Background(), "bucket", "service_reports/1.pdf"); err != nil {
		t.Fatalf("DeleteObject: %v", err)
	}
}

func TestDeleteObjectNotFound(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(*http.Request) *http.Response {
		return response(http.StatusNotFound, "")
	})

	if err := client.DeleteObject(context.Background(), "bucket", "service_reports/1.pdf"); err != nil {
		t.Fatalf("DeleteObject not found should succeed: %v", err)
	}
}

func TestPingChecksBucket(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(req *http.Request) *http.Response {
		if req.URL.Query().Get("maxResults") != "1" {
			t.Fatalf("unexpected query %s", req.URL.RawQuery)
		}
		return response(http.StatusOK, `{"items":[]}`)
	})
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestPublicURL(t *testing.T) {
	got := PublicURL("hilife-reports", "service_reports/2501230001.pdf")
	want := "https://storage.googleapis.com/hilife-reports/service_reports/2501230001.pdf"
	if got != want {
		t.Fatalf("PublicURL = %q want %q", got, want)
	}
}

func TestTokenSourceCachesUntilNearExpiry(t *testing.T) {
	calls := 0
	ts := &tokenSource{fetch: func(context.Context) (string, time.Time, error) {
		calls++
		return "tok", time.Now().Add(time.Hour), nil
	}}
	for i := 0; i < 3; i++ {
		if _, err := ts.Token(context.Background()); err != nil {
			t.Fatalf("Token: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one fetch, got %d", calls)
	}
}

func TestServiceAccountAssertionIsVerifiable(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	signed, err := serviceAccountAssertion("signer@example.com", key, tokenEndpoint, time.Now())
	if err != nil {
		t.Fatalf("assertion: %v", err)
	}

	parsed, err := jwt.Parse(signed, func(tok *jwt.Token) (any, error) {
		return &key.PublicKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	if err != nil {
		t.Fatalf("parse assertion: %v", err)
	}
	claims := parsed.Claims.(jwt.MapClaims)
	if claims["iss"] != "signer@example.com" || claims["scope"] != scope {
		t.Fatalf("unexpected claims %v", claims)
	}
}
