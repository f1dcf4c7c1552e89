package gcs

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/api/googleapi"

	"github.com/hilife/servicereport-backend/pkg/config"
	"github.com/hilife/servicereport-backend/pkg/logger"
)

const (
	defaultAPIBase = "https://storage.googleapis.com"
	tokenEndpoint  = "https://oauth2.googleapis.com/token"
	scope          = "https://www.googleapis.com/auth/devstorage.read_write"
	pingTimeout    = 5 * time.Second
	requestTimeout = 60 * time.Second
	metadataToken  = "http://metadata.google.internal/computeMetadata/v1/instance/service-accounts/default/token"
)

// Client talks to the GCS JSON API directly with a cached OAuth token.
type Client struct {
	httpClient    *http.Client
	apiBase       string
	defaultBucket string
	tokenSource   *tokenSource
}

type Pinger interface {
	Ping(ctx context.Context) error
}

func NewClient(ctx context.Context, cfg config.GCSConfig, gcp config.GCPConfig, logg *logger.Logger) (*Client, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("gcs bucket name is required")
	}

	httpClient := &http.Client{Timeout: requestTimeout}

	var ts *tokenSource
	var err error
	switch {
	case gcp.CredentialsJSON != "":
		ts, err = newServiceAccountTokenSource(httpClient, gcp.CredentialsJSON)
	case gcp.ApplicationCredentials != "":
		raw, readErr := os.ReadFile(gcp.ApplicationCredentials)
		if readErr != nil {
			return nil, fmt.Errorf("reading credentials file: %w", readErr)
		}
		ts, err = newServiceAccountTokenSource(httpClient, string(raw))
	default:
		ts = newMetadataTokenSource(httpClient)
	}
	if err != nil {
		return nil, err
	}

	client := &Client{
		httpClient:    httpClient,
		apiBase:       defaultAPIBase,
		defaultBucket: cfg.BucketName,
		tokenSource:   ts,
	}

	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("gcs health check failed: %w", err)
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "bucket", cfg.BucketName), "gcs client initialized")
	}

	return client, nil
}

func (c *Client) DefaultBucket() string {
	if c == nil {
		return ""
	}
	return c.defaultBucket
}

// PublicURL is the browser-resolvable address of an object in a public bucket.
func PublicURL(bucket, object string) string {
	return fmt.Sprintf("%s/%s/%s", defaultAPIBase, bucket, object)
}

// UploadObject writes data to bucket/object with a single media upload,
// replacing any existing object of the same name.
func (c *Client) UploadObject(ctx context.Context, bucket, object, contentType string, data []byte) error {
	bucket, err := c.resolveBucket(bucket)
	if err != nil {
		return err
	}
	if object == "" {
		return errors.New("object name is required")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	q := url.Values{}
	q.Set("uploadType", "media")
	q.Set("name", object)
	u := fmt.Sprintf("%s/upload/storage/v1/b/%s/o?%s", c.base(), url.PathEscape(bucket), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = int64(len(data))

	resp, err := c.do(ctx, req)
	if err != nil {
		return fmt.Errorf("uploading %s: %w", object, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := googleapi.CheckResponse(resp); err != nil {
		return fmt.Errorf("uploading %s: %w", object, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// DeleteObject removes bucket/object. A missing object is not an error.
func (c *Client) DeleteObject(ctx context.Context, bucket, object string) error {
	bucket, err := c.resolveBucket(bucket)
	if err != nil {
		return err
	}
	if object == "" {
		return errors.New("object name is required")
	}

	u := fmt.Sprintf("%s/storage/v1/b/%s/o/%s", c.base(), url.PathEscape(bucket), url.PathEscape(object))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return err
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", object, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if err := googleapi.CheckResponse(resp); err != nil {
		return fmt.Errorf("deleting %s: %w", object, err)
	}
	return nil
}

func (c *Client) Close() error {
	return nil
}

// Ping lists at most one object, which needs storage.objects.list on the bucket.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.tokenSource == nil {
		return errors.New("gcs client not initialized")
	}
	if c.defaultBucket == "" {
		return errors.New("gcs bucket not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	u := fmt.Sprintf("%s/storage/v1/b/%s/o?maxResults=1", c.base(), url.PathEscape(c.defaultBucket))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := googleapi.CheckResponse(resp); err != nil {
		return fmt.Errorf("gcs object check failed: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if c == nil || c.tokenSource == nil || c.httpClient == nil {
		return nil, errors.New("gcs client not initialized")
	}
	token, err := c.tokenSource.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching access token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return c.httpClient.Do(req)
}

func (c *Client) resolveBucket(bucket string) (string, error) {
	if bucket == "" && c != nil {
		bucket = c.defaultBucket
	}
	if bucket == "" {
		return "", errors.New("bucket name is required")
	}
	return bucket, nil
}

func (c *Client) base() string {
	if c.apiBase == "" {
		return defaultAPIBase
	}
	return strings.TrimRight(c.apiBase, "/")
}

type tokenSource struct {
	mu     sync.Mutex
	token  string
	expiry time.Time
	fetch  func(context.Context) (string, time.Time, error)
}

func (t *tokenSource) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" && time.Until(t.expiry) > time.Minute {
		return t.token, nil
	}

	token, expiry, err := t.fetch(ctx)
	if err != nil {
		return "", err
	}
	t.token = token
	t.expiry = expiry
	return token, nil
}

func newServiceAccountTokenSource(client *http.Client, jsonCreds string) (*tokenSource, error) {
	var creds struct {
		ClientEmail string `json:"client_email"`
		PrivateKey  string `json:"private_key"`
		TokenURI    string `json:"token_uri"`
	}
	if err := json.Unmarshal([]byte(jsonCreds), &creds); err != nil {
		return nil, fmt.Errorf("parsing service account credentials: %w", err)
	}
	if creds.ClientEmail == "" || creds.PrivateKey == "" {
		return nil, errors.New("invalid service account credentials")
	}
	tokenURI := creds.TokenURI
	if tokenURI == "" {
		tokenURI = tokenEndpoint
	}
	priv, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(creds.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("parsing service account key: %w", err)
	}

	return &tokenSource{
		fetch: func(ctx context.Context) (string, time.Time, error) {
			return fetchServiceAccountToken(ctx, client, creds.ClientEmail, priv, tokenURI)
		},
	}, nil
}

func newMetadataTokenSource(client *http.Client) *tokenSource {
	return &tokenSource{
		fetch: func(ctx context.Context) (string, time.Time, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataToken, nil)
			if err != nil {
				return "", time.Time{}, err
			}
			req.Header.Set("Metadata-Flavor", "Google")
			return exchangeToken(client, req)
		},
	}
}

// serviceAccountAssertion builds the RS256 JWT-bearer grant for the token endpoint.
func serviceAccountAssertion(email string, key *rsa.PrivateKey, tokenURI string, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"iss":   email,
		"scope": scope,
		"aud":   tokenURI,
		"exp":   now.Add(time.Hour).Unix(),
		"iat":   now.Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
}

func fetchServiceAccountToken(ctx context.Context, client *http.Client, email string, key *rsa.PrivateKey, tokenURI string) (string, time.Time, error) {
	assertion, err := serviceAccountAssertion(email, key, tokenURI, time.Now())
	if err != nil {
		return "", time.Time{}, err
	}
	form := url.Values{}
	form.Set("grant_type", "urn:ietf:params:oauth:grant-type:jwt-bearer")
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return exchangeToken(client, req)
}

func exchangeToken(client *http.Client, req *http.Request) (string, time.Time, error) {
	resp, err := client.Do(req)
	if err != nil {
		return "", time.Time{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", time.Time{}, fmt.Errorf("token request to %s returned %s", req.URL.Host, resp.Status)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", time.Time{}, err
	}
	return tokenResp.AccessToken, time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second), nil
}
