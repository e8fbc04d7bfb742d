package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// StorageClient exposes the object storage surface.
type StorageClient struct {
	client *Client
}

func objectPath(bucket, path string) string {
	segments := []string{url.PathEscape(bucket)}
	for _, part := range strings.Split(strings.Trim(path, "/"), "/") {
		segments = append(segments, url.PathEscape(part))
	}
	return strings.Join(segments, "/")
}

// Upload stores data at bucket/path and returns the object key.
func (s *StorageClient) Upload(ctx context.Context, bucket, path string, data []byte, opts UploadOptions) (string, error) {
	endpoint := fmt.Sprintf("%s/object/%s", s.client.storageURL, objectPath(bucket, path))
	headers := map[string]string{}
	if opts.ContentType != "" {
		headers["Content-Type"] = opts.ContentType
	} else {
		headers["Content-Type"] = "application/octet-stream"
	}
	if opts.CacheControl != "" {
		headers["Cache-Control"] = opts.CacheControl
	}
	if opts.Upsert {
		headers["x-upsert"] = "true"
	}
	resp, err := s.client.requestWithServiceKey(ctx, http.MethodPost, endpoint, bytes.NewReader(data), headers)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", parseError(resp)
	}
	body, err := readBody(resp)
	if err != nil {
		return "", err
	}
	var result struct {
		Key string `json:"Key"`
	}
	if err := json.Unmarshal(body, &result); err != nil || result.Key == "" {
		return fmt.Sprintf("%s/%s", bucket, strings.Trim(path, "/")), nil
	}
	return result.Key, nil
}

// Download fetches the object at bucket/path.
func (s *StorageClient) Download(ctx context.Context, bucket, path string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/object/%s", s.client.storageURL, objectPath(bucket, path))
	resp, err := s.client.requestWithServiceKey(ctx, http.MethodGet, endpoint, nil, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseError(resp)
	}
	return readBody(resp)
}

// Delete removes objects from a bucket.
func (s *StorageClient) Delete(ctx context.Context, bucket string, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	body, err := jsonBody(map[string][]string{"prefixes": paths})
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/object/%s", s.client.storageURL, url.PathEscape(bucket))
	resp, err := s.client.requestWithServiceKey(ctx, http.MethodDelete, endpoint, body, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseError(resp)
	}
	return nil
}

// List enumerates objects under prefix in a bucket.
func (s *StorageClient) List(ctx context.Context, bucket, prefix string) ([]FileObject, error) {
	body, err := jsonBody(map[string]any{
		"prefix": prefix,
		"limit":  1000,
		"offset": 0,
	})
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s/object/list/%s", s.client.storageURL, url.PathEscape(bucket))
	resp, err := s.client.requestWithServiceKey(ctx, http.MethodPost, endpoint, body, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseError(resp)
	}
	data, err := readBody(resp)
	if err != nil {
		return nil, err
	}
	var objects []FileObject
	if err := json.Unmarshal(data, &objects); err != nil {
		return nil, fmt.Errorf("supabase: decode object list: %w", err)
	}
	return objects, nil
}

// GetPublicURL returns the unauthenticated URL for a public-bucket object.
func (s *StorageClient) GetPublicURL(bucket, path string) string {
	return fmt.Sprintf("%s/object/public/%s", s.client.storageURL, objectPath(bucket, path))
}

// CreateSignedURL mints a time-limited URL for a private object.
func (s *StorageClient) CreateSignedURL(ctx context.Context, bucket, path string, expiresIn time.Duration) (string, error) {
	body, err := jsonBody(map[string]any{"expiresIn": int(expiresIn.Seconds())})
	if err != nil {
		return "", err
	}
	endpoint := fmt.Sprintf("%s/object/sign/%s", s.client.storageURL, objectPath(bucket, path))
	resp, err := s.client.requestWithServiceKey(ctx, http.MethodPost, endpoint, body, nil)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", parseError(resp)
	}
	data, err := readBody(resp)
	if err != nil {
		return "", err
	}
	var result struct {
		SignedURL string `json:"signedURL"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("supabase: decode signed URL: %w", err)
	}
	if result.SignedURL == "" {
		return "", fmt.Errorf("supabase: empty signed URL for %s/%s", bucket, path)
	}
	return s.client.storageURL + result.SignedURL, nil
}
