package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	storage_go "github.com/supabase-community/storage-go"
)

// SupabaseStore keeps objects in a Supabase storage bucket using the
// service role key.
type SupabaseStore struct {
	client *storage_go.Client
	bucket string
}

// NewSupabaseStore connects to the storage API of the project at projectURL.
func NewSupabaseStore(projectURL, serviceRoleKey, bucket string) *SupabaseStore {
	endpoint := strings.TrimRight(projectURL, "/") + "/storage/v1"
	client := storage_go.NewClient(endpoint, serviceRoleKey, map[string]string{
		"apikey": serviceRoleKey,
	})
	return &SupabaseStore{client: client, bucket: bucket}
}

func (s *SupabaseStore) Put(_ context.Context, path, contentType string, content []byte) error {
	upsert := true
	_, err := s.client.UploadFile(s.bucket, path, bytes.NewReader(content), storage_go.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return fmt.Errorf("upload %s/%s: %w", s.bucket, path, err)
	}
	return nil
}

func (s *SupabaseStore) SignedURL(_ context.Context, path string, ttl time.Duration) (string, error) {
	resp, err := s.client.CreateSignedUrl(s.bucket, path, int(ttl.Seconds()))
	if err != nil {
		return "", fmt.Errorf("sign %s/%s: %w", s.bucket, path, err)
	}
	if resp.SignedURL == "" {
		return "", ErrBlobNotFound
	}
	return resp.SignedURL, nil
}

func (s *SupabaseStore) Delete(_ context.Context, path string) error {
	if _, err := s.client.RemoveFile(s.bucket, []string{path}); err != nil {
		return fmt.Errorf("remove %s/%s: %w", s.bucket, path, err)
	}
	return nil
}
