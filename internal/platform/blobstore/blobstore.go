// Package blobstore stores uploaded documents (doctor licences) in an object
// storage bucket. SupabaseStore is used in deployments; MemoryStore backs
// tests and local development.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrBlobNotFound       = errors.New("blob not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrEmptyFile          = errors.New("file is empty")
)

// MaxFileSize is the maximum accepted upload in bytes (10 MB).
const MaxFileSize = 10 * 1024 * 1024

// AllowedContentTypes lists the detected MIME types accepted for licences.
var AllowedContentTypes = map[string]string{
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"application/pdf": ".pdf",
}

// Object describes a stored file.
type Object struct {
	Path        string    `json:"path"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// Store is the contract for blob storage backends.
type Store interface {
	Put(ctx context.Context, path, contentType string, content []byte) error
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, path string) error
}

// Prepared is an upload that passed validation and is ready to be stored.
type Prepared struct {
	Object
	Content []byte
}

// Prepare reads at most MaxFileSize bytes, sniffs the content type from the
// bytes rather than trusting the client, and returns the object stored under
// prefix with the matching extension.
func Prepare(r io.Reader, prefix string) (*Prepared, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	if int64(len(data)) > MaxFileSize {
		return nil, ErrFileTooLarge
	}

	mt := mimetype.Detect(data)
	ext := ""
	for ct, e := range AllowedContentTypes {
		if mt.Is(ct) {
			ext = e
			break
		}
	}
	if ext == "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidContentType, mt.String())
	}

	sum := sha256.Sum256(data)
	hash := fmt.Sprintf("%x", sum)
	return &Prepared{
		Object: Object{
			Path:        strings.TrimRight(prefix, "/") + "/" + hash[:16] + ext,
			ContentType: strings.SplitN(mt.String(), ";", 2)[0],
			Size:        int64(len(data)),
			Hash:        hash,
		},
		Content: data,
	}, nil
}

// MemoryStore is a thread-safe in-memory Store.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memObject
	baseURL string
}

type memObject struct {
	contentType string
	content     []byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memObject), baseURL: "memory://licenses/"}
}

func (s *MemoryStore) Put(_ context.Context, path, contentType string, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = memObject{contentType: contentType, content: bytes.Clone(content)}
	return nil
}

func (s *MemoryStore) SignedURL(_ context.Context, path string, ttl time.Duration) (string, error) {
	s.mu.RLock()
	_, ok := s.objects[path]
	s.mu.RUnlock()
	if !ok {
		return "", ErrBlobNotFound
	}
	return fmt.Sprintf("%s%s?expires_in=%d", s.baseURL, path, int(ttl.Seconds())), nil
}

func (s *MemoryStore) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[path]; !ok {
		return ErrBlobNotFound
	}
	delete(s.objects, path)
	return nil
}

// Get returns a stored object's bytes and content type.
func (s *MemoryStore) Get(path string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.objects[path]
	return o.content, o.contentType, ok
}
