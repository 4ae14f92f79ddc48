// Package blob stores export workbooks on local disk, S3 or in memory,
// optionally sealing them with AES-GCM.
package blob

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/ncecere/usage_reports/backend/internal/config"
)

var ErrNotFound = errors.New("blob not found")

type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
	Metadata    map[string]string
	Encrypted   bool
}

type Store interface {
	Put(ctx context.Context, key string, body io.Reader, opts PutOptions) (ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

type store struct {
	backend   Store
	encryptor *encryptor
}

// New builds the backend named by cfg.Storage and wraps it with
// encryption when cfg.EncryptionKey is set.
func New(ctx context.Context, cfg config.ExportsConfig) (Store, error) {
	backend, err := buildBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return Wrap(backend, cfg.EncryptionKey)
}

// Wrap adds encryption with a base64 key to an existing backend. An empty
// key returns a pass-through store.
func Wrap(backend Store, encryptionKey string) (Store, error) {
	enc, err := newEncryptor(encryptionKey)
	if err != nil {
		return nil, err
	}
	return &store{backend: backend, encryptor: enc}, nil
}

func buildBackend(ctx context.Context, cfg config.ExportsConfig) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Storage)) {
	case "s3":
		awsCfg, err := loadS3Config(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return newS3Store(cfg.S3, awsCfg)
	case "memory":
		return NewMemory(), nil
	default:
		return newLocalStore(cfg.Local)
	}
}

func (s *store) Put(ctx context.Context, key string, body io.Reader, opts PutOptions) (ObjectInfo, error) {
	if s.encryptor == nil {
		return s.backend.Put(ctx, key, body, opts)
	}
	sealed, plainSize, metadata, err := s.encryptor.encrypt(body)
	if err != nil {
		return ObjectInfo{}, err
	}
	info, err := s.backend.Put(ctx, key, sealed, PutOptions{
		ContentType: opts.ContentType,
		Metadata:    mergeMetadata(opts.Metadata, metadata),
	})
	if err != nil {
		return ObjectInfo{}, err
	}
	info.Size = plainSize
	info.Metadata = mergeMetadata(info.Metadata, metadata)
	info.Encrypted = true
	return info, nil
}

func (s *store) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	reader, info, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	if !isEncrypted(info.Metadata) {
		return reader, info, nil
	}
	defer reader.Close()
	if s.encryptor == nil {
		return nil, ObjectInfo{}, errors.New("blob is encrypted but no encryption key is configured")
	}
	opened, size, err := s.encryptor.decrypt(reader)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	info.Size = size
	info.Encrypted = true
	return opened, info, nil
}

func (s *store) Delete(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, key)
}

func mergeMetadata(a, b map[string]string) map[string]string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	merged := make(map[string]string, len(a)+len(b))
	for k, v := range a {
		merged[k] = v
	}
	for k, v := range b {
		merged[k] = v
	}
	return merged
}

func isEncrypted(meta map[string]string) bool {
	_, ok := meta[encryptionMetadataKey]
	return ok
}
