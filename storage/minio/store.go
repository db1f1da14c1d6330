// Copyright 2025 Hollowbrook Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package minio implements storage.ObjectStore against any S3-compatible
// object store (MinIO, AWS S3).
package minio

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hollowbrook/kbflow/storage"
)

// Config holds the connection settings for the object store.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Secure    bool
	Bucket    string
}

// Store implements storage.ObjectStore on a single bucket.
type Store struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// New connects to the endpoint and verifies the bucket exists.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %q does not exist", cfg.Bucket)
	}

	return &Store{
		client: client,
		bucket: cfg.Bucket,
		logger: logger.With("component", "object-store"),
	}, nil
}

// List enumerates objects under prefix. The fingerprint is the object's
// ETag; for simple uploads that is the MD5 of the content, for multipart
// uploads a composite hash. Either way it changes whenever the content
// changes, which is all the lister needs.
func (s *Store) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	var infos []storage.ObjectInfo

	opts := minio.ListObjectsOptions{Prefix: prefix, Recursive: true}
	for obj := range s.client.ListObjects(ctx, s.bucket, opts) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %q: %w", prefix, obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue // directory marker
		}
		infos = append(infos, storage.ObjectInfo{
			Key:          obj.Key,
			Size:         obj.Size,
			Fingerprint:  normalizeETag(obj.ETag),
			ContentType:  obj.ContentType,
			LastModified: obj.LastModified,
		})
	}

	return infos, nil
}

// Get reads the full object. If the listing did not carry a usable ETag
// the fingerprint falls back to a SHA-256 of the bytes.
func (s *Store) Get(ctx context.Context, key string) ([]byte, storage.ObjectInfo, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, storage.ObjectInfo{}, fmt.Errorf("get %q: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, storage.ObjectInfo{}, storage.ErrNotFound
		}
		return nil, storage.ObjectInfo{}, fmt.Errorf("read %q: %w", key, err)
	}

	stat, err := obj.Stat()
	if err != nil {
		if isNoSuchKey(err) {
			return nil, storage.ObjectInfo{}, storage.ErrNotFound
		}
		return nil, storage.ObjectInfo{}, fmt.Errorf("stat %q: %w", key, err)
	}

	fingerprint := normalizeETag(stat.ETag)
	if fingerprint == "" {
		sum := sha256.Sum256(data)
		fingerprint = hex.EncodeToString(sum[:])
	}

	return data, storage.ObjectInfo{
		Key:          key,
		Size:         stat.Size,
		Fingerprint:  fingerprint,
		ContentType:  stat.ContentType,
		LastModified: stat.LastModified,
	}, nil
}

// Promote copies srcKey to destKey with metadata, then deletes srcKey.
func (s *Store) Promote(ctx context.Context, srcKey, destKey string, metadata map[string]string) error {
	src := minio.CopySrcOptions{Bucket: s.bucket, Object: srcKey}
	dest := minio.CopyDestOptions{
		Bucket:          s.bucket,
		Object:          destKey,
		UserMetadata:    metadata,
		ReplaceMetadata: true,
	}

	if _, err := s.client.CopyObject(ctx, dest, src); err != nil {
		return fmt.Errorf("copy %q to %q: %w", srcKey, destKey, err)
	}
	s.logger.Debug("object copied", "src", srcKey, "dest", destKey)

	if err := s.client.RemoveObject(ctx, s.bucket, srcKey, minio.RemoveObjectOptions{}); err != nil {
		// The copy succeeded, so the document is recorded as processed;
		// the leftover source object is cleaned up on the next promote
		// or by hand. Report it rather than hide it.
		return fmt.Errorf("remove %q after copy: %w", srcKey, err)
	}

	return nil
}

// Remove deletes an object; missing keys are ignored.
func (s *Store) Remove(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil && !isNoSuchKey(err) {
		return fmt.Errorf("remove %q: %w", key, err)
	}
	return nil
}

// normalizeETag strips the quotes S3 wraps around ETag values.
func normalizeETag(etag string) string {
	return strings.Trim(etag, `"`)
}

func isNoSuchKey(err error) bool {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code == "NoSuchKey"
	}
	return false
}
