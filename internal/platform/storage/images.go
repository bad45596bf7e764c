package storage

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// ProductImageSigner issues short-lived public download URLs for catalog
// images stored in the product media bucket.
type ProductImageSigner struct {
	client *Client
	bucket string
}

// NewProductImageSigner constructs a signer bound to one bucket.
func NewProductImageSigner(client *Client, bucket string) (*ProductImageSigner, error) {
	if client == nil {
		return nil, errors.New("storage: signed URL client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage: image bucket is required")
	}
	return &ProductImageSigner{client: client, bucket: bucket}, nil
}

// SignedImageURL resolves a stored object path to a time-limited URL.
// Catalog images are public to any shopper, so no ownership check applies.
func (s *ProductImageSigner) SignedImageURL(ctx context.Context, object string) (string, error) {
	if s == nil || s.client == nil {
		return "", errors.New("storage: image signer not initialised")
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return "", errors.New("storage: object path is required")
	}
	result, err := s.client.SignedURL(ctx, s.bucket, object, SignedURLOptions{
		Download: &DownloadOptions{
			Method:         http.MethodGet,
			AllowAnonymous: true,
			CacheControl:   "public, max-age=300",
		},
	})
	if err != nil {
		return "", err
	}
	return result.URL, nil
}
