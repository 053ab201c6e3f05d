package backend

import (
	"context"
	"fmt"
	"strings"
)

type BucketChecker interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
}

// GCSCapability is available when HMAC credentials are configured. With
// Verify set, the bucket must also be reachable through Checker.
type GCSCapability struct {
	Credentials Credentials
	Verify      bool
	NewChecker  func(Credentials) (BucketChecker, error)
}

func (g GCSCapability) Available() bool {
	return strings.TrimSpace(g.Credentials.KeyID) != "" && strings.TrimSpace(g.Credentials.Secret) != ""
}

func (g GCSCapability) GCSCredentials(ctx context.Context, bucket string) (Credentials, error) {
	if !g.Available() {
		return Credentials{}, fmt.Errorf("%w: gcs hmac credentials are not set", ErrCapabilityMissing)
	}
	if !g.Verify {
		return g.Credentials, nil
	}
	if g.NewChecker == nil {
		return Credentials{}, fmt.Errorf("bucket verification requested without a checker")
	}
	checker, err := g.NewChecker(g.Credentials)
	if err != nil {
		return Credentials{}, fmt.Errorf("create bucket checker: %w", err)
	}
	exists, err := checker.BucketExists(ctx, bucket)
	if err != nil {
		return Credentials{}, fmt.Errorf("check bucket %q: %w", bucket, err)
	}
	if !exists {
		return Credentials{}, fmt.Errorf("%w: bucket %q is not reachable with the configured credentials", ErrCapabilityMissing, bucket)
	}
	return g.Credentials, nil
}
