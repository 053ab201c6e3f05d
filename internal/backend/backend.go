// Package backend decides which remote-storage integration the engine must
// enable for a query, and applies that decision to an engine connection.
package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

type Kind string

const (
	KindNone   Kind = "none"
	KindHTTPFS Kind = "httpfs"
	KindGCS    Kind = "gcs"
)

var ErrCapabilityMissing = errors.New("remote storage capability missing")

// Plan is valid for a single execution only.
type Plan struct {
	Kind   Kind
	URI    string
	Bucket string
}

// Credentials are HMAC keys for the S3-interoperable GCS API.
type Credentials struct {
	KeyID  string
	Secret string
}

// Capability reports whether the gs:// integration can be used for a bucket.
// Implementations return an error wrapping ErrCapabilityMissing when it can't.
type Capability interface {
	GCSCredentials(ctx context.Context, bucket string) (Credentials, error)
}

type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type CapabilityError struct {
	Scheme string
	Hint   string
	Err    error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s:// path detected, but the %s integration is unavailable: %v", e.Scheme, e.Scheme, e.Err)
}

func (e *CapabilityError) Unwrap() error {
	return e.Err
}

func Select(uri string) Plan {
	uri = strings.TrimSpace(uri)
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok || uri == "" {
		return Plan{Kind: KindNone}
	}
	switch strings.ToLower(scheme) {
	case "gs":
		bucket, _, _ := strings.Cut(rest, "/")
		return Plan{Kind: KindGCS, URI: uri, Bucket: bucket}
	case "s3", "http", "https":
		return Plan{Kind: KindHTTPFS, URI: uri}
	default:
		return Plan{Kind: KindNone}
	}
}

// Configure runs the setup statements for plan on conn. It must be called once
// per execution, before the query is submitted.
func Configure(ctx context.Context, conn Execer, plan Plan, capability Capability) error {
	statements, err := Statements(ctx, plan, capability)
	if err != nil {
		return err
	}
	for _, statement := range statements {
		if _, err := conn.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("configure %s backend: %w", plan.Kind, err)
		}
	}
	return nil
}

func Statements(ctx context.Context, plan Plan, capability Capability) ([]string, error) {
	switch plan.Kind {
	case "", KindNone:
		return nil, nil
	case KindHTTPFS:
		return httpfsStatements(), nil
	case KindGCS:
		if plan.Bucket == "" {
			return nil, fmt.Errorf("gs uri %q has no bucket", plan.URI)
		}
		if capability == nil {
			return nil, gcsUnavailable(fmt.Errorf("%w: no gcs capability configured", ErrCapabilityMissing))
		}
		creds, err := capability.GCSCredentials(ctx, plan.Bucket)
		if err != nil {
			if errors.Is(err, ErrCapabilityMissing) {
				return nil, gcsUnavailable(err)
			}
			return nil, fmt.Errorf("check gcs bucket %q: %w", plan.Bucket, err)
		}
		return append(httpfsStatements(), gcsSecret(plan.Bucket, creds)), nil
	default:
		return nil, fmt.Errorf("unknown backend kind %q", plan.Kind)
	}
}

func httpfsStatements() []string {
	return []string{"INSTALL httpfs;", "LOAD httpfs;"}
}

func gcsUnavailable(err error) error {
	return &CapabilityError{
		Scheme: "gs",
		Hint:   "set DUCK_VD_GCS_KEY_ID and DUCK_VD_GCS_SECRET to a GCS HMAC key pair",
		Err:    err,
	}
}

var secretNameInvalid = regexp.MustCompile(`[^a-z0-9_]`)

func gcsSecret(bucket string, creds Credentials) string {
	name := "duck_vd_gcs_" + secretNameInvalid.ReplaceAllString(strings.ToLower(bucket), "_")
	return fmt.Sprintf(
		`CREATE OR REPLACE SECRET %s (TYPE GCS, KEY_ID %s, SECRET %s, SCOPE %s);`,
		name,
		quoteString(creds.KeyID),
		quoteString(creds.Secret),
		quoteString("gs://"+bucket),
	)
}

func quoteString(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}
