package cache

import (
	"encoding/hex"

	"github.com/minio/sha256-simd"

	"github.com/duckvd/duckvd/internal/query"
)

const fileExtension = ".parquet"

// Key is the hex SHA-256 of spec.Identity(). Any byte difference in source
// or SQL text, whitespace included, yields a different key.
func Key(spec query.Spec) string {
	sum := sha256.Sum256([]byte(spec.Identity()))
	return hex.EncodeToString(sum[:])
}
