// Package digest derives record identities from canonical row content.
package digest

import (
	"crypto/sha1"
	"encoding/hex"

	"github.com/catalog-ingest/ingest-service/pkg/record"
)

// Of returns the lowercase hex SHA-1 of canonical. SHA-1 keeps ids compatible
// with records already written by earlier producers.
func Of(canonical []byte) string {
	sum := sha1.Sum(canonical)
	return hex.EncodeToString(sum[:])
}

// OfRow returns the identity of row.
func OfRow(row record.Row) string {
	return Of(row.Canonical())
}
