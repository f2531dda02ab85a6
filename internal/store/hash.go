package store

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/roach88/framestate/internal/query"
)

// Hash domains. Bumping a version changes every hash in that domain.
const (
	domainRow    = "framestate/row/v1"
	domainConfig = "framestate/config/v1"
)

// hashWithDomain returns the hex sha256 of domain, a NUL separator and data.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ConfigHash identifies a config source so runs over the same rules can be
// grouped.
func ConfigHash(src []byte) string {
	return hashWithDomain(domainConfig, src)
}

// RowHash returns the content address of a row: its query, entity and
// step plus the canonical encoding of its values. A nil Values map hashes
// like an empty one.
func RowHash(row query.Row) (string, error) {
	data, err := rowValues(row)
	if err != nil {
		return "", err
	}
	return hashWithDomain(domainRow, rowKey(row, data)), nil
}

func rowValues(row query.Row) ([]byte, error) {
	values := row.Values
	if values == nil {
		values = map[string]any{}
	}
	data, err := MarshalCanonical(values)
	if err != nil {
		return nil, fmt.Errorf("encode row %s/%s: %w", row.Query, row.Entity, err)
	}
	return data, nil
}

// rowKey is the hashed identity of a row.
func rowKey(row query.Row, values []byte) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%s\x00%s\x00%d\x00", row.Query, row.Entity, row.Step)
	b.Write(values)
	return b.Bytes()
}
