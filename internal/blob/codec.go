// Package blob implements the version-prefixed binary codec used to persist
// the opaque Snapshot columns (containers, storage, network, systemDynamic)
// as raw bytes in the tiered store.
//
// Layout: [version byte][JSON payload]. A missing or unrecognized version
// byte is treated as legacy v0 and the whole buffer is decoded as the
// payload. Decode failures are never fatal to the caller — each column
// degrades independently to its zero value so that one corrupted column
// never loses the rest of a row.
package blob

import "encoding/json"

// Column identifies which logical column a blob belongs to, which in turn
// fixes its expected version tag.
type Column int

const (
	ColumnContainers Column = iota
	ColumnStorage
	ColumnNetwork
	ColumnSystemDynamic
)

// Tag returns the version byte a freshly written blob for this column
// carries. containers/storage/network use tag 1; system_dynamic uses tag 2.
func (c Column) Tag() byte {
	if c == ColumnSystemDynamic {
		return 2
	}
	return 1
}

// Encode serializes v as JSON and prepends the column's version tag.
func Encode(col Column, v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(payload)+1)
	out = append(out, col.Tag())
	out = append(out, payload...)
	return out, nil
}

// EncodeSimple is Encode with marshal errors swallowed into a nil blob;
// used for the write path of containers/storage/network, which never fail
// to marshal in practice (plain value types, no cycles).
func EncodeSimple(col Column, v any) []byte {
	b, err := Encode(col, v)
	if err != nil {
		return nil
	}
	return b
}

// DecodeSimple decodes data for col into dst. If the leading byte matches
// col's expected tag, the remainder decodes as dst's JSON shape; otherwise
// the whole buffer is tried as legacy v0. Any JSON error leaves dst at its
// zero value rather than propagating — decode is per-column best-effort.
func DecodeSimple(col Column, data []byte, dst any) {
	if len(data) == 0 {
		return
	}
	if data[0] == col.Tag() {
		_ = json.Unmarshal(data[1:], dst)
		return
	}
	_ = json.Unmarshal(data, dst)
}
