package store

import (
	"encoding/json"

	"github.com/nodewatch/telemetryd/internal/model"
)

// Encode/DecodeSystemInfo serialize the static identity singleton. Unlike
// the per-tick columns it carries no version prefix: there is exactly one
// row and no roll-up ever touches it, so plain JSON is enough.
func Encode(info model.SystemInfo) ([]byte, error) {
	return json.Marshal(info)
}

func DecodeSystemInfo(data []byte) (model.SystemInfo, error) {
	var info model.SystemInfo
	err := json.Unmarshal(data, &info)
	return info, err
}
