package serialization

import (
	"time"

	"github.com/ballast-ml/ballast/internal/tensor"
)

// Format constants.
const (
	MagicBytes      = "BLST"
	FormatVersion   = 1    // every version carries a checksum
	HeaderAlignment = 64   // align tensor data to 64 bytes
	FixedHeaderSize = 64   // fixed header size (0x40 bytes)
	ChecksumSize    = 32   // SHA-256 checksum size
	ChecksumOffset  = 0x20 // checksum offset in the fixed header
)

// Data type string constants for serialization.
const (
	DTypeFloat32 = "float32"
	DTypeFloat64 = "float64"
)

// Flags for the .blst format.
const (
	FlagHasMetadata uint32 = 1 << 0 // bit 0: custom metadata included
)

// Header is the JSON header of a .blst file.
type Header struct {
	FormatVersion int               `json:"format_version"`     // version of the .blst format
	Library       string            `json:"library"`            // library version that wrote the file
	SnapshotID    string            `json:"snapshot_id"`        // unique id assigned at write time
	CreatedAt     time.Time         `json:"created_at"`         // when the file was written
	Params        []ParamMeta       `json:"params,omitempty"`   // per-parameter training state
	Tensors       []TensorMeta      `json:"tensors"`            // tensor layout
	Metadata      map[string]string `json:"metadata,omitempty"` // custom metadata
}

// ParamMeta records the training position of one parameter at save time.
// The authoritative state lives in the tensors; this is for inspection and
// cross-checking.
type ParamMeta struct {
	Name      string `json:"name"`
	Algorithm string `json:"algorithm"`
	Step      int64  `json:"step"`
}

// TensorMeta describes one tensor in the data section.
type TensorMeta struct {
	Name   string `json:"name"`   // state-dict key, e.g. "encoder.weight.momentum"
	DType  string `json:"dtype"`  // "float32" or "float64"
	Shape  []int  `json:"shape"`  // tensor shape
	Offset int64  `json:"offset"` // bytes from the start of the data section
	Size   int64  `json:"size"`   // size in bytes
}

// dtypeToString converts tensor.DataType to its wire name.
func dtypeToString(dt tensor.DataType) string {
	switch dt {
	case tensor.Float64:
		return DTypeFloat64
	default:
		return DTypeFloat32
	}
}

// stringToDtype converts a wire name back to tensor.DataType.
func stringToDtype(s string) (tensor.DataType, bool) {
	switch s {
	case DTypeFloat32:
		return tensor.Float32, true
	case DTypeFloat64:
		return tensor.Float64, true
	default:
		return 0, false
	}
}
