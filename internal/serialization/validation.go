package serialization

import (
	"fmt"
	"sort"
	"strings"
)

// Validation limits for resource protection against malformed files.
const (
	MaxHeaderSize    = 100 * 1024 * 1024 // maximum JSON header size
	MaxTensorCount   = 100_000           // maximum number of tensors in a file
	MaxTensorNameLen = 4096              // maximum tensor name length
)

// ValidateTensorOffsets checks for overlapping tensor regions and
// out-of-bounds access. Malformed offsets in an untrusted file must never
// read another tensor's bytes or beyond the data section.
func ValidateTensorOffsets(tensors []TensorMeta, dataSize int64) error {
	if len(tensors) > MaxTensorCount {
		return &ValidationError{
			Type:    "too_many_tensors",
			Details: fmt.Sprintf("got %d, max %d", len(tensors), MaxTensorCount),
		}
	}

	sorted := make([]TensorMeta, len(tensors))
	copy(sorted, tensors)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Offset < sorted[j].Offset
	})

	for i, t := range sorted {
		if t.Offset < 0 || t.Size < 0 {
			return &ValidationError{
				Type:    "negative_offset",
				Tensor:  t.Name,
				Details: fmt.Sprintf("offset=%d, size=%d (negative values not allowed)", t.Offset, t.Size),
			}
		}

		if t.Offset+t.Size > dataSize {
			return &ValidationError{
				Type:    "out_of_bounds",
				Tensor:  t.Name,
				Details: fmt.Sprintf("offset %d + size %d > data_size %d", t.Offset, t.Size, dataSize),
			}
		}

		if i < len(sorted)-1 {
			next := sorted[i+1]
			if t.Offset+t.Size > next.Offset {
				return &ValidationError{
					Type:    "offset_overlap",
					Tensor:  t.Name,
					Tensor2: next.Name,
					Details: fmt.Sprintf("regions [%d-%d] and [%d-%d] overlap",
						t.Offset, t.Offset+t.Size, next.Offset, next.Offset+next.Size),
				}
			}
		}
	}

	return nil
}

// ValidateTensorName rejects names that could smuggle paths or bypass
// length checks downstream.
func ValidateTensorName(name string) error {
	if name == "" {
		return &ValidationError{
			Type:    "invalid_name",
			Details: "empty tensor name",
		}
	}
	if len(name) > MaxTensorNameLen {
		return &ValidationError{
			Type:    "name_too_long",
			Tensor:  name[:64],
			Details: fmt.Sprintf("length %d > max %d", len(name), MaxTensorNameLen),
		}
	}
	if strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return &ValidationError{
			Type:    "invalid_name",
			Tensor:  name,
			Details: "contains path separator or '..'",
		}
	}
	if strings.Contains(name, "\x00") {
		return &ValidationError{
			Type:    "invalid_name",
			Tensor:  name,
			Details: "contains null byte",
		}
	}
	return nil
}

// ValidateHeader performs full header validation against the actual data
// section size.
func ValidateHeader(h *Header, dataSize int64) error {
	if h.FormatVersion != FormatVersion {
		return fmt.Errorf("%w: got %d, expected %d", ErrUnsupportedVersion, h.FormatVersion, FormatVersion)
	}

	seen := make(map[string]bool, len(h.Tensors))
	for _, t := range h.Tensors {
		if err := ValidateTensorName(t.Name); err != nil {
			return err
		}
		if seen[t.Name] {
			return &ValidationError{
				Type:    "duplicate_name",
				Tensor:  t.Name,
				Details: "tensor listed twice",
			}
		}
		seen[t.Name] = true

		if _, ok := stringToDtype(t.DType); !ok {
			return fmt.Errorf("tensor %q: dtype %q: %w", t.Name, t.DType, ErrUnknownDType)
		}
	}

	return ValidateTensorOffsets(h.Tensors, dataSize)
}
