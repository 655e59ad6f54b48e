package serialization

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ballast-ml/ballast/internal/tensor"
)

// Read parses a .blst stream and materializes its tensors.
//
// The data section checksum and the full tensor layout are verified before
// any tensor is built, so a corrupted or truncated stream never yields a
// partially valid snapshot.
func Read(r io.Reader) (*Snapshot, error) {
	fixed := make([]byte, FixedHeaderSize)
	if _, err := io.ReadFull(r, fixed); err != nil {
		return nil, fmt.Errorf("failed to read fixed header: %w", err)
	}

	if string(fixed[0:4]) != MagicBytes {
		return nil, ErrInvalidMagic
	}
	if v := binary.LittleEndian.Uint32(fixed[4:8]); v != FormatVersion {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrUnsupportedVersion, v, FormatVersion)
	}

	headerSize := binary.LittleEndian.Uint64(fixed[16:24])
	dataSize := binary.LittleEndian.Uint64(fixed[24:32])
	if headerSize > MaxHeaderSize {
		return nil, ErrHeaderTooLarge
	}
	var stored [ChecksumSize]byte
	copy(stored[:], fixed[ChecksumOffset:ChecksumOffset+ChecksumSize])

	headerJSON := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerJSON); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	var header Header
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, fmt.Errorf("failed to parse header JSON: %w", err)
	}

	pos := int64(FixedHeaderSize) + int64(headerSize)
	if padding := (HeaderAlignment - pos%HeaderAlignment) % HeaderAlignment; padding > 0 {
		if _, err := io.CopyN(io.Discard, r, padding); err != nil {
			return nil, fmt.Errorf("failed to skip padding: %w", err)
		}
	}

	// Reading to EOF instead of trusting the declared size keeps a hostile
	// header from forcing a huge allocation.
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read tensor data: %w", err)
	}
	if uint64(len(data)) != dataSize {
		return nil, &ValidationError{
			Type:    "truncated_data",
			Details: fmt.Sprintf("data section is %d bytes, header declares %d", len(data), dataSize),
		}
	}

	if err := ValidateChecksum(ComputeChecksum(data), stored); err != nil {
		return nil, err
	}
	if err := ValidateHeader(&header, int64(len(data))); err != nil {
		return nil, fmt.Errorf("header validation failed: %w", err)
	}

	snap := &Snapshot{
		ID:        header.SnapshotID,
		CreatedAt: header.CreatedAt,
		Params:    header.Params,
		Metadata:  header.Metadata,
		Tensors:   make(map[string]*tensor.Tensor, len(header.Tensors)),
	}
	for _, meta := range header.Tensors {
		dt, ok := stringToDtype(meta.DType)
		if !ok {
			return nil, fmt.Errorf("tensor %q: dtype %q: %w", meta.Name, meta.DType, ErrUnknownDType)
		}
		t, err := tensor.New(tensor.Shape(meta.Shape), dt)
		if err != nil {
			return nil, fmt.Errorf("tensor %q: %w", meta.Name, err)
		}
		if int64(t.ByteSize()) != meta.Size {
			return nil, &ValidationError{
				Type:   "size_mismatch",
				Tensor: meta.Name,
				Details: fmt.Sprintf("shape %v needs %d bytes, header declares %d",
					meta.Shape, t.ByteSize(), meta.Size),
			}
		}
		copy(t.Data(), data[meta.Offset:meta.Offset+meta.Size])
		snap.Tensors[meta.Name] = t
	}
	return snap, nil
}
