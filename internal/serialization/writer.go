package serialization

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ballast-ml/ballast/internal/tensor"
)

const libraryVersion = "0.3.0" // current ballast version

// Snapshot bundles a state dict with its identifying metadata.
type Snapshot struct {
	// ID uniquely identifies the snapshot. Assigned at write time when
	// empty.
	ID string

	// CreatedAt is stamped at write time when zero.
	CreatedAt time.Time

	// Params records the per-parameter training position for inspection.
	Params []ParamMeta

	// Metadata carries free-form key/value pairs.
	Metadata map[string]string

	// Tensors is the state dict being persisted.
	Tensors map[string]*tensor.Tensor
}

// Write serializes the snapshot to w in .blst format.
//
// Tensors are written in sorted name order, so the same snapshot always
// produces the same layout. The data-section checksum lands in the fixed
// header before any tensor bytes, letting readers verify integrity without
// trusting the JSON header.
func Write(w io.Writer, snap *Snapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}

	names := make([]string, 0, len(snap.Tensors))
	for name := range snap.Tensors {
		if err := ValidateTensorName(name); err != nil {
			return err
		}
		names = append(names, name)
	}
	sort.Strings(names)

	header := Header{
		FormatVersion: FormatVersion,
		Library:       libraryVersion,
		SnapshotID:    snap.ID,
		CreatedAt:     snap.CreatedAt,
		Params:        snap.Params,
		Tensors:       make([]TensorMeta, 0, len(names)),
		Metadata:      snap.Metadata,
	}

	var offset int64
	for _, name := range names {
		t := snap.Tensors[name]
		size := int64(t.ByteSize())
		header.Tensors = append(header.Tensors, TensorMeta{
			Name:   name,
			DType:  dtypeToString(t.DType()),
			Shape:  []int(t.Shape()),
			Offset: offset,
			Size:   size,
		})
		offset += size
	}

	data := make([]byte, 0, offset)
	for _, name := range names {
		data = append(data, snap.Tensors[name].Data()...)
	}
	checksum := ComputeChecksum(data)

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if len(headerJSON) > MaxHeaderSize {
		return ErrHeaderTooLarge
	}

	fixed := make([]byte, FixedHeaderSize)
	copy(fixed[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(fixed[4:8], uint32(FormatVersion))
	flags := uint32(0)
	if len(snap.Metadata) > 0 {
		flags |= FlagHasMetadata
	}
	binary.LittleEndian.PutUint32(fixed[8:12], flags)
	// 0x0C-0x0F: reserved, zero from make()
	binary.LittleEndian.PutUint64(fixed[16:24], uint64(len(headerJSON)))
	binary.LittleEndian.PutUint64(fixed[24:32], uint64(len(data)))
	copy(fixed[ChecksumOffset:ChecksumOffset+ChecksumSize], checksum[:])

	if _, err := w.Write(fixed); err != nil {
		return fmt.Errorf("failed to write fixed header: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	pos := int64(FixedHeaderSize) + int64(len(headerJSON))
	if padding := (HeaderAlignment - pos%HeaderAlignment) % HeaderAlignment; padding > 0 {
		if _, err := w.Write(make([]byte, padding)); err != nil {
			return fmt.Errorf("failed to write padding: %w", err)
		}
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write tensor data: %w", err)
	}
	return nil
}
