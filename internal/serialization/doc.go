// Package serialization provides the native .blst format for saving and
// loading optimizer snapshots.
//
// The .blst format is a simple, checksummed binary container:
//
//	Format Structure:
//	  [64 bytes: fixed header]
//	    0x00  Magic "BLST"
//	    0x04  Version (uint32 LE)
//	    0x08  Flags (uint32 LE)
//	    0x0C  Reserved
//	    0x10  Header size (uint64 LE)
//	    0x18  Data size (uint64 LE)
//	    0x20  SHA-256 checksum of the data section
//	  [Header: JSON metadata]
//	  [Padding to a 64-byte boundary]
//	  [Tensor data: raw bytes, in sorted name order]
//
// Tensors are laid out in lexicographic name order, so writing the same
// snapshot twice produces byte-identical files apart from the snapshot ID
// and timestamp.
//
// Example usage:
//
//	// Save a snapshot
//	f, err := os.Create("optimizer.blst")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer f.Close()
//	if err := serialization.Write(f, snap); err != nil {
//	    log.Fatal(err)
//	}
//
//	// Load it back
//	f, err = os.Open("optimizer.blst")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer f.Close()
//	snap, err := serialization.Read(f)
package serialization
