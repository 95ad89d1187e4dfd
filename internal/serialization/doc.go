// Package serialization implements the .born checkpoint file format.
//
//	Format Structure:
//	  0x00 [4 bytes: Magic "BORN"]
//	  0x04 [4 bytes: Version (uint32 LE)]
//	  0x08 [4 bytes: Flags (uint32 LE)]
//	  0x0C [4 bytes: Reserved]
//	  0x10 [8 bytes: Header Size (uint64 LE)]
//	  0x18 [8 bytes: Data Size (uint64 LE)]
//	  0x20 [32 bytes: SHA-256 of tensor data]
//	  0x40 [Header: JSON metadata]
//	       [Tensor data: raw bytes, 64-byte aligned]
//
// Tensors are written in name order, so the same weights always produce the
// same checksum.
//
// Example usage:
//
//	writer, err := serialization.NewBornWriter("model.born")
//	if err != nil {
//	    return err
//	}
//	if err := writer.WriteStateDict(model.StateDict(), header); err != nil {
//	    writer.Close()
//	    return err
//	}
//	writer.Close()
//
//	reader, err := serialization.NewBornReader("model.born")
//	if err != nil {
//	    return err // ErrChecksumMismatch for a corrupted file
//	}
//	defer reader.Close()
//	stateDict, err := reader.ReadStateDict(backend)
package serialization
