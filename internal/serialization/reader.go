package serialization

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/tensor"
)

// BornReader reads models from .born format.
//
// The whole file is read and verified when the reader is opened, so a
// reader that was created successfully never returns checksum errors later.
type BornReader struct {
	header Header
	flags  uint32
	data   []byte // tensor data section
	closed bool
}

// NewBornReader opens and verifies a .born file.
func NewBornReader(path string) (*BornReader, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return NewReader(file)
}

// NewReader reads and verifies a .born stream.
func NewReader(r io.Reader) (*BornReader, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read: %w", err)
	}

	reader := &BornReader{}
	if err := reader.parse(buf); err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}
	return reader, nil
}

// parse decodes the fixed header, the JSON header and verifies the checksum.
func (r *BornReader) parse(buf []byte) error {
	if len(buf) < FixedHeaderSize {
		if len(buf) >= 4 && string(buf[:4]) != MagicBytes {
			return ErrInvalidMagic
		}
		return fmt.Errorf("%w: %d bytes, need at least %d", ErrTruncated, len(buf), FixedHeaderSize)
	}
	fixedHeader := buf[:FixedHeaderSize]

	// 0x00-0x03: magic
	if string(fixedHeader[0:4]) != MagicBytes {
		return ErrInvalidMagic
	}

	// 0x04-0x07: version
	version := binary.LittleEndian.Uint32(fixedHeader[4:8])
	if version != FormatVersion {
		return fmt.Errorf("%w: got %d, expected %d", ErrUnsupportedVersion, version, FormatVersion)
	}

	// 0x08-0x0B: flags
	r.flags = binary.LittleEndian.Uint32(fixedHeader[8:12])

	// 0x10-0x17: header size
	headerSize := binary.LittleEndian.Uint64(fixedHeader[16:24])

	// 0x18-0x1F: data size
	dataSize := binary.LittleEndian.Uint64(fixedHeader[24:32])

	// 0x20-0x3F: SHA-256 checksum
	var stored [32]byte
	copy(stored[:], fixedHeader[ChecksumOffset:ChecksumOffset+ChecksumSize])

	if headerSize > MaxHeaderSize {
		return ErrHeaderTooLarge
	}

	//nolint:gosec // G115: headerSize is bounded by MaxHeaderSize
	hdrEnd := int64(FixedHeaderSize) + int64(headerSize)
	if hdrEnd > int64(len(buf)) {
		return fmt.Errorf("%w: header needs %d bytes", ErrTruncated, hdrEnd)
	}
	if err := json.Unmarshal(buf[FixedHeaderSize:hdrEnd], &r.header); err != nil {
		return fmt.Errorf("failed to parse header JSON: %w", err)
	}

	//nolint:gosec // G115: headerSize is bounded by MaxHeaderSize
	dataOffset := alignedDataOffset(int64(headerSize))
	if dataSize > uint64(len(buf)) || dataOffset+int64(dataSize) > int64(len(buf)) { //nolint:gosec // bounded above
		return fmt.Errorf("%w: data section needs %d bytes", ErrTruncated, dataSize)
	}
	r.data = buf[dataOffset : dataOffset+int64(dataSize)] //nolint:gosec // bounded above

	if err := ValidateChecksum(ComputeChecksum(r.data), stored); err != nil {
		return err
	}

	if err := ValidateHeader(&r.header, int64(len(r.data))); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// Header returns the file header.
func (r *BornReader) Header() Header {
	return r.header
}

// Metadata returns the metadata map from the header.
func (r *BornReader) Metadata() map[string]string {
	return r.header.Metadata
}

// Flags returns the flag word from the fixed header.
func (r *BornReader) Flags() uint32 {
	return r.flags
}

// TensorNames returns a list of all tensor names in the file.
func (r *BornReader) TensorNames() []string {
	names := make([]string, len(r.header.Tensors))
	for i, meta := range r.header.Tensors {
		names[i] = meta.Name
	}
	return names
}

// TensorInfo returns information about a specific tensor.
func (r *BornReader) TensorInfo(name string) (*TensorMeta, error) {
	for _, meta := range r.header.Tensors {
		if meta.Name == name {
			return &meta, nil
		}
	}
	return nil, fmt.Errorf("tensor %s not found", name)
}

// LoadTensor loads a single tensor from the file.
func (r *BornReader) LoadTensor(name string, device tensor.Device) (*tensor.RawTensor, error) {
	if r.closed {
		return nil, fmt.Errorf("reader is closed")
	}

	meta, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}

	dtype, ok := stringToDtype(meta.DType)
	if !ok {
		return nil, fmt.Errorf("unsupported dtype: %s", meta.DType)
	}

	raw, err := tensor.NewRaw(tensor.Shape(meta.Shape), dtype, device)
	if err != nil {
		return nil, fmt.Errorf("failed to create tensor %s: %w", name, err)
	}
	copy(raw.Data(), r.data[meta.Offset:meta.Offset+meta.Size])

	return raw, nil
}

// ReadStateDict reads all tensors into a state dictionary.
func (r *BornReader) ReadStateDict(device tensor.Device) (map[string]*tensor.RawTensor, error) {
	if r.closed {
		return nil, fmt.Errorf("reader is closed")
	}

	stateDict := make(map[string]*tensor.RawTensor, len(r.header.Tensors))
	for _, meta := range r.header.Tensors {
		raw, err := r.LoadTensor(meta.Name, device)
		if err != nil {
			return nil, fmt.Errorf("failed to load tensor %s: %w", meta.Name, err)
		}
		stateDict[meta.Name] = raw
	}

	return stateDict, nil
}

// Close releases the reader's buffer.
func (r *BornReader) Close() error {
	r.closed = true
	r.data = nil
	return nil
}
