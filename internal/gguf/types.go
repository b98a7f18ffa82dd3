package gguf

import "fmt"

// GGUFMagic is the little-endian magic number "GGUF".
const GGUFMagic uint32 = 0x46554747

// Metadata value types as defined by the GGUF format.
type ValueType uint32

const (
	ValueTypeUint8 ValueType = iota
	ValueTypeInt8
	ValueTypeUint16
	ValueTypeInt16
	ValueTypeUint32
	ValueTypeInt32
	ValueTypeFloat32
	ValueTypeBool
	ValueTypeString
	ValueTypeArray
	ValueTypeUint64
	ValueTypeInt64
	ValueTypeFloat64
)

// GGMLType identifies the element encoding of a tensor.
type GGMLType uint32

const (
	GGMLTypeF32 GGMLType = iota
	GGMLTypeF16
	GGMLTypeQ4_0
	GGMLTypeQ4_1
	_ // removed Q4_2
	_ // removed Q4_3
	GGMLTypeQ5_0
	GGMLTypeQ5_1
	GGMLTypeQ8_0
	GGMLTypeQ8_1
	GGMLTypeQ2_K
	GGMLTypeQ3_K
	GGMLTypeQ4_K
	GGMLTypeQ5_K
	GGMLTypeQ6_K
	GGMLTypeQ8_K
)

func (t GGMLType) String() string {
	switch t {
	case GGMLTypeF32:
		return "F32"
	case GGMLTypeF16:
		return "F16"
	case GGMLTypeQ4_0:
		return "Q4_0"
	case GGMLTypeQ4_1:
		return "Q4_1"
	case GGMLTypeQ5_0:
		return "Q5_0"
	case GGMLTypeQ5_1:
		return "Q5_1"
	case GGMLTypeQ8_0:
		return "Q8_0"
	case GGMLTypeQ8_1:
		return "Q8_1"
	case GGMLTypeQ2_K:
		return "Q2_K"
	case GGMLTypeQ3_K:
		return "Q3_K"
	case GGMLTypeQ4_K:
		return "Q4_K"
	case GGMLTypeQ5_K:
		return "Q5_K"
	case GGMLTypeQ6_K:
		return "Q6_K"
	case GGMLTypeQ8_K:
		return "Q8_K"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(t))
	}
}

// Header is the fixed-size prefix of every GGUF file.
type Header struct {
	Magic       uint32
	Version     uint32
	TensorCount uint64
	KVCount     uint64
}

// TensorInfo describes one tensor entry from the file header. Tensor
// data itself is never loaded; Offset is relative to the data section.
type TensorInfo struct {
	Name       string
	Dimensions []uint64
	Type       GGMLType
	Offset     uint64
}

// Elements returns the element count implied by the dimensions.
func (t TensorInfo) Elements() uint64 {
	n := uint64(1)
	for _, d := range t.Dimensions {
		n *= d
	}
	return n
}

// File holds the parsed header, key/value metadata, and tensor
// descriptors of a GGUF file. No tensor data is read.
type File struct {
	Header     Header
	KV         map[string]interface{}
	Tensors    []TensorInfo
	Path       string
	FileSize   int64
	DataOffset int64
}

type ErrInvalidMagic struct {
	Got uint32
}

func (e ErrInvalidMagic) Error() string {
	return fmt.Sprintf("gguf: invalid magic 0x%08X, want 0x%08X", e.Got, GGUFMagic)
}

type ErrUnsupportedVersion struct {
	Version uint32
}

func (e ErrUnsupportedVersion) Error() string {
	return fmt.Sprintf("gguf: unsupported version %d (supported: 2, 3)", e.Version)
}
