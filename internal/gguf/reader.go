package gguf

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/theawakener0/oxide/internal/logger"
)

const defaultAlignment = 32

// maxStringLen bounds metadata strings so a corrupt length field cannot
// trigger a huge allocation. Chat templates run to a few KB; 16 MiB is
// far beyond anything legitimate.
const maxStringLen = 16 << 20

const maxArrayLen = 1 << 28

// countingReader tracks how many bytes have been consumed so the data
// section offset can be computed without seeking.
type countingReader struct {
	r *bufio.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// LoadFile parses the header, metadata key/value pairs, and tensor
// descriptors of a GGUF file. Tensor data is left on disk.
func LoadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("gguf: open %s: %w", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("gguf: stat %s: %w", path, err)
	}

	cr := &countingReader{r: bufio.NewReaderSize(f, 1<<20)}

	var hdr Header
	if err := binary.Read(cr, binary.LittleEndian, &hdr.Magic); err != nil {
		return nil, fmt.Errorf("gguf: read magic: %w", err)
	}
	if hdr.Magic != GGUFMagic {
		return nil, ErrInvalidMagic{Got: hdr.Magic}
	}
	if err := binary.Read(cr, binary.LittleEndian, &hdr.Version); err != nil {
		return nil, fmt.Errorf("gguf: read version: %w", err)
	}
	if hdr.Version != 2 && hdr.Version != 3 {
		return nil, ErrUnsupportedVersion{Version: hdr.Version}
	}
	if err := binary.Read(cr, binary.LittleEndian, &hdr.TensorCount); err != nil {
		return nil, fmt.Errorf("gguf: read tensor count: %w", err)
	}
	if err := binary.Read(cr, binary.LittleEndian, &hdr.KVCount); err != nil {
		return nil, fmt.Errorf("gguf: read kv count: %w", err)
	}

	kv := make(map[string]interface{}, hdr.KVCount)
	for i := uint64(0); i < hdr.KVCount; i++ {
		key, err := readString(cr)
		if err != nil {
			return nil, fmt.Errorf("gguf: read kv key %d: %w", i, err)
		}
		var vt ValueType
		if err := binary.Read(cr, binary.LittleEndian, (*uint32)(&vt)); err != nil {
			return nil, fmt.Errorf("gguf: read value type for %q: %w", key, err)
		}
		val, err := readValue(cr, vt)
		if err != nil {
			return nil, fmt.Errorf("gguf: read value for %q: %w", key, err)
		}
		kv[key] = val
	}

	tensors := make([]TensorInfo, 0, hdr.TensorCount)
	for i := uint64(0); i < hdr.TensorCount; i++ {
		ti, err := readTensorInfo(cr)
		if err != nil {
			return nil, fmt.Errorf("gguf: read tensor info %d: %w", i, err)
		}
		tensors = append(tensors, ti)
	}

	align := int64(defaultAlignment)
	if a, ok := kv["general.alignment"]; ok {
		if v, ok := toInt64(a); ok && v > 0 {
			align = v
		}
	}
	dataOffset := (cr.n + align - 1) / align * align

	logger.Log.Debug("parsed gguf header",
		"path", path,
		"version", hdr.Version,
		"tensors", hdr.TensorCount,
		"kv_pairs", hdr.KVCount)

	return &File{
		Header:     hdr,
		KV:         kv,
		Tensors:    tensors,
		Path:       path,
		FileSize:   st.Size(),
		DataOffset: dataOffset,
	}, nil
}

func readString(r io.Reader) (string, error) {
	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	if n > maxStringLen {
		return "", fmt.Errorf("string length %d exceeds limit", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func readValue(r io.Reader, vt ValueType) (interface{}, error) {
	switch vt {
	case ValueTypeUint8:
		var v uint8
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, err
	case ValueTypeInt8:
		var v int8
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, err
	case ValueTypeUint16:
		var v uint16
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, err
	case ValueTypeInt16:
		var v int16
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, err
	case ValueTypeUint32:
		var v uint32
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, err
	case ValueTypeInt32:
		var v int32
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, err
	case ValueTypeFloat32:
		var v float32
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, err
	case ValueTypeBool:
		var v uint8
		err := binary.Read(r, binary.LittleEndian, &v)
		return v != 0, err
	case ValueTypeString:
		return readString(r)
	case ValueTypeArray:
		return readArray(r)
	case ValueTypeUint64:
		var v uint64
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, err
	case ValueTypeInt64:
		var v int64
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, err
	case ValueTypeFloat64:
		var v float64
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, err
	default:
		return nil, fmt.Errorf("unknown value type %d", vt)
	}
}

func readArray(r io.Reader) (interface{}, error) {
	var et ValueType
	if err := binary.Read(r, binary.LittleEndian, (*uint32)(&et)); err != nil {
		return nil, err
	}
	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	if n > maxArrayLen {
		return nil, fmt.Errorf("array length %d exceeds limit", n)
	}

	// Vocabularies dominate array metadata, so strings and floats get
	// typed slices; everything else stays generic.
	switch et {
	case ValueTypeString:
		out := make([]string, n)
		for i := uint64(0); i < n; i++ {
			s, err := readString(r)
			if err != nil {
				return nil, err
			}
			out[i] = s
		}
		return out, nil
	case ValueTypeFloat32:
		out := make([]float32, n)
		if err := binary.Read(r, binary.LittleEndian, out); err != nil {
			return nil, err
		}
		return out, nil
	case ValueTypeInt32:
		out := make([]int32, n)
		if err := binary.Read(r, binary.LittleEndian, out); err != nil {
			return nil, err
		}
		return out, nil
	case ValueTypeUint32:
		out := make([]uint32, n)
		if err := binary.Read(r, binary.LittleEndian, out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		out := make([]interface{}, n)
		for i := uint64(0); i < n; i++ {
			v, err := readValue(r, et)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}
}

func readTensorInfo(r io.Reader) (TensorInfo, error) {
	var ti TensorInfo
	name, err := readString(r)
	if err != nil {
		return ti, err
	}
	ti.Name = name

	var nDims uint32
	if err := binary.Read(r, binary.LittleEndian, &nDims); err != nil {
		return ti, err
	}
	if nDims > 8 {
		return ti, fmt.Errorf("tensor %q has %d dimensions", name, nDims)
	}
	ti.Dimensions = make([]uint64, nDims)
	for i := range ti.Dimensions {
		if err := binary.Read(r, binary.LittleEndian, &ti.Dimensions[i]); err != nil {
			return ti, err
		}
	}
	if err := binary.Read(r, binary.LittleEndian, (*uint32)(&ti.Type)); err != nil {
		return ti, err
	}
	if err := binary.Read(r, binary.LittleEndian, &ti.Offset); err != nil {
		return ti, err
	}
	return ti, nil
}

func toInt64(v interface{}) (int64, bool) {
	switch x := v.(type) {
	case uint8:
		return int64(x), true
	case int8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case int16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case int32:
		return int64(x), true
	case uint64:
		return int64(x), true
	case int64:
		return x, true
	default:
		return 0, false
	}
}
