package gguf

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/ekisa-team/modelweb/mapsafe"
)

const (
	maxStringLen = 64 << 20
	maxArrayLen  = 100_000_000
	maxDims      = 8
)

// ErrInvalidMagic is returned when the file does not start with GGUF.
var ErrInvalidMagic = errors.New("invalid GGUF magic")

// ErrUnsupportedVersion is returned for GGUF versions other than 2 and 3.
var ErrUnsupportedVersion = errors.New("unsupported GGUF version")

// Parse reads the header, metadata and tensor infos from r.
func Parse(r io.Reader) (*File, error) {
	cr := &countingReader{r: bufio.NewReader(r)}
	p := &parser{r: cr, order: binary.LittleEndian}

	file := &File{Metadata: make(map[string]any)}
	if err := p.parseHeader(&file.Header); err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}

	for i := uint64(0); i < file.Header.MetadataKVCount; i++ {
		key, value, err := p.parseKV()
		if err != nil {
			return nil, fmt.Errorf("parse metadata kv %d: %w", i, err)
		}
		file.Metadata[key] = value
	}

	file.Alignment = mapsafe.Get(file.Metadata, "general.alignment", DefaultAlignment)
	if file.Alignment <= 0 {
		return nil, fmt.Errorf("invalid alignment %d", file.Alignment)
	}

	file.Tensors = make([]TensorInfo, 0, min(file.Header.TensorCount, 1<<16))
	for i := uint64(0); i < file.Header.TensorCount; i++ {
		var ti TensorInfo
		if err := p.parseTensorInfo(&ti); err != nil {
			return nil, fmt.Errorf("parse tensor info %d: %w", i, err)
		}
		file.Tensors = append(file.Tensors, ti)
	}

	file.DataOffset = alignOffset(cr.n, int64(file.Alignment))

	return file, nil
}

type parser struct {
	r     io.Reader
	order binary.ByteOrder
}

func (p *parser) read(v any) error {
	return binary.Read(p.r, p.order, v)
}

func (p *parser) parseHeader(h *Header) error {
	if err := p.read(&h.Magic); err != nil {
		return fmt.Errorf("read magic: %w", err)
	}

	switch h.Magic {
	case MagicLE:
		p.order = binary.LittleEndian
	case MagicBE:
		p.order = binary.BigEndian
	default:
		return fmt.Errorf("%w: 0x%08X", ErrInvalidMagic, h.Magic)
	}

	if err := p.read(&h.Version); err != nil {
		return fmt.Errorf("read version: %w", err)
	}
	if h.Version < 2 || h.Version > 3 {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}

	if err := p.read(&h.TensorCount); err != nil {
		return fmt.Errorf("read tensor count: %w", err)
	}
	if err := p.read(&h.MetadataKVCount); err != nil {
		return fmt.Errorf("read metadata kv count: %w", err)
	}

	return nil
}

func (p *parser) parseKV() (string, any, error) {
	key, err := p.readString()
	if err != nil {
		return "", nil, fmt.Errorf("read key: %w", err)
	}

	var vt uint32
	if err := p.read(&vt); err != nil {
		return "", nil, fmt.Errorf("read value type of %s: %w", key, err)
	}

	value, err := p.parseValue(ValueType(vt))
	if err != nil {
		return "", nil, fmt.Errorf("read value of %s: %w", key, err)
	}

	return key, value, nil
}

// parseValue returns metadata normalised to int, float64, bool, string or []any.
func (p *parser) parseValue(t ValueType) (any, error) {
	switch t {
	case ValueTypeUint8:
		var v uint8
		err := p.read(&v)
		return int(v), err
	case ValueTypeInt8:
		var v int8
		err := p.read(&v)
		return int(v), err
	case ValueTypeUint16:
		var v uint16
		err := p.read(&v)
		return int(v), err
	case ValueTypeInt16:
		var v int16
		err := p.read(&v)
		return int(v), err
	case ValueTypeUint32:
		var v uint32
		err := p.read(&v)
		return int(v), err
	case ValueTypeInt32:
		var v int32
		err := p.read(&v)
		return int(v), err
	case ValueTypeUint64:
		var v uint64
		if err := p.read(&v); err != nil {
			return nil, err
		}
		if v > math.MaxInt64 {
			return float64(v), nil
		}
		return int(v), nil
	case ValueTypeInt64:
		var v int64
		err := p.read(&v)
		return int(v), err
	case ValueTypeFloat32:
		var v float32
		err := p.read(&v)
		return float64(v), err
	case ValueTypeFloat64:
		var v float64
		err := p.read(&v)
		return v, err
	case ValueTypeBool:
		var v uint8
		err := p.read(&v)
		return v != 0, err
	case ValueTypeString:
		return p.readString()
	case ValueTypeArray:
		return p.parseArray()
	}

	return nil, fmt.Errorf("unknown value type: %d", t)
}

func (p *parser) parseArray() (any, error) {
	var elemType uint32
	if err := p.read(&elemType); err != nil {
		return nil, fmt.Errorf("read array element type: %w", err)
	}

	var length uint64
	if err := p.read(&length); err != nil {
		return nil, fmt.Errorf("read array length: %w", err)
	}
	if length > maxArrayLen {
		return nil, fmt.Errorf("array too large: %d elements", length)
	}

	out := make([]any, 0, min(length, 1<<16))
	for i := uint64(0); i < length; i++ {
		v, err := p.parseValue(ValueType(elemType))
		if err != nil {
			return nil, fmt.Errorf("read array element %d: %w", i, err)
		}
		out = append(out, v)
	}

	return out, nil
}

func (p *parser) readString() (string, error) {
	var length uint64
	if err := p.read(&length); err != nil {
		return "", err
	}
	if length > maxStringLen {
		return "", fmt.Errorf("string too long: %d bytes", length)
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(p.r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func (p *parser) parseTensorInfo(ti *TensorInfo) error {
	name, err := p.readString()
	if err != nil {
		return fmt.Errorf("read name: %w", err)
	}
	ti.Name = name

	var nDims uint32
	if err := p.read(&nDims); err != nil {
		return fmt.Errorf("read dimension count of %s: %w", name, err)
	}
	if nDims > maxDims {
		return fmt.Errorf("tensor %s has %d dimensions", name, nDims)
	}

	ti.Dimensions = make([]uint64, nDims)
	for i := range ti.Dimensions {
		if err := p.read(&ti.Dimensions[i]); err != nil {
			return fmt.Errorf("read dimension %d of %s: %w", i, name, err)
		}
	}

	var typ uint32
	if err := p.read(&typ); err != nil {
		return fmt.Errorf("read type of %s: %w", name, err)
	}
	ti.Type = GGMLType(typ)

	if err := p.read(&ti.Offset); err != nil {
		return fmt.Errorf("read offset of %s: %w", name, err)
	}

	return nil
}

func alignOffset(offset, alignment int64) int64 {
	return (offset + alignment - 1) / alignment * alignment
}

// countingReader tracks how many bytes the parser consumed.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(b []byte) (int, error) {
	n, err := c.r.Read(b)
	c.n += int64(n)
	return n, err
}
