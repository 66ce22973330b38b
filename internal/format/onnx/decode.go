package onnx

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// fieldFunc handles one field and returns the number of value bytes it
// consumed, or 0 to have the field skipped.
type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

// walk iterates over the fields of an encoded message.
func walk(b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		m, err := fn(num, typ, b)
		if err != nil {
			return fmt.Errorf("field %d: %w", num, err)
		}
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
		}
		if m < 0 {
			return fmt.Errorf("field %d: %w", num, protowire.ParseError(m))
		}
		b = b[m:]
	}
	return nil
}

func wantType(got, want protowire.Type) error {
	if got != want {
		return fmt.Errorf("wire type %d, want %d", got, want)
	}
	return nil
}

func consumeBytes(typ protowire.Type, b []byte) ([]byte, int, error) {
	if err := wantType(typ, protowire.BytesType); err != nil {
		return nil, 0, err
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeString(dst *string) fieldFunc {
	return func(_ protowire.Number, typ protowire.Type, b []byte) (int, error) {
		v, n, err := consumeBytes(typ, b)
		*dst = string(v)
		return n, err
	}
}

func consumeVarint(typ protowire.Type, b []byte) (uint64, int, error) {
	if err := wantType(typ, protowire.VarintType); err != nil {
		return 0, 0, err
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

// consumeVarints reads a repeated varint field in packed or unpacked form.
func consumeVarints(typ protowire.Type, b []byte, add func(uint64)) (int, error) {
	if typ == protowire.VarintType {
		v, n, err := consumeVarint(typ, b)
		if err == nil {
			add(v)
		}
		return n, err
	}

	packed, n, err := consumeBytes(typ, b)
	if err != nil {
		return 0, err
	}
	for len(packed) > 0 {
		v, m := protowire.ConsumeVarint(packed)
		if m < 0 {
			return 0, protowire.ParseError(m)
		}
		add(v)
		packed = packed[m:]
	}
	return n, nil
}

// consumeFixed32s reads a repeated float field in packed or unpacked form.
func consumeFixed32s(typ protowire.Type, b []byte, add func(uint32)) (int, error) {
	if typ == protowire.Fixed32Type {
		v, n := protowire.ConsumeFixed32(b)
		if n < 0 {
			return 0, protowire.ParseError(n)
		}
		add(v)
		return n, nil
	}

	packed, n, err := consumeBytes(typ, b)
	if err != nil {
		return 0, err
	}
	for len(packed) > 0 {
		v, m := protowire.ConsumeFixed32(packed)
		if m < 0 {
			return 0, protowire.ParseError(m)
		}
		add(v)
		packed = packed[m:]
	}
	return n, nil
}

// consumeFixed64s reads a repeated double field in packed or unpacked form.
func consumeFixed64s(typ protowire.Type, b []byte, add func(uint64)) (int, error) {
	if typ == protowire.Fixed64Type {
		v, n := protowire.ConsumeFixed64(b)
		if n < 0 {
			return 0, protowire.ParseError(n)
		}
		add(v)
		return n, nil
	}

	packed, n, err := consumeBytes(typ, b)
	if err != nil {
		return 0, err
	}
	for len(packed) > 0 {
		v, m := protowire.ConsumeFixed64(packed)
		if m < 0 {
			return 0, protowire.ParseError(m)
		}
		add(v)
		packed = packed[m:]
	}
	return n, nil
}

// consumeMessage reads an embedded message with decode.
func consumeMessage(typ protowire.Type, b []byte, decode func([]byte) error) (int, error) {
	msg, n, err := consumeBytes(typ, b)
	if err != nil {
		return 0, err
	}
	return n, decode(msg)
}

func decodeModel(b []byte) (*modelProto, error) {
	m := &modelProto{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeVarint(typ, b)
			m.IRVersion = int64(v)
			return n, err
		case 2:
			return consumeString(&m.ProducerName)(num, typ, b)
		case 3:
			return consumeString(&m.ProducerVersion)(num, typ, b)
		case 4:
			return consumeString(&m.Domain)(num, typ, b)
		case 5:
			v, n, err := consumeVarint(typ, b)
			m.ModelVersion = int64(v)
			return n, err
		case 6:
			return consumeString(&m.DocString)(num, typ, b)
		case 7:
			return consumeMessage(typ, b, func(msg []byte) (err error) {
				m.Graph, err = decodeGraph(msg)
				return err
			})
		case 8:
			return consumeMessage(typ, b, func(msg []byte) error {
				var op opsetID
				err := walk(msg, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
					switch num {
					case 1:
						return consumeString(&op.Domain)(num, typ, b)
					case 2:
						v, n, err := consumeVarint(typ, b)
						op.Version = int64(v)
						return n, err
					}
					return 0, nil
				})
				m.OpsetImport = append(m.OpsetImport, op)
				return err
			})
		case 14:
			return consumeMessage(typ, b, func(msg []byte) error {
				var e stringEntry
				err := walk(msg, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
					switch num {
					case 1:
						return consumeString(&e.Key)(num, typ, b)
					case 2:
						return consumeString(&e.Value)(num, typ, b)
					}
					return 0, nil
				})
				m.MetadataProps = append(m.MetadataProps, e)
				return err
			})
		}
		return 0, nil
	})
	return m, err
}

func decodeGraph(b []byte) (*graphProto, error) {
	g := &graphProto{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeMessage(typ, b, func(msg []byte) error {
				node, err := decodeNode(msg)
				if err == nil {
					g.Nodes = append(g.Nodes, *node)
				}
				return err
			})
		case 2:
			return consumeString(&g.Name)(num, typ, b)
		case 5:
			return consumeMessage(typ, b, func(msg []byte) error {
				t, err := decodeTensor(msg)
				if err == nil {
					g.Initializers = append(g.Initializers, *t)
				}
				return err
			})
		case 11, 12:
			return consumeMessage(typ, b, func(msg []byte) error {
				vi, err := decodeValueInfo(msg)
				if err != nil {
					return err
				}
				if num == 11 {
					g.Inputs = append(g.Inputs, *vi)
				} else {
					g.Outputs = append(g.Outputs, *vi)
				}
				return nil
			})
		}
		return 0, nil
	})
	return g, err
}

func decodeNode(b []byte) (*nodeProto, error) {
	node := &nodeProto{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1, 2:
			v, n, err := consumeBytes(typ, b)
			if num == 1 {
				node.Inputs = append(node.Inputs, string(v))
			} else {
				node.Outputs = append(node.Outputs, string(v))
			}
			return n, err
		case 3:
			return consumeString(&node.Name)(num, typ, b)
		case 4:
			return consumeString(&node.OpType)(num, typ, b)
		case 5:
			return consumeMessage(typ, b, func(msg []byte) error {
				attr, err := decodeAttribute(msg)
				if err == nil {
					node.Attributes = append(node.Attributes, *attr)
				}
				return err
			})
		case 7:
			return consumeString(&node.Domain)(num, typ, b)
		}
		return 0, nil
	})
	return node, err
}

func decodeAttribute(b []byte) (*attributeProto, error) {
	a := &attributeProto{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(&a.Name)(num, typ, b)
		case 2:
			a.set |= setF
			return consumeFixed32s(typ, b, func(v uint32) { a.F = math.Float32frombits(v) })
		case 3:
			a.set |= setI
			v, n, err := consumeVarint(typ, b)
			a.I = int64(v)
			return n, err
		case 4:
			a.set |= setS
			v, n, err := consumeBytes(typ, b)
			a.S = v
			return n, err
		case 5:
			a.set |= setT
			return consumeMessage(typ, b, func(msg []byte) (err error) {
				a.T, err = decodeTensor(msg)
				return err
			})
		case 6:
			a.set |= setG
			return consumeMessage(typ, b, func(msg []byte) (err error) {
				a.G, err = decodeGraph(msg)
				return err
			})
		case 7:
			a.set |= setFloats
			return consumeFixed32s(typ, b, func(v uint32) { a.Floats = append(a.Floats, math.Float32frombits(v)) })
		case 8:
			a.set |= setInts
			return consumeVarints(typ, b, func(v uint64) { a.Ints = append(a.Ints, int64(v)) })
		case 9:
			a.set |= setStrings
			v, n, err := consumeBytes(typ, b)
			a.Strings = append(a.Strings, v)
			return n, err
		case 20:
			v, n, err := consumeVarint(typ, b)
			a.Type = int32(v)
			return n, err
		}
		return 0, nil
	})
	return a, err
}

func decodeTensor(b []byte) (*tensorProto, error) {
	t := &tensorProto{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeVarints(typ, b, func(v uint64) { t.Dims = append(t.Dims, int64(v)) })
		case 2:
			v, n, err := consumeVarint(typ, b)
			t.DataType = int32(v)
			return n, err
		case 4:
			return consumeFixed32s(typ, b, func(v uint32) { t.FloatData = append(t.FloatData, math.Float32frombits(v)) })
		case 5:
			return consumeVarints(typ, b, func(v uint64) { t.Int32Data = append(t.Int32Data, int32(v)) })
		case 7:
			return consumeVarints(typ, b, func(v uint64) { t.Int64Data = append(t.Int64Data, int64(v)) })
		case 8:
			return consumeString(&t.Name)(num, typ, b)
		case 9:
			v, n, err := consumeBytes(typ, b)
			t.RawData = v
			return n, err
		case 10:
			return consumeFixed64s(typ, b, func(v uint64) { t.DoubleData = append(t.DoubleData, math.Float64frombits(v)) })
		case 11:
			return consumeVarints(typ, b, func(v uint64) { t.Uint64Data = append(t.Uint64Data, v) })
		case 14:
			v, n, err := consumeVarint(typ, b)
			t.DataLocation = int32(v)
			return n, err
		}
		return 0, nil
	})
	return t, err
}

func decodeValueInfo(b []byte) (*valueInfoProto, error) {
	vi := &valueInfoProto{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(&vi.Name)(num, typ, b)
		case 2:
			// TypeProto.tensor_type (1) -> elem_type (1), shape (2) -> dim (1).
			return consumeMessage(typ, b, func(msg []byte) error {
				return walk(msg, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
					if num != 1 {
						return 0, nil
					}
					return consumeMessage(typ, b, vi.decodeTensorType)
				})
			})
		}
		return 0, nil
	})
	return vi, err
}

func (vi *valueInfoProto) decodeTensorType(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeVarint(typ, b)
			vi.ElemType = int32(v)
			return n, err
		case 2:
			vi.HasShape = true
			return consumeMessage(typ, b, func(msg []byte) error {
				return walk(msg, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
					if num != 1 {
						return 0, nil
					}
					return consumeMessage(typ, b, func(msg []byte) error {
						var d dimension
						err := walk(msg, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
							switch num {
							case 1:
								v, n, err := consumeVarint(typ, b)
								d.Value = int64(v)
								return n, err
							case 2:
								return consumeString(&d.Param)(num, typ, b)
							}
							return 0, nil
						})
						vi.Dims = append(vi.Dims, d)
						return err
					})
				})
			})
		}
		return 0, nil
	})
}
