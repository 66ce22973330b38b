// Package onnx decodes ONNX ModelProto files into the in-memory model.
//
// Only the parts of the schema needed to describe the graph and carry its
// initializers are decoded; unknown fields are skipped.
package onnx

// modelProto mirrors onnx.ModelProto.
type modelProto struct {
	IRVersion       int64
	ProducerName    string
	ProducerVersion string
	Domain          string
	ModelVersion    int64
	DocString       string
	Graph           *graphProto
	OpsetImport     []opsetID
	MetadataProps   []stringEntry
}

type graphProto struct {
	Name         string
	Nodes        []nodeProto
	Initializers []tensorProto
	Inputs       []valueInfoProto
	Outputs      []valueInfoProto
}

type nodeProto struct {
	Name       string
	OpType     string
	Domain     string
	Inputs     []string
	Outputs    []string
	Attributes []attributeProto
}

type tensorProto struct {
	Name         string
	DataType     int32
	Dims         []int64
	RawData      []byte
	FloatData    []float32
	Int32Data    []int32
	Int64Data    []int64
	DoubleData   []float64
	Uint64Data   []uint64
	DataLocation int32
}

type valueInfoProto struct {
	Name     string
	ElemType int32
	Dims     []dimension
	HasShape bool
}

type dimension struct {
	Value int64
	Param string
}

type attributeProto struct {
	Name    string
	Type    int32
	F       float32
	I       int64
	S       []byte
	T       *tensorProto
	G       *graphProto
	Floats  []float32
	Ints    []int64
	Strings [][]byte
	set     attrSet
}

// attrSet records which value field was present, for files that omit Type.
type attrSet uint16

const (
	setF attrSet = 1 << iota
	setI
	setS
	setT
	setG
	setFloats
	setInts
	setStrings
)

type opsetID struct {
	Domain  string
	Version int64
}

type stringEntry struct {
	Key   string
	Value string
}

// ONNX TensorProto.DataType values.
const (
	dataTypeFloat    = 1
	dataTypeUint8    = 2
	dataTypeInt8     = 3
	dataTypeUint16   = 4
	dataTypeInt16    = 5
	dataTypeInt32    = 6
	dataTypeInt64    = 7
	dataTypeString   = 8
	dataTypeBool     = 9
	dataTypeFloat16  = 10
	dataTypeDouble   = 11
	dataTypeUint32   = 12
	dataTypeUint64   = 13
	dataTypeBFloat16 = 16
)

// ONNX AttributeProto.AttributeType values.
const (
	attrFloat   = 1
	attrInt     = 2
	attrString  = 3
	attrTensor  = 4
	attrGraph   = 5
	attrFloats  = 6
	attrInts    = 7
	attrStrings = 8
)

const dataLocationExternal = 1
