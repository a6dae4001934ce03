// Package tens implements the TENS Binary Codec: a control-token stream
// layered over a real (or synthetic) tokenizer vocabulary, framed into a
// self-describing binary envelope.
package tens

// Control tokens live in a synthetic namespace starting at ControlFloor,
// placed above any plausible tokenizer vocabulary (internal/tokenizer's
// largest compiled vocabulary tops out under 1,000,000) so they never
// collide with a real token id.
const ControlFloor = 100_000_000

const (
	NullVal = ControlFloor + iota
	BoolTrue
	BoolFalse
	ArrStart
	ArrEnd
	ObjStart
	ObjEnd
	SchemaDef
	SchemaRef
	Separator
	DocStart
	DocEnd
	RowBreak
	PresenceMask
	FixedArray
	DictDef
	NumVal
	StrVal

	// Numeric bases. Each occupies its own band so that (base + payload)
	// never collides with a fixed marker or another base's band, up to
	// payload values of 16,777,215 (2^24-1) per band.
	maskChunkBandStart
)

const bandSize = 1 << 24

const (
	MaskChunkBase = maskChunkBandStart
	ArrayLenBase  = MaskChunkBase + bandSize
	DictRefBase   = ArrayLenBase + bandSize
)

// IsControl reports whether id falls anywhere in the control-token
// namespace (fixed markers or one of the numeric bases).
func IsControl(id int) bool { return id >= ControlFloor }

// fixedMarkerNames supports diagnostic logging of unknown/unexpected
// control tokens encountered by the tolerant decoder.
var fixedMarkerNames = map[int]string{
	NullVal:      "NULL_VAL",
	BoolTrue:     "BOOL_TRUE",
	BoolFalse:    "BOOL_FALSE",
	ArrStart:     "ARR_START",
	ArrEnd:       "ARR_END",
	ObjStart:     "OBJ_START",
	ObjEnd:       "OBJ_END",
	SchemaDef:    "SCHEMA_DEF",
	SchemaRef:    "SCHEMA_REF",
	Separator:    "SEPARATOR",
	DocStart:     "DOC_START",
	DocEnd:       "DOC_END",
	RowBreak:     "ROW_BREAK",
	PresenceMask: "PRESENCE_MASK",
	FixedArray:   "FIXED_ARRAY",
	DictDef:      "DICT_DEF",
	NumVal:       "NUM_VAL",
	StrVal:       "STR_VAL",
}

func markerName(id int) string {
	if name, ok := fixedMarkerNames[id]; ok {
		return name
	}
	switch {
	case id >= DictRefBase:
		return "DICT_REF"
	case id >= ArrayLenBase:
		return "ARRAY_LEN"
	case id >= MaskChunkBase:
		return "MASK_CHUNK"
	default:
		return "UNKNOWN"
	}
}
