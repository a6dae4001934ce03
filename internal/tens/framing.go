package tens

import (
	"encoding/binary"
)

// Magic is the 4-byte TENS binary frame magic.
var Magic = [4]byte{'T', 'E', 'N', 'S'}

// Version is the binary frame version this codec writes and the only
// version it currently accepts on decode.
const Version byte = 1

// frame returns: [4-byte magic "TENS"][1-byte version][1-byte encoding
// name length][encoding name UTF-8][4-byte LE token count][tokens as
// 4-byte LE uint32 each].
func frame(encoding string, tokens []int) ([]byte, error) {
	if len(encoding) > 255 {
		return nil, formatErrorf("encoding name %q exceeds 255 bytes", encoding)
	}
	buf := make([]byte, 0, 4+1+1+len(encoding)+4+len(tokens)*4)
	buf = append(buf, Magic[:]...)
	buf = append(buf, Version)
	buf = append(buf, byte(len(encoding)))
	buf = append(buf, encoding...)

	countBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(countBuf, uint32(len(tokens)))
	buf = append(buf, countBuf...)

	tokBuf := make([]byte, 4)
	for _, t := range tokens {
		binary.LittleEndian.PutUint32(tokBuf, uint32(t))
		buf = append(buf, tokBuf...)
	}
	return buf, nil
}

// unframe validates and parses a TENS binary frame, returning the encoding
// name and the decoded token stream.
func unframe(data []byte) (string, []int, error) {
	if len(data) < 4 {
		return "", nil, formatErrorf("payload too short for magic")
	}
	if data[0] != Magic[0] || data[1] != Magic[1] || data[2] != Magic[2] || data[3] != Magic[3] {
		return "", nil, formatErrorf("magic mismatch: not a TENS payload")
	}
	if len(data) < 6 {
		return "", nil, formatErrorf("payload truncated before version/name-length")
	}
	version := data[4]
	if version != Version {
		return "", nil, formatErrorf("unsupported TENS version %d", version)
	}
	nameLen := int(data[5])
	offset := 6
	if len(data) < offset+nameLen {
		return "", nil, formatErrorf("payload truncated in encoding name")
	}
	encoding := string(data[offset : offset+nameLen])
	offset += nameLen

	if len(data) < offset+4 {
		return "", nil, formatErrorf("payload truncated before token count")
	}
	count := int(binary.LittleEndian.Uint32(data[offset : offset+4]))
	offset += 4

	if len(data) < offset+count*4 {
		return "", nil, formatErrorf("payload truncated: expected %d tokens, found fewer", count)
	}
	tokens := make([]int, count)
	for i := 0; i < count; i++ {
		tokens[i] = int(binary.LittleEndian.Uint32(data[offset : offset+4]))
		offset += 4
	}
	return encoding, tokens, nil
}
