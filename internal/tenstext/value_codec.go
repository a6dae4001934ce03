package tenstext

import (
	"strconv"
	"strings"

	"github.com/contexlabs/contex/internal/canonical"
)

// scalarToken renders a single non-array value as its TENS-Text token. v
// must not be an array or object; arrays are handled by field repetition
// at the record-emission layer, and this codec represents only scalar
// array elements (see FormatError in errors.go).
func scalarToken(v canonical.Value, dictIDs map[string]int) (string, error) {
	switch v.Kind() {
	case canonical.KindNull:
		return "_", nil
	case canonical.KindBool:
		if v.Bool() {
			return "true", nil
		}
		return "false", nil
	case canonical.KindNumber:
		return canonical.FormatNumber(v.Number()), nil
	case canonical.KindNonFiniteNumber:
		return renderStringValue(v.NonFiniteTag().String()), nil
	case canonical.KindString:
		if id, ok := dictIDs[v.Str()]; ok {
			return "@" + strconv.Itoa(id), nil
		}
		return renderStringValue(v.Str()), nil
	default:
		return "", formatErrorf("cannot render a %v value as a scalar token; this codec supports only scalar array elements", v.Kind())
	}
}

// parseScalarToken parses one value token back to a canonical value. An
// out-of-range dictionary reference decodes to null rather than erroring,
// matching the binary codec's tolerance for the same situation.
func parseScalarToken(tok string, dict map[int]string) (canonical.Value, error) {
	switch tok {
	case "_":
		return canonical.Null(), nil
	case "true":
		return canonical.Bool(true), nil
	case "false":
		return canonical.Bool(false), nil
	}
	if len(tok) >= 2 && tok[0] == '@' && isAllDigits(tok[1:]) {
		id, err := strconv.Atoi(tok[1:])
		if err != nil {
			return canonical.Value{}, formatErrorf("malformed dictionary reference %q", tok)
		}
		if s, ok := dict[id]; ok {
			return canonical.String(s), nil
		}
		return canonical.Null(), nil
	}
	if strings.HasPrefix(tok, `"`) && strings.HasSuffix(tok, `"`) && len(tok) >= 2 {
		inner, err := unquote(tok[1 : len(tok)-1])
		if err != nil {
			return canonical.Value{}, err
		}
		if tag, ok := canonical.ParseNonFiniteTag(inner); ok {
			return canonical.NonFinite(tag), nil
		}
		return canonical.String(inner), nil
	}
	if tag, ok := canonical.ParseNonFiniteTag(tok); ok {
		return canonical.NonFinite(tag), nil
	}
	if looksNumeric(tok) {
		n, err := canonical.ParseNumber(tok)
		if err == nil {
			return canonical.Number(n), nil
		}
	}
	return canonical.String(tok), nil
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
