package tenstext

import (
	"strconv"
	"strings"

	"github.com/contexlabs/contex/internal/canonical"
	"github.com/contexlabs/contex/internal/tokenizer"
)

type textSchema struct {
	name string
	defs []FieldDef
}

// Decode parses a TENS-Text document back into records plus its header
// metadata. Decoding is lenient per the grammar's stated tolerances: a
// missing @version defaults to 1, a missing @encoding defaults to the
// primary modern encoding, blank lines are ignored wherever they occur,
// CRLF line endings are accepted, and an out-of-range dictionary reference
// decodes to null. An unrecognized directive is a hard FormatError.
func Decode(doc string) ([]canonical.Value, Document, error) {
	meta := Document{Version: 1, Encoding: tokenizer.EncodingO200kBase}

	lines := strings.Split(doc, "\n")

	schemas := map[string]*textSchema{}
	dictValues := map[int]string{}

	var records []canonical.Value
	var curSchema *textSchema
	var curFields map[string][]string

	flush := func() error {
		if curSchema == nil {
			return nil
		}
		obj, err := buildRecord(curSchema, curFields, dictValues)
		if err != nil {
			return err
		}
		records = append(records, canonical.ObjectValue(obj))
		curSchema = nil
		curFields = nil
		return nil
	}

	for _, raw := range lines {
		line := strings.TrimSuffix(raw, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		if strings.HasPrefix(line, "  ") {
			if curSchema == nil {
				return nil, meta, formatErrorf("field line %q appears before any record marker", line)
			}
			content := line[2:]
			sp := strings.IndexByte(content, ' ')
			var name, val string
			if sp < 0 {
				name, val = content, ""
			} else {
				name, val = content[:sp], content[sp+1:]
			}
			curFields[name] = append(curFields[name], val)
			continue
		}

		if strings.HasPrefix(line, "@") {
			if curSchema != nil {
				return nil, meta, formatErrorf("directive %q appears after records have started", line)
			}
			toks := tokenizeRespectingQuotes(line)
			if len(toks) == 0 {
				continue
			}
			switch toks[0] {
			case "@version":
				if len(toks) < 2 {
					return nil, meta, formatErrorf("@version directive missing its value")
				}
				v, err := strconv.Atoi(toks[1])
				if err != nil {
					return nil, meta, formatErrorf("malformed @version value %q", toks[1])
				}
				meta.Version = v
			case "@encoding":
				if len(toks) < 2 {
					return nil, meta, formatErrorf("@encoding directive missing its value")
				}
				meta.Encoding = tokenizer.Encoding(toks[1])
			case "@schema":
				if len(toks) < 2 {
					return nil, meta, formatErrorf("@schema directive missing its name")
				}
				name := toks[1]
				fieldNames := make([]string, 0, len(toks)-2)
				defs := make([]FieldDef, 0, len(toks)-2)
				for _, tok := range toks[2:] {
					fd, err := parseFieldDef(tok)
					if err != nil {
						return nil, meta, err
					}
					fieldNames = append(fieldNames, fd.Name)
					defs = append(defs, fd)
				}
				schemas[name] = &textSchema{name: name, defs: defs}
			case "@dict":
				for i, tok := range toks[1:] {
					s, err := dictTokenToString(tok)
					if err != nil {
						return nil, meta, err
					}
					dictValues[i] = s
				}
			default:
				return nil, meta, formatErrorf("unknown directive %q", toks[0])
			}
			continue
		}

		// A bare, non-indented, non-directive line is a record marker
		// naming the schema it uses.
		if err := flush(); err != nil {
			return nil, meta, err
		}
		name := strings.TrimSpace(line)
		s, ok := schemas[name]
		if !ok {
			return nil, meta, formatErrorf("record references undeclared schema %q", name)
		}
		curSchema = s
		curFields = map[string][]string{}
	}

	if err := flush(); err != nil {
		return nil, meta, err
	}

	if records == nil {
		records = []canonical.Value{}
	}
	return records, meta, nil
}

func buildRecord(s *textSchema, fields map[string][]string, dict map[int]string) (*canonical.Object, error) {
	obj := &canonical.Object{}
	for _, def := range s.defs {
		raws, ok := fields[def.Name]
		if !ok {
			continue
		}
		var val canonical.Value
		if def.IsArray {
			if len(raws) == 1 && raws[0] == "[]" {
				val = canonical.Array(nil)
			} else {
				elems := make([]canonical.Value, len(raws))
				for i, r := range raws {
					v, err := parseScalarToken(r, dict)
					if err != nil {
						return nil, err
					}
					elems[i] = v
				}
				val = canonical.Array(elems)
			}
		} else {
			v, err := parseScalarToken(raws[0], dict)
			if err != nil {
				return nil, err
			}
			val = v
		}
		obj.Fields = append(obj.Fields, canonical.Field{Key: def.Name, Value: val})
	}
	return obj, nil
}

// tokenizeRespectingQuotes splits a directive line on whitespace, treating a
// double-quoted run (honoring backslash escapes) as a single token even if
// it contains embedded whitespace.
func tokenizeRespectingQuotes(s string) []string {
	var toks []string
	i, n := 0, len(s)
	for i < n {
		for i < n && (s[i] == ' ' || s[i] == '\t') {
			i++
		}
		if i >= n {
			break
		}
		if s[i] == '"' {
			j := i + 1
			for j < n {
				if s[j] == '\\' && j+1 < n {
					j += 2
					continue
				}
				if s[j] == '"' {
					j++
					break
				}
				j++
			}
			toks = append(toks, s[i:j])
			i = j
			continue
		}
		j := i
		for j < n && s[j] != ' ' && s[j] != '\t' {
			j++
		}
		toks = append(toks, s[i:j])
		i = j
	}
	return toks
}

func dictTokenToString(tok string) (string, error) {
	if strings.HasPrefix(tok, `"`) && strings.HasSuffix(tok, `"`) && len(tok) >= 2 {
		return unquote(tok[1 : len(tok)-1])
	}
	return tok, nil
}
