package tenstext

import (
	"strconv"
	"strings"

	"github.com/contexlabs/contex/internal/canonical"
	"github.com/contexlabs/contex/internal/dictionary"
	"github.com/contexlabs/contex/internal/schema"
	"github.com/contexlabs/contex/internal/tens"
	"github.com/contexlabs/contex/internal/tokenizer"
)

// Document is the header metadata of a TENS-Text document (its @version
// and @encoding); Decode returns the decoded records separately.
type Document struct {
	Version  int
	Encoding tokenizer.Encoding
}

// Encode renders records as a TENS-Text document string. It mirrors
// internal/tens.EncodeTokens's schema/dictionary selection exactly, so the
// two codecs assign identical schema and dictionary IDs for the same input.
// threshold of 0 or less uses tens.SingleSchemaFieldThreshold.
func Encode(adapter *tokenizer.Adapter, records []canonical.Value, threshold int) (string, error) {
	threshold = tens.ResolveThreshold(threshold)
	flat := make([]*canonical.Object, len(records))
	for i, r := range records {
		if r.Kind() != canonical.KindObject {
			return "", formatErrorf("record %d is not an object", i)
		}
		flat[i] = canonical.FlattenObject(r.Object())
	}

	reg := schema.NewRegistry()
	allFieldNames := map[string]bool{}
	for _, obj := range flat {
		for _, f := range obj.Fields {
			allFieldNames[f.Key] = true
		}
	}

	single := len(allFieldNames) <= threshold
	rowSchemas := make([]*schema.Schema, len(flat))
	if single {
		objsAsValues := make([]canonical.Value, len(flat))
		for i, obj := range flat {
			objsAsValues[i] = canonical.ObjectValue(obj)
		}
		s, err := reg.Superset(objsAsValues)
		if err != nil {
			return "", err
		}
		for i := range flat {
			rowSchemas[i] = s
		}
	} else {
		for i, obj := range flat {
			s, err := reg.Register(canonical.ObjectValue(obj))
			if err != nil {
				return "", err
			}
			rowSchemas[i] = s
		}
	}

	dict, err := buildDictionary(adapter, flat)
	if err != nil {
		return "", err
	}
	dictIDs := dict.IDByValue()

	var b strings.Builder
	b.WriteString("@version 1\n")
	b.WriteString("@encoding " + string(adapter.Encoding()) + "\n")

	schemaFieldDefs := map[int][]FieldDef{}
	for _, s := range reg.Schemas() {
		rowsForSchema := rowsOfSchema(flat, rowSchemas, s)
		defs := inferFieldDefs(s.Fields, rowsForSchema)
		schemaFieldDefs[s.ID] = defs

		b.WriteString("@schema s" + strconv.Itoa(s.ID))
		for _, fd := range defs {
			b.WriteString(" " + fd.String())
		}
		b.WriteString("\n")
	}

	if len(dict.Entries) > 0 {
		b.WriteString("@dict")
		for _, e := range dict.Entries {
			b.WriteString(" " + renderStringValue(e.Value))
		}
		b.WriteString("\n")
	}

	for i, obj := range flat {
		s := rowSchemas[i]
		b.WriteString("s" + strconv.Itoa(s.ID) + "\n")
		defs := schemaFieldDefs[s.ID]
		for _, fd := range defs {
			val, ok := obj.Get(fd.Name)
			if !ok {
				continue
			}
			if val.Kind() == canonical.KindArray {
				elems := val.Array()
				if len(elems) == 0 {
					b.WriteString("  " + fd.Name + " []\n")
					continue
				}
				for _, elem := range elems {
					tok, err := scalarToken(elem, dictIDs)
					if err != nil {
						return "", err
					}
					b.WriteString("  " + fd.Name + " " + tok + "\n")
				}
				continue
			}
			tok, err := scalarToken(val, dictIDs)
			if err != nil {
				return "", err
			}
			b.WriteString("  " + fd.Name + " " + tok + "\n")
		}
	}

	return b.String(), nil
}

func rowsOfSchema(flat []*canonical.Object, rowSchemas []*schema.Schema, s *schema.Schema) []*canonical.Object {
	var rows []*canonical.Object
	for i, rs := range rowSchemas {
		if rs.ID == s.ID {
			rows = append(rows, flat[i])
		}
	}
	return rows
}

func buildDictionary(adapter *tokenizer.Adapter, rows []*canonical.Object) (*dictionary.Dictionary, error) {
	b := dictionary.NewBuilder()
	for _, obj := range rows {
		if err := observeStrings(adapter, b, canonical.ObjectValue(obj)); err != nil {
			return nil, err
		}
	}
	return b.Build(), nil
}

func observeStrings(adapter *tokenizer.Adapter, b *dictionary.Builder, v canonical.Value) error {
	switch v.Kind() {
	case canonical.KindString:
		ids, err := adapter.EncodeToIDs(v.Str())
		if err != nil {
			return err
		}
		b.Observe(v.Str(), ids)
	case canonical.KindArray:
		for _, elem := range v.Array() {
			if err := observeStrings(adapter, b, elem); err != nil {
				return err
			}
		}
	case canonical.KindObject:
		obj := v.Object()
		if obj == nil {
			return nil
		}
		for _, f := range obj.Fields {
			if err := observeStrings(adapter, b, f.Value); err != nil {
				return err
			}
		}
	}
	return nil
}

