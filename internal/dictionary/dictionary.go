// Package dictionary implements the Value Dictionary: per-encode detection
// of repeated strings across rows so that the binary and text codecs can
// replace them with a single reference instead of repeating their token
// sequence inline.
package dictionary

import "sort"

// Entry is one dictionary slot: a string and the token sequence it
// tokenizes to, assigned the id equal to its position in Entries.
type Entry struct {
	ID     int
	Value  string
	Tokens []int
	Freq   int
}

// Dictionary holds the selected entries for one encode call plus a lookup
// from string value to assigned id, for fast substitution during pass 2.
type Dictionary struct {
	Entries []Entry
	idByVal map[string]int
}

// Lookup returns the dictionary id for value and true if value was
// selected into the dictionary.
func (d *Dictionary) Lookup(value string) (int, bool) {
	id, ok := d.idByVal[value]
	return id, ok
}

// Len returns the number of selected entries.
func (d *Dictionary) Len() int { return len(d.Entries) }

// IDByValue returns the string-to-id lookup map, for callers (such as the
// TENS encoder) that substitute dictionary references inline rather than
// calling Lookup per value.
func (d *Dictionary) IDByValue() map[string]int { return d.idByVal }

// candidate accumulates pass-1 statistics for one distinct string value.
type candidate struct {
	value  string
	tokens []int
	freq   int
}

// Builder runs the two-pass Value Dictionary algorithm: pass 1 observes
// string occurrences and their tokenizations, Build selects and orders the
// entries that are cheaper to store once and reference than to inline.
type Builder struct {
	order []string
	byVal map[string]*candidate
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{byVal: make(map[string]*candidate)}
}

// Observe records one occurrence of value, tokenized by the caller into
// tokens. tokens must be the same for every occurrence of the same value
// within one encode call, since tokenization is a pure function of
// (value, encoding).
func (b *Builder) Observe(value string, tokens []int) {
	c, ok := b.byVal[value]
	if !ok {
		c = &candidate{value: value, tokens: tokens}
		b.byVal[value] = c
		b.order = append(b.order, value)
	}
	c.freq++
}

// Build selects strings whose dictionary storage cost is strictly lower
// than their inline cost (freq*len > len+freq) and assigns them ids in
// descending-frequency order, breaking ties by first-occurrence order for
// determinism.
func (b *Builder) Build() *Dictionary {
	selected := make([]*candidate, 0, len(b.order))
	posOf := make(map[string]int, len(b.order))
	for i, v := range b.order {
		posOf[v] = i
	}
	for _, v := range b.order {
		c := b.byVal[v]
		length := len(c.tokens)
		if c.freq*length > length+c.freq {
			selected = append(selected, c)
		}
	}
	sort.SliceStable(selected, func(i, j int) bool {
		if selected[i].freq != selected[j].freq {
			return selected[i].freq > selected[j].freq
		}
		return posOf[selected[i].value] < posOf[selected[j].value]
	})

	d := &Dictionary{idByVal: make(map[string]int, len(selected))}
	for id, c := range selected {
		d.Entries = append(d.Entries, Entry{ID: id, Value: c.value, Tokens: c.tokens, Freq: c.freq})
		d.idByVal[c.value] = id
	}
	return d
}
