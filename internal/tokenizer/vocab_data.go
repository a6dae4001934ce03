package tokenizer

import "sync"

// wordLists are the built-in, deliberately small stand-ins for each named
// encoding's real merge table. Words are compiled into merge rules in
// order, so earlier words may be reused as building blocks for later ones
// (e.g. "th" before "the"). Frontier encodings carry larger lists than
// legacy ones, which is the only sense in which they are "better" here.
var wordLists = map[Encoding][]string{
	EncodingR50kBase: {
		"th", "he", "in", "er", "an", "re", "on", "at", "en", "es",
		" a", " t", " i", " s", "the", "and", "to",
	},
	EncodingP50kBase: {
		"th", "he", "in", "er", "an", "re", "on", "at", "en", "es",
		"or", "it", "is", "al", "le", "ch", "st", "ro", "co", "de",
		" a", " t", " i", " s", " o", "the", "and", "to", "of", "in",
		"is", "for", "that", "with",
	},
	EncodingCl100kBase: {
		"th", "he", "in", "er", "an", "re", "on", "at", "en", "es",
		"or", "it", "is", "al", "le", "ch", "st", "ro", "co", "de",
		"ar", "ve", "se", "ne", "ti", "io", "ac", "ad", "ag", "am",
		" a", " t", " i", " s", " o", " w", " b", " c", " f", " m",
		"the", "and", "to", "of", "in", "is", "for", "that", "with", "as",
		"was", "on", "are", "be", "this", "have", "from", "or", "by", "it",
		"not", "but", "what", "all", "were", "when", "your", "can", "said", "there",
	},
	EncodingO200kBase: {
		"th", "he", "in", "er", "an", "re", "on", "at", "en", "es",
		"or", "it", "is", "al", "le", "ch", "st", "ro", "co", "de",
		"ar", "ve", "se", "ne", "ti", "io", "ac", "ad", "ag", "am",
		"ap", "as", "au", "aw", "ay", "ba", "be", "bi", "bl", "bo",
		" a", " t", " i", " s", " o", " w", " b", " c", " f", " m",
		" d", " l", " n", " p", " r", " g", " h", " y", " u", " e",
		"the", "and", "to", "of", "in", "is", "for", "that", "with", "as",
		"was", "are", "be", "this", "have", "from", "not", "but", "what", "all",
		"were", "when", "your", "can", "said", "there", "their", "which", "about", "would",
	},
}

var (
	vocabOnce  sync.Once
	vocabCache map[Encoding]*vocab
)

func vocabFor(encoding Encoding) *vocab {
	vocabOnce.Do(func() {
		vocabCache = make(map[Encoding]*vocab, len(Encodings))
		for i, enc := range Encodings {
			rules := compileMergeRules(wordLists[enc])
			vocabCache[enc] = buildVocab(enc, i*300_000, rules)
		}
	})
	return vocabCache[encoding]
}

// compileMergeRules turns a word list into an ordered list of pairwise
// merge rules sufficient to produce every word, reusing prefixes/suffixes
// of earlier words as building blocks for later ones.
func compileMergeRules(words []string) []mergeRule {
	known := map[string]bool{}
	var rules []mergeRule

	var ensure func(s string)
	ensure = func(s string) {
		if len(s) <= 1 || known[s] {
			known[s] = true
			return
		}
		// Split at the longest prefix, so "the" splits as "th"+"e".
		split := len(s) - 1
		left, right := s[:split], s[split:]
		ensure(left)
		ensure(right)
		rules = append(rules, mergeRule{left: left, right: right})
		known[s] = true
	}

	for _, w := range words {
		ensure(w)
	}
	return rules
}
