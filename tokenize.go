package gazetteer

import (
	"strings"
	"unicode"

	"github.com/mozillazg/go-pinyin"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// indexCity derives the matchable tokens for one record: the name, country,
// subcountry, and each comma-separated alternate name, trimmed, with empty
// fields dropped. Every token gets a lowercase form and a phonetic form at the
// same position.
func (g *Gazetteer) indexCity(rec CityRecord) indexedCity {
	raw := make([]string, 0, 4)
	for _, field := range []string{rec.Name, rec.Country, rec.Subcountry} {
		if t := strings.TrimSpace(field); t != "" {
			raw = append(raw, t)
		}
	}
	if rec.AlternateNames != "" {
		for _, alt := range strings.Split(rec.AlternateNames, ",") {
			if t := strings.TrimSpace(alt); t != "" {
				raw = append(raw, t)
			}
		}
	}

	tokens := make([]string, len(raw))
	phonetic := make([]string, len(raw))
	for i, t := range raw {
		tokens[i] = strings.ToLower(t)
		phonetic[i] = g.cfg.translit(t)
	}
	return indexedCity{record: rec, tokens: tokens, phonetic: phonetic}
}

// pinyinArgs renders tone-free pinyin and passes non-Han runes through
// unchanged, so Latin or mixed input survives transliteration.
var pinyinArgs = func() pinyin.Args {
	a := pinyin.NewArgs()
	a.Fallback = func(r rune, _ pinyin.Args) []string {
		return []string{string(r)}
	}
	return a
}()

// stripMarks removes combining marks: "São" -> "Sao", "kyōto" -> "kyoto".
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Phonetic is the default Transliterator: Han characters become tone-free
// pinyin, everything else passes through, then diacritics and whitespace are
// stripped and the result lowercased.
func Phonetic(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, syllables := range pinyin.Pinyin(s, pinyinArgs) {
		if len(syllables) > 0 {
			b.WriteString(syllables[0])
		}
	}
	out, _, err := transform.String(stripMarks, b.String())
	if err != nil {
		out = b.String()
	}
	out = strings.Join(strings.Fields(out), "")
	return strings.ToLower(out)
}

// hasScriptChars reports whether the query contains Han characters. The full
// Han script counts, so Extension block characters match too, not just the
// basic U+4E00..U+9FA5 range.
func hasScriptChars(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}
