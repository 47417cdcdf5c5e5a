// Package romaji romanizes Japanese text. Kanji readings come from the IPA dictionary;
// kana become Hepburn.
package romaji

import (
	"strings"
	"unicode"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"
	"golang.org/x/text/width"
)

// Part-of-speech heads from the IPA dictionary.
const (
	posParticle  = "助詞"
	posAuxiliary = "助動詞"
	posSymbol    = "記号"
	posSuffix    = "接尾"
)

// particleReadings are Hepburn spellings of particles whose pronunciation differs from
// their kana.
var particleReadings = map[string]string{
	"は": "wa",
	"へ": "e",
	"を": "o",
}

// Romanizer converts mixed Japanese text to a spaced Latin reading. It is safe for
// concurrent use.
type Romanizer struct {
	tok *tokenizer.Tokenizer
}

// New loads the dictionary and returns a Romanizer.
func New() (*Romanizer, error) {
	tok, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, err
	}
	return &Romanizer{tok: tok}, nil
}

// Romanize returns the reading of text. Words are separated by single spaces;
// auxiliaries, suffixes and punctuation attach to the preceding word.
func (r *Romanizer) Romanize(text string) string {
	text = width.Fold.String(text)
	var words []string
	for _, t := range r.tok.Tokenize(text) {
		if strings.TrimSpace(t.Surface) == "" {
			continue
		}
		roma := tokenRomaji(t)
		if roma == "" {
			continue
		}
		if len(words) > 0 && attaches(t) {
			words[len(words)-1] += roma
			continue
		}
		words = append(words, roma)
	}
	return strings.Join(words, " ")
}

func tokenRomaji(t tokenizer.Token) string {
	pos := t.POS()
	if len(pos) > 0 && pos[0] == posParticle {
		if p, ok := particleReadings[t.Surface]; ok {
			return p
		}
	}
	if reading, ok := t.Reading(); ok && reading != "" && reading != "*" {
		return ToRomaji(reading)
	}
	return ToRomaji(t.Surface)
}

func attaches(t tokenizer.Token) bool {
	pos := t.POS()
	if len(pos) == 0 {
		return isPunct(t.Surface)
	}
	switch {
	case pos[0] == posAuxiliary:
		return true
	case pos[0] == posSymbol:
		return isPunct(t.Surface)
	case len(pos) > 1 && pos[1] == posSuffix:
		return true
	}
	return false
}

// isPunct reports whether s is closing or neutral punctuation. Opening brackets start a
// new word.
func isPunct(s string) bool {
	for _, r := range s {
		if !unicode.IsPunct(r) || unicode.In(r, unicode.Ps, unicode.Pi) {
			return false
		}
	}
	return s != ""
}

// Kana romanizes without a dictionary: kana become Hepburn and kanji pass through.
type Kana struct{}

// Romanize implements the same contract as Romanizer.Romanize.
func (Kana) Romanize(text string) string {
	return ToRomaji(width.Fold.String(text))
}
