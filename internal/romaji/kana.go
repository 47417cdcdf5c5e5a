package romaji

import "strings"

var digraphs = map[string]string{
	"きゃ": "kya", "きゅ": "kyu", "きょ": "kyo",
	"しゃ": "sha", "しゅ": "shu", "しょ": "sho", "しぇ": "she",
	"ちゃ": "cha", "ちゅ": "chu", "ちょ": "cho", "ちぇ": "che",
	"にゃ": "nya", "にゅ": "nyu", "にょ": "nyo",
	"ひゃ": "hya", "ひゅ": "hyu", "ひょ": "hyo",
	"みゃ": "mya", "みゅ": "myu", "みょ": "myo",
	"りゃ": "rya", "りゅ": "ryu", "りょ": "ryo",
	"ぎゃ": "gya", "ぎゅ": "gyu", "ぎょ": "gyo",
	"じゃ": "ja", "じゅ": "ju", "じょ": "jo", "じぇ": "je",
	"ぢゃ": "ja", "ぢゅ": "ju", "ぢょ": "jo",
	"びゃ": "bya", "びゅ": "byu", "びょ": "byo",
	"ぴゃ": "pya", "ぴゅ": "pyu", "ぴょ": "pyo",
	"てぃ": "ti", "でぃ": "di", "とぅ": "tu", "どぅ": "du", "でゅ": "dyu",
	"ふぁ": "fa", "ふぃ": "fi", "ふぇ": "fe", "ふぉ": "fo", "ふゅ": "fyu",
	"うぃ": "wi", "うぇ": "we", "うぉ": "wo",
	"ゔぁ": "va", "ゔぃ": "vi", "ゔぇ": "ve", "ゔぉ": "vo",
	"つぁ": "tsa", "つぃ": "tsi", "つぇ": "tse", "つぉ": "tso",
	"いぇ": "ye", "くぁ": "kwa", "ぐぁ": "gwa",
}

var monographs = map[rune]string{
	'あ': "a", 'い': "i", 'う': "u", 'え': "e", 'お': "o",
	'か': "ka", 'き': "ki", 'く': "ku", 'け': "ke", 'こ': "ko",
	'さ': "sa", 'し': "shi", 'す': "su", 'せ': "se", 'そ': "so",
	'た': "ta", 'ち': "chi", 'つ': "tsu", 'て': "te", 'と': "to",
	'な': "na", 'に': "ni", 'ぬ': "nu", 'ね': "ne", 'の': "no",
	'は': "ha", 'ひ': "hi", 'ふ': "fu", 'へ': "he", 'ほ': "ho",
	'ま': "ma", 'み': "mi", 'む': "mu", 'め': "me", 'も': "mo",
	'や': "ya", 'ゆ': "yu", 'よ': "yo",
	'ら': "ra", 'り': "ri", 'る': "ru", 'れ': "re", 'ろ': "ro",
	'わ': "wa", 'ゐ': "i", 'ゑ': "e", 'を': "o",
	'が': "ga", 'ぎ': "gi", 'ぐ': "gu", 'げ': "ge", 'ご': "go",
	'ざ': "za", 'じ': "ji", 'ず': "zu", 'ぜ': "ze", 'ぞ': "zo",
	'だ': "da", 'ぢ': "ji", 'づ': "zu", 'で': "de", 'ど': "do",
	'ば': "ba", 'び': "bi", 'ぶ': "bu", 'べ': "be", 'ぼ': "bo",
	'ぱ': "pa", 'ぴ': "pi", 'ぷ': "pu", 'ぺ': "pe", 'ぽ': "po",
	'ゔ': "vu",
	'ぁ': "a", 'ぃ': "i", 'ぅ': "u", 'ぇ': "e", 'ぉ': "o",
	'ゃ': "ya", 'ゅ': "yu", 'ょ': "yo", 'ゎ': "wa", 'ゕ': "ka", 'ゖ': "ke",
	'ヷ': "va", 'ヸ': "vi", 'ヹ': "ve", 'ヺ': "vo",
}

var punctuation = map[rune]string{
	'。': ".", '、': ",", '「': `"`, '」': `"`, '『': `"`, '』': `"`,
	'・': " ", '…': "...", '〜': "~", '（': "(", '）': ")", '　': " ",
}

const (
	sokuon  = 'っ'
	hatsuon = 'ん'
	choon   = 'ー'
)

type unitKind int

const (
	syllable unitKind = iota
	doubler
	moraicN
	longVowel
	literal
)

type unit struct {
	kind unitKind
	text string
}

// toHiragana maps katakana to hiragana, leaving everything else alone.
func toHiragana(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'ァ' && r <= 'ヶ' {
			return r - 0x60
		}
		return r
	}, s)
}

func segment(s string) []unit {
	rs := []rune(toHiragana(s))
	units := make([]unit, 0, len(rs))
	for i := 0; i < len(rs); i++ {
		if i+1 < len(rs) {
			if roma, ok := digraphs[string(rs[i:i+2])]; ok {
				units = append(units, unit{syllable, roma})
				i++
				continue
			}
		}
		r := rs[i]
		switch r {
		case sokuon:
			units = append(units, unit{kind: doubler})
		case hatsuon:
			units = append(units, unit{kind: moraicN})
		case choon:
			units = append(units, unit{kind: longVowel})
		default:
			if roma, ok := monographs[r]; ok {
				units = append(units, unit{syllable, roma})
			} else if p, ok := punctuation[r]; ok {
				units = append(units, unit{literal, p})
			} else {
				units = append(units, unit{literal, string(r)})
			}
		}
	}
	return units
}

// following returns the romanization that comes after units[i] when it is a syllable
// or moraic n.
func following(units []unit, i int) string {
	if i+1 >= len(units) {
		return ""
	}
	switch next := units[i+1]; next.kind {
	case syllable:
		return next.text
	case moraicN:
		return "n"
	}
	return ""
}

func isVowel(b byte) bool {
	return strings.IndexByte("aeiou", b) >= 0
}

// ToRomaji converts hiragana and katakana to Hepburn. Other runes pass through, with
// Japanese punctuation mapped to ASCII.
//
// ん becomes n' before a vowel, y or n; っ doubles the next consonant (t before ch);
// ー repeats the preceding vowel.
func ToRomaji(s string) string {
	units := segment(s)
	var sb strings.Builder
	for i, u := range units {
		switch u.kind {
		case doubler:
			next := following(units, i)
			switch {
			case strings.HasPrefix(next, "ch"):
				sb.WriteByte('t')
			case next != "" && !isVowel(next[0]):
				sb.WriteByte(next[0])
			}
		case moraicN:
			sb.WriteByte('n')
			if next := following(units, i); next != "" && strings.IndexByte("aiueoyn", next[0]) >= 0 {
				sb.WriteByte('\'')
			}
		case longVowel:
			out := sb.String()
			if n := len(out); n > 0 && isVowel(out[n-1]) {
				sb.WriteByte(out[n-1])
			} else {
				sb.WriteByte('-')
			}
		default:
			sb.WriteString(u.text)
		}
	}
	return sb.String()
}
