package ocr

import (
	"strings"
	"unicode"

	"google.golang.org/api/vision/v1"
)

// TextBlock is the text of one OCR paragraph.
type TextBlock struct {
	Text      string
	Languages []string // BCP-47 codes reported by the service, most confident first
}

// Paragraphs walks pages, blocks and paragraphs in document order and returns one
// TextBlock per non-blank paragraph. A single space follows every symbol that carries a
// detected break. Languages come from the paragraph alone; page and block tags describe
// the whole region and are not inherited.
func Paragraphs(resp *vision.AnnotateImageResponse) []TextBlock {
	if resp == nil || resp.FullTextAnnotation == nil {
		return nil
	}
	var blocks []TextBlock
	for _, page := range resp.FullTextAnnotation.Pages {
		if page == nil {
			continue
		}
		for _, block := range page.Blocks {
			if block == nil {
				continue
			}
			for _, para := range block.Paragraphs {
				if para == nil {
					continue
				}
				text := paragraphText(para)
				if text == "" {
					continue
				}
				blocks = append(blocks, TextBlock{
					Text:      text,
					Languages: languages(para.Property),
				})
			}
		}
	}
	return blocks
}

func paragraphText(para *vision.Paragraph) string {
	var sb strings.Builder
	for _, word := range para.Words {
		if word == nil {
			continue
		}
		for _, sym := range word.Symbols {
			if sym == nil {
				continue
			}
			sb.WriteString(sym.Text)
			if sym.Property != nil && sym.Property.DetectedBreak != nil {
				sb.WriteByte(' ')
			}
		}
	}
	return strings.TrimSpace(sb.String())
}

func languages(p *vision.TextProperty) []string {
	if p == nil || len(p.DetectedLanguages) == 0 {
		return nil
	}
	codes := make([]string, 0, len(p.DetectedLanguages))
	for _, l := range p.DetectedLanguages {
		if l != nil && l.LanguageCode != "" {
			codes = append(codes, l.LanguageCode)
		}
	}
	if len(codes) == 0 {
		return nil
	}
	return codes
}

// IsLanguage reports whether the block is in lang. Service language tags decide when
// present; for Japanese without tags, any kana or kanji counts.
func (b TextBlock) IsLanguage(lang string) bool {
	lang = baseLanguage(lang)
	if len(b.Languages) > 0 {
		for _, l := range b.Languages {
			if baseLanguage(l) == lang {
				return true
			}
		}
		return false
	}
	if lang != "ja" {
		return true
	}
	return ContainsJapanese(b.Text)
}

// ContainsJapanese reports whether s has any hiragana, katakana or han rune.
func ContainsJapanese(s string) bool {
	for _, r := range s {
		if unicode.In(r, unicode.Hiragana, unicode.Katakana, unicode.Han) {
			return true
		}
	}
	return false
}

// FilterLanguage keeps blocks in lang, preserving order.
func FilterLanguage(blocks []TextBlock, lang string) []TextBlock {
	out := make([]TextBlock, 0, len(blocks))
	for _, b := range blocks {
		if b.IsLanguage(lang) {
			out = append(out, b)
		}
	}
	return out
}

func baseLanguage(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if i := strings.IndexAny(tag, "-_"); i >= 0 {
		tag = tag[:i]
	}
	if tag == "jpn" {
		return "ja"
	}
	return tag
}
