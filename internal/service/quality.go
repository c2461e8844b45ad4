package service

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

// TextFromHTML returns the visible text of an HTML fragment.
func TextFromHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	doc.Find("script, style").Remove()

	// Join text nodes with spaces so adjacent blocks do not glue words together.
	var parts []string
	doc.Find("*").Contents().Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) != "#text" {
			return
		}
		if text := strings.TrimSpace(s.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, " ")
}

// CountWords counts words in an HTML fragment. Han, Hiragana, Katakana and
// Hangul characters count one word each, since those scripts do not separate
// words with spaces.
func CountWords(html string) int {
	text := TextFromHTML(html)
	count := 0
	inWord := false
	for _, r := range text {
		switch {
		case isCJK(r):
			count++
			inWord = false
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if !inWord {
				count++
				inWord = true
			}
		case r == '\'' || r == '-':
			// apostrophes and hyphens stay inside a word
		default:
			inWord = false
		}
	}
	return count
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}

// QualityInput is what the score is computed from.
type QualityInput struct {
	HTML       string
	Excerpt    string
	Keywords   []string
	MinWords   int
	MaxWords   int
	WantImages int
}

// QualityScore rates a generated article from 0 to 100. Length carries 40
// points, structure 25, excerpt 10, keyword coverage 15 and images 10.
func QualityScore(in QualityInput) int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(in.HTML))
	if err != nil {
		return 0
	}
	words := CountWords(in.HTML)
	if words == 0 {
		return 0
	}

	score := lengthScore(words, in.MinWords, in.MaxWords)

	headings := doc.Find("h2, h3").Length()
	paragraphs := doc.Find("p").Length()
	score += min(headings*5, 15)
	score += min(paragraphs*2, 10)

	if strings.TrimSpace(in.Excerpt) != "" {
		score += 10
	}

	if len(in.Keywords) == 0 {
		score += 15
	} else {
		text := strings.ToLower(TextFromHTML(in.HTML))
		hits := 0
		for _, kw := range in.Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" && strings.Contains(text, kw) {
				hits++
			}
		}
		score += hits * 15 / len(in.Keywords)
	}

	if in.WantImages <= 0 {
		score += 10
	} else {
		images := doc.Find("img").Length()
		score += min(images, in.WantImages) * 10 / in.WantImages
	}

	return max(0, min(score, 100))
}

func lengthScore(words, minWords, maxWords int) int {
	if minWords <= 0 && maxWords <= 0 {
		return 40
	}
	if minWords > 0 && words < minWords {
		return words * 40 / minWords
	}
	if maxWords > 0 && words > maxWords {
		over := words - maxWords
		return max(40-over*40/maxWords, 20)
	}
	return 40
}

// InsertImages places one <figure> before each <h2> after the first, and
// appends the rest at the end.
func InsertImages(html string, urls []string, alt string) (string, error) {
	if len(urls) == 0 {
		return html, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html, fmt.Errorf("failed to parse article html: %w", err)
	}

	body := doc.Find("body")
	anchors := body.Find("h2")
	for i, url := range urls {
		figure := fmt.Sprintf(`<figure><img src="%s" alt="%s"/></figure>`, escapeAttr(url), escapeAttr(alt))
		if anchor := anchors.Eq(i + 1); anchor.Length() > 0 {
			anchor.BeforeHtml(figure)
			continue
		}
		body.AppendHtml(figure)
	}

	out, err := body.Html()
	if err != nil {
		return html, fmt.Errorf("failed to render article html: %w", err)
	}
	return out, nil
}

var attrEscaper = strings.NewReplacer(`&`, "&amp;", `"`, "&#34;", `<`, "&lt;", `>`, "&gt;")

func escapeAttr(s string) string {
	return attrEscaper.Replace(s)
}
