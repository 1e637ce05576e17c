package sources

import (
	"bytes"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html/charset"
)

const SourceArticles = "Article archive"

var (
	// (?s) allows dot to match newlines
	// (?i) makes it case-insensitive
	reRT = regexp.MustCompile(`(?si)<rt\b[^>]*>.*?</rt>`)
	reRP = regexp.MustCompile(`(?si)<rp\b[^>]*>.*?</rp>`)
)

// SanitizeRuby removes ruby text (<rt>...</rt>) and ruby parentheses
// (<rp>...</rp>) so furigana is not counted next to its base text.
// It operates on raw bytes and is safe for Shift_JIS input, where < is never
// a trailing byte.
func SanitizeRuby(content []byte) []byte {
	cleaned := reRT.ReplaceAll(content, []byte{})
	cleaned = reRP.ReplaceAll(cleaned, []byte{})
	return cleaned
}

// ArticleChars is the character count of one saved page.
type ArticleChars struct {
	Path  string
	Title string
	Chars int64
}

// ReadArticleChars counts the readable main-text characters, whitespace
// excluded, of every .html/.htm file directly inside dir. Pages readability
// cannot extract are skipped and reported in skipped.
func ReadArticleChars(dir string) (total int64, pages []ArticleChars, skipped []string, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, nil, nil, newReadError(SourceArticles, dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".html" && ext != ".htm") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		page, err := readArticle(path)
		if err != nil {
			skipped = append(skipped, name)
			continue
		}
		total += page.Chars
		pages = append(pages, page)
	}
	return total, pages, skipped, nil
}

func readArticle(path string) (ArticleChars, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ArticleChars{}, err
	}
	r, err := charset.NewReader(bytes.NewReader(SanitizeRuby(raw)), "text/html")
	if err != nil {
		return ArticleChars{}, err
	}
	pageURL := &url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	article, err := readability.FromReader(r, pageURL)
	if err != nil {
		return ArticleChars{}, err
	}
	return ArticleChars{Path: path, Title: article.Title, Chars: CountChars(article.TextContent)}, nil
}

// CountChars counts the runes of s that are not whitespace.
func CountChars(s string) int64 {
	var n int64
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
