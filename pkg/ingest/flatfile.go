package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/gogs/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"

	"github.com/nekopy/Tokei/pkg/db"
	"github.com/nekopy/Tokei/pkg/identity"
	"github.com/nekopy/Tokei/pkg/lexeme"
)

var headerWords = map[string]bool{
	"word": true, "words": true, "surface": true, "expression": true,
	"lexeme": true, "lemma": true, "lemmas": true, "vocab": true,
	"vocabulary": true, "term": true, "kanji": true,
}

var headerStems = []string{"word", "surface", "expression", "lexeme", "lemma", "morph", "vocab"}

// headerLookahead is how many rows after the first are checked for Japanese script.
const headerLookahead = 3

// IngestFlatFile upserts the first cell of every row of a delimited word list
// under ruleID, dated today. A detected header row is skipped and any lexeme
// previously ingested from it is deleted. A missing file ingests nothing.
func IngestFlatFile(ctx context.Context, tx db.Executor, path, ruleID, today string) (int, error) {
	rows, err := ReadFlatFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	store := lexeme.NewStore(tx)
	start := 0
	if DetectHeader(rows) {
		start = 1
		header := identity.Normalize(firstCell(rows[0]))
		if header != "" {
			key, err := identity.ContentKey(header, ruleID)
			if err != nil {
				return 0, err
			}
			if _, err := store.DeleteByContentKey(ctx, key); err != nil {
				return 0, err
			}
		}
	}

	inserted := 0
	for _, row := range rows[start:] {
		surface := identity.Normalize(firstCell(row))
		if surface == "" {
			continue
		}
		key, err := identity.ContentKey(surface, ruleID)
		if err != nil {
			return inserted, err
		}
		_, err = store.Upsert(ctx, lexeme.Lexeme{
			ContentKey:        key,
			Surface:           surface,
			NormalizedSurface: surface,
			RuleID:            strings.TrimSpace(ruleID),
			FirstSeen:         today,
			LastSeen:          today,
		})
		if err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}

// ReadFlatFile reads and decodes a delimited text file into rows.
func ReadFlatFile(path string) ([][]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}
	text, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}

	r := csv.NewReader(strings.NewReader(text))
	r.Comma = sniffDelimiter(text)
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}
	return rows, nil
}

// decode returns raw as UTF-8 text without a byte order mark. Input that is
// not valid UTF-8 is decoded with the detected Japanese legacy charset.
func decode(raw []byte) (string, error) {
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
	if utf8.Valid(raw) {
		return string(raw), nil
	}

	res, err := chardet.NewTextDetector().DetectBest(raw)
	if err != nil {
		return "", fmt.Errorf("detect charset: %w", err)
	}
	var enc encoding.Encoding
	switch strings.ToUpper(res.Charset) {
	case "SHIFT_JIS", "WINDOWS-31J", "CP932":
		enc = japanese.ShiftJIS
	case "EUC-JP":
		enc = japanese.EUCJP
	case "ISO-2022-JP":
		enc = japanese.ISO2022JP
	default:
		return "", fmt.Errorf("unsupported charset %q", res.Charset)
	}
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", res.Charset, err)
	}
	return string(bytes.TrimPrefix(out, []byte("\xef\xbb\xbf"))), nil
}

// sniffDelimiter picks the most frequent of tab, comma and semicolon on the
// first line, defaulting to comma.
func sniffDelimiter(text string) rune {
	line, _, _ := strings.Cut(text, "\n")
	best, bestCount := ',', 0
	for _, d := range []rune{'\t', ',', ';'} {
		if n := strings.Count(line, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

// DetectHeader reports whether the first row is a column header rather than
// a vocabulary entry.
func DetectHeader(rows [][]string) bool {
	if len(rows) == 0 {
		return false
	}
	first := strings.ToLower(identity.Normalize(firstCell(rows[0])))
	if first == "" {
		return false
	}
	if headerWords[first] {
		return true
	}
	if identity.IsLatin(first) {
		for _, stem := range headerStems {
			if strings.Contains(first, stem) {
				return true
			}
		}
		for i := 1; i < len(rows) && i <= headerLookahead; i++ {
			if identity.IsJapanese(firstCell(rows[i])) {
				return true
			}
		}
	}
	return false
}

func firstCell(row []string) string {
	if len(row) == 0 {
		return ""
	}
	return row[0]
}
