package lemmatize

import (
	"strings"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"
)

// Lemmatizer maps a surface to its dictionary form.
type Lemmatizer interface {
	Lemmatize(surface string) string
}

// Token is a single analyzed unit of text.
type Token struct {
	Surface    string // e.g. "行っ"
	BaseForm   string // e.g. "行く"
	Reading    string // katakana, e.g. "イッ"
	PrimaryPOS string // e.g. "動詞"
}

// Kagome lemmatizes with the IPA dictionary.
type Kagome struct {
	t *tokenizer.Tokenizer
}

// NewKagome loads the IPA dictionary. This takes a moment, so callers build
// one instance at startup and pass it down.
func NewKagome() (*Kagome, error) {
	t, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, err
	}
	return &Kagome{t: t}, nil
}

// Analyze breaks text into tokens with readings and base forms.
func (k *Kagome) Analyze(text string) []Token {
	var result []Token
	for _, token := range k.t.Tokenize(text) {
		if token.Class == tokenizer.DUMMY {
			continue
		}
		if strings.TrimSpace(token.Surface) == "" {
			continue
		}

		// IPA features: 0 POS, 1-3 sub-POS, 4-5 conjugation, 6 base form, 7 reading.
		features := token.Features()

		base := token.Surface
		if len(features) > 6 && features[6] != "*" && features[6] != "" {
			base = features[6]
		}
		reading := ""
		if len(features) > 7 && features[7] != "*" {
			reading = features[7]
		}
		pos := ""
		if len(features) > 0 {
			pos = features[0]
		}

		result = append(result, Token{
			Surface:    token.Surface,
			BaseForm:   base,
			Reading:    reading,
			PrimaryPOS: pos,
		})
	}
	return result
}

// functional parts of speech never carry the lemma of a vocabulary entry.
var skipPOS = map[string]bool{
	"記号":  true,
	"助詞":  true,
	"助動詞": true,
	"フィラー": true,
}

// Lemmatize returns the base form of the first content token of surface.
// When nothing useful is found the trimmed surface is returned unchanged.
func (k *Kagome) Lemmatize(surface string) string {
	surface = strings.TrimSpace(surface)
	if surface == "" {
		return ""
	}
	tokens := k.Analyze(surface)
	for _, tok := range tokens {
		if skipPOS[tok.PrimaryPOS] {
			continue
		}
		return tok.BaseForm
	}
	return surface
}

// Reading returns the hiragana reading of surface, or "" when any token has
// no known reading.
func (k *Kagome) Reading(surface string) string {
	var b strings.Builder
	for _, tok := range k.Analyze(surface) {
		if tok.Reading == "" {
			return ""
		}
		b.WriteString(tok.Reading)
	}
	return ToHiragana(b.String())
}

// ToHiragana converts Katakana to Hiragana.
func ToHiragana(s string) string {
	runes := []rune(s)
	for i, r := range runes {
		if r >= 0x30A1 && r <= 0x30F6 {
			runes[i] = r - 0x60
		}
	}
	return string(runes)
}
