package lexeme

// Lexeme is a unique surface form scoped to an ingestion rule.
type Lexeme struct {
	ID                int64
	ContentKey        string
	Surface           string
	NormalizedSurface string
	RuleID            string
	FirstSeen         string // YYYY-MM-DD
	LastSeen          string // YYYY-MM-DD
}

// Lemma is the dictionary form shared by one or more lexemes of the same rule.
type Lemma struct {
	ID      int64
	Lemma   string
	Reading string
	RuleID  string
}

// Lemmatizer maps a surface to its dictionary form.
type Lemmatizer interface {
	Lemmatize(surface string) string
}

// ReadingProvider is optionally implemented by a Lemmatizer to supply a
// hiragana reading for a lemma.
type ReadingProvider interface {
	Reading(surface string) string
}
