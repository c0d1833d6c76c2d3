package temporal

import (
	"regexp"
	"strings"
)

var tokenRegex = regexp.MustCompile(`[a-z0-9]+`)

// stopWords covers common English function words plus the domain-generic
// nouns that carry no semantic signal for retrieval: "receipts from last
// week" is a pure temporal query once "receipts" is dropped, while "coffee
// receipts from last week" keeps "coffee" as residual semantic content.
var stopWords = map[string]struct{}{
	// function words
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "of": {}, "to": {},
	"in": {}, "on": {}, "at": {}, "by": {}, "for": {}, "from": {}, "with": {},
	"was": {}, "were": {}, "is": {}, "are": {}, "be": {}, "been": {},
	"i": {}, "my": {}, "me": {}, "we": {}, "our": {}, "you": {}, "your": {},
	"this": {}, "that": {}, "these": {}, "those": {}, "it": {}, "its": {},
	"what": {}, "which": {}, "how": {}, "much": {}, "many": {}, "did": {},
	"do": {}, "does": {}, "have": {}, "has": {}, "had": {}, "spent": {}, "spend": {},
	// query verbs
	"show": {}, "find": {}, "get": {}, "list": {}, "search": {}, "give": {},
	"display": {}, "fetch": {}, "see": {}, "view": {}, "all": {}, "any": {},
	"please": {}, "want": {}, "need": {}, "looking": {},
	// domain-generic nouns
	"receipt": {}, "receipts": {}, "purchase": {}, "purchases": {},
	"transaction": {}, "transactions": {}, "expense": {}, "expenses": {},
	"claim": {}, "claims": {}, "document": {}, "documents": {},
	"item": {}, "items": {}, "record": {}, "records": {}, "bill": {}, "bills": {},
	"spending": {}, "payment": {}, "payments": {}, "bought": {}, "paid": {},
	// temporal residue that survives span stripping
	"during": {}, "between": {}, "since": {}, "ago": {}, "recent": {}, "recently": {},
	"day": {}, "days": {}, "week": {}, "weeks": {}, "month": {}, "months": {},
	"year": {}, "years": {}, "date": {}, "dated": {},
}

// SemanticTerms tokenizes text, lowercases, drops stop words, bare numbers
// and single characters. The result is the residual semantic content of a
// query after temporal and monetary phrases were stripped.
func SemanticTerms(text string) []string {
	tokens := tokenRegex.FindAllString(strings.ToLower(text), -1)

	var terms []string
	for _, tok := range tokens {
		if len(tok) < 2 {
			continue
		}
		if isNumeric(tok) {
			continue
		}
		if _, ok := stopWords[tok]; ok {
			continue
		}
		terms = append(terms, tok)
	}
	return terms
}

// IsStopWord reports whether a single token carries no semantic signal.
func IsStopWord(token string) bool {
	_, ok := stopWords[strings.ToLower(token)]
	return ok
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
