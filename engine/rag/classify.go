package rag

import (
	"regexp"
	"strings"
	"sync"

	"github.com/AlphaAgentAI/alphaagent-mvp/engine/domain"
)

// Keyword lists for query routing. Matching is substring-based on the
// lowercased question; the first matching category in priority order wins.
var (
	memoKeywords        = []string{"memo", "investment brief", "investment memo"}
	complianceKeywords  = []string{"compliance", "policy", "regulation", "surveillance", "audit"}
	comparativeKeywords = []string{"compare", "versus", "vs", "across"}
	mathKeywords        = []string{"calculate", "variance", "yoy", "margin", "ratio"}
)

// Classify routes a question to a query type. Priority: memo, compliance,
// comparative, math; anything else is a plain retrieval query.
func Classify(text string) domain.QueryType {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, memoKeywords):
		return domain.QueryMemo
	case containsAny(lower, complianceKeywords):
		return domain.QueryCompliance
	case containsAny(lower, comparativeKeywords):
		return domain.QueryComparative
	case containsAny(lower, mathKeywords):
		return domain.QueryMath
	}
	return domain.QueryRAG
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

var (
	tickerPatterns   = map[string]*regexp.Regexp{}
	tickerPatternsMu sync.Mutex
)

func tickerPattern(ticker string) *regexp.Regexp {
	tickerPatternsMu.Lock()
	defer tickerPatternsMu.Unlock()
	if re, ok := tickerPatterns[ticker]; ok {
		return re
	}
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(ticker) + `\b`)
	tickerPatterns[ticker] = re
	return re
}

// DetectTickers finds registry tickers mentioned in the text as whole words,
// case-insensitively. The result preserves registry order.
func DetectTickers(text string, registry []string) []string {
	up := strings.ToUpper(text)
	var found []string
	for _, t := range registry {
		if tickerPattern(t).MatchString(up) {
			found = append(found, t)
		}
	}
	return found
}
