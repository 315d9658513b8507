package insight

import (
	"sync"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/analysis/lang/cjk"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
)

// TermAnalyzer splits mixed Chinese and English text into CJK bigrams and
// lower-cased words with English stop words removed.
const TermAnalyzer = "autoscan_terms"

var (
	termsOnce    sync.Once
	termsMapping *mapping.IndexMappingImpl
)

// newTermMapping returns an index mapping whose default analyzer is
// TermAnalyzer, falling back to the standard analyzer.
func newTermMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	err := im.AddCustomAnalyzer(TermAnalyzer, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": unicode.Name,
		"token_filters": []string{
			cjk.WidthName,
			lowercase.Name,
			en.StopName,
			cjk.BigramName,
		},
	})
	if err == nil {
		im.DefaultAnalyzer = TermAnalyzer
	} else {
		im.DefaultAnalyzer = standard.Name
	}
	return im
}

func termMapping() *mapping.IndexMappingImpl {
	termsOnce.Do(func() { termsMapping = newTermMapping() })
	return termsMapping
}

// Terms returns the analyzed terms of text in order. Numbers and single
// Latin letters are dropped.
func Terms(text string) []string {
	im := termMapping()
	a := im.AnalyzerNamed(im.DefaultAnalyzer)
	if a == nil {
		return nil
	}
	var out []string
	for _, tok := range a.Analyze([]byte(text)) {
		if tok.Type == analysis.Numeric {
			continue
		}
		term := string(tok.Term)
		if tok.Type == analysis.AlphaNumeric && utf8.RuneCountInString(term) < 2 {
			continue
		}
		out = append(out, term)
	}
	return out
}

// TermFrequencies counts terms across texts, most frequent first.
func TermFrequencies(texts []string) []Count {
	t := tally{}
	for _, text := range texts {
		for _, term := range Terms(text) {
			t.add(term, 1)
		}
	}
	return t.sorted(0)
}
