package insight

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/autoscan/internal/models"
)

// DefaultFuzziness is the edit distance used for fuzzy term queries.
const DefaultFuzziness = 1

// itemDoc is what gets indexed for one action item.
type itemDoc struct {
	Title    string `json:"title"`
	Project  string `json:"project"`
	Category string `json:"category"`
	Owner    string `json:"owner"`
	Status   string `json:"status"`
}

// Hit is one search result; Position indexes the slice given to NewItemIndex.
type Hit struct {
	Position int               `json:"position"`
	Score    float64           `json:"score"`
	Item     models.ActionItem `json:"item"`
}

// ItemIndex is an in-memory full text index over a batch of action items.
type ItemIndex struct {
	index bleve.Index
	items []models.ActionItem
}

// NewItemIndex indexes items in memory. Titles, projects and categories are
// analyzed with TermAnalyzer; owner and status are exact keywords.
func NewItemIndex(items []models.ActionItem) (*ItemIndex, error) {
	im := newTermMapping()
	doc := bleve.NewDocumentMapping()
	text := bleve.NewTextFieldMapping()
	text.Analyzer = im.DefaultAnalyzer
	doc.AddFieldMappingsAt("title", text)
	doc.AddFieldMappingsAt("project", text)
	doc.AddFieldMappingsAt("category", text)
	kw := bleve.NewKeywordFieldMapping()
	doc.AddFieldMappingsAt("owner", kw)
	doc.AddFieldMappingsAt("status", kw)
	im.AddDocumentMapping("item", doc)
	im.DefaultType = "item"
	im.DefaultMapping = doc

	index, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("create item index: %w", err)
	}
	batch := index.NewBatch()
	for i, it := range items {
		d := itemDoc{Title: it.Title()}
		if it.IsStructured() {
			d.Project = strings.Join(it.Fields.Project, " ")
			d.Category = strings.Join(it.Fields.Category, " ")
			d.Owner = it.Fields.Owner
			d.Status = string(it.Fields.Status)
		}
		if err := batch.Index(strconv.Itoa(i), d); err != nil {
			return nil, fmt.Errorf("index item %d: %w", i, err)
		}
	}
	if err := index.Batch(batch); err != nil {
		return nil, fmt.Errorf("index items: %w", err)
	}
	return &ItemIndex{index: index, items: items}, nil
}

// Close releases the index.
func (x *ItemIndex) Close() error {
	return x.index.Close()
}

// Search matches query against titles (boosted), projects and categories.
// With fuzzy set, each Latin term also matches within DefaultFuzziness edits.
func (x *ItemIndex) Search(query string, limit int, fuzzy bool) ([]Hit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = len(x.items)
	}

	title := bleve.NewMatchQuery(query)
	title.SetField("title")
	title.SetBoost(2)
	project := bleve.NewMatchQuery(query)
	project.SetField("project")
	category := bleve.NewMatchQuery(query)
	category.SetField("category")
	queries := []blevequery.Query{title, project, category}
	if fuzzy {
		for _, term := range strings.Fields(strings.ToLower(query)) {
			if !isLatin(term) {
				continue
			}
			fq := bleve.NewFuzzyQuery(term)
			fq.SetFuzziness(DefaultFuzziness)
			fq.SetField("title")
			queries = append(queries, fq)
		}
	}

	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(queries...))
	req.Size = limit
	res, err := x.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search items: %w", err)
	}
	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		pos, err := strconv.Atoi(h.ID)
		if err != nil || pos < 0 || pos >= len(x.items) {
			continue
		}
		hits = append(hits, Hit{Position: pos, Score: h.Score, Item: x.items[pos]})
	}
	return hits, nil
}

func isLatin(s string) bool {
	for _, r := range s {
		if r > 0x24F {
			return false
		}
	}
	return s != ""
}
