// Package insight turns analysis results into chart data: status
// distribution, project and category counts, and a weighted keyword cloud.
package insight

import (
	"sort"
	"strings"

	"github.com/hyperjump/autoscan/internal/models"
)

// Count is one labelled bar or slice.
type Count struct {
	Label string `json:"label"`
	Value int    `json:"value"`
}

// Summary is the chart payload for one set of items.
type Summary struct {
	Total      int     `json:"total"`
	Structured bool    `json:"structured"`
	Status     []Count `json:"status"`
	Projects   []Count `json:"projects"`
	Categories []Count `json:"categories"`
	Owners     []Count `json:"owners"`
	Keywords   []Count `json:"keywords"`
}

// MaxKeywords caps the keyword cloud.
const MaxKeywords = 30

var statusOrder = []models.Status{models.StatusNotStarted, models.StatusInProgress, models.StatusDone}

type tally map[string]int

func (t tally) add(label string, n int) {
	label = strings.TrimSpace(label)
	if label == "" || n <= 0 {
		return
	}
	t[label] += n
}

// sorted orders by value descending, then label ascending.
func (t tally) sorted(limit int) []Count {
	out := make([]Count, 0, len(t))
	for k, v := range t {
		out = append(out, Count{Label: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Label < out[j].Label
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Summarize builds chart data for items. Status, project, category and owner
// counts come from structured items only. Keywords use model-provided
// weights when an item has them, otherwise term frequency of its text.
func Summarize(items []models.ActionItem) Summary {
	s := Summary{Total: len(items)}
	status := make(map[models.Status]int)
	projects, categories, owners, keywords := tally{}, tally{}, tally{}, tally{}

	var plain []string
	for _, it := range items {
		if !it.IsStructured() {
			plain = append(plain, it.Text)
			continue
		}
		s.Structured = true
		f := it.Fields
		st := f.Status
		if st == "" {
			st = models.StatusNotStarted
		}
		status[st]++
		for _, p := range f.Project {
			projects.add(p, 1)
		}
		for _, c := range f.Category {
			categories.add(c, 1)
		}
		owners.add(f.Owner, 1)
		if len(f.Keywords) == 0 {
			plain = append(plain, f.Description)
			continue
		}
		for _, k := range f.Keywords {
			keywords.add(k.Text, models.ClampWeight(k.Weight))
		}
	}
	for _, tf := range TermFrequencies(plain) {
		keywords.add(tf.Label, tf.Value)
	}

	if s.Structured {
		for _, st := range statusOrder {
			s.Status = append(s.Status, Count{Label: string(st), Value: status[st]})
			delete(status, st)
		}
		s.Status = append(s.Status, tallyFromStatus(status).sorted(0)...)
	}
	s.Projects = projects.sorted(0)
	s.Categories = categories.sorted(0)
	s.Owners = owners.sorted(0)
	s.Keywords = keywords.sorted(MaxKeywords)
	return s
}

func tallyFromStatus(m map[models.Status]int) tally {
	t := tally{}
	for k, v := range m {
		t.add(string(k), v)
	}
	return t
}
