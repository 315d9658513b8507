package notion

import (
	"encoding/json"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/hyperjump/autoscan/internal/models"
)

// PropertyNames maps item fields onto database columns. An empty name
// leaves the field out.
type PropertyNames struct {
	Title     string `yaml:"title" json:"title"`
	Category  string `yaml:"category" json:"category"`
	Project   string `yaml:"project" json:"project"`
	Status    string `yaml:"status" json:"status"`
	DueDate   string `yaml:"dueDate" json:"dueDate"`
	CreatedAt string `yaml:"createdAt" json:"createdAt"`
}

// DefaultPropertyNames are the column names the structuring prompt uses.
func DefaultPropertyNames() PropertyNames {
	return PropertyNames{
		Title:     DefaultTitleProperty,
		Category:  "歸屬分類",
		Project:   "專案",
		Status:    "狀態",
		DueDate:   "到期日",
		CreatedAt: "建立時間",
	}
}

type textContent struct {
	Content string `json:"content"`
}

type richText struct {
	Text      *textContent `json:"text,omitempty"`
	PlainText string       `json:"plain_text,omitempty"`
}

type selectOption struct {
	Name string `json:"name"`
}

type dateValue struct {
	Start string `json:"start"`
}

// TitleValue is the property value of a title column holding text.
func TitleValue(text string) map[string]any {
	return map[string]any{"title": []richText{{Text: &textContent{Content: text}}}}
}

func multiSelect(names []string) map[string]any {
	opts := make([]selectOption, 0, len(names))
	for _, n := range names {
		// Notion rejects commas in option names.
		if n = strings.TrimSpace(strings.ReplaceAll(n, ",", " ")); n != "" {
			opts = append(opts, selectOption{Name: n})
		}
	}
	return map[string]any{"multi_select": opts}
}

// BuildProperties converts an item into a property set. Simple items only
// fill the title. The owner field is never sent: people columns need user ids.
func BuildProperties(item models.ActionItem, names PropertyNames) Properties {
	if names.Title == "" {
		names.Title = DefaultTitleProperty
	}
	props := Properties{}
	if title := item.Title(); title != "" {
		props[names.Title] = TitleValue(title)
	}
	if !item.IsStructured() {
		return props
	}
	f := item.Fields
	if names.Category != "" && len(f.Category) > 0 {
		props[names.Category] = multiSelect(f.Category)
	}
	if names.Project != "" && len(f.Project) > 0 {
		props[names.Project] = multiSelect(f.Project)
	}
	if names.Status != "" && f.Status != "" {
		props[names.Status] = map[string]any{"status": selectOption{Name: string(f.Status)}}
	}
	if names.DueDate != "" && f.DueDate != "" {
		props[names.DueDate] = map[string]any{"date": dateValue{Start: f.DueDate}}
	}
	if names.CreatedAt != "" && f.CreatedAt != "" {
		props[names.CreatedAt] = map[string]any{"date": dateValue{Start: strings.Replace(f.CreatedAt, " ", "T", 1)}}
	}
	return props
}

// titleShape matches any property value that carries a title array, in
// outgoing or stored form.
type titleShape struct {
	Type  string     `json:"type"`
	Title []richText `json:"title"`
}

func decodeTitle(raw []byte) (string, bool) {
	var v titleShape
	if err := json.Unmarshal(raw, &v); err != nil || (v.Title == nil && v.Type != "title") {
		return "", false
	}
	var b strings.Builder
	for _, rt := range v.Title {
		switch {
		case rt.PlainText != "":
			b.WriteString(rt.PlainText)
		case rt.Text != nil:
			b.WriteString(rt.Text.Content)
		}
	}
	return b.String(), true
}

// OutgoingTitle finds the title-shaped value in props and returns its
// property name and text.
func OutgoingTitle(props Properties) (name, text string, ok bool) {
	for k, v := range props {
		raw, err := json.Marshal(v)
		if err != nil {
			continue
		}
		if t, found := decodeTitle(raw); found {
			return k, t, true
		}
	}
	return "", "", false
}

// PageTitle returns the text of the page's title property.
func PageTitle(p Page) string {
	for _, raw := range p.Properties {
		if t, ok := decodeTitle(raw); ok {
			return t
		}
	}
	return ""
}

// NormalizeTitle trims and applies NFC so visually equal titles compare equal.
func NormalizeTitle(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
