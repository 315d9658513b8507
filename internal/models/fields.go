package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Fields is the property bag of a structured item. JSON names follow the
// structuring prompt; English aliases are accepted on input.
type Fields struct {
	Category    StringList `json:"歸屬分類,omitempty"`
	Project     StringList `json:"專案,omitempty"`
	Description string     `json:"ToDo"`
	Status      Status     `json:"狀態,omitempty"`
	Owner       string     `json:"負責人,omitempty"`
	DueDate     string     `json:"到期日,omitempty"`
	CreatedAt   string     `json:"建立時間,omitempty"`
	Keywords    []Keyword  `json:"關鍵字,omitempty"`
}

var fieldAliases = map[string][]string{
	"category":    {"歸屬分類", "category", "categories"},
	"project":     {"專案", "project", "projects"},
	"description": {"ToDo", "todo", "description", "title"},
	"status":      {"狀態", "status"},
	"owner":       {"負責人", "owner", "assignee"},
	"dueDate":     {"到期日", "due_date", "dueDate"},
	"createdAt":   {"建立時間", "created_at", "createdAt"},
	"keywords":    {"關鍵字", "keywords"},
}

func lookup(obj map[string]json.RawMessage, field string) (json.RawMessage, bool) {
	for _, k := range fieldAliases[field] {
		if v, ok := obj[k]; ok && string(v) != "null" {
			return v, true
		}
	}
	return nil, false
}

// UnmarshalJSON decodes the bag leniently: wrong-typed optional fields are ignored.
func (f *Fields) UnmarshalJSON(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	var out Fields
	if v, ok := lookup(obj, "category"); ok {
		_ = json.Unmarshal(v, &out.Category)
	}
	if v, ok := lookup(obj, "project"); ok {
		_ = json.Unmarshal(v, &out.Project)
	}
	if v, ok := lookup(obj, "description"); ok {
		out.Description = scalarString(v)
	}
	if v, ok := lookup(obj, "status"); ok {
		_ = json.Unmarshal(v, &out.Status)
	}
	if out.Status == "" {
		out.Status = StatusNotStarted
	}
	if v, ok := lookup(obj, "owner"); ok {
		out.Owner = scalarString(v)
	}
	if v, ok := lookup(obj, "dueDate"); ok {
		out.DueDate = scalarString(v)
	}
	if v, ok := lookup(obj, "createdAt"); ok {
		out.CreatedAt = scalarString(v)
	}
	if v, ok := lookup(obj, "keywords"); ok {
		// Elements are decoded one by one so a stray number or list does
		// not drop the well-formed keywords beside it.
		var elems []json.RawMessage
		if err := json.Unmarshal(v, &elems); err == nil {
			for _, e := range elems {
				var kw Keyword
				if err := json.Unmarshal(e, &kw); err == nil && kw.Text != "" {
					out.Keywords = append(out.Keywords, kw)
				}
			}
		}
	}
	*f = out
	return nil
}

// scalarString renders a JSON string, number or bool as text.
func scalarString(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String()
	}
	var b bool
	if err := json.Unmarshal(v, &b); err == nil {
		return strconv.FormatBool(b)
	}
	return ""
}

// StringList is a list of strings that also accepts a single string.
type StringList []string

// UnmarshalJSON accepts ["a","b"], "a" or "a, b".
func (l *StringList) UnmarshalJSON(data []byte) error {
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err == nil {
		out := make(StringList, 0, len(arr))
		for _, v := range arr {
			if s := scalarString(v); s != "" {
				out = append(out, s)
			}
		}
		*l = out
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("string list: %w", err)
	}
	var out StringList
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	*l = out
	return nil
}

// Status is the workflow state of an item.
type Status string

const (
	StatusNotStarted Status = "未開始"
	StatusInProgress Status = "進行中"
	StatusDone       Status = "完成"
)

// ParseStatus maps Chinese labels and common English spellings onto the
// three states. Anything else is not started.
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "進行中", "进行中", "in progress", "in-progress", "in_progress", "doing":
		return StatusInProgress
	case "完成", "已完成", "done", "completed", "complete":
		return StatusDone
	default:
		return StatusNotStarted
	}
}

func (s *Status) UnmarshalJSON(data []byte) error {
	*s = ParseStatus(scalarString(data))
	return nil
}

// Keyword is a weighted term chosen by the model.
type Keyword struct {
	Text   string `json:"text"`
	Weight int    `json:"weight"`
}

const (
	minKeywordWeight = 1
	maxKeywordWeight = 10
)

// UnmarshalJSON accepts {"text":..,"weight":..} with a numeric or string
// weight, or a bare string. Weights are clamped to 1..10.
func (k *Keyword) UnmarshalJSON(data []byte) error {
	var raw struct {
		Text   json.RawMessage `json:"text"`
		Weight json.RawMessage `json:"weight"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("keyword: %w", err)
		}
		*k = Keyword{Text: strings.TrimSpace(s), Weight: minKeywordWeight}
		return nil
	}
	w := minKeywordWeight
	if len(raw.Weight) > 0 {
		if f, err := strconv.ParseFloat(scalarString(raw.Weight), 64); err == nil {
			w = int(f + 0.5)
		}
	}
	*k = Keyword{Text: scalarString(raw.Text), Weight: ClampWeight(w)}
	return nil
}

// ClampWeight bounds w to the keyword weight range.
func ClampWeight(w int) int {
	if w < minKeywordWeight {
		return minKeywordWeight
	}
	if w > maxKeywordWeight {
		return maxKeywordWeight
	}
	return w
}
