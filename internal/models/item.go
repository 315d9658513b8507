// Package models defines the action item types shared by the parser, the
// LLM pipeline and the Notion uploader.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// OperationCreate is the only operation the structuring prompt asks for.
const OperationCreate = "CREATE"

// ItemKind tells a simple item from a structured one.
type ItemKind int

const (
	// KindSimple is a bare string action item.
	KindSimple ItemKind = iota
	// KindStructured carries the full field bag.
	KindStructured
)

func (k ItemKind) String() string {
	if k == KindStructured {
		return "structured"
	}
	return "simple"
}

// ActionItem is either a simple string or a structured record. The kind is
// decided once when the item is built and never re-derived from its shape.
type ActionItem struct {
	Kind   ItemKind
	Text   string
	Fields *Fields
}

// NewSimple returns a simple item.
func NewSimple(text string) ActionItem {
	return ActionItem{Kind: KindSimple, Text: text}
}

// NewStructured returns a structured item for f.
func NewStructured(f Fields) ActionItem {
	return ActionItem{Kind: KindStructured, Fields: &f}
}

// IsStructured reports whether the item carries a field bag.
func (i ActionItem) IsStructured() bool {
	return i.Kind == KindStructured && i.Fields != nil
}

// Title is the text used as the Notion page title and for display.
func (i ActionItem) Title() string {
	if i.IsStructured() {
		return i.Fields.Description
	}
	return i.Text
}

// envelope is the wire shape of a structured item.
type envelope struct {
	Operation  string `json:"operation"`
	Properties Fields `json:"properties"`
}

// MarshalJSON writes simple items as JSON strings and structured items as
// {"operation":"CREATE","properties":{...}}.
func (i ActionItem) MarshalJSON() ([]byte, error) {
	if !i.IsStructured() {
		return json.Marshal(i.Text)
	}
	return json.Marshal(envelope{Operation: OperationCreate, Properties: *i.Fields})
}

// UnmarshalJSON accepts a string, an envelope, or a bare field object.
func (i *ActionItem) UnmarshalJSON(data []byte) error {
	item, err := DecodeItem(data)
	if err != nil {
		return err
	}
	*i = item
	return nil
}

// directKeys are the field names that mark a bare object as an action item.
var directKeys = []string{"歸屬分類", "ToDo", "專案", "關鍵字", "todo", "description"}

// DecodeItem converts one JSON value into an ActionItem. Strings become simple
// items. Objects with a properties bag, or with item fields at the top level,
// become structured items; when no usable description is found the object is
// kept as a simple item holding its compact JSON.
func DecodeItem(raw []byte) (ActionItem, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ActionItem{}, fmt.Errorf("decode item: empty value")
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ActionItem{}, fmt.Errorf("decode item: %w", err)
		}
		return NewSimple(strings.TrimSpace(s)), nil
	case '{':
	default:
		return NewSimple(string(raw)), nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ActionItem{}, fmt.Errorf("decode item: %w", err)
	}
	body := raw
	if props, ok := obj["properties"]; ok && len(bytes.TrimSpace(props)) > 0 && bytes.TrimSpace(props)[0] == '{' {
		body = props
	} else if !HasItemFields(obj) {
		return degrade(raw), nil
	}

	var f Fields
	if err := json.Unmarshal(body, &f); err != nil {
		return degrade(raw), nil
	}
	if strings.TrimSpace(f.Description) == "" {
		return degrade(raw), nil
	}
	f.Description = strings.TrimSpace(f.Description)
	return NewStructured(f), nil
}

// HasItemFields reports whether obj exposes any of the item field names at the top level.
func HasItemFields(obj map[string]json.RawMessage) bool {
	for _, k := range directKeys {
		if _, ok := obj[k]; ok {
			return true
		}
	}
	return false
}

func degrade(raw []byte) ActionItem {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return NewSimple(string(raw))
	}
	return NewSimple(buf.String())
}

// CountStructured returns how many items carry fields.
func CountStructured(items []ActionItem) int {
	n := 0
	for _, it := range items {
		if it.IsStructured() {
			n++
		}
	}
	return n
}
