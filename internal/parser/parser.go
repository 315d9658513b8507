// Package parser turns raw language model output into action items. Parsing
// never fails: each stage is more lenient than the one before, and the last
// one treats the input as free text.
package parser

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/hyperjump/autoscan/internal/models"
)

// Stage names the strategy that produced a Result.
type Stage string

const (
	StageObject    Stage = "object"
	StageDirect    Stage = "direct"
	StageRepaired  Stage = "repaired"
	StageFragments Stage = "fragments"
	StageText      Stage = "text"
	StageEmpty     Stage = "empty"
)

// Result is the outcome of a parse.
type Result struct {
	Items []models.ActionItem
	Stage Stage
	Raw   string
}

var (
	fenceRe     = regexp.MustCompile("```[A-Za-z]*")
	operationRe = regexp.MustCompile(`\{\s*"operation"\s*:\s*"CREATE"`)
)

// ParseStructuredOutput extracts action items from text produced under the
// structuring prompt.
func ParseStructuredOutput(text string) Result {
	res := Result{Raw: text}
	cleaned := strings.TrimSpace(fenceRe.ReplaceAllString(text, ""))
	if cleaned == "" {
		res.Stage = StageEmpty
		return res
	}

	if items, ok := parseSingleObject(cleaned); ok {
		res.Items, res.Stage = items, StageObject
		return res
	}

	for _, start := range arrayStarts(cleaned) {
		if items, ok := parseArray(arraySlice(cleaned, start)); ok {
			res.Items, res.Stage = items, StageDirect
			return res
		}
		// The repair works on everything after '[' since a truncated tail
		// may hold no closing bracket of its own.
		if items, ok := repairTruncated(cleaned[start:]); ok {
			res.Items, res.Stage = items, StageRepaired
			return res
		}
	}
	if items := scanFragments(cleaned); len(items) > 0 {
		res.Items, res.Stage = items, StageFragments
		return res
	}

	res.Items = simpleItems(ParseKeyPoints(text))
	if len(res.Items) == 0 {
		res.Stage = StageEmpty
	} else {
		res.Stage = StageText
	}
	return res
}

// ParseSimpleOutput turns key-point prose into simple items.
func ParseSimpleOutput(text string) Result {
	res := Result{Raw: text, Items: simpleItems(ParseKeyPoints(text)), Stage: StageText}
	if len(res.Items) == 0 {
		res.Stage = StageEmpty
	}
	return res
}

// ParseAgentAnswer parses an agent answer. When the answer holds no
// structured items the whole answer becomes one not-started item created at now.
func ParseAgentAnswer(text string, now time.Time) Result {
	res := ParseStructuredOutput(text)
	if models.CountStructured(res.Items) > 0 {
		return res
	}
	answer := strings.TrimSpace(text)
	if answer == "" {
		return Result{Raw: text, Stage: StageEmpty}
	}
	item := models.NewStructured(models.Fields{
		Description: answer,
		Status:      models.StatusNotStarted,
		CreatedAt:   now.Format("2006-01-02 15:04:05"),
	})
	return Result{Raw: text, Items: []models.ActionItem{item}, Stage: StageText}
}

// parseSingleObject accepts a lone object that exposes the item field bag.
func parseSingleObject(s string) ([]models.ActionItem, bool) {
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, false
	}
	if _, ok := obj["properties"]; !ok && !models.HasItemFields(obj) {
		return nil, false
	}
	item, err := models.DecodeItem([]byte(s))
	if err != nil {
		return nil, false
	}
	return []models.ActionItem{item}, true
}

// arrayStarts returns the offsets of '[' that may open an item list: the
// first one in s, then every later one followed by an object or a string.
// A bracket in leading prose such as "Found [2] items" is then skipped
// over instead of ending the search.
func arrayStarts(s string) []int {
	var starts []int
	for i := 0; i < len(s); i++ {
		if s[i] != '[' {
			continue
		}
		if len(starts) == 0 {
			starts = append(starts, i)
			continue
		}
		rest := strings.TrimLeft(s[i+1:], " \t\r\n")
		if strings.HasPrefix(rest, "{") || strings.HasPrefix(rest, `"`) {
			starts = append(starts, i)
		}
	}
	return starts
}

// arraySlice cuts s from start to the last ']', or to the end of s when no
// ']' follows.
func arraySlice(s string, start int) string {
	end := strings.LastIndex(s, "]")
	if end < start {
		return s[start:]
	}
	return s[start : end+1]
}

func parseArray(s string) ([]models.ActionItem, bool) {
	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(s), &elems); err != nil || len(elems) == 0 {
		return nil, false
	}
	items := make([]models.ActionItem, 0, len(elems))
	for _, e := range elems {
		if !isItemValue(e) {
			return nil, false
		}
		item, err := models.DecodeItem(e)
		if err != nil || item.Title() == "" {
			continue
		}
		items = append(items, item)
	}
	return items, len(items) > 0
}

// isItemValue rejects arrays that are not item lists, such as a keyword
// array picked out of a larger object.
func isItemValue(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	switch {
	case strings.HasPrefix(s, `"`):
		return true
	case strings.HasPrefix(s, "{"):
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return false
		}
		_, ok := obj["properties"]
		return ok || models.HasItemFields(obj)
	default:
		return false
	}
}

// repairTruncated closes the array after the last complete top-level object,
// walking back through '}' positions until a candidate parses.
func repairTruncated(s string) ([]models.ActionItem, bool) {
	for end := strings.LastIndex(s, "}"); end > 0; end = strings.LastIndex(s[:end], "}") {
		candidate := s[:end+1] + "]"
		if !json.Valid([]byte(candidate)) {
			continue
		}
		if items, ok := parseArray(candidate); ok {
			return items, true
		}
	}
	return nil, false
}

// scanFragments finds each CREATE object and parses it on its own.
func scanFragments(s string) []models.ActionItem {
	var items []models.ActionItem
	next := 0
	for _, loc := range operationRe.FindAllStringIndex(s, -1) {
		if loc[0] < next {
			continue
		}
		end := matchBrace(s, loc[0])
		if end < 0 {
			break
		}
		next = end + 1
		item, err := models.DecodeItem([]byte(s[loc[0] : end+1]))
		if err != nil || !item.IsStructured() {
			continue
		}
		items = append(items, item)
	}
	return items
}

// matchBrace returns the index of the brace closing the one at start, or -1.
// Braces inside JSON strings are ignored.
func matchBrace(s string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func simpleItems(lines []string) []models.ActionItem {
	if len(lines) == 0 {
		return nil
	}
	items := make([]models.ActionItem, len(lines))
	for i, l := range lines {
		items[i] = models.NewSimple(l)
	}
	return items
}
