package parser

import (
	"regexp"
	"strings"
)

// listMarkerRe matches bullets, "1." / "1)" / "1、" prefixes, Chinese
// numerals followed by 、 and circled numerals ① through ⑳.
var listMarkerRe = regexp.MustCompile(`^(?:[-*•·]+|\d+[.)、．]|[一二三四五六七八九十]+[、.．]|[\x{2460}-\x{2473}])\s*`)

var structuralLines = map[string]bool{
	"{": true, "}": true, "[": true, "]": true,
	"},": true, "],": true, "[]": true, "{}": true,
}

// ParseKeyPoints splits text into lines and strips list markers. Blank lines
// and lines that are only JSON punctuation are dropped.
func ParseKeyPoints(text string) []string {
	var out []string
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || structuralLines[line] || strings.HasPrefix(line, "```") {
			continue
		}
		line = strings.TrimSpace(listMarkerRe.ReplaceAllString(line, ""))
		if line == "" || structuralLines[line] {
			continue
		}
		out = append(out, line)
	}
	return out
}
