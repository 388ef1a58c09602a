package scan

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"github.com/lehigh-university-libraries/shelfscan/internal/models"
	"github.com/lehigh-university-libraries/shelfscan/internal/providers"
)

const fence = "```"

// ErrNoBooks means the response decoded to an empty list
var ErrNoBooks = errors.New("no books detected")

// ExtractPayload returns the JSON payload of a vision response. When the
// response holds fenced blocks, the innermost one wins: the last opening
// fence carrying a language tag, or else the first fence, up to the next
// fence. Without a complete block the whole response is used, minus any
// stray fence and language tag.
func ExtractPayload(raw string) string {
	var positions []int
	for offset := 0; ; {
		i := strings.Index(raw[offset:], fence)
		if i < 0 {
			break
		}
		positions = append(positions, offset+i)
		offset += i + len(fence)
	}

	if len(positions) < 2 {
		body := strings.TrimSpace(strings.ReplaceAll(raw, fence, ""))
		if nl := strings.IndexByte(body, '\n'); nl >= 0 && hasLanguageTag(body) {
			body = body[nl+1:]
		}
		return strings.TrimSpace(body)
	}

	open := -1
	for i, pos := range positions[:len(positions)-1] {
		if hasLanguageTag(raw[pos+len(fence):]) {
			open = i
		}
	}
	if open < 0 {
		open = 0
	}

	body := raw[positions[open]+len(fence) : positions[open+1]]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && hasLanguageTag(body) {
		body = body[nl+1:]
	}
	return strings.TrimSpace(body)
}

// hasLanguageTag reports whether text right after a fence starts with an info string like "json"
func hasLanguageTag(after string) bool {
	line := after
	if nl := strings.IndexByte(after, '\n'); nl >= 0 {
		line = after[:nl]
	}
	line = strings.TrimSpace(line)
	if line == "" || strings.ContainsAny(line, "[]{}\"") {
		return false
	}
	for _, r := range line {
		if !(r == '-' || r == '_' || r == '+' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

type candidateJSON struct {
	Title  json.RawMessage `json:"title"`
	Author json.RawMessage `json:"author"`
	ISBN   json.RawMessage `json:"isbn"`
	Genre  json.RawMessage `json:"genre"`
}

// ParseCandidates decodes a vision response into candidates. It accepts a
// JSON array, an object wrapping one (under "books" or any other single
// list-valued key), or a lone book object. A decoding failure is a
// *providers.DecodingError; an empty list is ErrNoBooks.
func ParseCandidates(raw string) ([]models.CandidateBook, error) {
	items, err := decodeItems([]byte(ExtractPayload(raw)))
	if err != nil {
		return nil, &providers.DecodingError{What: "vision response", Err: err}
	}

	if len(items) == 0 {
		return nil, ErrNoBooks
	}

	out := make([]models.CandidateBook, 0, len(items))
	for _, item := range items {
		out = append(out, models.CandidateBook{
			Title:  stringField(item.Title),
			Author: stringField(item.Author),
			ISBN:   stringField(item.ISBN),
			Genre:  stringField(item.Genre),
		})
	}
	return out, nil
}

func decodeItems(payload []byte) ([]candidateJSON, error) {
	if items, ok := decodeList(payload); ok {
		return items, nil
	}

	var object map[string]json.RawMessage
	if err := json.Unmarshal(payload, &object); err != nil {
		return nil, err
	}
	if books, found := object["books"]; found {
		if items, ok := decodeList(books); ok {
			return items, nil
		}
		return nil, errors.New(`"books" is not a list`)
	}
	if _, found := object["title"]; found {
		var item candidateJSON
		if err := json.Unmarshal(payload, &item); err != nil {
			return nil, err
		}
		return []candidateJSON{item}, nil
	}

	keys := make([]string, 0, len(object))
	for k := range object {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if items, ok := decodeList(object[k]); ok {
			return items, nil
		}
	}
	return nil, errors.New("object holds no list of books")
}

// decodeList decodes a JSON array of book objects; null is not a list
func decodeList(raw []byte) ([]candidateJSON, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, false
	}
	var items []candidateJSON
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, false
	}
	return items, true
}

// stringField accepts a string, a number, or a list of strings (first wins)
func stringField(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, v := range list {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
		return ""
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
