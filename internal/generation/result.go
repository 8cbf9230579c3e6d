package generation

import (
	"bytes"
	"encoding/json"
	"net/http"
)

// Response is the part of an upstream generation response the relay reads.
type Response struct {
	Data []ResultItem
}

// ResultItem is one entry of the upstream results collection. The upstream
// schema is loose, so each entry is classified into exactly one variant:
// URLItem, MappingItem or UnknownItem.
type ResultItem interface {
	resultItem()
}

// URLItem exposes the image URL as a typed field.
type URLItem struct {
	URL string
}

// MappingItem is a JSON object that did not match URLItem; the URL, if any,
// is looked up by key.
type MappingItem map[string]any

// UnknownItem carries an entry that is not a JSON object at all.
type UnknownItem struct {
	Raw json.RawMessage
}

func (URLItem) resultItem()     {}
func (MappingItem) resultItem() {}
func (UnknownItem) resultItem() {}

// FirstURL returns the image URL of the first result. Both failure modes are
// reported as *Error with status 500 and distinct details.
func (r *Response) FirstURL() (string, error) {
	if r == nil || len(r.Data) == 0 {
		return "", errEmptyData
	}

	switch item := r.Data[0].(type) {
	case URLItem:
		return item.URL, nil
	case MappingItem:
		if url, ok := item["url"].(string); ok {
			return url, nil
		}
	}
	return "", errURLNotFound
}

var (
	errEmptyData = &Error{
		Status: http.StatusInternalServerError,
		Detail: "Image generation response format error: empty data",
	}
	errURLNotFound = &Error{
		Status: http.StatusInternalServerError,
		Detail: "Image generation response format error: url not found",
	}
)

// classifyItem maps a raw results entry onto its variant. Objects whose only
// key is a string "url" become URLItem; any other object is a MappingItem.
func classifyItem(raw json.RawMessage) ResultItem {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return UnknownItem{Raw: raw}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return UnknownItem{Raw: raw}
	}

	// A null url unmarshals into "" without error, so require a JSON string.
	if rawURL, ok := fields["url"]; ok && len(fields) == 1 && bytes.HasPrefix(bytes.TrimSpace(rawURL), []byte{'"'}) {
		var url string
		if err := json.Unmarshal(rawURL, &url); err == nil {
			return URLItem{URL: url}
		}
	}

	var mapping map[string]any
	if err := json.Unmarshal(trimmed, &mapping); err != nil {
		return UnknownItem{Raw: raw}
	}
	return MappingItem(mapping)
}

func classifyItems(raw []json.RawMessage) []ResultItem {
	items := make([]ResultItem, 0, len(raw))
	for _, entry := range raw {
		items = append(items, classifyItem(entry))
	}
	return items
}
