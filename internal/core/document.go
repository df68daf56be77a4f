// Package core contains the types shared by every component of the connector:
// the external JSON document and the error taxonomy.
package core

// Document is one external record as decoded from a JSON response body.
// Values are the types produced by encoding/json: string, float64, bool, nil,
// []any and map[string]any.
type Document = map[string]any

// ResultKey is the envelope field the ITSM REST API wraps payloads in.
const ResultKey = "result"

// Clone returns a shallow copy of doc. Join passes attach their append keys to
// copies so the primary documents handed to them are never mutated.
func Clone(doc Document) Document {
	out := make(Document, len(doc)+1)
	for k, v := range doc {
		out[k] = v
	}
	return out
}

// UnwrapResult extracts the documents held in the "result" envelope of a
// response body. The envelope may hold a single object or an array.
func UnwrapResult(body Document) []Document {
	raw, ok := body[ResultKey]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case map[string]any:
		return []Document{v}
	case []any:
		docs := make([]Document, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				docs = append(docs, m)
			}
		}
		return docs
	}
	return nil
}

// String returns doc[key] when it holds a string.
func String(doc Document, key string) string {
	s, _ := doc[key].(string)
	return s
}
