package ingest

import "strings"

// ContentType is the negotiated parsing/production policy for a request
// body.
type ContentType int

const (
	ContentTypeJSON ContentType = iota
	ContentTypeJSONLines
	ContentTypeBinary
)

// String returns the media type recorded in IngestReport.IngestedContentType.
func (c ContentType) String() string {
	switch c {
	case ContentTypeJSONLines:
		return "application/jsonlines"
	case ContentTypeBinary:
		return "application/octet-stream"
	default:
		return "application/json"
	}
}

// ResolveContentType implements the §4.4 step 5 policy table: when the
// schema honors the request's Content-Type header, JSON/JSON-lines/
// binary media types route accordingly and anything else falls back to
// binary; when it doesn't (or the header is absent), the schema's own
// configured default applies.
func ResolveContentType(contentTypeFromHeader bool, headerValue, schemaDefault string) ContentType {
	if !contentTypeFromHeader {
		return parseSchemaDefault(schemaDefault)
	}

	media := mediaType(headerValue)
	switch media {
	case "":
		return parseSchemaDefault(schemaDefault)
	case "application/json":
		return ContentTypeJSON
	case "application/x-ndjson", "application/jsonlines", "application/x-jsonlines":
		return ContentTypeJSONLines
	default:
		return ContentTypeBinary
	}
}

// parseSchemaDefault parses a SchemaConfig.ContentType override; an
// unrecognized or empty value defaults to JSON.
func parseSchemaDefault(s string) ContentType {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "JSON-LINES", "JSONLINES", "JSON_LINES":
		return ContentTypeJSONLines
	case "BINARY":
		return ContentTypeBinary
	default:
		return ContentTypeJSON
	}
}

// mediaType strips parameters (everything from the first ';' on) and
// lowercases the remainder.
func mediaType(raw string) string {
	if idx := strings.IndexByte(raw, ';'); idx >= 0 {
		raw = raw[:idx]
	}
	return strings.ToLower(strings.TrimSpace(raw))
}
