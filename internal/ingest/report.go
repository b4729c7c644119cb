package ingest

// Report is the JSON body synthesized once a request's forwarding stage
// completes, unless a processor supplied its own body.
type Report struct {
	IngestedCount       int64  `json:"ingested_count"`
	IngestedBytes       int64  `json:"ingested_bytes"`
	IngestedContentType string `json:"ingested_content_type"`
	IngestedSchemaID    string `json:"ingested_schema_id"`
}
