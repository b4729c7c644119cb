package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Standard attribute keys attached to ingest request spans.
const (
	AttrSchemaID     = "ingest.schema_id"
	AttrMethod       = "ingest.method"
	AttrContentType  = "ingest.content_type"
	AttrEventCount   = "ingest.event_count"
	AttrPayloadBytes = "ingest.payload_bytes"

	AttrProducer = "producer.name"
	AttrTopic    = "producer.topic"

	AttrProcessorPath = "processor.callable_path"

	AttrTenantID = "tenant.id"
)

// RequestAttributes returns the core span attributes for one ingest
// request.
func RequestAttributes(schemaID, method, contentType string, payloadBytes int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrSchemaID, schemaID),
		attribute.String(AttrMethod, method),
		attribute.String(AttrContentType, contentType),
		attribute.Int(AttrPayloadBytes, payloadBytes),
	}
}

// ProducerAttributes returns span attributes for one broker send.
func ProducerAttributes(producer, topic string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrProducer, producer),
		attribute.String(AttrTopic, topic),
	}
}

// ProcessorAttributes returns span attributes for one processor invocation.
func ProcessorAttributes(callablePath string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrProcessorPath, callablePath),
	}
}
