package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type is the closed enumeration of pipeline event kinds. Every type maps to
// exactly one Kafka topic; there is no runtime registration of new types.
type Type string

const (
	TypeDocumentReceived Type = "document.received"
	TypeOCRCompleted     Type = "ocr.completed"
	TypeEntityExtracted  Type = "entity.extracted"
	TypeAnomalyDetected  Type = "anomaly.detected"
	TypeFHIRConverted    Type = "fhir.converted"
	TypePrivacyChecked   Type = "privacy.checked"
	TypeHubUpdated       Type = "hub.updated"
	TypeErrorOccurred    Type = "error.occurred"
)

// Topic names. One dedicated topic per event type plus a shared dead-letter
// topic for failed handler deliveries.
const (
	TopicDocumentIngestion = "payerhub.document.ingestion"
	TopicOCRProcessing     = "payerhub.ocr.processing"
	TopicEntityExtraction  = "payerhub.entity.extraction"
	TopicAnomalyDetection  = "payerhub.anomaly.detection"
	TopicFHIRConversion    = "payerhub.fhir.conversion"
	TopicPrivacyCheck      = "payerhub.privacy.check"
	TopicHubIntegration    = "payerhub.hub.integration"
	TopicErrors            = "payerhub.errors"
	TopicDeadLetter        = "payerhub.dead_letter"
)

// topicByType is the single source of truth for event routing.
var topicByType = map[Type]string{
	TypeDocumentReceived: TopicDocumentIngestion,
	TypeOCRCompleted:     TopicOCRProcessing,
	TypeEntityExtracted:  TopicEntityExtraction,
	TypeAnomalyDetected:  TopicAnomalyDetection,
	TypeFHIRConverted:    TopicFHIRConversion,
	TypePrivacyChecked:   TopicPrivacyCheck,
	TypeHubUpdated:       TopicHubIntegration,
	TypeErrorOccurred:    TopicErrors,
}

// Topic returns the Kafka topic for this event type. Unknown types route to
// the errors topic so nothing is silently dropped.
func (t Type) Topic() string {
	if topic, ok := topicByType[t]; ok {
		return topic
	}
	return TopicErrors
}

// Valid reports whether t is one of the known event types.
func (t Type) Valid() bool {
	_, ok := topicByType[t]
	return ok
}

// ParseType constructs a Type from wire input, rejecting unknown values.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown event type %q", s)
	}
	return t, nil
}

// AllTopics lists every topic the core uses, dead letter included. Used for
// topic bootstrap and consumer subscription.
func AllTopics() []string {
	topics := make([]string, 0, len(topicByType)+1)
	for _, topic := range topicByType {
		topics = append(topics, topic)
	}
	return append(topics, TopicDeadLetter)
}

// Metadata carries the envelope version so consumers can evolve safely.
type Metadata struct {
	Version string `json:"version"`
	Schema  string `json:"schema"`
}

const (
	metadataVersion = "1.0"
	metadataSchema  = "payerhub.event.v1"
)

// Event is the wire envelope for everything crossing the bus. Events are
// immutable once published and consumed at-least-once.
type Event struct {
	EventID       string         `json:"event_id"`
	Type          Type           `json:"event_type"`
	Timestamp     string         `json:"timestamp"`
	Source        string         `json:"source"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Data          map[string]any `json:"data"`
	Metadata      Metadata       `json:"metadata"`
}

// NewEvent builds an envelope with a fresh event id and current timestamp.
func NewEvent(eventType Type, data map[string]any, source, correlationID string) Event {
	return Event{
		EventID:       uuid.NewString(),
		Type:          eventType,
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		Source:        source,
		CorrelationID: correlationID,
		Data:          data,
		Metadata:      Metadata{Version: metadataVersion, Schema: metadataSchema},
	}
}

// Unmarshal decodes a wire payload and validates the event type.
func Unmarshal(payload []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if !event.Type.Valid() {
		return Event{}, fmt.Errorf("unknown event type %q", event.Type)
	}
	return event, nil
}

// deadLetterEnvelope wraps a failed event for the dead-letter topic.
type deadLetterEnvelope struct {
	OriginalEvent Event  `json:"original_event"`
	Error         string `json:"error"`
	Timestamp     string `json:"timestamp"`
}
