package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicRouting(t *testing.T) {
	tests := []struct {
		eventType Type
		topic     string
	}{
		{TypeDocumentReceived, TopicDocumentIngestion},
		{TypeOCRCompleted, TopicOCRProcessing},
		{TypeEntityExtracted, TopicEntityExtraction},
		{TypeAnomalyDetected, TopicAnomalyDetection},
		{TypeFHIRConverted, TopicFHIRConversion},
		{TypePrivacyChecked, TopicPrivacyCheck},
		{TypeHubUpdated, TopicHubIntegration},
		{TypeErrorOccurred, TopicErrors},
	}
	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			assert.Equal(t, tt.topic, tt.eventType.Topic())
		})
	}

	t.Run("unknown type routes to errors topic", func(t *testing.T) {
		assert.Equal(t, TopicErrors, Type("mystery.event").Topic())
	})
}

func TestParseType(t *testing.T) {
	parsed, err := ParseType("document.received")
	require.NoError(t, err)
	assert.Equal(t, TypeDocumentReceived, parsed)

	_, err = ParseType("not.a.type")
	assert.Error(t, err)
}

func TestAllTopicsIncludesDeadLetter(t *testing.T) {
	topics := AllTopics()
	assert.Len(t, topics, 9)
	assert.Contains(t, topics, TopicDeadLetter)
}

func TestEventEnvelope(t *testing.T) {
	event := NewEvent(TypeOCRCompleted, map[string]any{"document_id": "DOC-1"}, "ocr_processor", "CORR-1")

	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "1.0", event.Metadata.Version)
	assert.Equal(t, "payerhub.event.v1", event.Metadata.Schema)

	payload, err := json.Marshal(event)
	require.NoError(t, err)

	decoded, err := Unmarshal(payload)
	require.NoError(t, err)
	assert.Equal(t, event.EventID, decoded.EventID)
	assert.Equal(t, "CORR-1", decoded.CorrelationID)
	assert.Equal(t, "DOC-1", decoded.Data["document_id"])
}

func TestUnmarshalRejectsBadInput(t *testing.T) {
	_, err := Unmarshal([]byte("not json"))
	assert.Error(t, err)

	_, err = Unmarshal([]byte(`{"event_id":"x","event_type":"mystery.event"}`))
	assert.Error(t, err, "unknown event types are rejected at decode")
}
