package modloader

import (
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// CloudEvent is an alias for the CloudEvents Event type for convenience.
type CloudEvent = cloudevents.Event

// NewCloudEvent creates a CloudEvent with a time-ordered ID.
func NewCloudEvent(eventType, source string, data any, extensions map[string]any) cloudevents.Event {
	event := cloudevents.NewEvent()

	event.SetID(generateEventID())
	event.SetSource(source)
	event.SetType(eventType)
	event.SetTime(time.Now())
	event.SetSpecVersion(cloudevents.VersionV1)

	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}

	for key, value := range extensions {
		event.SetExtension(key, value)
	}

	return event
}

// generateEventID uses UUIDv7 so event IDs sort by creation time.
func generateEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

// ValidateCloudEvent validates that a CloudEvent conforms to the specification.
func ValidateCloudEvent(event cloudevents.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("CloudEvent validation failed: %w", err)
	}
	return nil
}

// EventData decodes the ModuleEventData payload of a registry event.
func EventData(event cloudevents.Event) (ModuleEventData, error) {
	var data ModuleEventData
	if err := event.DataAs(&data); err != nil {
		return data, fmt.Errorf("decode event data: %w", err)
	}
	return data, nil
}
