package housing

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType names an audit event. The set is closed; the engine never
// invents types at runtime.
type EventType string

const (
	EventTypeStatusUpdated     EventType = "housing:status-updated"
	EventTypeOccupancyUpdated  EventType = "housing:occupancy-updated"
	EventTypePrecisionAttached EventType = "housing:precision-attached"
	EventTypeNoteAdded         EventType = "housing:note-added"
	EventTypeDocumentAttached  EventType = "housing:document-attached"
)

// Event is an immutable, append-only audit record. NextOld and NextNew hold
// the minimal payload of the dimension that changed, never the full record.
type Event struct {
	ID        string    `gorm:"column:id;primaryKey;size:190;not null"`
	Type      EventType `gorm:"column:type;size:64;not null"`
	CreatedBy string    `gorm:"column:created_by;size:190;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
	NextOld   *string   `gorm:"column:next_old;type:jsonb"`
	NextNew   *string   `gorm:"column:next_new;type:jsonb"`
}

// TableName provides the explicit table binding for GORM.
func (Event) TableName() string {
	return "events"
}

// HousingEvent links an event row to the housing record it concerns.
type HousingEvent struct {
	EventID        string `gorm:"column:event_id;primaryKey;size:190;not null"`
	HousingGeoCode string `gorm:"column:housing_geo_code;size:190;not null;index:idx_housing_events,priority:1"`
	HousingID      string `gorm:"column:housing_id;size:190;not null;index:idx_housing_events,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (HousingEvent) TableName() string {
	return "housing_events"
}

// PrecisionHousingEvent links a precision-attachment event to both the
// housing record and the catalog precision it concerns.
type PrecisionHousingEvent struct {
	EventID        string `gorm:"column:event_id;primaryKey;size:190;not null"`
	PrecisionID    string `gorm:"column:precision_id;size:190;not null"`
	HousingGeoCode string `gorm:"column:housing_geo_code;size:190;not null;index:idx_precision_housing_events,priority:1"`
	HousingID      string `gorm:"column:housing_id;size:190;not null;index:idx_precision_housing_events,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (PrecisionHousingEvent) TableName() string {
	return "precision_housing_events"
}

// eventPayload is the closed union of event payload shapes. Each event type
// carries exactly one variant, which keeps the minimal-diff invariant
// checkable from the type alone.
type eventPayload interface {
	isEventPayload()
}

// StatusPayload is the {status, subStatus} dimension snapshot, rendered with
// display labels as stored in the audit trail.
type StatusPayload struct {
	Status    string  `json:"status"`
	SubStatus *string `json:"subStatus"`
}

func (StatusPayload) isEventPayload() {}

// OccupancyPayload is the {occupancy, occupancyIntended} dimension snapshot.
type OccupancyPayload struct {
	Occupancy         string  `json:"occupancy"`
	OccupancyIntended *string `json:"occupancyIntended"`
}

func (OccupancyPayload) isEventPayload() {}

// PrecisionPayload describes a newly attached catalog precision.
type PrecisionPayload struct {
	Category string `json:"category"`
	Label    string `json:"label"`
}

func (PrecisionPayload) isEventPayload() {}

// NotePayload carries the content of an appended note.
type NotePayload struct {
	Content string `json:"content"`
}

func (NotePayload) isEventPayload() {}

// DocumentPayload references a newly linked document.
type DocumentPayload struct {
	DocumentID string `json:"documentId"`
}

func (DocumentPayload) isEventPayload() {}

// pendingEvent is an event queued during a mutation, before identifiers and
// timestamps are stamped on.
type pendingEvent struct {
	Type EventType
	Old  eventPayload
	New  eventPayload
	// Precision drives the precision_housing_events join row; nil for every
	// other event type.
	Precision *Precision
}

// materialize turns a queued event into its persisted form.
func (p pendingEvent) materialize(id string, actor UserID, createdAt time.Time) (Event, error) {
	oldJSON, err := marshalPayload(p.Old)
	if err != nil {
		return Event{}, fmt.Errorf("housing: encode %s old payload: %w", p.Type, err)
	}
	newJSON, err := marshalPayload(p.New)
	if err != nil {
		return Event{}, fmt.Errorf("housing: encode %s new payload: %w", p.Type, err)
	}
	return Event{
		ID:        id,
		Type:      p.Type,
		CreatedBy: actor.String(),
		CreatedAt: createdAt,
		NextOld:   oldJSON,
		NextNew:   newJSON,
	}, nil
}

func marshalPayload(payload eventPayload) (*string, error) {
	if payload == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	value := string(encoded)
	return &value, nil
}

func statusPayloadOf(record HousingRecord) StatusPayload {
	return StatusPayload{
		Status:    record.Status.Label(),
		SubStatus: record.SubStatus,
	}
}

func occupancyPayloadOf(record HousingRecord) OccupancyPayload {
	payload := OccupancyPayload{Occupancy: record.Occupancy.Label()}
	if record.OccupancyIntended != nil {
		label := record.OccupancyIntended.Label()
		payload.OccupancyIntended = &label
	}
	return payload
}
