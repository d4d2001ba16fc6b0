package housing

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidGeoCode indicates that a geographic code is empty or exceeds storage bounds.
	ErrInvalidGeoCode = errors.New("housing: invalid geo code")
	// ErrInvalidHousingID indicates that a housing identifier is empty or exceeds storage bounds.
	ErrInvalidHousingID = errors.New("housing: invalid housing id")
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("housing: invalid user id")
	// ErrUnknownStatus indicates that a status value is outside the closed enumeration.
	ErrUnknownStatus = errors.New("housing: unknown status")
	// ErrUnknownOccupancy indicates that an occupancy value is outside the closed enumeration.
	ErrUnknownOccupancy = errors.New("housing: unknown occupancy")
	// ErrUnknownRole indicates that a role value is outside the closed enumeration.
	ErrUnknownRole = errors.New("housing: unknown role")
)

// Status enumerates the follow-up lifecycle of a housing record. The set is
// closed; every persisted value maps back to one of these constants.
type Status string

const (
	StatusNeverContacted Status = "never-contacted"
	StatusWaiting        Status = "waiting"
	StatusFirstContact   Status = "first-contact"
	StatusInProgress     Status = "in-progress"
	StatusCompleted      Status = "completed"
	StatusBlocked        Status = "blocked"
)

var statusLabels = map[Status]string{
	StatusNeverContacted: "Non suivi",
	StatusWaiting:        "En attente de retour",
	StatusFirstContact:   "Premier contact",
	StatusInProgress:     "Suivi en cours",
	StatusCompleted:      "Sortie de la vacance",
	StatusBlocked:        "Bloqué définitivement",
}

// ParseStatus validates raw input against the closed status set.
func ParseStatus(rawInput string) (Status, error) {
	candidate := Status(strings.TrimSpace(rawInput))
	if _, ok := statusLabels[candidate]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, rawInput)
	}
	return candidate, nil
}

// Label returns the French display label recorded in audit events.
func (s Status) Label() string {
	return statusLabels[s]
}

// String returns the wire value of the status.
func (s Status) String() string {
	return string(s)
}

// Occupancy enumerates how a housing unit is currently or prospectively used.
type Occupancy string

const (
	OccupancyUnknown             Occupancy = "unknown"
	OccupancyVacant              Occupancy = "vacant"
	OccupancyRent                Occupancy = "rent"
	OccupancyShortRent           Occupancy = "short-rent"
	OccupancyPrimaryResidence    Occupancy = "primary-residence"
	OccupancySecondaryResidence  Occupancy = "secondary-residence"
	OccupancyCommercialOrOffice  Occupancy = "commercial-or-office"
	OccupancyDependency          Occupancy = "dependency"
	OccupancyDemolishedOrDivided Occupancy = "demolished-or-divided"
	OccupancyOthers              Occupancy = "others"
)

var occupancyLabels = map[Occupancy]string{
	OccupancyUnknown:             "Pas d'information",
	OccupancyVacant:              "Vacant",
	OccupancyRent:                "En location",
	OccupancyShortRent:           "Meublé de tourisme",
	OccupancyPrimaryResidence:    "Résidence principale",
	OccupancySecondaryResidence:  "Résidence secondaire",
	OccupancyCommercialOrOffice:  "Local commercial ou bureau",
	OccupancyDependency:          "Dépendance",
	OccupancyDemolishedOrDivided: "Local démoli ou divisé",
	OccupancyOthers:              "Autres",
}

// ParseOccupancy validates raw input against the closed occupancy set.
func ParseOccupancy(rawInput string) (Occupancy, error) {
	candidate := Occupancy(strings.TrimSpace(rawInput))
	if _, ok := occupancyLabels[candidate]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownOccupancy, rawInput)
	}
	return candidate, nil
}

// Label returns the French display label recorded in audit events.
func (o Occupancy) Label() string {
	return occupancyLabels[o]
}

// String returns the wire value of the occupancy.
func (o Occupancy) String() string {
	return string(o)
}

// Role enumerates the capabilities of an acting user.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
	// RoleVisitor is a read-only capability; visitors may never mutate housing.
	RoleVisitor Role = "visitor"
)

// ParseRole validates raw input against the closed role set.
func ParseRole(rawInput string) (Role, error) {
	switch candidate := Role(strings.TrimSpace(rawInput)); candidate {
	case RoleUser, RoleAdmin, RoleVisitor:
		return candidate, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, rawInput)
	}
}

// GeoCode represents a validated INSEE geographic code partitioning housing.
type GeoCode string

// NewGeoCode validates raw input and returns a GeoCode.
func NewGeoCode(rawInput string) (GeoCode, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidGeoCode)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidGeoCode, maxIdentifierLength)
	}
	return GeoCode(trimmed), nil
}

// String returns the underlying code.
func (c GeoCode) String() string {
	return string(c)
}

// HousingID represents a validated housing identifier.
type HousingID string

// NewHousingID validates raw input and returns a HousingID.
func NewHousingID(rawInput string) (HousingID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidHousingID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidHousingID, maxIdentifierLength)
	}
	return HousingID(trimmed), nil
}

// String returns the underlying identifier.
func (id HousingID) String() string {
	return string(id)
}

// UserID represents a validated acting-user identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying identifier.
func (id UserID) String() string {
	return string(id)
}

// HousingKey is the composite identity of a housing record.
type HousingKey struct {
	GeoCode GeoCode
	ID      HousingID
}

// Actor is the authenticated caller of a mutation, resolved by the outer
// HTTP layer and consumed opaquely by the core.
type Actor struct {
	UserID UserID
	Role   Role
	// Scope lists the geographic codes of the actor's establishment. Every
	// mutation and read is confined to this set.
	Scope []GeoCode
}

// InScope reports whether the given geo code belongs to the actor's establishment.
func (a Actor) InScope(code GeoCode) bool {
	for _, scoped := range a.Scope {
		if scoped == code {
			return true
		}
	}
	return false
}

func (a Actor) scopeStrings() []string {
	codes := make([]string, 0, len(a.Scope))
	for _, code := range a.Scope {
		codes = append(codes, code.String())
	}
	return codes
}

// HousingRecord models the persisted housing row. SubStatus is only
// meaningful relative to the current Status; the pair is read and written
// together.
type HousingRecord struct {
	GeoCode           string     `gorm:"column:geo_code;primaryKey;size:190;not null"`
	ID                string     `gorm:"column:id;primaryKey;size:190;not null;index:idx_housing_id"`
	Status            Status     `gorm:"column:status;size:64;not null"`
	SubStatus         *string    `gorm:"column:sub_status;size:255"`
	Occupancy         Occupancy  `gorm:"column:occupancy;size:64;not null"`
	OccupancyIntended *Occupancy `gorm:"column:occupancy_intended;size:64"`
	RawAddress        string     `gorm:"column:raw_address;size:512"`
	CreatedAt         time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (HousingRecord) TableName() string {
	return "housing"
}

// Key returns the composite identity of the record.
func (r HousingRecord) Key() HousingKey {
	return HousingKey{GeoCode: GeoCode(r.GeoCode), ID: HousingID(r.ID)}
}

// Note is an immutable free-text annotation appended to a housing record.
// Created once, never updated.
type Note struct {
	ID             string    `gorm:"column:id;primaryKey;size:190;not null"`
	HousingGeoCode string    `gorm:"column:housing_geo_code;size:190;not null;index:idx_notes_housing,priority:1"`
	HousingID      string    `gorm:"column:housing_id;size:190;not null;index:idx_notes_housing,priority:2"`
	Content        string    `gorm:"column:content;type:text;not null"`
	CreatedBy      string    `gorm:"column:created_by;size:190;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Note) TableName() string {
	return "notes"
}

// Document references an uploaded file; storage itself lives elsewhere.
type Document struct {
	ID        string    `gorm:"column:id;primaryKey;size:190;not null"`
	Filename  string    `gorm:"column:filename;size:512;not null"`
	CreatedBy string    `gorm:"column:created_by;size:190"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Document) TableName() string {
	return "documents"
}

// HousingDocumentLink associates a document with a housing record. Links are
// idempotent: at most one row per (housing, document) pair.
type HousingDocumentLink struct {
	HousingGeoCode string `gorm:"column:housing_geo_code;primaryKey;size:190;not null"`
	HousingID      string `gorm:"column:housing_id;primaryKey;size:190;not null"`
	DocumentID     string `gorm:"column:document_id;primaryKey;size:190;not null"`
}

// TableName provides the explicit table binding for GORM.
func (HousingDocumentLink) TableName() string {
	return "housing_documents"
}

// HousingPrecisionLink associates a catalog precision with a housing record.
// At most one link exists per mutually-exclusive subcategory.
type HousingPrecisionLink struct {
	HousingGeoCode string    `gorm:"column:housing_geo_code;primaryKey;size:190;not null"`
	HousingID      string    `gorm:"column:housing_id;primaryKey;size:190;not null"`
	PrecisionID    string    `gorm:"column:precision_id;primaryKey;size:190;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (HousingPrecisionLink) TableName() string {
	return "housing_precisions"
}
