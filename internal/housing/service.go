package housing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingCatalog    = errors.New("precision catalog is required")
	errRecordNotFound    = errors.New("housing record not found in scope")
	errUnknownDocument   = errors.New("unknown document")
	noOpLogger           = zap.NewNop()
)

// Kind classifies a ServiceError for transport mapping.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindForbidden   Kind = "forbidden"
	KindNotFound    Kind = "not_found"
	KindPersistence Kind = "persistence"
)

// ServiceError carries a stable operation.reason code, the failure kind and
// the underlying cause.
type ServiceError struct {
	kind Kind
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the stable operation.reason code.
func (e *ServiceError) Code() string {
	return e.code
}

// Kind returns the failure classification.
func (e *ServiceError) Kind() Kind {
	return e.kind
}

const (
	opServiceNew  = "housing.service.new"
	opUpdateOne   = "housing.update_one"
	opUpdateBatch = "housing.update_batch"
	opGetOne      = "housing.get_one"
	opListEvents  = "housing.list_events"
)

func newServiceError(kind Kind, operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{kind: kind, code: code, err: cause}
}

// MutationPayload carries the proposed field changes of one logical
// mutation. Nil pointers mean "leave unchanged". The {Status, SubStatus}
// pair is written together: whenever Status is set, SubStatus replaces the
// stored sub-status, including a nil that clears it. Precision and document
// lists are additive; nil and empty are both no-ops.
type MutationPayload struct {
	Status            *Status
	SubStatus         *string
	Occupancy         *Occupancy
	OccupancyIntended *Occupancy
	Precisions        []string
	Documents         []string
	Note              *string
}

func (p MutationPayload) apply(record HousingRecord) HousingRecord {
	after := record
	if p.Status != nil {
		after.Status = *p.Status
		after.SubStatus = p.SubStatus
	}
	if p.Occupancy != nil {
		after.Occupancy = *p.Occupancy
	}
	if p.OccupancyIntended != nil {
		intended := *p.OccupancyIntended
		after.OccupancyIntended = &intended
	}
	return after
}

func (p MutationPayload) noteContent() (string, bool) {
	if p.Note == nil {
		return "", false
	}
	content := strings.TrimSpace(*p.Note)
	if content == "" {
		return "", false
	}
	return content, true
}

// IDProvider issues identifiers for events and notes.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies of the mutation service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Catalog    *Catalog
	Resolver   FilterResolver
	Logger     *zap.Logger
}

// Service coordinates housing mutations: validation, field diffing,
// precision and document reconciliation, note appending and audit-event
// emission, all inside one transaction per call. The service is stateless
// between invocations; the catalog is its only shared state and is
// read-only.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	catalog    *Catalog
	resolver   FilterResolver
	logger     *zap.Logger
}

// NewService validates dependencies and constructs the mutation service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(KindPersistence, opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(KindPersistence, opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	if cfg.Catalog == nil {
		return nil, newServiceError(KindPersistence, opServiceNew, "missing_catalog", errMissingCatalog)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = NewScopedResolver()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		catalog:    cfg.Catalog,
		resolver:   resolver,
		logger:     logger,
	}, nil
}

// UpdateOne applies the proposed changes to a single housing record. The
// record must exist within the actor's establishment scope; a key with an
// empty geo code is resolved by identifier across the scope. Returns the
// post-mutation record.
func (s *Service) UpdateOne(ctx context.Context, key HousingKey, payload MutationPayload, actor Actor) (HousingRecord, error) {
	if err := s.precheck(opUpdateOne, payload, actor); err != nil {
		return HousingRecord{}, err
	}

	var updated HousingRecord
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := s.lockRecord(tx, opUpdateOne, key, actor)
		if err != nil {
			return err
		}

		if err := validateMutation(actor, record, payload); err != nil {
			s.logError(opUpdateOne, "forbidden_transition", err,
				zap.String("geo_code", record.GeoCode),
				zap.String("housing_id", record.ID))
			return newServiceError(KindForbidden, opUpdateOne, "forbidden_transition", err)
		}

		updated, err = s.mutateRecord(tx, opUpdateOne, record, payload, actor)
		return err
	})
	if txErr != nil {
		return HousingRecord{}, txErr
	}
	return updated, nil
}

// UpdateBatch resolves the filter to a key set within the actor's scope and
// applies the same per-record pipeline as UpdateOne to every key. The whole
// batch runs in one transaction: a single validation or persistence failure
// rolls back every record and every event. Validation for every record runs
// before the first write.
func (s *Service) UpdateBatch(ctx context.Context, spec FilterSpec, payload MutationPayload, actor Actor) ([]HousingRecord, error) {
	if err := s.precheck(opUpdateBatch, payload, actor); err != nil {
		return nil, err
	}

	var updated []HousingRecord
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		keys, err := s.resolver.Resolve(ctx, tx, spec, actor.Scope)
		if err != nil {
			s.logError(opUpdateBatch, "filter_resolve_failed", err)
			return newServiceError(KindPersistence, opUpdateBatch, "filter_resolve_failed", err)
		}

		records := make([]HousingRecord, 0, len(keys))
		for _, key := range keys {
			record, err := s.lockRecord(tx, opUpdateBatch, key, actor)
			if err != nil {
				return err
			}
			if err := validateMutation(actor, record, payload); err != nil {
				s.logError(opUpdateBatch, "forbidden_transition", err,
					zap.String("geo_code", record.GeoCode),
					zap.String("housing_id", record.ID))
				return newServiceError(KindForbidden, opUpdateBatch, "forbidden_transition", err)
			}
			records = append(records, record)
		}

		updated = make([]HousingRecord, 0, len(records))
		for _, record := range records {
			result, err := s.mutateRecord(tx, opUpdateBatch, record, payload, actor)
			if err != nil {
				return err
			}
			updated = append(updated, result)
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	return updated, nil
}

// precheck rejects read-only roles and unresolvable catalog or document
// references before the transaction opens, so that no rule violation ever
// reaches a write.
func (s *Service) precheck(operation string, payload MutationPayload, actor Actor) error {
	if actor.Role == RoleVisitor {
		s.logError(operation, "read_only_role", ErrReadOnlyRole, zap.String("user_id", actor.UserID.String()))
		return newServiceError(KindForbidden, operation, "read_only_role", ErrReadOnlyRole)
	}

	for _, id := range payload.Precisions {
		if _, err := s.catalog.Lookup(id); err != nil {
			s.logError(operation, "unknown_precision", err)
			return newServiceError(KindValidation, operation, "unknown_precision", err)
		}
	}

	if len(payload.Documents) > 0 {
		var count int64
		if err := s.db.Model(&Document{}).Where("id IN ?", payload.Documents).Count(&count).Error; err != nil {
			s.logError(operation, "document_lookup_failed", err)
			return newServiceError(KindPersistence, operation, "document_lookup_failed", err)
		}
		if count != int64(len(uniqueStrings(payload.Documents))) {
			s.logError(operation, "unknown_document", errUnknownDocument)
			return newServiceError(KindValidation, operation, "unknown_document", errUnknownDocument)
		}
	}

	return nil
}

func (s *Service) lockRecord(tx *gorm.DB, operation string, key HousingKey, actor Actor) (HousingRecord, error) {
	query := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("geo_code IN ?", actor.scopeStrings())
	if key.GeoCode != "" {
		query = query.Where("geo_code = ?", key.GeoCode.String())
	}
	query = query.Where("id = ?", key.ID.String())

	var record HousingRecord
	err := query.Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return HousingRecord{}, newServiceError(KindNotFound, operation, "record_not_found", errRecordNotFound)
	}
	if err != nil {
		s.logError(operation, "record_select_failed", err, zap.String("housing_id", key.ID.String()))
		return HousingRecord{}, newServiceError(KindPersistence, operation, "record_select_failed", err)
	}
	if !actor.InScope(GeoCode(record.GeoCode)) {
		return HousingRecord{}, newServiceError(KindNotFound, operation, "record_not_found", errRecordNotFound)
	}
	return record, nil
}

// mutateRecord runs the per-record pipeline inside the caller's transaction:
// apply field changes, diff dimensions, reconcile precision and document
// links, append the note, then persist the record together with every queued
// event. All-or-nothing; the transaction boundary is the correctness
// boundary.
func (s *Service) mutateRecord(tx *gorm.DB, operation string, before HousingRecord, payload MutationPayload, actor Actor) (HousingRecord, error) {
	now := s.clock().UTC()
	after := payload.apply(before)

	pending := diffDimensions(before, after)

	var currentPrecisions []HousingPrecisionLink
	if err := tx.Where("housing_geo_code = ? AND housing_id = ?", before.GeoCode, before.ID).
		Find(&currentPrecisions).Error; err != nil {
		s.logError(operation, "precision_select_failed", err)
		return HousingRecord{}, newServiceError(KindPersistence, operation, "precision_select_failed", err)
	}
	precisionChanges, err := reconcilePrecisions(s.catalog, currentPrecisions, payload.Precisions)
	if err != nil {
		// Unresolvable identifiers are caught by precheck; reaching this
		// branch means the catalog changed mid-flight.
		return HousingRecord{}, newServiceError(KindValidation, operation, "unknown_precision", err)
	}
	pending = append(pending, precisionChanges.Events...)

	var currentDocuments []HousingDocumentLink
	if err := tx.Where("housing_geo_code = ? AND housing_id = ?", before.GeoCode, before.ID).
		Find(&currentDocuments).Error; err != nil {
		s.logError(operation, "document_select_failed", err)
		return HousingRecord{}, newServiceError(KindPersistence, operation, "document_select_failed", err)
	}
	documentChanges := reconcileDocuments(currentDocuments, payload.Documents)
	pending = append(pending, documentChanges.Events...)

	noteContent, hasNote := payload.noteContent()
	if hasNote {
		pending = append(pending, pendingEvent{
			Type: EventTypeNoteAdded,
			New:  NotePayload{Content: noteContent},
		})
	}

	if err := tx.Save(&after).Error; err != nil {
		s.logError(operation, "record_save_failed", err,
			zap.String("geo_code", after.GeoCode),
			zap.String("housing_id", after.ID))
		return HousingRecord{}, newServiceError(KindPersistence, operation, "record_save_failed", err)
	}

	if len(precisionChanges.ToDelete) > 0 {
		if err := tx.Where("housing_geo_code = ? AND housing_id = ? AND precision_id IN ?",
			before.GeoCode, before.ID, precisionChanges.ToDelete).
			Delete(&HousingPrecisionLink{}).Error; err != nil {
			s.logError(operation, "precision_unlink_failed", err)
			return HousingRecord{}, newServiceError(KindPersistence, operation, "precision_unlink_failed", err)
		}
	}
	for _, entry := range precisionChanges.ToCreate {
		link := HousingPrecisionLink{
			HousingGeoCode: before.GeoCode,
			HousingID:      before.ID,
			PrecisionID:    entry.ID,
			CreatedAt:      now,
		}
		if err := tx.Create(&link).Error; err != nil {
			s.logError(operation, "precision_link_failed", err, zap.String("precision_id", entry.ID))
			return HousingRecord{}, newServiceError(KindPersistence, operation, "precision_link_failed", err)
		}
	}

	for _, documentID := range documentChanges.ToCreate {
		link := HousingDocumentLink{
			HousingGeoCode: before.GeoCode,
			HousingID:      before.ID,
			DocumentID:     documentID,
		}
		if err := tx.Create(&link).Error; err != nil {
			s.logError(operation, "document_link_failed", err, zap.String("document_id", documentID))
			return HousingRecord{}, newServiceError(KindPersistence, operation, "document_link_failed", err)
		}
	}

	if hasNote {
		noteID, err := s.idProvider.NewID()
		if err != nil {
			s.logError(operation, "id_generation_failed", err)
			return HousingRecord{}, newServiceError(KindPersistence, operation, "id_generation_failed", err)
		}
		note := Note{
			ID:             noteID,
			HousingGeoCode: before.GeoCode,
			HousingID:      before.ID,
			Content:        noteContent,
			CreatedBy:      actor.UserID.String(),
			CreatedAt:      now,
		}
		if err := tx.Create(&note).Error; err != nil {
			s.logError(operation, "note_insert_failed", err)
			return HousingRecord{}, newServiceError(KindPersistence, operation, "note_insert_failed", err)
		}
	}

	for _, event := range pending {
		if err := s.persistEvent(tx, operation, event, before.Key(), actor, now); err != nil {
			return HousingRecord{}, err
		}
	}

	return after, nil
}

func (s *Service) persistEvent(tx *gorm.DB, operation string, event pendingEvent, key HousingKey, actor Actor, now time.Time) error {
	eventID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(operation, "id_generation_failed", err)
		return newServiceError(KindPersistence, operation, "id_generation_failed", err)
	}

	row, err := event.materialize(eventID, actor.UserID, now)
	if err != nil {
		s.logError(operation, "event_encode_failed", err)
		return newServiceError(KindPersistence, operation, "event_encode_failed", err)
	}
	if err := tx.Create(&row).Error; err != nil {
		s.logError(operation, "event_insert_failed", err, zap.String("event_type", string(event.Type)))
		return newServiceError(KindPersistence, operation, "event_insert_failed", err)
	}

	if event.Precision != nil {
		join := PrecisionHousingEvent{
			EventID:        eventID,
			PrecisionID:    event.Precision.ID,
			HousingGeoCode: key.GeoCode.String(),
			HousingID:      key.ID.String(),
		}
		if err := tx.Create(&join).Error; err != nil {
			s.logError(operation, "event_join_insert_failed", err)
			return newServiceError(KindPersistence, operation, "event_join_insert_failed", err)
		}
		return nil
	}

	join := HousingEvent{
		EventID:        eventID,
		HousingGeoCode: key.GeoCode.String(),
		HousingID:      key.ID.String(),
	}
	if err := tx.Create(&join).Error; err != nil {
		s.logError(operation, "event_join_insert_failed", err)
		return newServiceError(KindPersistence, operation, "event_join_insert_failed", err)
	}
	return nil
}

// HousingView is the read model of one housing record with its links.
type HousingView struct {
	Record     HousingRecord
	Precisions []Precision
	Documents  []Document
}

// GetOne returns a housing record with its precision and document links.
// Records outside the actor's establishment scope are reported as missing.
func (s *Service) GetOne(ctx context.Context, id HousingID, actor Actor) (HousingView, error) {
	var record HousingRecord
	err := s.db.WithContext(ctx).
		Where("geo_code IN ?", actor.scopeStrings()).
		Where("id = ?", id.String()).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return HousingView{}, newServiceError(KindNotFound, opGetOne, "record_not_found", errRecordNotFound)
	}
	if err != nil {
		s.logError(opGetOne, "record_select_failed", err, zap.String("housing_id", id.String()))
		return HousingView{}, newServiceError(KindPersistence, opGetOne, "record_select_failed", err)
	}

	view := HousingView{Record: record}

	var precisionLinks []HousingPrecisionLink
	if err := s.db.WithContext(ctx).
		Where("housing_geo_code = ? AND housing_id = ?", record.GeoCode, record.ID).
		Order("created_at").
		Find(&precisionLinks).Error; err != nil {
		s.logError(opGetOne, "precision_select_failed", err)
		return HousingView{}, newServiceError(KindPersistence, opGetOne, "precision_select_failed", err)
	}
	for _, link := range precisionLinks {
		entry, err := s.catalog.Lookup(link.PrecisionID)
		if err != nil {
			continue
		}
		view.Precisions = append(view.Precisions, entry)
	}

	var documentLinks []HousingDocumentLink
	if err := s.db.WithContext(ctx).
		Where("housing_geo_code = ? AND housing_id = ?", record.GeoCode, record.ID).
		Find(&documentLinks).Error; err != nil {
		s.logError(opGetOne, "document_select_failed", err)
		return HousingView{}, newServiceError(KindPersistence, opGetOne, "document_select_failed", err)
	}
	if len(documentLinks) > 0 {
		ids := make([]string, 0, len(documentLinks))
		for _, link := range documentLinks {
			ids = append(ids, link.DocumentID)
		}
		if err := s.db.WithContext(ctx).
			Where("id IN ?", ids).
			Find(&view.Documents).Error; err != nil {
			s.logError(opGetOne, "document_select_failed", err)
			return HousingView{}, newServiceError(KindPersistence, opGetOne, "document_select_failed", err)
		}
	}

	return view, nil
}

// ListEvents returns the audit trail of one housing record, newest first.
func (s *Service) ListEvents(ctx context.Context, id HousingID, actor Actor) ([]Event, error) {
	var record HousingRecord
	err := s.db.WithContext(ctx).
		Where("geo_code IN ?", actor.scopeStrings()).
		Where("id = ?", id.String()).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newServiceError(KindNotFound, opListEvents, "record_not_found", errRecordNotFound)
	}
	if err != nil {
		s.logError(opListEvents, "record_select_failed", err, zap.String("housing_id", id.String()))
		return nil, newServiceError(KindPersistence, opListEvents, "record_select_failed", err)
	}

	eventIDs := make([]string, 0)

	var housingJoins []HousingEvent
	if err := s.db.WithContext(ctx).
		Where("housing_geo_code = ? AND housing_id = ?", record.GeoCode, record.ID).
		Find(&housingJoins).Error; err != nil {
		s.logError(opListEvents, "event_select_failed", err)
		return nil, newServiceError(KindPersistence, opListEvents, "event_select_failed", err)
	}
	for _, join := range housingJoins {
		eventIDs = append(eventIDs, join.EventID)
	}

	var precisionJoins []PrecisionHousingEvent
	if err := s.db.WithContext(ctx).
		Where("housing_geo_code = ? AND housing_id = ?", record.GeoCode, record.ID).
		Find(&precisionJoins).Error; err != nil {
		s.logError(opListEvents, "event_select_failed", err)
		return nil, newServiceError(KindPersistence, opListEvents, "event_select_failed", err)
	}
	for _, join := range precisionJoins {
		eventIDs = append(eventIDs, join.EventID)
	}

	if len(eventIDs) == 0 {
		return nil, nil
	}

	var events []Event
	if err := s.db.WithContext(ctx).
		Where("id IN ?", eventIDs).
		Find(&events).Error; err != nil {
		s.logError(opListEvents, "event_select_failed", err)
		return nil, newServiceError(KindPersistence, opListEvents, "event_select_failed", err)
	}
	sort.Slice(events, func(i, j int) bool {
		if !events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].CreatedAt.After(events[j].CreatedAt)
		}
		return events[i].ID > events[j].ID
	})
	return events, nil
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]bool, len(values))
	unique := make([]string, 0, len(values))
	for _, value := range values {
		if seen[value] {
			continue
		}
		seen[value] = true
		unique = append(unique, value)
	}
	return unique
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("housing service error", attrs...)
}
