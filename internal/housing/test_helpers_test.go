package housing

import (
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type staticIDGenerator struct {
	ids   []string
	index int
}

func (g *staticIDGenerator) NewID() (string, error) {
	if g.index >= len(g.ids) {
		return "", errors.New("exhausted ids")
	}
	id := g.ids[g.index]
	g.index++
	return id, nil
}

func mustGeoCode(t *testing.T, value string) GeoCode {
	t.Helper()
	code, err := NewGeoCode(value)
	if err != nil {
		t.Fatalf("unexpected geo code error: %v", err)
	}
	return code
}

func mustHousingID(t *testing.T, value string) HousingID {
	t.Helper()
	id, err := NewHousingID(value)
	if err != nil {
		t.Fatalf("unexpected housing id error: %v", err)
	}
	return id
}

func mustUserID(t *testing.T, value string) UserID {
	t.Helper()
	id, err := NewUserID(value)
	if err != nil {
		t.Fatalf("unexpected user id error: %v", err)
	}
	return id
}

func testActor(t *testing.T, role Role, scope ...string) Actor {
	t.Helper()
	codes := make([]GeoCode, 0, len(scope))
	for _, raw := range scope {
		codes = append(codes, mustGeoCode(t, raw))
	}
	return Actor{
		UserID: mustUserID(t, "user-1"),
		Role:   role,
		Scope:  codes,
	}
}

func newTestService(t *testing.T, ids []string) (*Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:zlv_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&HousingRecord{}, &Precision{}, &HousingPrecisionLink{},
		&Document{}, &HousingDocumentLink{}, &Note{},
		&Event{}, &HousingEvent{}, &PrecisionHousingEvent{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	generator := &staticIDGenerator{ids: ids}
	clock := func() time.Time { return time.Unix(1700000600, 0).UTC() }

	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      clock,
		IDProvider: generator,
		Catalog:    DefaultCatalog(),
	})
	if err != nil {
		t.Fatalf("failed to construct housing service: %v", err)
	}

	return service, db
}

func seedHousing(t *testing.T, db *gorm.DB, record HousingRecord) HousingRecord {
	t.Helper()
	if err := db.Create(&record).Error; err != nil {
		t.Fatalf("failed to seed housing: %v", err)
	}
	return record
}

func countRows(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()
	var count int64
	if err := db.Model(model).Count(&count).Error; err != nil {
		t.Fatalf("failed to count rows: %v", err)
	}
	return count
}

func serviceErrorKind(t *testing.T, err error) Kind {
	t.Helper()
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		t.Fatalf("expected ServiceError, got %v", err)
	}
	return serviceErr.Kind()
}

func stringPtr(value string) *string {
	return &value
}

func statusPtr(value Status) *Status {
	return &value
}

func occupancyPtr(value Occupancy) *Occupancy {
	return &value
}
