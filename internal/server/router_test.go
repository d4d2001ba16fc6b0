package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MTES-MCT/zero-logement-vacant-sub005/internal/auth"
	"github.com/MTES-MCT/zero-logement-vacant-sub005/internal/housing"
	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestEnvironment(t *testing.T) (http.Handler, *gorm.DB, *auth.TokenManager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:zlv_router_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&housing.HousingRecord{}, &housing.Precision{}, &housing.HousingPrecisionLink{},
		&housing.Document{}, &housing.HousingDocumentLink{}, &housing.Note{},
		&housing.Event{}, &housing.HousingEvent{}, &housing.PrecisionHousingEvent{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	service, err := housing.NewService(housing.ServiceConfig{
		Database:   db,
		IDProvider: housing.NewUUIDProvider(),
		Catalog:    housing.DefaultCatalog(),
	})
	if err != nil {
		t.Fatalf("failed to construct housing service: %v", err)
	}

	tokens := auth.NewTokenManager(auth.TokenManagerConfig{
		SigningSecret: []byte("router-test-secret"),
		Issuer:        "zlv-auth",
		Audience:      "zlv-api",
	})

	handler, err := NewHTTPHandler(Dependencies{
		TokenManager:   tokens,
		HousingService: service,
	})
	if err != nil {
		t.Fatalf("failed to construct handler: %v", err)
	}

	return handler, db, tokens
}

func bearerToken(t *testing.T, tokens *auth.TokenManager, role string, codes ...string) string {
	t.Helper()
	signed, _, err := tokens.IssueToken(auth.ActorClaims{
		UserID:             "user-1",
		Role:               role,
		EstablishmentCodes: codes,
	})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return "Bearer " + signed
}

func seedRecord(t *testing.T, db *gorm.DB, geoCode, id string, status housing.Status) {
	t.Helper()
	record := housing.HousingRecord{
		GeoCode:   geoCode,
		ID:        id,
		Status:    status,
		Occupancy: housing.OccupancyVacant,
	}
	if err := db.Create(&record).Error; err != nil {
		t.Fatalf("failed to seed housing: %v", err)
	}
}

func performRequest(handler http.Handler, method, target, token, body string) *httptest.ResponseRecorder {
	var request *http.Request
	if body == "" {
		request = httptest.NewRequest(method, target, nil)
	} else {
		request = httptest.NewRequest(method, target, strings.NewReader(body))
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", token)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func TestRouterRejectsMissingAuthorization(t *testing.T) {
	handler, _, _ := newTestEnvironment(t)

	recorder := performRequest(handler, http.MethodPut, "/housing", "", `{"filters":{"all":true}}`)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestRouterRejectsForeignToken(t *testing.T) {
	handler, _, _ := newTestEnvironment(t)
	foreign := auth.NewTokenManager(auth.TokenManagerConfig{
		SigningSecret: []byte("other-secret"),
		Issuer:        "zlv-auth",
		Audience:      "zlv-api",
	})

	token := bearerToken(t, foreign, "user", "34172")
	recorder := performRequest(handler, http.MethodPut, "/housing", token, `{"filters":{"all":true}}`)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestUpdateBatchRequiresFilters(t *testing.T) {
	handler, _, tokens := newTestEnvironment(t)
	token := bearerToken(t, tokens, "user", "34172")

	recorder := performRequest(handler, http.MethodPut, "/housing", token, `{"status":"waiting"}`)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "missing_filters") {
		t.Fatalf("unexpected body %s", recorder.Body.String())
	}
}

func TestUpdateBatchRejectsUnknownStatus(t *testing.T) {
	handler, _, tokens := newTestEnvironment(t)
	token := bearerToken(t, tokens, "user", "34172")

	body := `{"filters":{"all":true},"status":"martian"}`
	recorder := performRequest(handler, http.MethodPut, "/housing", token, body)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
}

func TestUpdateBatchUpdatesRecordsInScope(t *testing.T) {
	handler, db, tokens := newTestEnvironment(t)
	token := bearerToken(t, tokens, "user", "34172")
	seedRecord(t, db, "34172", "h-1", housing.StatusWaiting)
	seedRecord(t, db, "34172", "h-2", housing.StatusInProgress)
	seedRecord(t, db, "75056", "h-3", housing.StatusWaiting)

	body := `{"filters":{"all":true},"occupancy":"secondary-residence"}`
	recorder := performRequest(handler, http.MethodPut, "/housing", token, body)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var response []map[string]interface{}
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(response) != 2 {
		t.Fatalf("expected 2 updated records, got %d", len(response))
	}
	for _, record := range response {
		if record["occupancy"] != "secondary-residence" {
			t.Fatalf("unexpected occupancy %v", record["occupancy"])
		}
	}
}

func TestUpdateOneReturnsNotFoundForMissingRecord(t *testing.T) {
	handler, _, tokens := newTestEnvironment(t)
	token := bearerToken(t, tokens, "user", "34172")

	body := `{"status":"waiting"}`
	recorder := performRequest(handler, http.MethodPut, "/housing/h-missing", token, body)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
}

func TestUpdateOneReturnsForbiddenForStatusRegression(t *testing.T) {
	handler, db, tokens := newTestEnvironment(t)
	token := bearerToken(t, tokens, "user", "34172")
	seedRecord(t, db, "34172", "h-1", housing.StatusInProgress)

	body := `{"status":"never-contacted"}`
	recorder := performRequest(handler, http.MethodPut, "/housing/h-1", token, body)
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", recorder.Code)
	}
}

func TestUpdateOneReturnsForbiddenForVisitor(t *testing.T) {
	handler, db, tokens := newTestEnvironment(t)
	token := bearerToken(t, tokens, "visitor", "34172")
	seedRecord(t, db, "34172", "h-1", housing.StatusWaiting)

	body := `{"status":"in-progress"}`
	recorder := performRequest(handler, http.MethodPut, "/housing/h-1", token, body)
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", recorder.Code)
	}
}

func TestUpdateOneHappyPathReturnsUpdatedRecord(t *testing.T) {
	handler, db, tokens := newTestEnvironment(t)
	token := bearerToken(t, tokens, "user", "34172")
	seedRecord(t, db, "34172", "h-1", housing.StatusNeverContacted)

	body := `{"status":"in-progress","subStatus":"En accompagnement"}`
	recorder := performRequest(handler, http.MethodPut, "/housing/h-1", token, body)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var response map[string]interface{}
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response["status"] != "in-progress" {
		t.Fatalf("unexpected status %v", response["status"])
	}
	if response["subStatus"] != "En accompagnement" {
		t.Fatalf("unexpected sub status %v", response["subStatus"])
	}
}

func TestGetHousingReturnsViewWithLinks(t *testing.T) {
	handler, db, tokens := newTestEnvironment(t)
	token := bearerToken(t, tokens, "user", "34172")
	seedRecord(t, db, "34172", "h-1", housing.StatusInProgress)

	update := `{"precisions":["travaux-en-cours"]}`
	if recorder := performRequest(handler, http.MethodPut, "/housing/h-1", token, update); recorder.Code != http.StatusOK {
		t.Fatalf("setup update failed with %d", recorder.Code)
	}

	recorder := performRequest(handler, http.MethodGet, "/housing/h-1", token, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}

	var response struct {
		ID         string `json:"id"`
		Precisions []struct {
			ID       string `json:"id"`
			Category string `json:"category"`
		} `json:"precisions"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.ID != "h-1" {
		t.Fatalf("unexpected id %s", response.ID)
	}
	if len(response.Precisions) != 1 || response.Precisions[0].Category != "travaux" {
		t.Fatalf("unexpected precisions %#v", response.Precisions)
	}
}

func TestListEventsReturnsAuditTrail(t *testing.T) {
	handler, db, tokens := newTestEnvironment(t)
	token := bearerToken(t, tokens, "user", "34172")
	seedRecord(t, db, "34172", "h-1", housing.StatusNeverContacted)

	update := `{"status":"in-progress","note":"Premier échange"}`
	if recorder := performRequest(handler, http.MethodPut, "/housing/h-1", token, update); recorder.Code != http.StatusOK {
		t.Fatalf("setup update failed with %d", recorder.Code)
	}

	recorder := performRequest(handler, http.MethodGet, "/housing/h-1/events", token, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}

	var response []struct {
		Type string          `json:"type"`
		New  json.RawMessage `json:"new"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(response) != 2 {
		t.Fatalf("expected 2 events, got %d", len(response))
	}
	types := map[string]bool{}
	for _, event := range response {
		types[event.Type] = true
	}
	if !types["housing:status-updated"] || !types["housing:note-added"] {
		t.Fatalf("missing event types %#v", types)
	}
}
