package integration_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MTES-MCT/zero-logement-vacant-sub005/internal/auth"
	"github.com/MTES-MCT/zero-logement-vacant-sub005/internal/database"
	"github.com/MTES-MCT/zero-logement-vacant-sub005/internal/housing"
	"github.com/MTES-MCT/zero-logement-vacant-sub005/internal/server"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	tokenSigningSecret = "integration-secret"
	tokenIssuer        = "zlv-auth"
	tokenAudience      = "zlv-api"
	actorUserID        = "user-abc"
	jsonContentType    = "application/json"
)

func TestBatchMutationFlow(testContext *testing.T) {
	gin.SetMode(gin.TestMode)

	catalog := housing.DefaultCatalog()
	path := fmt.Sprintf("file:zlv_integration_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := database.OpenSQLite(path, catalog, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	seed := []housing.HousingRecord{
		{GeoCode: "34172", ID: "h-1", Status: housing.StatusNeverContacted, Occupancy: housing.OccupancyVacant},
		{GeoCode: "34172", ID: "h-2", Status: housing.StatusWaiting, Occupancy: housing.OccupancyVacant},
		{GeoCode: "34090", ID: "h-3", Status: housing.StatusInProgress, Occupancy: housing.OccupancyVacant},
	}
	for _, record := range seed {
		row := record
		if err := db.Create(&row).Error; err != nil {
			testContext.Fatalf("failed to seed housing: %v", err)
		}
	}

	housingService, err := housing.NewService(housing.ServiceConfig{
		Database:   db,
		IDProvider: housing.NewUUIDProvider(),
		Catalog:    catalog,
		Logger:     zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build housing service: %v", err)
	}

	tokens := auth.NewTokenManager(auth.TokenManagerConfig{
		SigningSecret: []byte(tokenSigningSecret),
		Issuer:        tokenIssuer,
		Audience:      tokenAudience,
	})

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager:   tokens,
		HousingService: housingService,
		Logger:         zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}

	testServer := httptest.NewServer(handler)
	defer testServer.Close()

	signedToken, _, err := tokens.IssueToken(auth.ActorClaims{
		UserID:             actorUserID,
		Role:               "user",
		EstablishmentCodes: []string{"34172", "34090"},
	})
	if err != nil {
		testContext.Fatalf("failed to issue actor token: %v", err)
	}

	batchBody := map[string]any{
		"filters":    map[string]any{"all": true},
		"occupancy":  "secondary-residence",
		"precisions": []string{"travaux-en-cours"},
		"note":       "Campagne résidences secondaires",
	}
	updated := doJSON(testContext, testServer.URL+"/housing", http.MethodPut, signedToken, batchBody)

	var updatedRecords []map[string]any
	if err := json.Unmarshal(updated, &updatedRecords); err != nil {
		testContext.Fatalf("failed to decode batch response: %v", err)
	}
	if len(updatedRecords) != 3 {
		testContext.Fatalf("expected 3 updated records, got %d", len(updatedRecords))
	}
	for _, record := range updatedRecords {
		if record["occupancy"] != "secondary-residence" {
			testContext.Fatalf("record %v missing occupancy update", record["id"])
		}
	}

	// Each record gains an occupancy event, a precision event and a note event.
	var eventCount int64
	if err := db.Model(&housing.Event{}).Count(&eventCount).Error; err != nil {
		testContext.Fatalf("failed to count events: %v", err)
	}
	if eventCount != 9 {
		testContext.Fatalf("expected 9 events, got %d", eventCount)
	}

	trail := doJSON(testContext, testServer.URL+"/housing/h-1/events", http.MethodGet, signedToken, nil)
	var events []map[string]any
	if err := json.Unmarshal(trail, &events); err != nil {
		testContext.Fatalf("failed to decode event trail: %v", err)
	}
	if len(events) != 3 {
		testContext.Fatalf("expected 3 events for h-1, got %d", len(events))
	}
	for _, event := range events {
		if event["createdBy"] != actorUserID {
			testContext.Fatalf("event not attributed to the actor: %v", event)
		}
	}

	// Re-submitting the same precision set must not grow the audit trail.
	doJSON(testContext, testServer.URL+"/housing", http.MethodPut, signedToken, map[string]any{
		"filters":    map[string]any{"all": true},
		"precisions": []string{"travaux-en-cours"},
	})
	if err := db.Model(&housing.Event{}).Count(&eventCount).Error; err != nil {
		testContext.Fatalf("failed to count events: %v", err)
	}
	if eventCount != 9 {
		testContext.Fatalf("idempotent re-submission created events: %d", eventCount)
	}
}

func doJSON(testContext *testing.T, url, method, token string, body any) []byte {
	testContext.Helper()

	var request *http.Request
	var err error
	if body == nil {
		request, err = http.NewRequest(method, url, nil)
	} else {
		encoded, marshalErr := json.Marshal(body)
		if marshalErr != nil {
			testContext.Fatalf("failed to encode body: %v", marshalErr)
		}
		request, err = http.NewRequest(method, url, bytes.NewReader(encoded))
	}
	if err != nil {
		testContext.Fatalf("failed to build request: %v", err)
	}
	request.Header.Set("Content-Type", jsonContentType)
	request.Header.Set("Authorization", "Bearer "+token)

	response, err := http.DefaultClient.Do(request)
	if err != nil {
		testContext.Fatalf("request failed: %v", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		testContext.Fatalf("unexpected status %d for %s %s", response.StatusCode, method, url)
	}

	buffer := new(bytes.Buffer)
	if _, err := buffer.ReadFrom(response.Body); err != nil {
		testContext.Fatalf("failed to read response: %v", err)
	}
	return buffer.Bytes()
}
