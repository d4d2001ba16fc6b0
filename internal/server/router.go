package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MTES-MCT/zero-logement-vacant-sub005/internal/auth"
	"github.com/MTES-MCT/zero-logement-vacant-sub005/internal/housing"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const actorContextKey = "zlv_actor"

var (
	errMissingTokenManager   = errors.New("token manager dependency required")
	errMissingHousingService = errors.New("housing service dependency required")
	errInvalidAuthorization  = errors.New("authorization header missing or invalid")
)

// ActorTokenValidator validates bearer tokens into actor claims.
type ActorTokenValidator interface {
	ValidateToken(token string) (auth.ActorClaims, error)
}

// Dependencies wires the HTTP layer to its collaborators.
type Dependencies struct {
	TokenManager   ActorTokenValidator
	HousingService *housing.Service
	Logger         *zap.Logger
}

// NewHTTPHandler builds the gin router exposing the housing mutation API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.HousingService == nil {
		return nil, errMissingHousingService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPut, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:         deps.TokenManager,
		housingService: deps.HousingService,
		logger:         logger,
	}

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.PUT("/housing", handler.handleUpdateBatch)
	protected.PUT("/housing/:id", handler.handleUpdateOne)
	protected.GET("/housing/:id", handler.handleGetHousing)
	protected.GET("/housing/:id/events", handler.handleListEvents)

	return router, nil
}

type httpHandler struct {
	tokens         ActorTokenValidator
	housingService *housing.Service
	logger         *zap.Logger
}

type filterPayload struct {
	All         bool     `json:"all"`
	GeoCodes    []string `json:"geoCodes"`
	HousingIDs  []string `json:"housingIds"`
	Statuses    []string `json:"statuses"`
	Occupancies []string `json:"occupancies"`
}

type updateRequestPayload struct {
	Filters           *filterPayload `json:"filters"`
	Status            *string        `json:"status"`
	SubStatus         *string        `json:"subStatus"`
	Occupancy         *string        `json:"occupancy"`
	OccupancyIntended *string        `json:"occupancyIntended"`
	Precisions        []string       `json:"precisions"`
	Documents         []string       `json:"documents"`
	Note              *string        `json:"note"`
}

type housingResponsePayload struct {
	ID                string  `json:"id"`
	GeoCode           string  `json:"geoCode"`
	Status            string  `json:"status"`
	SubStatus         *string `json:"subStatus"`
	Occupancy         string  `json:"occupancy"`
	OccupancyIntended *string `json:"occupancyIntended"`
}

type precisionResponsePayload struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Label    string `json:"label"`
}

type documentResponsePayload struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
}

type housingViewResponsePayload struct {
	housingResponsePayload
	Precisions []precisionResponsePayload `json:"precisions"`
	Documents  []documentResponsePayload  `json:"documents"`
}

type eventResponsePayload struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	CreatedBy string          `json:"createdBy"`
	CreatedAt time.Time       `json:"createdAt"`
	Old       json.RawMessage `json:"old"`
	New       json.RawMessage `json:"new"`
}

func (h *httpHandler) handleUpdateBatch(c *gin.Context) {
	actor, ok := h.actorFromContext(c)
	if !ok {
		return
	}

	var request updateRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if request.Filters == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_filters"})
		return
	}

	spec, err := toFilterSpec(*request.Filters)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_filters"})
		return
	}
	payload, err := toMutationPayload(request)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	updated, err := h.housingService.UpdateBatch(c.Request.Context(), spec, payload, actor)
	if err != nil {
		h.renderServiceError(c, "batch update failed", err)
		return
	}

	response := make([]housingResponsePayload, 0, len(updated))
	for _, record := range updated {
		response = append(response, toHousingResponse(record))
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleUpdateOne(c *gin.Context) {
	actor, ok := h.actorFromContext(c)
	if !ok {
		return
	}

	housingID, err := housing.NewHousingID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_housing_id"})
		return
	}

	var request updateRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	payload, err := toMutationPayload(request)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	key := housing.HousingKey{ID: housingID}
	if rawGeoCode := strings.TrimSpace(c.Query("geoCode")); rawGeoCode != "" {
		geoCode, err := housing.NewGeoCode(rawGeoCode)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_geo_code"})
			return
		}
		key.GeoCode = geoCode
	}

	updated, err := h.housingService.UpdateOne(c.Request.Context(), key, payload, actor)
	if err != nil {
		h.renderServiceError(c, "single update failed", err)
		return
	}
	c.JSON(http.StatusOK, toHousingResponse(updated))
}

func (h *httpHandler) handleGetHousing(c *gin.Context) {
	actor, ok := h.actorFromContext(c)
	if !ok {
		return
	}

	housingID, err := housing.NewHousingID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_housing_id"})
		return
	}

	view, err := h.housingService.GetOne(c.Request.Context(), housingID, actor)
	if err != nil {
		h.renderServiceError(c, "housing read failed", err)
		return
	}

	response := housingViewResponsePayload{
		housingResponsePayload: toHousingResponse(view.Record),
		Precisions:             make([]precisionResponsePayload, 0, len(view.Precisions)),
		Documents:              make([]documentResponsePayload, 0, len(view.Documents)),
	}
	for _, precision := range view.Precisions {
		response.Precisions = append(response.Precisions, precisionResponsePayload{
			ID:       precision.ID,
			Category: string(precision.Category),
			Label:    precision.Label,
		})
	}
	for _, document := range view.Documents {
		response.Documents = append(response.Documents, documentResponsePayload{
			ID:       document.ID,
			Filename: document.Filename,
		})
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleListEvents(c *gin.Context) {
	actor, ok := h.actorFromContext(c)
	if !ok {
		return
	}

	housingID, err := housing.NewHousingID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_housing_id"})
		return
	}

	events, err := h.housingService.ListEvents(c.Request.Context(), housingID, actor)
	if err != nil {
		h.renderServiceError(c, "event read failed", err)
		return
	}

	response := make([]eventResponsePayload, 0, len(events))
	for _, event := range events {
		entry := eventResponsePayload{
			ID:        event.ID,
			Type:      string(event.Type),
			CreatedBy: event.CreatedBy,
			CreatedAt: event.CreatedAt,
		}
		if event.NextOld != nil {
			entry.Old = json.RawMessage(*event.NextOld)
		}
		if event.NextNew != nil {
			entry.New = json.RawMessage(*event.NextNew)
		}
		response = append(response, entry)
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	actor, err := toActor(claims)
	if err != nil {
		h.logger.Warn("token carried unusable actor claims", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(actorContextKey, actor)
	c.Next()
}

func (h *httpHandler) actorFromContext(c *gin.Context) (housing.Actor, bool) {
	value, exists := c.Get(actorContextKey)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return housing.Actor{}, false
	}
	actor, ok := value.(housing.Actor)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return housing.Actor{}, false
	}
	return actor, true
}

func (h *httpHandler) renderServiceError(c *gin.Context, message string, err error) {
	var serviceErr *housing.ServiceError
	if errors.As(err, &serviceErr) {
		switch serviceErr.Kind() {
		case housing.KindValidation:
			c.JSON(http.StatusBadRequest, gin.H{"error": serviceErr.Code()})
			return
		case housing.KindForbidden:
			c.JSON(http.StatusForbidden, gin.H{"error": serviceErr.Code()})
			return
		case housing.KindNotFound:
			c.JSON(http.StatusNotFound, gin.H{"error": serviceErr.Code()})
			return
		}
	}
	h.logger.Error(message, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
}

func toActor(claims auth.ActorClaims) (housing.Actor, error) {
	userID, err := housing.NewUserID(claims.UserID)
	if err != nil {
		return housing.Actor{}, err
	}
	role, err := housing.ParseRole(claims.Role)
	if err != nil {
		return housing.Actor{}, err
	}
	scope := make([]housing.GeoCode, 0, len(claims.EstablishmentCodes))
	for _, raw := range claims.EstablishmentCodes {
		code, err := housing.NewGeoCode(raw)
		if err != nil {
			return housing.Actor{}, err
		}
		scope = append(scope, code)
	}
	return housing.Actor{UserID: userID, Role: role, Scope: scope}, nil
}

func toFilterSpec(payload filterPayload) (housing.FilterSpec, error) {
	spec := housing.FilterSpec{All: payload.All}
	for _, raw := range payload.GeoCodes {
		code, err := housing.NewGeoCode(raw)
		if err != nil {
			return housing.FilterSpec{}, err
		}
		spec.GeoCodes = append(spec.GeoCodes, code)
	}
	for _, raw := range payload.HousingIDs {
		id, err := housing.NewHousingID(raw)
		if err != nil {
			return housing.FilterSpec{}, err
		}
		spec.HousingIDs = append(spec.HousingIDs, id)
	}
	for _, raw := range payload.Statuses {
		status, err := housing.ParseStatus(raw)
		if err != nil {
			return housing.FilterSpec{}, err
		}
		spec.Statuses = append(spec.Statuses, status)
	}
	for _, raw := range payload.Occupancies {
		occupancy, err := housing.ParseOccupancy(raw)
		if err != nil {
			return housing.FilterSpec{}, err
		}
		spec.Occupancies = append(spec.Occupancies, occupancy)
	}
	return spec, nil
}

func toMutationPayload(request updateRequestPayload) (housing.MutationPayload, error) {
	payload := housing.MutationPayload{
		SubStatus:  request.SubStatus,
		Precisions: request.Precisions,
		Documents:  request.Documents,
		Note:       request.Note,
	}
	if request.Status != nil {
		status, err := housing.ParseStatus(*request.Status)
		if err != nil {
			return housing.MutationPayload{}, err
		}
		payload.Status = &status
	}
	if request.Occupancy != nil {
		occupancy, err := housing.ParseOccupancy(*request.Occupancy)
		if err != nil {
			return housing.MutationPayload{}, err
		}
		payload.Occupancy = &occupancy
	}
	if request.OccupancyIntended != nil {
		intended, err := housing.ParseOccupancy(*request.OccupancyIntended)
		if err != nil {
			return housing.MutationPayload{}, err
		}
		payload.OccupancyIntended = &intended
	}
	return payload, nil
}

func toHousingResponse(record housing.HousingRecord) housingResponsePayload {
	response := housingResponsePayload{
		ID:        record.ID,
		GeoCode:   record.GeoCode,
		Status:    record.Status.String(),
		SubStatus: record.SubStatus,
		Occupancy: record.Occupancy.String(),
	}
	if record.OccupancyIntended != nil {
		intended := record.OccupancyIntended.String()
		response.OccupancyIntended = &intended
	}
	return response
}
