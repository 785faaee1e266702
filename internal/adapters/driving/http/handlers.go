package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/custodia-labs/redis-studio/internal/core/domain"
)

// APIResponse is the envelope returned by every /api/redis endpoint
// @Description API response envelope
type APIResponse struct {
	Success bool   `json:"success" example:"true"`
	Message string `json:"message" example:"Key retrieved successfully"`
	Data    any    `json:"data"`
}

// StatusResponse represents a simple status response
// @Description Simple status response
type StatusResponse struct {
	Status string `json:"status" example:"ok"`
}

// VersionResponse represents the API version response
// @Description API version response
type VersionResponse struct {
	Version string `json:"version" example:"1.0.0"`
}

// ConnectRequest opens a store connection
// @Description Connection request
type ConnectRequest struct {
	ConnectionString string `json:"connectionString" validate:"nonblank" example:"localhost:6379,password=secret"`
}

// ConnectResponse carries the issued connection id
type ConnectResponse struct {
	ConnectionID string `json:"connectionId" example:"3f2b8c1d9e7a4b6c8d0e1f2a3b4c5d6e"`
}

// CreateKeyRequest creates or overwrites a key
// @Description Key write request. For hashes, value is a JSON object of string fields.
type CreateKeyRequest struct {
	Key        string `json:"key" validate:"nonblank" example:"user:1"`
	Value      string `json:"value" example:"{\"name\":\"ada\"}"`
	Type       string `json:"type" validate:"omitempty,max=32" example:"hash"`
	TTLSeconds *int64 `json:"ttlSeconds" validate:"omitempty,gte=0" example:"3600"`
}

func (r CreateKeyRequest) writeSpec() domain.KeyWriteSpec {
	kind := r.Type
	if kind == "" {
		kind = string(domain.KindString)
	}
	return domain.KeyWriteSpec{
		Name:       r.Key,
		Kind:       kind,
		Payload:    r.Value,
		TTLSeconds: r.TTLSeconds,
	}
}

// KeysPageResponse is one page of the key listing
type KeysPageResponse struct {
	Items      []domain.KeyInfo `json:"items"`
	Total      int64            `json:"total"`
	Page       int              `json:"page"`
	PageSize   int              `json:"pageSize"`
	TotalPages int64            `json:"totalPages"`
}

const (
	defaultPattern  = "*"
	defaultPageSize = 10
	maxPageSize     = 1000
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// nonblank: required, and not only whitespace
	_ = v.RegisterValidation("nonblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// Health endpoints

// handleHealth godoc
// @Summary      Health check
// @Description  Returns the health status of the API
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Router       /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// handleVersion godoc
// @Summary      Get API version
// @Description  Returns the current API version
// @Tags         Health
// @Produce      json
// @Success      200  {object}  VersionResponse
// @Router       /version [get]
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: s.version})
}

// Connection endpoints

// handleConnect godoc
// @Summary      Connect to a store
// @Description  Open a connection from a connection string and return its id
// @Tags         Connection
// @Accept       json
// @Produce      json
// @Param        request  body      ConnectRequest  true  "Connection string"
// @Success      200      {object}  APIResponse{data=ConnectResponse}
// @Failure      400      {object}  APIResponse  "Connection string is required"
// @Failure      503      {object}  APIResponse  "Unable to connect"
// @Router       /redis/connection/connect [post]
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Connection string is required")
		return
	}

	id, ok := s.connections.Connect(r.Context(), req.ConnectionString)
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "Unable to connect to Redis")
		return
	}

	writeSuccess(w, ConnectResponse{ConnectionID: id}, "Connection successful")
}

// handleDisconnect godoc
// @Summary      Disconnect
// @Description  Close the connection named by the X-Connection-Id header
// @Tags         Connection
// @Produce      json
// @Param        X-Connection-Id  header    string  true  "Connection id"
// @Success      200              {object}  APIResponse{data=bool}
// @Failure      400              {object}  APIResponse  "Missing header"
// @Router       /redis/connection [delete]
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	closed := s.connections.Disconnect(r.Context(), GetConnectionID(r.Context()))
	message := "Connection not found"
	if closed {
		message = "Disconnected"
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: closed, Data: closed, Message: message})
}

// handleTestConnection godoc
// @Summary      Test connection
// @Description  Ping the store behind a connection; false if the id is missing or unknown
// @Tags         Connection
// @Produce      json
// @Param        X-Connection-Id  header    string  false  "Connection id"
// @Success      200              {boolean}  bool
// @Router       /redis/connection/testconnection [get]
func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	id := extractConnectionID(r)
	if id == "" {
		writeJSON(w, http.StatusOK, false)
		return
	}
	writeJSON(w, http.StatusOK, s.connections.Ping(r.Context(), id))
}

// Key endpoints

// handleListKeys godoc
// @Summary      List keys
// @Description  Page through the keys matching a glob pattern
// @Tags         Keys
// @Produce      json
// @Param        X-Connection-Id  header    string  true   "Connection id"
// @Param        pattern          query     string  false  "Glob pattern"  default(*)
// @Param        page             query     int     false  "Zero-based page"  default(0)
// @Param        pageSize         query     int     false  "Page size, capped at 1000"  default(10)
// @Success      200              {object}  APIResponse{data=KeysPageResponse}
// @Failure      400              {object}  APIResponse  "Missing header"
// @Failure      401              {object}  APIResponse  "Invalid or expired connection"
// @Failure      500              {object}  APIResponse  "Error retrieving keys"
// @Router       /redis/keys [get]
func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pattern := q.Get("pattern")
	if pattern == "" {
		pattern = defaultPattern
	}
	page := queryInt(q.Get("page"), 0)
	if page < 0 {
		page = 0
	}
	pageSize := queryInt(q.Get("pageSize"), defaultPageSize)
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	pageSize = min(pageSize, maxPageSize)

	result, err := s.keyspace.Page(r.Context(), GetConnectionID(r.Context()), pattern, page, pageSize)
	if err != nil {
		s.writeServiceError(w, err, "Error retrieving keys")
		return
	}

	items := result.Items
	if items == nil {
		items = []domain.KeyInfo{}
	}
	writeSuccess(w, KeysPageResponse{
		Items:      items,
		Total:      result.Total,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalPages: result.TotalPages(),
	}, fmt.Sprintf("Retrieved %d keys (Page %d)", len(items), page+1))
}

// handleGetKey godoc
// @Summary      Get key
// @Description  Read a key's metadata and value
// @Tags         Keys
// @Produce      json
// @Param        X-Connection-Id  header    string  true  "Connection id"
// @Param        key              path      string  true  "Key name"
// @Success      200              {object}  APIResponse{data=domain.KeyValue}
// @Failure      404              {object}  APIResponse  "Key not found"
// @Failure      500              {object}  APIResponse  "Error retrieving key"
// @Router       /redis/keys/{key} [get]
func (s *Server) handleGetKey(w http.ResponseWriter, r *http.Request) {
	kv, err := s.keyspace.Fetch(r.Context(), GetConnectionID(r.Context()), r.PathValue("key"))
	if err != nil {
		s.writeServiceError(w, err, "Error retrieving key")
		return
	}
	writeSuccess(w, kv, "Key retrieved successfully")
}

// handleCreateKey godoc
// @Summary      Create key
// @Description  Create or overwrite a string or hash key
// @Tags         Keys
// @Accept       json
// @Produce      json
// @Param        X-Connection-Id  header    string            true  "Connection id"
// @Param        request          body      CreateKeyRequest  true  "Key to write"
// @Success      200              {object}  APIResponse{data=bool}
// @Failure      400              {object}  APIResponse  "Invalid request"
// @Failure      500              {object}  APIResponse  "Error creating key"
// @Router       /redis/keys [post]
func (s *Server) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	var req CreateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.writeKey(w, r, req, "created", "create", "Error creating key")
}

// handleUpdateKey godoc
// @Summary      Update key
// @Description  Overwrite a key; the name in the path wins over the body
// @Tags         Keys
// @Accept       json
// @Produce      json
// @Param        X-Connection-Id  header    string            true  "Connection id"
// @Param        key              path      string            true  "Key name"
// @Param        request          body      CreateKeyRequest  true  "New value"
// @Success      200              {object}  APIResponse{data=bool}
// @Failure      400              {object}  APIResponse  "Invalid request"
// @Failure      500              {object}  APIResponse  "Error updating key"
// @Router       /redis/keys/{key} [put]
func (s *Server) handleUpdateKey(w http.ResponseWriter, r *http.Request) {
	var req CreateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Key = r.PathValue("key")
	s.writeKey(w, r, req, "updated", "update", "Error updating key")
}

func (s *Server) writeKey(w http.ResponseWriter, r *http.Request, req CreateKeyRequest, done, verb, fallback string) {
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	ok, err := s.keyspace.Write(r.Context(), GetConnectionID(r.Context()), req.writeSpec())
	if err != nil {
		s.writeServiceError(w, err, fallback)
		return
	}

	message := "Key " + done + " successfully"
	if !ok {
		message = "Failed to " + verb + " key"
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: ok, Data: ok, Message: message})
}

// handleDeleteKey godoc
// @Summary      Delete key
// @Tags         Keys
// @Produce      json
// @Param        X-Connection-Id  header    string  true  "Connection id"
// @Param        key              path      string  true  "Key name"
// @Success      200              {object}  APIResponse{data=bool}
// @Failure      500              {object}  APIResponse  "Error deleting key"
// @Router       /redis/keys/{key} [delete]
func (s *Server) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	removed, err := s.keyspace.Delete(r.Context(), GetConnectionID(r.Context()), r.PathValue("key"))
	if err != nil {
		s.writeServiceError(w, err, "Error deleting key")
		return
	}

	message := "Key not found or failed to delete"
	if removed {
		message = "Key deleted successfully"
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: removed, Data: removed, Message: message})
}

// Server endpoints

// handleServerInfo godoc
// @Summary      Server info
// @Description  Version, memory and client count of the connected store
// @Tags         Server
// @Produce      json
// @Param        X-Connection-Id  header    string  true  "Connection id"
// @Success      200              {object}  APIResponse{data=domain.ServerInfo}
// @Failure      401              {object}  APIResponse  "Invalid or expired connection"
// @Router       /redis/server/info [get]
func (s *Server) handleServerInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.connections.ServerInfo(r.Context(), GetConnectionID(r.Context()))
	if err != nil {
		s.writeServiceError(w, err, "Error retrieving server info")
		return
	}
	writeSuccess(w, info, "Server info retrieved successfully")
}

// Helper functions

// writeServiceError maps the domain error taxonomy onto status codes.
// Anything unrecognised is logged and reported with the fallback message.
func (s *Server) writeServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "Key not found")
	case errors.Is(err, domain.ErrSessionNotFound):
		writeError(w, http.StatusUnauthorized, "invalid or expired connection")
	case errors.Is(err, domain.ErrMalformedPayload):
		writeError(w, http.StatusBadRequest, "hash value must be a non-empty JSON object of string fields")
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrConnectivity):
		writeError(w, http.StatusServiceUnavailable, "Unable to reach Redis")
	default:
		s.logger.Error(fallback, "error", err)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	switch e := verrs[0]; e.Field() {
	case "Key":
		return "Key name is required"
	case "TTLSeconds":
		return "ttlSeconds must not be negative"
	default:
		return fmt.Sprintf("invalid %s", e.Field())
	}
}

func queryInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeSuccess(w http.ResponseWriter, data any, message string) {
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: data, Message: message})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, APIResponse{Success: false, Message: message})
}
