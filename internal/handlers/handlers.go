package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/JAYASURYA-KK/sandguard-ai/internal/config"
	"github.com/JAYASURYA-KK/sandguard-ai/internal/database"
	"github.com/JAYASURYA-KK/sandguard-ai/internal/detection"
	"github.com/JAYASURYA-KK/sandguard-ai/internal/diff"
	"github.com/JAYASURYA-KK/sandguard-ai/internal/fanout"
	"github.com/JAYASURYA-KK/sandguard-ai/internal/imaging"
	"github.com/JAYASURYA-KK/sandguard-ai/internal/models"
	"github.com/JAYASURYA-KK/sandguard-ai/internal/report"
	"github.com/JAYASURYA-KK/sandguard-ai/internal/services"
)

// Handler carries the request-serving dependencies. Everything is injected;
// the only process-wide state lives in the fanout hub.
type Handler struct {
	cfg       *config.Config
	store     *database.Store
	detector  *detection.Detector
	hub       *fanout.Hub
	predictor *services.GRPCPredictor
	metrics   *services.Metrics
}

func New(cfg *config.Config, store *database.Store, detector *detection.Detector,
	hub *fanout.Hub, predictor *services.GRPCPredictor, metrics *services.Metrics) *Handler {
	return &Handler{
		cfg:       cfg,
		store:     store,
		detector:  detector,
		hub:       hub,
		predictor: predictor,
		metrics:   metrics,
	}
}

// Routes wires every endpoint onto a fresh mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/register", h.Register)
	mux.HandleFunc("POST /api/auth/login", h.Login)
	mux.HandleFunc("POST /api/auth/logout", h.Logout)
	mux.HandleFunc("GET /api/auth/me", h.CurrentUser)

	mux.HandleFunc("POST /api/detections", h.CreateDetection)
	mux.HandleFunc("GET /api/detections", h.ListDetections)
	mux.HandleFunc("GET /api/detections/{id}", h.GetDetection)
	mux.HandleFunc("GET /api/detections/{id}/image", h.DetectionImage)
	mux.HandleFunc("GET /api/detections/{id}/report", h.DetectionReport)
	mux.HandleFunc("POST /api/detections/{id}/validate", h.ValidateDetection)

	mux.HandleFunc("GET /api/health", h.Health)
	mux.HandleFunc("GET /api/metrics", h.Metrics)

	mux.HandleFunc("GET /ws/alerts", h.AlertsWS)

	mux.HandleFunc("OPTIONS /api/", h.preflight)

	return mux
}

func (h *Handler) enableCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", h.cfg.CORSOrigins)
	w.Header().Set("Access-Control-Allow-Credentials", "true")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Cookie")
}

func (h *Handler) preflight(w http.ResponseWriter, r *http.Request) {
	h.enableCORS(w)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, models.ErrorResponse{
		Error:     msg,
		Timestamp: time.Now().Unix(),
		Code:      code,
	})
}

// --- detections ---

// CreateDetection runs the full pipeline on an uploaded before/after pair.
func (h *Handler) CreateDetection(w http.ResponseWriter, r *http.Request) {
	h.enableCORS(w)

	maxBytes := int64(h.cfg.MaxUploadMB) * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart upload", "BAD_UPLOAD")
		return
	}

	before, err := formFile(r, "before")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing 'before' image", "BAD_UPLOAD")
		return
	}
	after, err := formFile(r, "after")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing 'after' image", "BAD_UPLOAD")
		return
	}

	req := detection.Request{
		Before:   before,
		After:    after,
		Adaptive: r.FormValue("adaptive") == "true",
		Notes:    r.FormValue("notes"),
	}

	if v := r.FormValue("threshold"); v != "" {
		threshold, err := strconv.Atoi(v)
		if err != nil || threshold < 0 || threshold > 255 {
			writeError(w, http.StatusBadRequest, "threshold must be an integer in [0, 255]", "BAD_THRESHOLD")
			return
		}
		req.Threshold = &threshold
	}

	coords, err := parseCoordinates(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "BAD_COORDINATES")
		return
	}
	req.Coordinates = coords

	record, err := h.detector.Run(r.Context(), req)
	if err != nil {
		h.respondPipelineError(w, err)
		return
	}

	log.Printf("Detection %s created: %d/%d pixels changed, severity %d",
		record.ID, record.ChangedPixels, record.TotalPixels, record.Severity)
	writeJSON(w, http.StatusCreated, record)
}

func (h *Handler) respondPipelineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, imaging.ErrDecode):
		writeError(w, http.StatusBadRequest, "Could not decode image: "+err.Error(), "DECODE_ERROR")
	case errors.Is(err, imaging.ErrDimensionMismatch):
		writeError(w, http.StatusUnprocessableEntity,
			"Images are not comparable after normalization: "+err.Error(), "DIMENSION_MISMATCH")
	case errors.Is(err, diff.ErrThresholdRange):
		writeError(w, http.StatusBadRequest, err.Error(), "BAD_THRESHOLD")
	default:
		log.Printf("Detection failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Detection failed", "PERSISTENCE_FAILURE")
	}
}

func (h *Handler) ListDetections(w http.ResponseWriter, r *http.Request) {
	h.enableCORS(w)

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}

	detections, err := h.store.ListDetections(r.Context(), limit)
	if err != nil {
		log.Printf("List detections failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch detections", "PERSISTENCE_FAILURE")
		return
	}
	if detections == nil {
		detections = []models.Detection{}
	}
	writeJSON(w, http.StatusOK, detections)
}

func (h *Handler) GetDetection(w http.ResponseWriter, r *http.Request) {
	h.enableCORS(w)

	record, ok := h.lookupDetection(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// DetectionImage serves one of the stored PNG artifacts.
func (h *Handler) DetectionImage(w http.ResponseWriter, r *http.Request) {
	h.enableCORS(w)

	record, ok := h.lookupDetection(w, r)
	if !ok {
		return
	}

	var data []byte
	switch kind := r.URL.Query().Get("kind"); kind {
	case "before":
		data = record.BeforeImage
	case "after":
		data = record.AfterImage
	case "overlay", "":
		data = record.OverlayImage
	default:
		writeError(w, http.StatusBadRequest, "kind must be before, after or overlay", "BAD_KIND")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

func (h *Handler) DetectionReport(w http.ResponseWriter, r *http.Request) {
	h.enableCORS(w)

	record, ok := h.lookupDetection(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := report.DetectionPDF(record, &buf); err != nil {
		log.Printf("Report generation failed for %s: %v", record.ID, err)
		writeError(w, http.StatusInternalServerError, "Failed to generate report", "REPORT_ERROR")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=detection-%s.pdf", record.ID))
	w.Write(buf.Bytes())
}

// ValidateDetection records an operator verdict and publishes a validation
// event to live subscribers. Requires a logged-in session.
func (h *Handler) ValidateDetection(w http.ResponseWriter, r *http.Request) {
	h.enableCORS(w)

	if _, ok := h.currentUserID(r); !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "UNAUTHORIZED")
		return
	}

	var req models.ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "BAD_REQUEST")
		return
	}
	if req.Status != models.StatusConfirmed && req.Status != models.StatusRejected {
		writeError(w, http.StatusBadRequest, "status must be 'confirmed' or 'rejected'", "BAD_STATUS")
		return
	}

	id := r.PathValue("id")
	if err := h.store.SetDetectionStatus(r.Context(), id, req.Status); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Detection not found", "NOT_FOUND")
			return
		}
		log.Printf("Validate detection failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to update detection", "PERSISTENCE_FAILURE")
		return
	}

	record, err := h.store.GetDetection(r.Context(), id)
	if err != nil {
		log.Printf("Fetch after validate failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch detection", "PERSISTENCE_FAILURE")
		return
	}

	h.hub.Publish(models.AlertEvent{
		Kind:        "validation",
		ID:          record.ID,
		Severity:    record.Severity,
		Level:       record.SeverityLevel,
		CreatedAt:   time.Now().UTC(),
		Coordinates: record.Coordinates,
		Message:     fmt.Sprintf("detection %s %s by operator", record.ID, req.Status),
	})

	writeJSON(w, http.StatusOK, record)
}

func (h *Handler) lookupDetection(w http.ResponseWriter, r *http.Request) (*models.Detection, bool) {
	id := r.PathValue("id")
	record, err := h.store.GetDetection(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Detection not found", "NOT_FOUND")
		return nil, false
	}
	if err != nil {
		log.Printf("Get detection failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch detection", "PERSISTENCE_FAILURE")
		return nil, false
	}
	return record, true
}

func formFile(r *http.Request, field string) ([]byte, error) {
	file, _, err := r.FormFile(field)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

// parseCoordinates accepts either lat+lng form fields or a bbox value of
// four comma-separated numbers [minLng, minLat, maxLng, maxLat].
func parseCoordinates(r *http.Request) (*models.Coordinates, error) {
	latStr, lngStr := r.FormValue("lat"), r.FormValue("lng")
	bboxStr := r.FormValue("bbox")

	if latStr == "" && lngStr == "" && bboxStr == "" {
		return nil, nil
	}

	coords := &models.Coordinates{}
	if latStr != "" || lngStr != "" {
		lat, err := strconv.ParseFloat(latStr, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid lat %q", latStr)
		}
		lng, err := strconv.ParseFloat(lngStr, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid lng %q", lngStr)
		}
		coords.Lat, coords.Lng = &lat, &lng
	}
	if bboxStr != "" {
		parts := strings.Split(bboxStr, ",")
		if len(parts) != 4 {
			return nil, fmt.Errorf("bbox must have 4 comma-separated values")
		}
		coords.BBox = make([]float64, 4)
		for i, p := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid bbox value %q", p)
			}
			coords.BBox[i] = v
		}
	}
	return coords, nil
}

// --- health & metrics ---

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.enableCORS(w)

	inferenceUp := false
	if h.predictor != nil {
		inferenceUp = h.predictor.HealthCheck()
	}

	writeJSON(w, http.StatusOK, models.HealthStatus{
		Status:           "healthy",
		InferenceService: inferenceUp,
		ActiveClients:    h.hub.Len(),
		Uptime:           h.metrics.Uptime().Truncate(time.Second).String(),
		Version:          "1.0",
	})
}

func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	h.enableCORS(w)

	snapshot := h.metrics.Snapshot()
	snapshot["active_clients"] = h.hub.Len()
	snapshot["alert_threshold"] = h.detector.AlertThreshold()
	writeJSON(w, http.StatusOK, snapshot)
}

// --- auth ---

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

func validateEmail(email string) bool {
	return emailRegex.MatchString(email) && len(email) <= 255
}

func validatePassword(password string) bool {
	if len(password) < 8 || len(password) > 72 {
		return false
	}
	hasLetter, hasNumber := false, false
	for _, char := range password {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') {
			hasLetter = true
		}
		if char >= '0' && char <= '9' {
			hasNumber = true
		}
	}
	return hasLetter && hasNumber
}

func validateUsername(username string) bool {
	return len(username) >= 3 && len(username) <= 30 && usernameRegex.MatchString(username)
}

func (h *Handler) currentUserID(r *http.Request) (int, bool) {
	cookie, err := r.Cookie("session_id")
	if err != nil {
		return 0, false
	}
	userID, err := h.store.UserForSession(r.Context(), cookie.Value)
	if err != nil {
		return 0, false
	}
	return userID, true
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	h.enableCORS(w)

	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "BAD_REQUEST")
		return
	}

	if !validateEmail(req.Email) {
		writeError(w, http.StatusBadRequest, "Invalid email format", "BAD_EMAIL")
		return
	}
	if !validatePassword(req.Password) {
		writeError(w, http.StatusBadRequest,
			"Password must be 8-72 characters with at least one letter and one number", "BAD_PASSWORD")
		return
	}
	if !validateUsername(req.Username) {
		writeError(w, http.StatusBadRequest,
			"Username must be 3-30 characters, alphanumeric and underscore only", "BAD_USERNAME")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("Password hashing error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error", "INTERNAL")
		return
	}

	user, err := h.store.CreateUser(r.Context(), req.Email, req.Username, string(hash))
	if err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			writeError(w, http.StatusConflict, "Email or username already registered", "DUPLICATE")
			return
		}
		log.Printf("Registration failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error", "INTERNAL")
		return
	}

	log.Printf("User registered: %s", user.Email)
	writeJSON(w, http.StatusCreated, user)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	h.enableCORS(w)

	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "BAD_REQUEST")
		return
	}
	if !validateEmail(req.Email) {
		writeError(w, http.StatusBadRequest, "Invalid email format", "BAD_EMAIL")
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), req.Email)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "Invalid email or password", "UNAUTHORIZED")
		return
	}
	if err != nil {
		log.Printf("Login error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error", "INTERNAL")
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "Invalid email or password", "UNAUTHORIZED")
		return
	}

	token := uuid.NewString()
	if err := h.store.CreateSession(r.Context(), token, user.ID); err != nil {
		log.Printf("Session creation failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error", "INTERNAL")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "session_id",
		Value:    token,
		Path:     "/",
		MaxAge:   int(database.SessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	log.Printf("User logged in: %s", user.Email)
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.enableCORS(w)

	if cookie, err := r.Cookie("session_id"); err == nil {
		if err := h.store.DeleteSession(r.Context(), cookie.Value); err != nil {
			log.Printf("Session deletion failed: %v", err)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "session_id",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Logged out"))
}

func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	h.enableCORS(w)

	userID, ok := h.currentUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "UNAUTHORIZED")
		return
	}

	user, err := h.store.GetUserByID(r.Context(), userID)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "User not found", "NOT_FOUND")
		return
	}
	if err != nil {
		log.Printf("CurrentUser error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error", "INTERNAL")
		return
	}
	writeJSON(w, http.StatusOK, user)
}
