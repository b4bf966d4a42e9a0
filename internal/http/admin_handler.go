package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/qrorder/internal/auth"
	"github.com/fjod/qrorder/internal/backend"
	"github.com/fjod/qrorder/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/tealeg/xlsx"
)

type AdminBackend interface {
	MenuReader
	CreateMenuItem(ctx context.Context, token string, in backend.MenuItemInput) (*domain.MenuItem, error)
	UpdateMenuItem(ctx context.Context, token, id string, in backend.MenuItemInput) error
	DeleteMenuItem(ctx context.Context, token, id string) error
	SetAvailability(ctx context.Context, token, id string, available bool) error

	Login(ctx context.Context, email, password string) (string, error)
	Profile(ctx context.Context, token string) (domain.AdminProfile, error)
	UpdateProfile(ctx context.Context, token string, in backend.ProfileInput) (domain.AdminProfile, error)
	RequestEmailChange(ctx context.Context, token, newEmail string) error
	VerifyEmailChange(ctx context.Context, token, otp string) error
}

type AdminHandler struct {
	backend       AdminBackend
	timeout       time.Duration
	maxUploadSize int64
}

func NewAdminHandler(b AdminBackend, timeout time.Duration, maxUploadSize int64) *AdminHandler {
	return &AdminHandler{
		backend:       b,
		timeout:       timeout,
		maxUploadSize: maxUploadSize,
	}
}

type LoginRequestDTO struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponseDTO struct {
	Token string `json:"token"`
}

type VerifyResponseDTO struct {
	Valid   bool   `json:"valid"`
	AdminID string `json:"adminId,omitempty"`
}

type AvailabilityRequestDTO struct {
	Available bool `json:"available"`
}

type EmailChangeRequestDTO struct {
	NewEmail string `json:"newEmail"`
}

type OTPRequestDTO struct {
	OTP string `json:"otp"`
}

// POST /api/v1/admin/login
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req LoginRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	token, err := h.backend.Login(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, backend.ErrUnauthorized) || errors.Is(err, backend.ErrRejected) {
			respondError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
			return
		}
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, LoginResponseDTO{Token: token})
}

// GET /api/v1/admin/verify
//
// Reaching the handler means AdminAuth already accepted the token.
func (h *AdminHandler) Verify(w http.ResponseWriter, r *http.Request) {
	admin, _ := auth.AdminFromContext(r.Context())
	respondJSON(w, http.StatusOK, VerifyResponseDTO{Valid: true, AdminID: admin.Claims.AdminID})
}

// GET /api/v1/admin/menu
func (h *AdminHandler) ListMenu(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	h.respondMenu(ctx, w, r, http.StatusOK)
}

// POST /api/v1/admin/menu
func (h *AdminHandler) CreateMenuItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	in, err := h.parseMenuForm(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if _, err := h.backend.CreateMenuItem(ctx, adminToken(r.Context()), in); err != nil {
		handleError(w, r, err)
		return
	}
	h.respondMenu(ctx, w, r, http.StatusCreated)
}

// PUT /api/v1/admin/menu/{id}
func (h *AdminHandler) UpdateMenuItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	in, err := h.parseMenuForm(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := h.backend.UpdateMenuItem(ctx, adminToken(r.Context()), chi.URLParam(r, "id"), in); err != nil {
		handleError(w, r, err)
		return
	}
	h.respondMenu(ctx, w, r, http.StatusOK)
}

// DELETE /api/v1/admin/menu/{id}
func (h *AdminHandler) DeleteMenuItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.backend.DeleteMenuItem(ctx, adminToken(r.Context()), chi.URLParam(r, "id")); err != nil {
		handleError(w, r, err)
		return
	}
	h.respondMenu(ctx, w, r, http.StatusOK)
}

// PATCH /api/v1/admin/menu/{id}/availability
func (h *AdminHandler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AvailabilityRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if err := h.backend.SetAvailability(ctx, adminToken(r.Context()), chi.URLParam(r, "id"), req.Available); err != nil {
		handleError(w, r, err)
		return
	}
	h.respondMenu(ctx, w, r, http.StatusOK)
}

// GET /api/v1/admin/menu/export
func (h *AdminHandler) ExportMenu(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	items, err := h.backend.ListMenu(ctx)
	if err != nil {
		handleError(w, r, err)
		return
	}

	file, err := menuWorkbook(items)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "export_failed", "failed to create Excel sheet")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename=menu.xlsx")
	if err := file.Write(w); err != nil {
		handleError(w, r, err)
	}
}

// GET /api/v1/admin/profile
func (h *AdminHandler) Profile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	profile, err := h.backend.Profile(ctx, adminToken(r.Context()))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

// PUT /api/v1/admin/profile
func (h *AdminHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.parseMultipart(r); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	image, err := formUpload(r, "image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	in := backend.ProfileInput{
		Name:   r.FormValue("name"),
		Mobile: r.FormValue("mobile"),
		Image:  image,
	}
	if strings.TrimSpace(in.Name) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "name is required")
		return
	}

	profile, err := h.backend.UpdateProfile(ctx, adminToken(r.Context()), in)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

// POST /api/v1/admin/email-change
func (h *AdminHandler) RequestEmailChange(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req EmailChangeRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	req.NewEmail = strings.TrimSpace(req.NewEmail)
	if !strings.Contains(req.NewEmail, "@") {
		respondError(w, http.StatusBadRequest, "invalid_email", "a valid email is required")
		return
	}
	if err := h.backend.RequestEmailChange(ctx, adminToken(r.Context()), req.NewEmail); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// POST /api/v1/admin/email-change/verify
//
// Responds with the refreshed profile carrying the new email.
func (h *AdminHandler) VerifyEmailChange(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req OTPRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.OTP) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "otp is required")
		return
	}

	token := adminToken(r.Context())
	if err := h.backend.VerifyEmailChange(ctx, token, strings.TrimSpace(req.OTP)); err != nil {
		handleError(w, r, err)
		return
	}
	profile, err := h.backend.Profile(ctx, token)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

// respondMenu re-fetches the full menu so the admin view never patches its
// list locally.
func (h *AdminHandler) respondMenu(ctx context.Context, w http.ResponseWriter, r *http.Request, status int) {
	items, err := h.backend.ListMenu(ctx)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, status, menuResponse(items))
}

func (h *AdminHandler) parseMultipart(r *http.Request) error {
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		return fmt.Errorf("invalid multipart form: %w", err)
	}
	return nil
}

func (h *AdminHandler) parseMenuForm(r *http.Request) (backend.MenuItemInput, error) {
	if err := h.parseMultipart(r); err != nil {
		return backend.MenuItemInput{}, err
	}

	price, err := decimal.NewFromString(strings.TrimSpace(r.FormValue("price")))
	if err != nil {
		return backend.MenuItemInput{}, errors.New("price must be a number")
	}
	available := true
	if v := r.FormValue("available"); v != "" {
		if available, err = strconv.ParseBool(v); err != nil {
			return backend.MenuItemInput{}, errors.New("available must be true or false")
		}
	}
	image, err := formUpload(r, "image")
	if err != nil {
		return backend.MenuItemInput{}, err
	}

	return backend.MenuItemInput{
		Name:        r.FormValue("name"),
		Price:       price,
		Category:    r.FormValue("category"),
		Description: r.FormValue("description"),
		Available:   available,
		Image:       image,
	}, nil
}

func formUpload(r *http.Request, field string) (*backend.Upload, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", field, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", field, err)
	}
	return &backend.Upload{
		FieldName:   field,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func menuWorkbook(items []domain.MenuItem) (*xlsx.File, error) {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Menu")
	if err != nil {
		return nil, err
	}

	header := sheet.AddRow()
	for _, h := range []string{"ID", "Name", "Category", "Price", "Available", "Description", "Image"} {
		header.AddCell().SetValue(h)
	}
	for _, item := range items {
		row := sheet.AddRow()
		row.AddCell().SetValue(item.ID)
		row.AddCell().SetValue(item.Name)
		row.AddCell().SetValue(item.Category)
		price, _ := item.Price.Float64()
		row.AddCell().SetFloat(price)
		if item.Available {
			row.AddCell().SetValue("Yes")
		} else {
			row.AddCell().SetValue("No")
		}
		row.AddCell().SetValue(item.Description)
		row.AddCell().SetValue(item.ImageURL)
	}
	return file, nil
}
