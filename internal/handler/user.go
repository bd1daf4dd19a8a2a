package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/volfir1/gadget-galaxy-api/internal/auth"
	"github.com/volfir1/gadget-galaxy-api/internal/model"
	"github.com/volfir1/gadget-galaxy-api/internal/repository"
	"github.com/volfir1/gadget-galaxy-api/internal/service"
)

// UserHandler owns the admin-only /api/users routes. The role gate is applied
// by the router, not here.
type UserHandler struct {
	users  *service.UserService
	logger *slog.Logger
}

func NewUserHandler(users *service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

func (h *UserHandler) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/stats", h.stats)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Patch("/{id}/role", h.setRole)
	r.Patch("/{id}/status", h.toggleActive)
	r.Put("/{id}/password", h.setPassword)
}

func (h *UserHandler) list(w http.ResponseWriter, r *http.Request) {
	page, err := h.users.List(r.Context(), listOptions(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	ok(w, h.logger, http.StatusOK, "", envelope{"users": page.Users, "total": page.Total})
}

func (h *UserHandler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.users.Stats(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	ok(w, h.logger, http.StatusOK, "", envelope{"stats": stats})
}

func (h *UserHandler) get(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	ok(w, h.logger, http.StatusOK, "", envelope{"user": user})
}

func (h *UserHandler) update(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"phone"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	var v validator
	if req.Name != "" {
		v.name("name", req.Name)
	}
	if req.Email != "" {
		v.email("email", req.Email)
	}
	if !v.ok() {
		fail(w, h.logger, http.StatusBadRequest, "Validation Error", v.fields)
		return
	}

	user, err := h.users.Update(r.Context(), chi.URLParam(r, "id"), service.AdminUpdateParams{
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	ok(w, h.logger, http.StatusOK, "User updated successfully", envelope{"user": user})
}

func (h *UserHandler) setRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role string `json:"role"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	var v validator
	v.role("role", req.Role)
	if !v.ok() {
		fail(w, h.logger, http.StatusBadRequest, "Validation Error", v.fields)
		return
	}

	actor, _ := auth.UserFromContext(r.Context())
	user, err := h.users.SetRole(r.Context(), actor.ID, chi.URLParam(r, "id"), model.Role(req.Role))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	ok(w, h.logger, http.StatusOK, "User role updated successfully", envelope{"user": user})
}

func (h *UserHandler) toggleActive(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.UserFromContext(r.Context())
	user, err := h.users.ToggleActive(r.Context(), actor.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	message := "User activated successfully"
	if !user.IsActive {
		message = "User deactivated successfully"
	}
	ok(w, h.logger, http.StatusOK, message, envelope{"user": user})
}

func (h *UserHandler) setPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	var v validator
	v.password("password", req.Password)
	if !v.ok() {
		fail(w, h.logger, http.StatusBadRequest, "Validation Error", v.fields)
		return
	}

	actor, _ := auth.UserFromContext(r.Context())
	if err := h.users.SetPassword(r.Context(), actor.ID, chi.URLParam(r, "id"), req.Password); err != nil {
		writeError(w, h.logger, err)
		return
	}
	ok(w, h.logger, http.StatusOK, "Password updated successfully", nil)
}

// listOptions reads ?page= and ?limit= pagination query params.
func listOptions(r *http.Request) repository.ListOptions {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	return repository.ListOptions{Limit: limit, Offset: (page - 1) * limit}
}
