package httpapi

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/laralabs/lara/internal/users"
)

type registerRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Role      string `json:"role"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Email = users.NormalizeEmail(req.Email)
	req.Role = strings.ToUpper(strings.TrimSpace(req.Role))

	switch {
	case req.FirstName == "":
		sendError(w, http.StatusBadRequest, "firstName is required")
		return
	case req.Email == "" || !strings.Contains(req.Email, "@"):
		sendError(w, http.StatusBadRequest, "a valid email is required")
		return
	case len(req.Password) < 8:
		sendError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}
	if req.Role == "" {
		req.Role = users.RoleUser
	}

	hash, err := users.HashPassword(req.Password, s.cfg.BcryptCost)
	if err != nil {
		log.Printf("password hashing failed: %v", err)
		sendError(w, http.StatusInternalServerError, "Registration failed")
		return
	}

	created, err := s.users.Create(r.Context(), users.User{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         req.Role,
		Status:       users.StatusForRole(req.Role),
	})
	if errors.Is(err, users.ErrEmailTaken) {
		sendError(w, http.StatusConflict, "Email is already registered")
		return
	}
	if err != nil {
		log.Printf("user creation failed: %v", err)
		sendError(w, http.StatusInternalServerError, "Registration failed")
		return
	}

	sendResponse(w, http.StatusCreated, "User registered successfully", map[string]any{
		"id":      created.ID,
		"name":    created.FullName(),
		"status":  created.Status,
		"otpSent": true,
	})
}
