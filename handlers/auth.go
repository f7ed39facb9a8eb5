package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"courtside/database"
	"courtside/middleware"
	"courtside/models"
	"courtside/wire"
)

const sessionTTL = 7 * 24 * time.Hour

var (
	ErrInvalidUsername = errors.New("username must be 3-20 characters")
	ErrWeakPassword    = errors.New("password must be at least 6 characters")
	ErrUsernameTaken   = errors.New("username already taken")
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Success bool               `json:"success"`
	Token   string             `json:"token"`
	User    models.UserSummary `json:"user"`
}

// RegisterUser validates and stores a new account
func RegisterUser(username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if len(username) < 3 || len(username) > 20 {
		return nil, ErrInvalidUsername
	}
	if len(password) < 6 {
		return nil, ErrWeakPassword
	}
	if _, err := database.GetUserByUsername(username); err == nil {
		return nil, ErrUsernameTaken
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return database.CreateUser(username, string(hashedPassword))
}

// Signup handles user registration
func Signup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	user, err := RegisterUser(req.Username, req.Password)
	switch {
	case errors.Is(err, ErrUsernameTaken):
		http.Error(w, `{"error": "Username already taken"}`, http.StatusConflict)
		return
	case errors.Is(err, ErrInvalidUsername), errors.Is(err, ErrWeakPassword):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		http.Error(w, `{"error": "Failed to create user"}`, http.StatusInternalServerError)
		return
	}

	startSession(w, user)
}

// Login handles user authentication
func Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	user, err := database.GetUserByUsername(strings.TrimSpace(req.Username))
	if err != nil {
		http.Error(w, `{"error": "Invalid username or password"}`, http.StatusUnauthorized)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		http.Error(w, `{"error": "Invalid username or password"}`, http.StatusUnauthorized)
		return
	}

	startSession(w, user)
}

// Logout ends the session of the presented token
func Logout(w http.ResponseWriter, r *http.Request) {
	if token := middleware.TokenFromRequest(r); token != "" {
		database.DeleteSession(token)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Me returns the current authenticated user
func Me(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)
	if user == nil {
		http.Error(w, `{"error": "Not authenticated"}`, http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, user.ToSummary())
}

func startSession(w http.ResponseWriter, user *models.User) {
	token := uuid.NewString()
	if err := database.CreateSession(token, user.ID, time.Now().Add(sessionTTL)); err != nil {
		http.Error(w, `{"error": "Failed to create session"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{Success: true, Token: token, User: user.ToSummary()})
}

func decodeBody(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return err
	}
	return wire.UnmarshalSnake(body, dst)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := wire.MarshalSnake(v)
	if err != nil {
		http.Error(w, `{"error": "Server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
