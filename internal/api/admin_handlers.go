package api

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/karabot/karabot/internal/models"
)

// MaxUploadBytes caps a single admin file upload.
const MaxUploadBytes = 32 << 20

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// requireAdmin wraps a handler with HTTP basic auth. Credentials are
// compared in constant time. Unconfigured credentials lock the surface
// shut: an empty username or password never authorizes anyone.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.opts.AdminUsername)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.opts.AdminPassword)) == 1
		if !ok || s.opts.AdminUsername == "" || s.opts.AdminPassword == "" || !userOK || !passOK {
			w.Header().Set("WWW-Authenticate", `Basic realm="karabot-admin"`)
			writeJSONResponse(w, http.StatusUnauthorized, models.Error("Unauthorized"))
			return
		}
		next(w, r)
	}
}

func (s *Server) listUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := s.st.ListUsers()
	if err != nil {
		slog.Error("Server.listUsersHandler failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list users"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(users))
}

func (s *Server) listMessagesHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := s.userFromPath(w, r)
	if !ok {
		return
	}
	messages, err := s.st.ListMessagesByUser(user.ID)
	if err != nil {
		slog.Error("Server.listMessagesHandler failed", "error", err, "user_id", user.ID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list messages"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(messages))
}

// sendMessageHandler lets an operator push a plain text message into a
// conversation. The delivery result is appended to the history like any
// bot-originated send.
func (s *Server) sendMessageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	user, ok := s.userFromPath(w, r)
	if !ok {
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Text is required"))
		return
	}

	remoteID, err := s.port.SendText(r.Context(), user.WhatsAppID, req.Text)
	if err != nil {
		slog.Error("Server.sendMessageHandler delivery failed", "error", err, "user_id", user.ID)
		writeJSONResponse(w, http.StatusBadGateway, models.Error("Failed to send message"))
		return
	}
	if _, err := s.st.RecordMessage(user.ID, req.Text, models.DirectionOutgoing, string(models.OutboundKindText), remoteID); err != nil {
		slog.Error("Server.sendMessageHandler failed to persist message", "error", err, "user_id", user.ID)
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Message sent successfully", map[string]string{"remote_id": remoteID}))
}

// uploadHandler stores an operator-uploaded file under the uploads dir and
// returns its public URL for use in media sends.
func (s *Server) uploadHandler(w http.ResponseWriter, r *http.Request) {
	if s.opts.UploadsDir == "" {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Uploads are not configured"))
		return
	}
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid multipart form"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing file field"))
		return
	}
	defer file.Close()

	name := uuid.NewString() + "_" + sanitizeFilename(header.Filename)
	if err := os.MkdirAll(s.opts.UploadsDir, 0755); err != nil {
		slog.Error("Server.uploadHandler failed to create uploads dir", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to store upload"))
		return
	}
	dst, err := os.Create(filepath.Join(s.opts.UploadsDir, name))
	if err != nil {
		slog.Error("Server.uploadHandler failed to create file", "error", err, "name", name)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to store upload"))
		return
	}
	defer dst.Close()
	if _, err := io.Copy(dst, io.LimitReader(file, MaxUploadBytes)); err != nil {
		slog.Error("Server.uploadHandler failed to write file", "error", err, "name", name)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to store upload"))
		return
	}

	url := fmt.Sprintf("%s/static/uploads/%s", strings.TrimRight(s.opts.PublicBaseURL, "/"), name)
	slog.Info("Server.uploadHandler stored upload", "name", name, "size", header.Size)
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"filename": name, "url": url}))
}

// statsHandler exposes the dispatcher's error-taxonomy counters.
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(s.dispatcher.Counters().Snapshot()))
}

// userFromPath resolves the {id} path segment to a stored user, writing the
// error response itself when resolution fails.
func (s *Server) userFromPath(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid user id"))
		return models.User{}, false
	}
	user, err := s.st.GetUserByID(id)
	if err == models.ErrUserNotFound {
		writeJSONResponse(w, http.StatusNotFound, models.Error("User not found"))
		return models.User{}, false
	}
	if err != nil {
		slog.Error("Server.userFromPath lookup failed", "error", err, "id", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load user"))
		return models.User{}, false
	}
	return user, true
}

func sanitizeFilename(filename string) string {
	base := filepath.Base(filename)
	return unsafeFilenameChars.ReplaceAllString(base, "_")
}
