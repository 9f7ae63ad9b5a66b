package sandbox

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kingrea/espace-membre/internal/portal"
)

type healthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

type errorResponse struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        string(s.Status()),
		UptimeSeconds: s.uptimeSeconds(),
	})
}

func (s *Server) handleMember(w http.ResponseWriter, r *http.Request) {
	snap, err := s.portal.Member(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.portal.Members(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (s *Server) handlePullRequests(w http.ResponseWriter, r *http.Request) {
	open, err := s.portal.OpenChangeRequests(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]portal.ChangeRequest{"pullRequests": open})
}

func (s *Server) handleBaseInfo(w http.ResponseWriter, r *http.Request) {
	var change portal.EndDateChange
	if !s.decode(w, r, &change, portal.EndDateField) {
		return
	}
	url, err := s.portal.SubmitEndDate(r.Context(), chi.URLParam(r, "id"), change)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Les informations ont été mises à jour, une pull request a été ouverte.",
		"pr_url":  url,
	})
}

func (s *Server) handleCreateEmail(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ToEmail string `json:"to_email"`
	}
	if !s.decode(w, r, &body, "to_email") {
		return
	}
	if err := s.portal.CreateMailbox(r.Context(), chi.URLParam(r, "id"), body.ToEmail); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Création du compte mail demandée."})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	operator, err := s.portal.CurrentUser(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": map[string]string{"id": operator}})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		EmailInput string `json:"emailInput"`
	}
	if !s.decode(w, r, &body, "emailInput") {
		return
	}
	if err := s.portal.RequestLoginLink(r.Context(), body.EmailInput); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Un lien de connexion a été envoyé."})
}

// decode reads a JSON body, answering 400 with a field error when it is unreadable.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, target any, field string) bool {
	reader := http.MaxBytesReader(w, r.Body, s.settings.MaxBodyBytes)
	defer reader.Close()
	if err := json.NewDecoder(reader).Decode(target); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Message: "payload exceeds limit"})
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Message: "Erreur dans le formulaire",
			Errors:  map[string][]string{field: {"valeur invalide"}},
		})
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var validation *portal.ValidationError
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: validation.Message, Errors: validation.Fields})
	case errors.Is(err, portal.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Message: "Aucune info sur l'utilisateur"})
	case errors.Is(err, portal.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Message: "Vous devez être connecté"})
	default:
		s.logger.Printf("sandbox: portal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "Une erreur est survenue"})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
