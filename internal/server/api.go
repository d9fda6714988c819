package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bryan-buckman/letterbox/internal/auth"
	"github.com/bryan-buckman/letterbox/internal/database"
	"github.com/bryan-buckman/letterbox/internal/reading"
	"github.com/bryan-buckman/letterbox/internal/subscription"
	"github.com/go-chi/chi/v5"
)

type subscribeRequest struct {
	Email string `json:"email" validate:"required"`
}

type subscribeResponse struct {
	Email    string `json:"email"`
	Redirect string `json:"redirect"`
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Email é obrigatório")
		return
	}
	next, err := s.subs.Subscribe(r.Context(), req.Email)
	switch {
	case errors.Is(err, subscription.ErrInvalidInput):
		s.writeError(w, http.StatusBadRequest, "Email inválido")
		return
	case err != nil:
		s.log.Error().Err(err).Msg("subscribe failed")
		s.writeJSON(w, http.StatusInternalServerError, errorBody{Message: "Erro ao processar inscrição", Details: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, subscribeResponse{Email: strings.TrimSpace(req.Email), Redirect: string(next)})
}

type registerRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name" validate:"required"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Email, senha e nome são obrigatórios")
		return
	}
	acct, err := s.subs.CompleteRegistration(r.Context(), subscription.Registration{
		Email: req.Email, Name: req.Name, Password: req.Password,
	})
	switch {
	case errors.Is(err, subscription.ErrAlreadyRegistered):
		s.writeError(w, http.StatusConflict, "Este email já está registrado")
		return
	case errors.Is(err, subscription.ErrInvalidInput):
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.log.Error().Err(err).Msg("registration failed")
		s.writeJSON(w, http.StatusInternalServerError, errorBody{Message: "Erro ao processar cadastro", Details: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{
		"message": "Usuário criado com sucesso",
		"userId":  acct.ID,
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
	User      *auth.User `json:"user"`
}

// handleLogin authenticates, starts a cookie session and returns a bearer
// token for API clients.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Email e senha são obrigatórios")
		return
	}
	u, err := s.users.Authenticate(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		s.writeError(w, http.StatusUnauthorized, "Email ou senha inválidos")
		return
	case err != nil:
		s.log.Error().Err(err).Msg("authenticate failed")
		s.writeError(w, http.StatusInternalServerError, "Erro ao autenticar")
		return
	}

	token, expires, err := s.tokens.Issue(u)
	if err != nil {
		s.log.Error().Err(err).Msg("issue token")
		s.writeError(w, http.StatusInternalServerError, "Erro ao autenticar")
		return
	}
	if _, err := s.auth.StartSession(r.Context(), w, u); err != nil {
		s.log.Error().Err(err).Msg("start session")
		s.writeError(w, http.StatusInternalServerError, "Erro ao autenticar")
		return
	}
	s.writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expires, User: u})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.EndSession(w, r); err != nil {
		s.log.Warn().Err(err).Msg("end session")
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "Sessão encerrada"})
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, currentUser(r))
}

func (s *Server) handleListLetters(w http.ResponseWriter, r *http.Request) {
	list, err := s.letters.List(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("list letters")
		s.writeError(w, http.StatusInternalServerError, "Erro ao carregar cartas")
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetLetter(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || number <= 0 {
		s.writeError(w, http.StatusNotFound, "Carta não encontrada")
		return
	}
	letter, err := s.letters.Get(r.Context(), number)
	switch {
	case errors.Is(err, database.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "Carta não encontrada")
		return
	case err != nil:
		s.log.Error().Err(err).Int("letter_number", number).Msg("get letter")
		s.writeError(w, http.StatusInternalServerError, "Erro ao carregar carta")
		return
	}
	s.writeJSON(w, http.StatusOK, letter)
}

func (s *Server) handleReadLetters(w http.ResponseWriter, r *http.Request) {
	numbers, err := s.letters.ReadNumbers(r.Context(), currentUser(r).ID)
	if err != nil {
		s.log.Error().Err(err).Msg("read numbers")
		s.writeError(w, http.StatusInternalServerError, "Erro ao carregar leituras")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string][]int{"numbers": numbers})
}

type recordReadRequest struct {
	CartaID flexInt `json:"cartaId"`
	UserID  string  `json:"userId"`
}

// handleRecordRead always answers 200 once the parameters are present. An
// authenticated caller is recorded under its own id whatever userId says.
func (s *Server) handleRecordRead(w http.ResponseWriter, r *http.Request) {
	var req recordReadRequest
	err := s.decode(r, &req)
	accountID := strings.TrimSpace(req.UserID)
	if u := currentUser(r); u != nil {
		accountID = u.ID
	}
	if err != nil || req.CartaID <= 0 || accountID == "" {
		s.writeError(w, http.StatusBadRequest, "cartaId e userId são obrigatórios")
		return
	}

	res, err := s.recorder.Record(r.Context(), int(req.CartaID), accountID)
	switch {
	case errors.Is(err, database.ErrNotFound):
		s.log.Warn().Int("letter_number", int(req.CartaID)).Str("account_id", accountID).
			Msg("read for unknown letter; reporting success")
	case errors.Is(err, reading.ErrInvalidInput):
		s.writeError(w, http.StatusBadRequest, "cartaId e userId são obrigatórios")
		return
	case err == nil:
		s.log.Debug().Str("outcome", string(res.Outcome)).Int("letter_number", int(req.CartaID)).Msg("read handled")
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"message": "Leitura registrada com sucesso",
		"cartaId": int(req.CartaID),
	})
}
