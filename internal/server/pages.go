package server

import (
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strconv"

	"github.com/bryan-buckman/letterbox/internal/auth"
	"github.com/bryan-buckman/letterbox/internal/database"
	"github.com/bryan-buckman/letterbox/internal/model"
	"github.com/bryan-buckman/letterbox/internal/subscription"
	"github.com/go-chi/chi/v5"
)

type pageData struct {
	User  *auth.User
	Error string
}

func (s *Server) handleLanding(w http.ResponseWriter, r *http.Request) {
	s.render(w, "landing.html", pageData{User: currentUser(r), Error: r.URL.Query().Get("erro")})
}

type authPageData struct {
	pageData
	Email string
	Mode  string
}

func (s *Server) handleAuthPage(w http.ResponseWriter, r *http.Request) {
	if currentUser(r) != nil {
		http.Redirect(w, r, "/letters", http.StatusSeeOther)
		return
	}
	q := r.URL.Query()
	mode := q.Get("mode")
	if mode != "register" {
		mode = "login"
	}
	s.render(w, "auth.html", authPageData{
		pageData: pageData{Error: q.Get("erro")},
		Email:    q.Get("email"),
		Mode:     mode,
	})
}

func (s *Server) handleSubscribeForm(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	next, err := s.subs.Subscribe(r.Context(), email)
	switch {
	case errors.Is(err, subscription.ErrInvalidInput):
		redirectWithError(w, r, "/", "Informe um email válido.")
		return
	case err != nil:
		s.log.Error().Err(err).Msg("subscribe form failed")
		redirectWithError(w, r, "/", "Não foi possível concluir a inscrição.")
		return
	}
	q := url.Values{"email": {email}, "mode": {string(next)}}
	http.Redirect(w, r, "/auth?"+q.Encode(), http.StatusSeeOther)
}

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	u, err := s.users.Authenticate(r.Context(), email, r.PostFormValue("password"))
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			s.log.Error().Err(err).Msg("login form failed")
		}
		redirectWithError(w, r, "/auth?"+url.Values{"email": {email}}.Encode(), "Email ou senha inválidos.")
		return
	}
	s.startPageSession(w, r, u)
}

func (s *Server) handleRegisterForm(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	acct, err := s.subs.CompleteRegistration(r.Context(), subscription.Registration{
		Email:    email,
		Name:     r.PostFormValue("name"),
		Password: r.PostFormValue("password"),
	})
	back := "/auth?" + url.Values{"email": {email}, "mode": {"register"}}.Encode()
	switch {
	case errors.Is(err, subscription.ErrAlreadyRegistered):
		redirectWithError(w, r, "/auth?"+url.Values{"email": {email}}.Encode(), "Este email já está registrado. Faça login.")
		return
	case errors.Is(err, subscription.ErrInvalidInput):
		redirectWithError(w, r, back, "Preencha nome, email e uma senha de pelo menos 6 caracteres.")
		return
	case err != nil:
		s.log.Error().Err(err).Msg("register form failed")
		redirectWithError(w, r, back, "Não foi possível concluir o cadastro.")
		return
	}
	s.startPageSession(w, r, &auth.User{ID: acct.ID, Email: acct.Email, Name: acct.Name})
}

func (s *Server) startPageSession(w http.ResponseWriter, r *http.Request, u *auth.User) {
	if _, err := s.auth.StartSession(r.Context(), w, u); err != nil {
		s.log.Error().Err(err).Msg("start session")
		redirectWithError(w, r, "/auth", "Não foi possível iniciar a sessão.")
		return
	}
	http.Redirect(w, r, "/letters", http.StatusSeeOther)
}

func (s *Server) handleLogoutPage(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.EndSession(w, r); err != nil {
		s.log.Warn().Err(err).Msg("end session")
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type letterCard struct {
	model.Letter
	Read bool
}

type lettersPageData struct {
	pageData
	Letters []letterCard
	Read    int
}

func (s *Server) handleLettersPage(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)
	list, err := s.letters.List(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("list letters")
		http.Error(w, "Erro ao carregar cartas", http.StatusInternalServerError)
		return
	}
	// Read badges are decoration; the dashboard renders without them.
	read := map[int]bool{}
	if numbers, err := s.letters.ReadNumbers(r.Context(), u.ID); err != nil {
		s.log.Warn().Err(err).Msg("read numbers")
	} else {
		for _, n := range numbers {
			read[n] = true
		}
	}

	cards := make([]letterCard, 0, len(list))
	for _, l := range list {
		cards = append(cards, letterCard{Letter: l, Read: read[l.Number]})
	}
	s.render(w, "letters.html", lettersPageData{pageData: pageData{User: u}, Letters: cards, Read: len(read)})
}

type letterPageData struct {
	pageData
	Letter model.Letter
	Body   template.HTML
	Prev   int
	Next   int
}

// handleLetterPage renders a letter and records the read. Recording never
// affects the response.
func (s *Server) handleLetterPage(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil || number <= 0 {
		http.NotFound(w, r)
		return
	}
	letter, err := s.letters.Get(r.Context(), number)
	switch {
	case errors.Is(err, database.ErrNotFound):
		http.NotFound(w, r)
		return
	case err != nil:
		s.log.Error().Err(err).Int("letter_number", number).Msg("get letter")
		http.Error(w, "Erro ao carregar carta", http.StatusInternalServerError)
		return
	}

	if _, err := s.recorder.Record(r.Context(), number, u.ID); err != nil {
		s.log.Warn().Err(err).Int("letter_number", number).Msg("record read")
	}

	data := letterPageData{
		pageData: pageData{User: u},
		Letter:   letter,
		Body:     s.renderMarkdown(letter.Content),
	}
	if number > 1 {
		data.Prev = number - 1
	}
	if _, err := s.letters.Get(r.Context(), number+1); err == nil {
		data.Next = number + 1
	}
	s.render(w, "letter.html", data)
}

func redirectWithError(w http.ResponseWriter, r *http.Request, target, msg string) {
	u, err := url.Parse(target)
	if err != nil {
		u = &url.URL{Path: "/"}
	}
	q := u.Query()
	q.Set("erro", msg)
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.String(), http.StatusSeeOther)
}
