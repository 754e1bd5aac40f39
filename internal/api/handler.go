// Package api serves the HTML form interface and the Google OAuth flow.
package api

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"calendar-agent/internal/integrations/google"
	"calendar-agent/internal/logging"
	"calendar-agent/internal/usecase"
)

const (
	msgAuthRequired   = "Please authenticate with Google to use the app."
	msgStateMissing   = "Authentication state is missing. Please try again."
	msgFetchFailed    = "Failed to fetch credentials. Please try again."
	msgAuthSucceeded  = "Successfully authenticated with Google!"
	msgUploadTooLarge = "The uploaded file is too large."
)

type Processor interface {
	Process(ctx context.Context, in usecase.ProcessInput) (usecase.ProcessOutput, error)
}

type OAuthFlow interface {
	AuthURL(state string) (string, error)
	Exchange(ctx context.Context, code string) error
}

// Handler serves the intake form, the result view and the OAuth endpoints.
type Handler struct {
	proc           Processor
	flow           OAuthFlow
	sessions       *Sessions
	tmpl           *template.Template
	workDir        string
	maxUploadBytes int64
	logger         *slog.Logger
}

type Options struct {
	WorkDir        string
	MaxUploadBytes int64
	Logger         *slog.Logger
}

func NewHandler(proc Processor, flow OAuthFlow, sessions *Sessions, tmpl *template.Template, opts Options) (*Handler, error) {
	if proc == nil {
		return nil, errors.New("api: processor must not be nil")
	}
	if flow == nil {
		return nil, errors.New("api: oauth flow must not be nil")
	}
	if sessions == nil {
		return nil, errors.New("api: sessions must not be nil")
	}
	if tmpl == nil {
		return nil, errors.New("api: templates must not be nil")
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 16 << 20
	}
	if opts.WorkDir == "" {
		opts.WorkDir = "."
	}
	return &Handler{
		proc:           proc,
		flow:           flow,
		sessions:       sessions,
		tmpl:           tmpl,
		workDir:        opts.WorkDir,
		maxUploadBytes: opts.MaxUploadBytes,
		logger:         logging.OrNop(opts.Logger),
	}, nil
}

// NewRouter wires the handler and the standard middleware stack.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	h.RegisterRoutes(r)
	return r
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.index)
	r.Post("/process", h.process)
	r.Get("/auth", h.auth)
	r.Get("/oauth2callback", h.oauthCallback)
	r.Get("/check-auth", h.checkAuth)
}

type pageData struct {
	Flashes         []string
	CombinedInput   string
	GeneratedCode   string
	ExecutionOutput string
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Get(r)
	if !google.IsAuthenticated(h.workDir) {
		sess.AddFlash(msgAuthRequired)
		h.redirect(w, r, sess, "/auth")
		return
	}
	data := pageData{Flashes: sess.Flashes()}
	h.saveSession(w, sess)
	h.render(w, "index.html", data)
}

func (h *Handler) process(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Get(r)
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			sess.AddFlash(msgUploadTooLarge)
			h.redirect(w, r, sess, "/")
			return
		}
		h.logger.Warn("api.parse_form_failed", "error", err.Error())
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	in := usecase.ProcessInput{
		Text:          r.FormValue("text_input"),
		SelectedPages: r.FormValue("selected_pages"),
	}
	file, header, err := r.FormFile("file_upload")
	switch {
	case err == nil:
		defer func() { _ = file.Close() }()
		in.Upload = &usecase.Upload{Filename: header.Filename, Body: file}
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		h.logger.Warn("api.form_file_failed", "error", err.Error())
	}

	out, err := h.proc.Process(r.Context(), in)
	if err != nil {
		var ucErr *usecase.Error
		if errors.As(err, &ucErr) && ucErr.Code == usecase.ErrorInvalidInput {
			sess.AddFlash(ucErr.Message())
			h.redirect(w, r, sess, "/")
			return
		}
		h.logger.Error("api.process_failed", "error", err.Error())
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.render(w, "result.html", pageData{
		CombinedInput:   out.CombinedInput,
		GeneratedCode:   out.GeneratedCode,
		ExecutionOutput: out.ExecutionOutput,
	})
}

func (h *Handler) auth(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	authURL, err := h.flow.AuthURL(state)
	if err != nil {
		h.logger.Error("api.auth_url_failed", "error", err.Error())
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	sess := h.sessions.Get(r)
	sess.SetAuthState(state)
	h.redirect(w, r, sess, authURL)
}

func (h *Handler) oauthCallback(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Get(r)
	state := sess.AuthState()
	if state == "" {
		sess.AddFlash(msgStateMissing)
		h.redirect(w, r, sess, "/")
		return
	}
	sess.SetAuthState("")

	q := r.URL.Query()
	if q.Get("state") != state || q.Get("error") != "" {
		h.logger.Warn("api.oauth_callback_rejected", "error", q.Get("error"))
		sess.AddFlash(msgFetchFailed)
		h.redirect(w, r, sess, "/")
		return
	}
	if err := h.flow.Exchange(r.Context(), q.Get("code")); err != nil {
		h.logger.Warn("api.oauth_exchange_failed", "error", err.Error())
		sess.AddFlash(msgFetchFailed)
		h.redirect(w, r, sess, "/")
		return
	}
	sess.AddFlash(msgAuthSucceeded)
	h.redirect(w, r, sess, "/")
}

func (h *Handler) checkAuth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if google.IsAuthenticated(h.workDir) {
		_, _ = w.Write([]byte("You are authenticated!"))
		return
	}
	_, _ = w.Write([]byte("You are NOT authenticated. Please authenticate at /auth."))
}

func (h *Handler) redirect(w http.ResponseWriter, r *http.Request, sess *Session, to string) {
	h.saveSession(w, sess)
	http.Redirect(w, r, to, http.StatusFound)
}

func (h *Handler) saveSession(w http.ResponseWriter, sess *Session) {
	if err := sess.Save(w); err != nil {
		h.logger.Warn("api.session_save_failed", "error", err.Error())
	}
}

func (h *Handler) render(w http.ResponseWriter, name string, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.tmpl.ExecuteTemplate(w, name, data); err != nil {
		h.logger.Error("api.render_failed", "template", name, "error", err.Error())
	}
}
