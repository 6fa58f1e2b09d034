package httpserver

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"lender_directory/internal/app"
	"lender_directory/internal/domain"
)

const (
	maxJSONBody   = 64 << 20 // documents travel base64-encoded
	maxUploadBody = 32 << 20
)

// Reference is the static vocabulary offered to forms.
type Reference struct {
	LoanTypes          []domain.LoanType `json:"loanTypes"`
	Locations          []string          `json:"locations"`
	InterestTreatments []string          `json:"interestTreatments"`
}

type Handlers struct {
	Lenders  *app.LenderRepository
	Users    *app.UserService
	Sessions *app.SessionService
	Ref      Reference
	// Ready reports backend health for /healthz; nil means always ready.
	Ready func(ctx context.Context) error
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
	// Result carries what did succeed when a write only partly failed.
	Result any `json:"result,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", h.healthz)
	s.mux.Get("/v1/reference", h.reference)
	s.mux.Post("/v1/login", h.login)

	s.mux.Group(func(r chi.Router) {
		r.Use(Authenticated(h.Sessions))
		r.Post("/v1/logout", h.logout)
		r.Get("/v1/lenders", h.listLenders)
		r.Get("/v1/lenders/{id}", h.getLender)
		r.Get("/v1/favourites", h.listFavourites)
		r.Get("/v1/dashboard", h.dashboard)
		r.Post("/v1/favourites/{lenderID}/toggle", h.toggleFavourite)

		r.Group(func(r chi.Router) {
			r.Use(AdminOnly)
			r.Post("/v1/lenders", h.createLender)
			r.Post("/v1/lenders/refresh", h.refreshLenders)
			r.Patch("/v1/lenders/{id}", h.updateLender)
			r.Delete("/v1/lenders/{id}", h.deleteLender)
			r.Post("/v1/lenders/{id}/sheets", h.attachSheet)
			r.Delete("/v1/lenders/{id}/sheets/{sheetID}", h.detachSheet)
			r.Get("/v1/users", h.listUsers)
			r.Post("/v1/users", h.addUser)
			r.Delete("/v1/users/{id}", h.deleteUser)
		})
	})
}

/********** responses **********/

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	writeProblemBody(w, problem{Type: "about:blank", Title: title, Status: status, Detail: detail})
}

func writeProblemBody(w http.ResponseWriter, p problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// statusFor maps the error taxonomy onto HTTP.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, app.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "Not Found"
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "Invalid Request"
	case errors.Is(err, domain.ErrConstraint):
		return http.StatusConflict, "Conflict"
	case errors.Is(err, domain.ErrPartialFailure):
		return http.StatusBadGateway, "Partially Applied"
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable, "Service Unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Timeout"
	}
	return http.StatusInternalServerError, "Internal Error"
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, title := statusFor(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		detail = ""
	}
	writeProblem(w, status, title, detail)
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	return `W/"` + hex.EncodeToString(sum[:]) + `"`, body
}

// writeCached answers with an ETag and honours If-None-Match.
func writeCached(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("failed to write body")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return false
	}
	return true
}

/********** misc **********/

func (h *Handlers) healthz(w http.ResponseWriter, r *http.Request) {
	if h.Ready != nil {
		if err := h.Ready(r.Context()); err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error())
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handlers) reference(w http.ResponseWriter, r *http.Request) {
	writeCached(w, r, h.Ref)
}

/********** sessions **********/

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := h.Sessions.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.Logout(r.Context(), bearer(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

/********** lenders **********/

func (h *Handlers) listLenders(w http.ResponseWriter, r *http.Request) {
	opts, err := parseFilter(r.URL.Query())
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid filter", err.Error())
		return
	}
	writeCached(w, r, h.Lenders.Filter(opts))
}

func (h *Handlers) getLender(w http.ResponseWriter, r *http.Request) {
	l, ok := h.Lenders.GetByID(chi.URLParam(r, "id"))
	if !ok {
		writeProblem(w, http.StatusNotFound, "Not Found", "lender not found")
		return
	}
	writeCached(w, r, l)
}

func (h *Handlers) refreshLenders(w http.ResponseWriter, r *http.Request) {
	list, err := h.Lenders.ListAll(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// writeWriteResult answers a create/update that may have partly failed.
func writeWriteResult(w http.ResponseWriter, r *http.Request, status int, l domain.Lender, err error) {
	if err == nil {
		writeJSON(w, status, l)
		return
	}
	if errors.Is(err, domain.ErrPartialFailure) && l.ID != "" {
		writeProblemBody(w, problem{
			Type: "about:blank", Title: "Partially Applied", Status: http.StatusBadGateway,
			Detail: err.Error(), Result: l,
		})
		return
	}
	writeError(w, r, err)
}

func (h *Handlers) createLender(w http.ResponseWriter, r *http.Request) {
	var in domain.LenderInput
	if !decodeJSON(w, r, &in) {
		return
	}
	l, err := h.Lenders.Create(r.Context(), in)
	writeWriteResult(w, r, http.StatusCreated, l, err)
}

func (h *Handlers) updateLender(w http.ResponseWriter, r *http.Request) {
	var p domain.LenderPatch
	if !decodeJSON(w, r, &p) {
		return
	}
	l, err := h.Lenders.Update(r.Context(), chi.URLParam(r, "id"), p)
	writeWriteResult(w, r, http.StatusOK, l, err)
}

func (h *Handlers) deleteLender(w http.ResponseWriter, r *http.Request) {
	if err := h.Lenders.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) attachSheet(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	if err := r.ParseMultipartForm(maxUploadBody); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid upload", err.Error())
		return
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid upload", "multipart field \"file\" is required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid upload", err.Error())
		return
	}

	doc := domain.Document{
		Name:        r.FormValue("name"),
		FileName:    hdr.Filename,
		ContentType: hdr.Header.Get("Content-Type"),
		Data:        data,
	}
	if doc.Name == "" {
		doc.Name = hdr.Filename
	}
	sheet, err := h.Lenders.Attachments().Attach(r.Context(), chi.URLParam(r, "id"), doc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sheet)
}

func (h *Handlers) detachSheet(w http.ResponseWriter, r *http.Request) {
	err := h.Lenders.Attachments().Detach(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "sheetID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

/********** favourites **********/

func (h *Handlers) favourites(w http.ResponseWriter, r *http.Request) (*app.Favourites, bool) {
	sess, _ := sessionFrom(r.Context())
	f, err := h.Sessions.Favourites(r.Context(), sess)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return f, true
}

func (h *Handlers) listFavourites(w http.ResponseWriter, r *http.Request) {
	f, ok := h.favourites(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, f.Lenders(h.Lenders.Snapshot()))
}

func (h *Handlers) dashboard(w http.ResponseWriter, r *http.Request) {
	f, ok := h.favourites(w, r)
	if !ok {
		return
	}
	writeCached(w, r, app.Summary(h.Lenders.Snapshot(), f.IDs()))
}

func (h *Handlers) toggleFavourite(w http.ResponseWriter, r *http.Request) {
	lenderID := chi.URLParam(r, "lenderID")
	if _, ok := h.Lenders.GetByID(lenderID); !ok {
		writeProblem(w, http.StatusNotFound, "Not Found", "lender not found")
		return
	}
	f, ok := h.favourites(w, r)
	if !ok {
		return
	}
	on, err := f.Toggle(r.Context(), lenderID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"favourite": on})
}

/********** users **********/

type addUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	IsAdmin  bool   `json:"isAdmin"`
}

func (h *Handlers) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Users.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handlers) addUser(w http.ResponseWriter, r *http.Request) {
	var req addUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := h.Users.Add(r.Context(), req.Username, req.Password, req.IsAdmin)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *Handlers) deleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if sess, _ := sessionFrom(r.Context()); sess.User.ID == id {
		writeError(w, r, fmt.Errorf("%w: cannot delete the signed-in user", domain.ErrValidation))
		return
	}
	if err := h.Users.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
