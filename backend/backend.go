// Package backend is a JSON HTTP adapter for the core.
package backend

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/alexedwards/scs/v2"
	"github.com/julienschmidt/httprouter"
	"github.com/wansing/pressroom/core"
	"github.com/wansing/pressroom/notify"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

const maxBodySize = 1 << 20

var langMatcher = language.NewMatcher([]language.Tag{
	language.English, // default
	language.German,
})

type Backend struct {
	DB       *core.CoreDB
	Sessions *scs.SessionManager
	Hub      *notify.Hub // nil disables /push
	Logger   *zap.Logger
}

// request is created by the middleware for each HTTP request.
type request struct {
	*Backend
	Identity core.Identity
	w        http.ResponseWriter
	req      *http.Request
}

// identify reads the user id from the session. Unknown users are treated as anonymous.
func (b *Backend) identify(req *http.Request) (core.Identity, error) {

	lang, _ := language.MatchStrings(langMatcher, req.Header.Get("Accept-Language"))

	var uid = b.Sessions.GetInt(req.Context(), "uid")
	id, err := b.DB.Identify(req.Context(), uid, lang)
	if errors.Is(err, core.ErrUserNotFound) {
		return core.Anonymous(lang), nil
	}
	return id, err
}

func (b *Backend) middleware(requireLoggedIn bool, f func(r *request, params httprouter.Params) error) httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, params httprouter.Params) {

		identity, err := b.identify(req)
		if err != nil {
			b.writeError(w, err)
			return
		}

		var r = &request{
			Backend:  b,
			Identity: identity,
			w:        w,
			req:      req,
		}

		if requireLoggedIn && !r.Identity.LoggedIn() {
			b.writeError(w, core.ErrUnauthenticated)
			return
		}

		if err := f(r, params); err != nil {
			b.writeError(w, err)
		}
	}
}

// Handler returns the router, wrapped in the session middleware.
func (b *Backend) Handler() http.Handler {

	if b.Logger == nil {
		b.Logger = zap.NewNop()
	}

	var router = httprouter.New()

	router.POST("/login", b.middleware(false, login))
	router.POST("/logout", b.middleware(false, logout))

	router.POST("/contents", b.middleware(true, submit))
	router.GET("/contents/:type/:id", b.middleware(false, view))
	router.POST("/contents/:type/:id/hide", b.middleware(true, hide))
	router.POST("/contents/:type/:id/submit", b.middleware(true, submitDraft))
	router.DELETE("/contents/:type/:id", b.middleware(true, del))

	router.GET("/reviews", b.middleware(true, reviews))
	router.POST("/reviews/:id/resolve", b.middleware(true, resolve))
	router.POST("/reviews/:id/assign", b.middleware(true, assign))

	var withSessions = b.Sessions.LoadAndSave(router)

	// The websocket handshake needs the unwrapped ResponseWriter, so /push loads the session itself.
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "/push" {
			b.push(w, req)
			return
		}
		withSessions.ServeHTTP(w, req)
	})
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (b *Backend) writeError(w http.ResponseWriter, err error) {
	var code = core.AsErrorCode(err)
	if code.Kind == core.KindInternal {
		b.Logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, code.Status, errorResponse{
		Code:    code.Code,
		Message: code.Message,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads the JSON request body into v.
func (r *request) decode(v interface{}) error {
	var dec = json.NewDecoder(io.LimitReader(r.req.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return core.ErrMalformedRequest
	}
	return nil
}

func (r *request) ok(v interface{}) error {
	writeJSON(r.w, http.StatusOK, v)
	return nil
}

func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	return id, err == nil && id > 0
}
