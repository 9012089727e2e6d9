package backend

import (
	"net/http"

	"github.com/wansing/pressroom/core"
	"golang.org/x/net/websocket"
)

// push upgrades to a websocket which receives the notifications of the logged-in user.
func (b *Backend) push(w http.ResponseWriter, req *http.Request) {

	if req.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	if b.Hub == nil {
		http.NotFound(w, req)
		return
	}

	var token string
	if cookie, err := req.Cookie(b.Sessions.Cookie.Name); err == nil {
		token = cookie.Value
	}
	ctx, err := b.Sessions.Load(req.Context(), token)
	if err != nil {
		b.writeError(w, err)
		return
	}
	req = req.WithContext(ctx)

	identity, err := b.identify(req)
	if err != nil {
		b.writeError(w, err)
		return
	}
	if !identity.LoggedIn() {
		b.writeError(w, core.ErrUnauthenticated)
		return
	}

	websocket.Server{
		Handler: func(ws *websocket.Conn) {
			b.Hub.Serve(identity.UserID, ws)
		},
	}.ServeHTTP(w, req)
}
