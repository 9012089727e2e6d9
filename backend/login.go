package backend

import (
	"github.com/julienschmidt/httprouter"
	"github.com/wansing/pressroom/core"
)

type loginData struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type userData struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Authority string `json:"authority"`
}

func login(r *request, params httprouter.Params) error {

	var data loginData
	if err := r.decode(&data); err != nil {
		return err
	}

	u, err := r.DB.LoginUser(data.Name, data.Password)
	if err != nil {
		return core.ErrLoginFailed
	}

	if err := r.Sessions.RenewToken(r.req.Context()); err != nil {
		return err
	}
	r.Sessions.Put(r.req.Context(), "uid", u.ID())

	identity, err := r.DB.Identify(r.req.Context(), u.ID(), r.Identity.Language)
	if err != nil {
		return err
	}

	return r.ok(userData{
		ID:        u.ID(),
		Name:      u.Name(),
		Authority: identity.Authority.String(),
	})
}
