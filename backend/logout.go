package backend

import (
	"github.com/julienschmidt/httprouter"
)

func logout(r *request, params httprouter.Params) error {
	if err := r.Sessions.Destroy(r.req.Context()); err != nil {
		return err
	}
	return r.ok(struct{}{})
}
