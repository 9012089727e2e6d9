package backend

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/wansing/pressroom/core"
)

type submitData struct {
	Type  string            `json:"type"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Meta  map[string]string `json:"meta"`
}

func submit(r *request, params httprouter.Params) error {

	var data submitData
	if err := r.decode(&data); err != nil {
		return err
	}

	t, err := core.ParseContentType(data.Type)
	if err != nil {
		return err
	}

	meta, err := r.DB.Submit(r.req.Context(), r.Identity, core.UncreatedContent{
		Type:  t,
		Title: data.Title,
		Body:  data.Body,
		Meta:  data.Meta,
	})
	if err != nil {
		return err
	}

	writeJSON(r.w, http.StatusCreated, meta)
	return nil
}

func contentRef(params httprouter.Params) (core.ContentRef, error) {
	t, err := core.ParseContentType(params.ByName("type"))
	if err != nil {
		return core.ContentRef{}, err
	}
	id, ok := parseID(params.ByName("id"))
	if !ok {
		return core.ContentRef{}, core.ErrContentNotFound
	}
	return core.ContentRef{Type: t, ID: id}, nil
}

func view(r *request, params httprouter.Params) error {
	ref, err := contentRef(params)
	if err != nil {
		return err
	}
	details, err := r.DB.GetContentMetadataDetails(r.req.Context(), r.Identity, ref)
	if err != nil {
		return err
	}
	return r.ok(details)
}

func hide(r *request, params httprouter.Params) error {
	ref, err := contentRef(params)
	if err != nil {
		return err
	}
	meta, err := r.DB.Hide(r.req.Context(), r.Identity, ref)
	if err != nil {
		return err
	}
	return r.ok(meta)
}

func submitDraft(r *request, params httprouter.Params) error {
	ref, err := contentRef(params)
	if err != nil {
		return err
	}
	meta, err := r.DB.SubmitDraft(r.req.Context(), r.Identity, ref)
	if err != nil {
		return err
	}
	return r.ok(meta)
}

func del(r *request, params httprouter.Params) error {
	ref, err := contentRef(params)
	if err != nil {
		return err
	}
	meta, err := r.DB.Delete(r.req.Context(), r.Identity, ref)
	if err != nil {
		return err
	}
	return r.ok(meta)
}
