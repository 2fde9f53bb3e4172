package admin

import (
	"net/http"

	"go-messenger/internal/auth"
	"go-messenger/internal/web"
)

type Handler struct {
	Service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{Service: s}
}

func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req Credentials
	if err := web.Decode(w, r, &req); err != nil {
		web.Error(w, r, err)
		return
	}
	var caller *auth.Identity
	if id, ok := auth.FromContext(r.Context()); ok {
		caller = &id
	}
	a, err := h.Service.SignUp(r.Context(), caller, &req)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusCreated, web.Message{Message: "admin created", Data: a})
}

func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req Credentials
	if err := web.Decode(w, r, &req); err != nil {
		web.Error(w, r, err)
		return
	}
	res, err := h.Service.SignIn(r.Context(), &req)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, web.Message{Message: "signed in", Data: res})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	a, err := h.Service.Get(r.Context(), id.ID)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, web.Message{Data: a})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	admins, err := h.Service.List(r.Context())
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, web.Message{Data: admins})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := web.Decode(w, r, &req); err != nil {
		web.Error(w, r, err)
		return
	}
	id, _ := auth.FromContext(r.Context())
	a, err := h.Service.Update(r.Context(), id.ID, &req)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, web.Message{Message: "admin updated", Data: a})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	if err := h.Service.Delete(r.Context(), id.ID); err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, web.Message{Message: "admin deleted"})
}
