package channel

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

func userID(r *http.Request) int64 {
	id, _ := auth.FromContext(r.Context())
	return id.ID
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := web.Decode(w, r, &req); err != nil {
		web.Error(w, r, err)
		return
	}
	c, err := h.Service.Create(r.Context(), userID(r), &req)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusCreated, web.Message{Message: "channel created", Data: c})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	channelID, err := web.IDParam(r, "channelID")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	view, err := h.Service.Get(r.Context(), userID(r), channelID)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, web.Message{Data: view})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	channelID, err := web.IDParam(r, "channelID")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	var req UpdateRequest
	if err := web.Decode(w, r, &req); err != nil {
		web.Error(w, r, err)
		return
	}
	c, err := h.Service.Update(r.Context(), userID(r), channelID, &req)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, web.Message{Message: "channel updated", Data: c})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	channelID, err := web.IDParam(r, "channelID")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	if err := h.Service.Delete(r.Context(), userID(r), channelID); err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, web.Message{Message: "channel deleted"})
}

func (h *Handler) AddAdmins(w http.ResponseWriter, r *http.Request) {
	channelID, err := web.IDParam(r, "channelID")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	var req AdminsRequest
	if err := web.Decode(w, r, &req); err != nil {
		web.Error(w, r, err)
		return
	}
	added, err := h.Service.AddAdmins(r.Context(), userID(r), channelID, &req)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, web.Message{Message: "admins added", Data: added})
}

func (h *Handler) Follow(w http.ResponseWriter, r *http.Request) {
	channelID, err := web.IDParam(r, "channelID")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	if err := h.Service.Follow(r.Context(), userID(r), channelID); err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusCreated, web.Message{Message: "channel followed"})
}

func (h *Handler) Unfollow(w http.ResponseWriter, r *http.Request) {
	channelID, err := web.IDParam(r, "channelID")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	if err := h.Service.Unfollow(r.Context(), userID(r), channelID); err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, web.Message{Message: "channel unfollowed"})
}

func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	channelID, err := web.IDParam(r, "channelID")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	var req PostRequest
	if err := web.Decode(w, r, &req); err != nil {
		web.Error(w, r, err)
		return
	}
	req.ChannelID = channelID

	posted, err := h.Service.Post(r.Context(), userID(r), &req)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusCreated, web.Message{Message: "content posted", Data: posted})
}

func (h *Handler) Edit(w http.ResponseWriter, r *http.Request) {
	channelID, err := web.IDParam(r, "channelID")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	contentID, err := web.IDParam(r, "contentID")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	var req EditRequest
	if err := web.Decode(w, r, &req); err != nil {
		web.Error(w, r, err)
		return
	}
	req.ChannelID, req.ContentID = channelID, contentID

	c, err := h.Service.Edit(r.Context(), userID(r), &req)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, web.Message{Message: "content updated", Data: c})
}

func (h *Handler) DeleteContent(w http.ResponseWriter, r *http.Request) {
	channelID, err := web.IDParam(r, "channelID")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	contentID, err := web.IDParam(r, "contentID")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	if err := h.Service.DeleteContent(r.Context(), userID(r), &DeleteRequest{ChannelID: channelID, ContentID: contentID}); err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, web.Message{Message: "content deleted"})
}

func (h *Handler) Contents(w http.ResponseWriter, r *http.Request) {
	channelID, err := web.IDParam(r, "channelID")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	before, limit, err := web.Page(r)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	contents, err := h.Service.History(r.Context(), userID(r), channelID, before, limit)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, web.Message{Data: contents})
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	channelID, err := web.IDParam(r, "channelID")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	contents, err := h.Service.Search(r.Context(), userID(r), channelID, r.URL.Query().Get("q"))
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, web.Message{Data: contents})
}
