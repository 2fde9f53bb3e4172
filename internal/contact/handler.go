package contact

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

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := web.Decode(w, r, &req); err != nil {
		web.Error(w, r, err)
		return
	}
	started, err := h.Service.Start(r.Context(), userID(r), &req)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusCreated, web.Message{Message: "contact created", Data: started})
}

func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	chatID, err := web.IDParam(r, "chatID")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	var req SendRequest
	if err := web.Decode(w, r, &req); err != nil {
		web.Error(w, r, err)
		return
	}
	req.ChatID = chatID

	msg, err := h.Service.Send(r.Context(), userID(r), &req)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusCreated, web.Message{Message: "message sent", Data: msg})
}

func (h *Handler) Edit(w http.ResponseWriter, r *http.Request) {
	chatID, err := web.IDParam(r, "chatID")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	messageID, err := web.IDParam(r, "messageID")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	var req EditRequest
	if err := web.Decode(w, r, &req); err != nil {
		web.Error(w, r, err)
		return
	}
	req.ChatID, req.MessageID = chatID, messageID

	msg, err := h.Service.Edit(r.Context(), userID(r), &req)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, web.Message{Message: "message updated", Data: msg})
}

func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	chatID, err := web.IDParam(r, "chatID")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	messageID, err := web.IDParam(r, "messageID")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	if err := h.Service.Delete(r.Context(), userID(r), &DeleteRequest{ChatID: chatID, MessageID: messageID}); err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, web.Message{Message: "message deleted"})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	chatID, err := web.IDParam(r, "chatID")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	deleted, err := h.Service.DeleteConversation(r.Context(), userID(r), chatID)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	msg := "your messages were deleted"
	if deleted {
		msg = "contact deleted"
	}
	web.JSON(w, http.StatusOK, web.Message{Message: msg})
}

func (h *Handler) Messages(w http.ResponseWriter, r *http.Request) {
	chatID, err := web.IDParam(r, "chatID")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	before, limit, err := web.Page(r)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	history, err := h.Service.History(r.Context(), userID(r), chatID, before, limit)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, web.Message{Data: history})
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	chatID, err := web.IDParam(r, "chatID")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	msgs, err := h.Service.Search(r.Context(), userID(r), chatID, r.URL.Query().Get("q"))
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, web.Message{Data: msgs})
}
