package group

import (
	"context"
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
	g, err := h.Service.Create(r.Context(), userID(r), &req)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusCreated, web.Message{Message: "group created", Data: g})
}

func (h *Handler) Biography(w http.ResponseWriter, r *http.Request) {
	groupID, err := web.IDParam(r, "groupID")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	bio, err := h.Service.Biography(r.Context(), userID(r), groupID)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, web.Message{Data: bio})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	groupID, err := web.IDParam(r, "groupID")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	if err := h.Service.Delete(r.Context(), userID(r), groupID); err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, web.Message{Message: "group deleted"})
}

func (h *Handler) AddMembers(w http.ResponseWriter, r *http.Request) {
	h.changeMembers(w, r, h.Service.AddMembers, "members added")
}

func (h *Handler) RemoveMembers(w http.ResponseWriter, r *http.Request) {
	h.changeMembers(w, r, h.Service.RemoveMembers, "members removed")
}

func (h *Handler) changeMembers(w http.ResponseWriter, r *http.Request,
	change func(ctx context.Context, userID, groupID int64, req *MembersRequest) ([]int64, error), msg string) {
	groupID, err := web.IDParam(r, "groupID")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	var req MembersRequest
	if err := web.Decode(w, r, &req); err != nil {
		web.Error(w, r, err)
		return
	}
	ids, err := change(r.Context(), userID(r), groupID, &req)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, web.Message{Message: msg, Data: MembersChanged{GroupID: groupID, MemberIDs: ids}})
}

func (h *Handler) Leave(w http.ResponseWriter, r *http.Request) {
	groupID, err := web.IDParam(r, "groupID")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	if err := h.Service.Leave(r.Context(), userID(r), groupID); err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, web.Message{Message: "you left the group"})
}

func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	groupID, err := web.IDParam(r, "groupID")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	var req SendRequest
	if err := web.Decode(w, r, &req); err != nil {
		web.Error(w, r, err)
		return
	}
	req.GroupID = groupID

	msg, err := h.Service.Send(r.Context(), userID(r), &req)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusCreated, web.Message{Message: "message sent", Data: msg})
}

func (h *Handler) Edit(w http.ResponseWriter, r *http.Request) {
	groupID, err := web.IDParam(r, "groupID")
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
	req.GroupID, req.MessageID = groupID, messageID

	msg, err := h.Service.Edit(r.Context(), userID(r), &req)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, web.Message{Message: "message updated", Data: msg})
}

func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	groupID, err := web.IDParam(r, "groupID")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	messageID, err := web.IDParam(r, "messageID")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	if err := h.Service.DeleteMessage(r.Context(), userID(r), &DeleteRequest{GroupID: groupID, MessageID: messageID}); err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, web.Message{Message: "message deleted"})
}

func (h *Handler) DeleteMessages(w http.ResponseWriter, r *http.Request) {
	groupID, err := web.IDParam(r, "groupID")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	var req BulkDeleteRequest
	if err := web.Decode(w, r, &req); err != nil {
		web.Error(w, r, err)
		return
	}
	deleted, err := h.Service.DeleteMessages(r.Context(), userID(r), groupID, &req)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, web.Message{Message: "messages deleted", Data: MessagesDeleted{GroupID: groupID, MessageIDs: deleted}})
}

func (h *Handler) Messages(w http.ResponseWriter, r *http.Request) {
	groupID, err := web.IDParam(r, "groupID")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	before, limit, err := web.Page(r)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	msgs, err := h.Service.History(r.Context(), userID(r), groupID, before, limit)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, web.Message{Data: msgs})
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	groupID, err := web.IDParam(r, "groupID")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	msgs, err := h.Service.Search(r.Context(), userID(r), groupID, r.URL.Query().Get("q"))
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, web.Message{Data: msgs})
}
