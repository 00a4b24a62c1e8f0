package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"chatcore/pkg/logger"
	"chatcore/pkg/models"
	"chatcore/pkg/store"
	"chatcore/pkg/threads"
	"chatcore/pkg/utils"
)

// RegisterThreads mounts thread-level routes on the given router.
func RegisterThreads(r *mux.Router) {
	r.HandleFunc("/threads", createThread).Methods(http.MethodPost)
	r.HandleFunc("/threads", listThreads).Methods(http.MethodGet)
	r.HandleFunc("/threads/{id}", getThread).Methods(http.MethodGet)
	r.HandleFunc("/threads/{id}", deleteThread).Methods(http.MethodDelete)
	r.HandleFunc("/threads/{id}/messages", appendMessage).Methods(http.MethodPost)
	r.HandleFunc("/threads/{id}/messages", listMessages).Methods(http.MethodGet)
	r.HandleFunc("/threads/{id}/read", markRead).Methods(http.MethodPost)
	r.HandleFunc("/threads/{id}/typing", listTyping).Methods(http.MethodGet)
	r.HandleFunc("/threads/{id}/pins", pinMessage).Methods(http.MethodPost)
	r.HandleFunc("/threads/{id}/pins/{msgID}", unpinMessage).Methods(http.MethodDelete)
}

func createThread(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name         string   `json:"name"`
		Participants []string `json:"participants"`
	}
	if err := decodeJSON(r, &in); err != nil {
		utils.JSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	participants := in.Participants
	if user := caller(r); user != "" {
		found := false
		for _, p := range participants {
			if p == user {
				found = true
				break
			}
		}
		if !found {
			participants = append(participants, user)
		}
	}
	th, err := svc.CreateThread(models.Thread{Name: in.Name, Participants: participants})
	if err != nil {
		writeErr(w, err)
		return
	}
	logger.Info("thread_created", "thread", th.ID, "participants", len(th.Participants))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	utils.JSONWrite(w, th)
}

func listThreads(w http.ResponseWriter, r *http.Request) {
	user := caller(r)
	if user == "" {
		user = r.URL.Query().Get("user")
	}
	if user == "" {
		utils.JSONError(w, "missing user identity", http.StatusBadRequest)
		return
	}
	ths, err := svc.ListThreadsFor(user)
	if err != nil {
		writeErr(w, err)
		return
	}
	utils.JSONWrite(w, map[string]any{"threads": ths})
}

func getThread(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ok, err := canReadThread(r, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	if !ok {
		writeErr(w, store.ErrInvalidParticipant)
		return
	}
	th, err := svc.GetThread(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	utils.JSONWrite(w, th)
}

func deleteThread(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := svc.DeleteThread(id, caller(r), isAdmin(r)); err != nil {
		writeErr(w, err)
		return
	}
	logger.Info("thread_deleted", "thread", id)
	w.WriteHeader(http.StatusNoContent)
}

func appendMessage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var in struct {
		Content       string              `json:"content"`
		Type          string              `json:"type,omitempty"`
		Attachments   []models.Attachment `json:"attachments,omitempty"`
		ForwardedFrom string              `json:"forwarded_from,omitempty"`
	}
	if err := decodeJSON(r, &in); err != nil {
		utils.JSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	sender := caller(r)
	if sender == "" {
		utils.JSONError(w, "missing user identity", http.StatusUnauthorized)
		return
	}
	m, err := svc.Append(threads.AppendInput{
		Thread:        id,
		Sender:        sender,
		Content:       in.Content,
		Type:          models.MessageType(in.Type),
		Attachments:   in.Attachments,
		ForwardedFrom: in.ForwardedFrom,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	utils.JSONWrite(w, m)
}

func listMessages(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ok, err := canReadThread(r, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	if !ok {
		writeErr(w, store.ErrInvalidParticipant)
		return
	}
	var since int64
	if v := r.URL.Query().Get("since"); v != "" {
		since, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			utils.JSONError(w, "invalid since parameter", http.StatusBadRequest)
			return
		}
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			utils.JSONError(w, "invalid limit parameter", http.StatusBadRequest)
			return
		}
	}
	msgs, err := svc.Messages(id, since, limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	utils.JSONWrite(w, map[string]any{"messages": msgs})
}

func markRead(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var in struct {
		UpTo int64 `json:"up_to"`
	}
	if err := decodeJSON(r, &in); err != nil {
		utils.JSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	reader := caller(r)
	if reader == "" {
		utils.JSONError(w, "missing user identity", http.StatusUnauthorized)
		return
	}
	th, err := svc.MarkSeen(id, reader, in.UpTo)
	if err != nil {
		writeErr(w, err)
		return
	}
	utils.JSONWrite(w, map[string]any{"thread": th.ID, "unread": th.Unread[reader]})
}

func listTyping(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ok, err := canReadThread(r, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	if !ok {
		writeErr(w, store.ErrInvalidParticipant)
		return
	}
	utils.JSONWrite(w, map[string]any{"typing": registry.Typing(id)})
}

func pinMessage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var in struct {
		MessageID string `json:"message_id"`
	}
	if err := decodeJSON(r, &in); err != nil || in.MessageID == "" {
		utils.JSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	th, err := svc.Pin(id, caller(r), in.MessageID)
	if err != nil {
		writeErr(w, err)
		return
	}
	utils.JSONWrite(w, map[string]any{"thread": th.ID, "pinned": th.Pinned})
}

func unpinMessage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	th, err := svc.Unpin(vars["id"], caller(r), vars["msgID"])
	if err != nil {
		writeErr(w, err)
		return
	}
	utils.JSONWrite(w, map[string]any{"thread": th.ID, "pinned": th.Pinned})
}
