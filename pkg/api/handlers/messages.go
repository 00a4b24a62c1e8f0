package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"chatcore/pkg/store"
	"chatcore/pkg/utils"
)

// RegisterMessages mounts message-level routes on the given router.
func RegisterMessages(r *mux.Router) {
	r.HandleFunc("/messages/{id}", getMessage).Methods(http.MethodGet)
	r.HandleFunc("/messages/{id}", editMessage).Methods(http.MethodPut)
	r.HandleFunc("/messages/{id}", deleteMessage).Methods(http.MethodDelete)
	r.HandleFunc("/messages/{id}/versions", listVersions).Methods(http.MethodGet)
	r.HandleFunc("/messages/{id}/reactions", setReaction).Methods(http.MethodPost)
	r.HandleFunc("/messages/{id}/reactions", clearReaction).Methods(http.MethodDelete)
	r.HandleFunc("/messages/{id}/seen", markSeenMessage).Methods(http.MethodPost)
}

func getMessage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	m, err := store.GetLatestMessage(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	ok, err := canReadThread(r, m.Thread)
	if err != nil {
		writeErr(w, err)
		return
	}
	if !ok {
		writeErr(w, store.ErrInvalidParticipant)
		return
	}
	utils.JSONWrite(w, m)
}

func editMessage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var in struct {
		Content string `json:"content"`
	}
	if err := decodeJSON(r, &in); err != nil {
		utils.JSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	editor := caller(r)
	if editor == "" {
		utils.JSONError(w, "missing user identity", http.StatusUnauthorized)
		return
	}
	m, err := svc.Edit(id, editor, in.Content)
	if err != nil {
		writeErr(w, err)
		return
	}
	utils.JSONWrite(w, m)
}

func deleteMessage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	m, err := svc.Delete(id, caller(r), isAdmin(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	utils.JSONWrite(w, m)
}

func listVersions(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	m, err := store.GetLatestMessage(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	ok, err := canReadThread(r, m.Thread)
	if err != nil {
		writeErr(w, err)
		return
	}
	if !ok {
		writeErr(w, store.ErrInvalidParticipant)
		return
	}
	versions, err := svc.Versions(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	utils.JSONWrite(w, map[string]any{"versions": versions})
}

func setReaction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var in struct {
		Symbol string `json:"symbol"`
	}
	if err := decodeJSON(r, &in); err != nil {
		utils.JSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	user := caller(r)
	if user == "" {
		utils.JSONError(w, "missing user identity", http.StatusUnauthorized)
		return
	}
	m, err := svc.React(id, user, in.Symbol)
	if err != nil {
		writeErr(w, err)
		return
	}
	utils.JSONWrite(w, m)
}

func clearReaction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	user := caller(r)
	if user == "" {
		utils.JSONError(w, "missing user identity", http.StatusUnauthorized)
		return
	}
	m, err := svc.React(id, user, "")
	if err != nil {
		writeErr(w, err)
		return
	}
	utils.JSONWrite(w, m)
}

func markSeenMessage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	reader := caller(r)
	if reader == "" {
		utils.JSONError(w, "missing user identity", http.StatusUnauthorized)
		return
	}
	th, err := svc.MarkSeenMessage(id, reader)
	if err != nil {
		writeErr(w, err)
		return
	}
	utils.JSONWrite(w, map[string]any{"thread": th.ID, "unread": th.Unread[reader]})
}
