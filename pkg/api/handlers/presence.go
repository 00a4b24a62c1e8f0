package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"chatcore/pkg/utils"
)

// RegisterPresence mounts presence lookup routes.
func RegisterPresence(r *mux.Router) {
	r.HandleFunc("/presence/{user}", getPresence).Methods(http.MethodGet)
}

func getPresence(w http.ResponseWriter, r *http.Request) {
	utils.JSONWrite(w, tracker.Get(mux.Vars(r)["user"]))
}
