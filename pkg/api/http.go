package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"chatcore/pkg/api/handlers"
	"chatcore/pkg/presence"
	"chatcore/pkg/store"
	"chatcore/pkg/threads"
	"chatcore/pkg/typing"
	"chatcore/pkg/utils"
)

// NewRouter builds the versioned API router. The websocket gateway is
// passed as a plain handler so this package stays transport-agnostic.
func NewRouter(svc *threads.Service, tracker *presence.Tracker, registry *typing.Registry, gateway http.Handler) *mux.Router {
	handlers.Configure(svc, tracker, registry)

	r := mux.NewRouter()
	r.HandleFunc("/healthz", healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", readyz).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	handlers.RegisterThreads(v1)
	handlers.RegisterMessages(v1)
	handlers.RegisterPresence(v1)
	handlers.RegisterAdmin(v1)
	if gateway != nil {
		v1.Handle("/ws", gateway).Methods(http.MethodGet)
	}
	return r
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	utils.JSONWrite(w, map[string]string{"status": "ok"})
}

func readyz(w http.ResponseWriter, _ *http.Request) {
	if !store.Ready() {
		utils.JSONError(w, "store not ready", http.StatusServiceUnavailable)
		return
	}
	utils.JSONWrite(w, map[string]string{"status": "ready"})
}
