package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"chatcore/pkg/logger"
	"chatcore/pkg/store"
	"chatcore/pkg/utils"
)

// RegisterAdmin mounts admin-only routes. The role gate runs here, not
// in the middleware, so the same router serves every key class.
func RegisterAdmin(r *mux.Router) {
	r.HandleFunc("/admin/stats", adminOnly(adminStats)).Methods(http.MethodGet)
	r.HandleFunc("/admin/recompute", adminOnly(adminRecompute)).Methods(http.MethodPost)
	r.HandleFunc("/admin/threads/{id}/recompute", adminOnly(adminRecomputeThread)).Methods(http.MethodPost)
}

func adminOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !isAdmin(r) {
			utils.JSONError(w, "forbidden", http.StatusForbidden)
			return
		}
		h(w, r)
	}
}

func adminStats(w http.ResponseWriter, r *http.Request) {
	ths, err := store.ListThreads()
	if err != nil {
		writeErr(w, err)
		return
	}
	active, deleted := 0, 0
	for _, th := range ths {
		if th.Deleted {
			deleted++
		} else {
			active++
		}
	}
	utils.JSONWrite(w, map[string]any{
		"threads_active":  active,
		"threads_deleted": deleted,
		"store_ready":     store.Ready(),
	})
}

func adminRecompute(w http.ResponseWriter, r *http.Request) {
	n, err := svc.RecomputeAll()
	if err != nil {
		writeErr(w, err)
		return
	}
	logger.Info("recompute_requested", "threads", n)
	utils.JSONWrite(w, map[string]any{"recomputed": n})
}

func adminRecomputeThread(w http.ResponseWriter, r *http.Request) {
	th, err := svc.Recompute(mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, err)
		return
	}
	utils.JSONWrite(w, th)
}
