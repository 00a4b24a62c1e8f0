package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"chatcore/pkg/auth"
	"chatcore/pkg/presence"
	"chatcore/pkg/store"
	"chatcore/pkg/threads"
	"chatcore/pkg/typing"
	"chatcore/pkg/utils"
)

// Package-level collaborators, set once at startup via Configure.
var (
	svc      *threads.Service
	tracker  *presence.Tracker
	registry *typing.Registry
)

// Configure wires the handler package to its collaborators. Must be
// called before any route is served.
func Configure(s *threads.Service, p *presence.Tracker, t *typing.Registry) {
	svc = s
	tracker = p
	registry = t
}

// caller returns the signature-verified user id for the request, or ""
// when the caller is a backend/admin acting without one.
func caller(r *http.Request) string {
	return auth.UserIDFromContext(r.Context())
}

func isAdmin(r *http.Request) bool {
	return auth.RoleFromRequest(r) == auth.RoleAdmin
}

// canReadThread reports whether the caller may see the thread. Backend
// and admin keys see everything; frontend callers must participate.
func canReadThread(r *http.Request, threadID string) (bool, error) {
	role := auth.RoleFromRequest(r)
	if role == auth.RoleAdmin || role == auth.RoleBackend {
		return true, nil
	}
	th, err := svc.GetThread(threadID)
	if err != nil {
		return false, err
	}
	return th.HasParticipant(caller(r)), nil
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeErr maps service errors onto HTTP statuses. Unknown errors are
// treated as rejected input; storage faults surface as 503.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrThreadNotFound), errors.Is(err, store.ErrMessageNotFound):
		utils.JSONError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, store.ErrInvalidParticipant),
		errors.Is(err, store.ErrNotAuthor),
		errors.Is(err, store.ErrNotAuthorOrAdmin):
		utils.JSONError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, store.ErrMessageDeleted),
		errors.Is(err, store.ErrPinLimitExceeded),
		errors.Is(err, store.ErrConflict):
		utils.JSONError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, store.ErrStorageUnavailable):
		utils.JSONError(w, "storage unavailable", http.StatusServiceUnavailable)
	default:
		utils.JSONError(w, err.Error(), http.StatusBadRequest)
	}
}
