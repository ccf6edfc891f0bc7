package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/arjenga/tower-backend/internal/hub"
	"github.com/arjenga/tower-backend/internal/room"
)

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// RoomState returns a read-only snapshot of one room, for operators.
func RoomState(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomID")

		reply := make(chan *room.Room, 1)
		h.Inbox() <- hub.GetRoom{ID: roomID, Reply: reply}
		rm := <-reply
		if rm == nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		view := make(chan room.View, 1)
		select {
		case rm.Inbox() <- room.GetState{Reply: view}:
		case <-rm.Done():
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		select {
		case v := <-view:
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(v.Snapshot)
		case <-rm.Done():
			http.Error(w, "room not found", http.StatusNotFound)
		}
	}
}
