package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Emmanuelombaye/POS-System-sub000/internal/domain"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/service"
)

// handleEvents streams change events as server-sent events. Non-admins only
// see their own branch.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	rc := http.NewResponseController(w)

	// Subscribe before the first write so a client that has seen the
	// connected comment cannot miss an event.
	feed, cancel := a.events.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		a.logger.Warn().Err(err).Msg("event stream needs a flushing response writer")
		return
	}

	ticker := time.NewTicker(a.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-feed:
			if !ok {
				return
			}
			if !visibleTo(actor, event) {
				continue
			}
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func visibleTo(actor domain.Actor, event domain.ChangeEvent) bool {
	if actor.Role == domain.RoleAdmin || actor.BranchID == "" || event.BranchID == "" {
		return true
	}
	return actor.BranchID == event.BranchID
}
