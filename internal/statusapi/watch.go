// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package statusapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/turnwatch/turnwatch/core/game"
	"github.com/turnwatch/turnwatch/internal/worker/statecache"
)

const (
	// watchBuffer is how many turn changes a slow watcher may fall
	// behind before changes are dropped for it.
	watchBuffer = 16

	writeWait = 10 * time.Second
)

// TurnChange is sent to /watch clients for every detected turn change.
type TurnChange struct {
	Label          string `json:"label"`
	Name           string `json:"name"`
	Turn           int    `json:"turn"`
	AI             []int  `json:"ai,omitempty"`
	Defeated       []int  `json:"defeated,omitempty"`
	PossibleStalls []int  `json:"possible-stalls,omitempty"`
}

func newTurnChange(diff game.DiffResult) TurnChange {
	return TurnChange{
		Label:          diff.Label,
		Name:           diff.State.Name(),
		Turn:           diff.Turn,
		AI:             diff.AI,
		Defeated:       diff.Defeated,
		PossibleStalls: diff.PossibleStalls,
	}
}

var websocketUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// watch streams turn changes to a websocket client until either side
// goes away.
func (w *apiWorker) watch(rw http.ResponseWriter, req *http.Request) {
	w.watchers.Add(1)
	defer w.watchers.Done()

	// Subscribe first so nothing published after the handshake is missed.
	changes := make(chan TurnChange, watchBuffer)
	unsubscribe := w.config.Hub.Subscribe(statecache.TurnChangedTopic, func(_ string, data interface{}) {
		diff, ok := data.(game.DiffResult)
		if !ok {
			return
		}
		select {
		case changes <- newTurnChange(diff):
		default:
			w.config.Logger.Warningf("watcher %s too slow, dropping turn %d of %q", req.RemoteAddr, diff.Turn, diff.Label)
		}
	})
	defer unsubscribe()

	conn, err := websocketUpgrader.Upgrade(rw, req, nil)
	if err != nil {
		w.config.Logger.Debugf("problem initiating websocket: %v", err)
		return
	}

	// Clients never send anything, but reading is how a close is seen.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()
	defer func() {
		_ = conn.Close()
		<-gone
	}()

	for {
		select {
		case <-w.tomb.Dying():
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		case <-gone:
			return
		case change := <-changes:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(change); err != nil {
				w.config.Logger.Debugf("writing to watcher %s: %v", req.RemoteAddr, err)
				return
			}
		}
	}
}
