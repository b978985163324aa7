package handlers

import (
	"net/http"
	"time"

	"github.com/SteamVC/SteamVC_Room/backend/signaling-server/internal/registry"
	"github.com/SteamVC/SteamVC_Room/backend/signaling-server/internal/signaling"
	"github.com/go-chi/chi/v5"
)

// RoomHandler はレジストリの読み取り専用HTTPエンドポイントを提供します
// ルームの変更はすべてWebSocketセッション経由で行われるため、ここに書き込み系はありません
type RoomHandler struct {
	reg     *registry.Registry
	coord   *signaling.Coordinator
	started time.Time
}

// NewRoomHandler は新しいRoomHandlerを作成します
func NewRoomHandler(reg *registry.Registry, coord *signaling.Coordinator) *RoomHandler {
	return &RoomHandler{reg: reg, coord: coord, started: time.Now()}
}

// Get はルームの現在の参加者一覧と人数を返します
func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	roomId := normalizeID(chi.URLParam(r, "roomId"))
	if err := validateRoomId(roomId); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	info, participants, ok := h.reg.Snapshot(roomId)
	if !ok {
		respondError(w, http.StatusNotFound, "room not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"roomId":       info.RoomID,
		"createdAt":    info.CreatedAt,
		"count":        info.Count,
		"participants": participants,
	})
}

// Status はプロセスの稼働状況を返します
func (h *RoomHandler) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"uptimeSec":   int64(time.Since(h.started).Seconds()),
		"rooms":       h.reg.RoomCount(),
		"connections": h.coord.Connections(),
	})
}
