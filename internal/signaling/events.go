package signaling

import (
	"encoding/json"

	"github.com/SteamVC/SteamVC_Room/backend/signaling-server/internal/registry"
)

// 受信イベント名
const (
	EventJoinRoom     = "join-room"
	EventLeaveRoom    = "leave-room"
	EventStartTalking = "start-talking"
	EventStopTalking  = "stop-talking"
	EventOffer        = "offer"
	EventAnswer       = "answer"
	EventIceCandidate = "ice-candidate"
	EventRename       = "rename"
	EventPing         = "ping"
)

// 送信イベント名
const (
	EventConnected   = "connected"
	EventUserJoined  = "user-joined"
	EventUserLeft    = "user-left"
	EventUserTalking = "user-talking"
	EventUserRenamed = "user-renamed"
	EventPong        = "pong"
)

// Envelope はWebSocketで受信するメッセージの封筒です
// ペイロードはイベントごとの型に遅延デコードされます
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Outbound はWebSocketで送信するメッセージの封筒です
type Outbound struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// 受信ペイロード

type joinPayload struct {
	Room     string `json:"room"`
	UserName string `json:"userName"`
}

type roomPayload struct {
	Room string `json:"room"`
}

type renamePayload struct {
	UserName string `json:"userName"`
}

// relayPayload は offer / answer / ice-candidate の共通ペイロードです
// ネゴシエーション内容はサーバーでは解釈せず、そのまま転送します
type relayPayload struct {
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	To        string          `json:"to"`
	Room      string          `json:"room"`
}

// body はイベント種別に対応するフィールドを返します
func (p relayPayload) body(eventType string) (field string, raw json.RawMessage) {
	switch eventType {
	case EventOffer:
		return "offer", p.Offer
	case EventAnswer:
		return "answer", p.Answer
	case EventIceCandidate:
		return "candidate", p.Candidate
	}
	return "", nil
}

// 送信ペイロード

type connectedPayload struct {
	ID string `json:"id"`
}

type participantsPayload struct {
	Participants []registry.Participant `json:"participants"`
}

type talkingPayload struct {
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	IsTalking bool   `json:"isTalking"`
}

type renamedPayload struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}
