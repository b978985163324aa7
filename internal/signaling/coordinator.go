// Package signaling はセッションコーディネーターを提供します
// 接続ごとのルーム所属状態を管理し、受信イベントをレジストリ操作と
// ブロードキャスト / ユニキャスト送信に変換します
package signaling

import (
	"encoding/json"
	"hash/fnv"
	"log"
	"strings"
	"sync"

	"github.com/SteamVC/SteamVC_Room/backend/signaling-server/internal/metrics"
	"github.com/SteamVC/SteamVC_Room/backend/signaling-server/internal/registry"
)

// roomLockShards はルーム単位の順序ロックのシャード数
const roomLockShards = 64

// Peer は1つの接続への送信口です
// Send はブロックせず、配送できなかった場合は false を返します
// （切断済み、または送信バッファ満杯。いずれも呼び出し側にとってはエラーではありません）
type Peer interface {
	Send(msg Outbound) bool
}

// session は接続1つにつき1レコードのセッション状態です
// room / name の読み書きはその接続の読み取りループからのみ行われます
type session struct {
	peer Peer
	name string
	room string // 現在参加中のルームID（未参加なら空文字）
}

// Coordinator は全接続のセッションとルームイベントの配送を調整します
type Coordinator struct {
	reg *registry.Registry

	mu       sync.RWMutex
	sessions map[string]*session

	// 同一ルームに対する「レジストリ変更＋通知キュー投入」を直列化するロック
	// ルームIDのハッシュでシャードを選ぶため、無関係なルーム同士は並行に進みます
	// 旧ルーム退出→新ルーム参加の切り替えはロックを順番に取り直すので、
	// 2つのシャードを同時に保持することはありません
	roomLocks [roomLockShards]sync.Mutex
}

// New は新しいCoordinatorを作成します
func New(reg *registry.Registry) *Coordinator {
	return &Coordinator{
		reg:      reg,
		sessions: make(map[string]*session),
	}
}

// Connect は接続のセッションを登録し、割り当てた接続IDをクライアントへ通知します
func (c *Coordinator) Connect(connID string, peer Peer) {
	c.mu.Lock()
	c.sessions[connID] = &session{peer: peer}
	c.mu.Unlock()

	c.send(peer, Outbound{Type: EventConnected, Payload: connectedPayload{ID: connID}})
	log.Printf("client connected: connId=%s", connID)
}

// Disconnect は切断された接続を現在のルームから退出させ、セッションを破棄します
// 明示的な退出後の切断など、重複呼び出しは no-op です
func (c *Coordinator) Disconnect(connID string) {
	c.mu.Lock()
	sess, ok := c.sessions[connID]
	if ok {
		delete(c.sessions, connID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	c.leaveCurrentRoom(connID, sess)
	log.Printf("client disconnected: connId=%s", connID)
}

// Connections は現在のセッション数を返します
func (c *Coordinator) Connections() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}

// Dispatch は受信イベントを1件処理します
// 不正なペイロードは記録して無視し、他の接続やルームには影響させません
func (c *Coordinator) Dispatch(connID string, env Envelope) {
	sess := c.session(connID)
	if sess == nil {
		// 切断処理と競合した遅延イベント
		return
	}

	switch env.Type {
	case EventJoinRoom:
		metrics.EventsTotal.WithLabelValues(env.Type).Inc()
		c.handleJoin(connID, sess, env.Payload)
	case EventLeaveRoom:
		metrics.EventsTotal.WithLabelValues(env.Type).Inc()
		// 退出はペイロードのルームIDではなく記録済みの現在のルームを対象とする
		// 参加していないルームを指定した迷子の退出イベントは no-op になる
		c.leaveCurrentRoom(connID, sess)
	case EventStartTalking:
		metrics.EventsTotal.WithLabelValues(env.Type).Inc()
		c.handleTalking(connID, env.Payload, true)
	case EventStopTalking:
		metrics.EventsTotal.WithLabelValues(env.Type).Inc()
		c.handleTalking(connID, env.Payload, false)
	case EventOffer, EventAnswer, EventIceCandidate:
		metrics.EventsTotal.WithLabelValues(env.Type).Inc()
		c.handleRelay(connID, env.Type, env.Payload)
	case EventRename:
		metrics.EventsTotal.WithLabelValues(env.Type).Inc()
		c.handleRename(connID, sess, env.Payload)
	case EventPing:
		metrics.EventsTotal.WithLabelValues(env.Type).Inc()
		c.send(sess.peer, Outbound{Type: EventPong})
	default:
		metrics.EventsTotal.WithLabelValues("unknown").Inc()
		log.Printf("unknown event type: connId=%s type=%s", connID, env.Type)
	}
}

// handleJoin はルーム参加を処理します
// 既に別のルームに参加している場合は、先にそのルームからの退出を完了させます
// 未知のルームIDはエラーにせず、そのまま新規作成されます
func (c *Coordinator) handleJoin(connID string, sess *session, payload json.RawMessage) {
	var p joinPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Printf("malformed join-room payload: connId=%s err=%v", connID, err)
		return
	}
	roomID := strings.TrimSpace(p.Room)
	if roomID == "" {
		log.Printf("join-room without room: connId=%s", connID)
		return
	}

	c.leaveCurrentRoom(connID, sess)

	lk := c.roomLock(roomID)
	lk.Lock()
	snap := c.reg.AddParticipant(roomID, connID, p.UserName)
	sess.room = roomID
	sess.name = p.UserName
	// 参加者本人を含むルーム全員に参加後の一覧を通知する
	c.broadcast(snap, "", Outbound{Type: EventUserJoined, Payload: participantsPayload{Participants: snap}})
	lk.Unlock()

	log.Printf("user joined: roomId=%s connId=%s userName=%q members=%d", roomID, connID, p.UserName, len(snap))
}

// leaveCurrentRoom は接続を現在のルームから退出させます
// どのルームにも参加していない場合は no-op です
func (c *Coordinator) leaveCurrentRoom(connID string, sess *session) {
	roomID := sess.room
	if roomID == "" {
		return
	}

	lk := c.roomLock(roomID)
	lk.Lock()
	remaining, snap, removed := c.reg.RemoveParticipant(roomID, connID)
	sess.room = ""
	if removed && remaining > 0 {
		// 残っているメンバーにだけ退出後の一覧を通知する（本人には何も送らない）
		c.broadcast(snap, "", Outbound{Type: EventUserLeft, Payload: participantsPayload{Participants: snap}})
	}
	lk.Unlock()

	if removed {
		log.Printf("user left: roomId=%s connId=%s remaining=%d", roomID, connID, remaining)
	}
}

// handleTalking は発話状態の変更を処理します
// 指定されたルームに実際に参加していない場合は何も起きません
func (c *Coordinator) handleTalking(connID string, payload json.RawMessage, talking bool) {
	var p roomPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Printf("malformed talking payload: connId=%s err=%v", connID, err)
		return
	}
	roomID := strings.TrimSpace(p.Room)
	if roomID == "" {
		log.Printf("talking event without room: connId=%s", connID)
		return
	}

	lk := c.roomLock(roomID)
	lk.Lock()
	defer lk.Unlock()
	part, ok := c.reg.SetTalking(roomID, connID, talking)
	if !ok {
		return
	}
	// 本人は自分の状態を知っているので、それ以外のメンバーに通知する
	c.broadcastIDs(c.reg.MemberIDs(roomID), connID, Outbound{
		Type: EventUserTalking,
		Payload: talkingPayload{
			UserID:    connID,
			UserName:  part.Name,
			IsTalking: talking,
		},
	})
}

// handleRename は表示名の変更を処理します
func (c *Coordinator) handleRename(connID string, sess *session, payload json.RawMessage) {
	var p renamePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Printf("malformed rename payload: connId=%s err=%v", connID, err)
		return
	}
	name := strings.TrimSpace(p.UserName)
	if name == "" {
		log.Printf("rename without userName: connId=%s", connID)
		return
	}
	roomID := sess.room
	if roomID == "" {
		return
	}

	lk := c.roomLock(roomID)
	lk.Lock()
	part, ok := c.reg.Rename(roomID, connID, name)
	if ok {
		sess.name = name
		c.broadcastIDs(c.reg.MemberIDs(roomID), connID, Outbound{
			Type:    EventUserRenamed,
			Payload: renamedPayload{UserID: connID, UserName: part.Name},
		})
	}
	lk.Unlock()

	if ok {
		log.Printf("user renamed: roomId=%s connId=%s userName=%q", roomID, connID, name)
	}
}

// handleRelay は offer / answer / ice-candidate を宛先の接続へそのまま転送します
// ルームの所属確認は行いません（アドレス指定の純粋なパススルー）
// 宛先が切断済みの場合は黙って破棄し、送信者には通知しません
func (c *Coordinator) handleRelay(connID, eventType string, payload json.RawMessage) {
	var p relayPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Printf("malformed %s payload: connId=%s err=%v", eventType, connID, err)
		return
	}
	field, body := p.body(eventType)
	if body == nil || p.To == "" {
		log.Printf("%s missing %s or to: connId=%s", eventType, eventType, connID)
		return
	}

	target := c.session(p.To)
	if target == nil {
		metrics.DroppedDeliveries.Inc()
		return
	}
	c.send(target.peer, Outbound{
		Type: eventType,
		Payload: map[string]any{
			field:  body,
			"from": connID,
			"room": p.Room,
		},
	})
	metrics.RelayedTotal.WithLabelValues(eventType).Inc()
}

// session は接続IDに対応するセッションを返します（存在しなければnil）
func (c *Coordinator) session(connID string) *session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessions[connID]
}

// roomLock はルームIDに対応するシャードロックを返します
func (c *Coordinator) roomLock(roomID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(roomID))
	return &c.roomLocks[h.Sum32()%roomLockShards]
}

// broadcast はスナップショット上の全参加者にメッセージを送ります
// excludeConnID が空でなければその接続を除外します
func (c *Coordinator) broadcast(members []registry.Participant, excludeConnID string, msg Outbound) {
	for _, m := range members {
		if m.ID == excludeConnID {
			continue
		}
		c.sendTo(m.ID, msg)
	}
}

// broadcastIDs は接続IDの一覧にメッセージを送ります
func (c *Coordinator) broadcastIDs(connIDs []string, excludeConnID string, msg Outbound) {
	for _, id := range connIDs {
		if id == excludeConnID {
			continue
		}
		c.sendTo(id, msg)
	}
}

func (c *Coordinator) sendTo(connID string, msg Outbound) {
	sess := c.session(connID)
	if sess == nil {
		metrics.DroppedDeliveries.Inc()
		return
	}
	c.send(sess.peer, msg)
}

func (c *Coordinator) send(peer Peer, msg Outbound) {
	if !peer.Send(msg) {
		metrics.DroppedDeliveries.Inc()
	}
}
