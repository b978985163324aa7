package handlers

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/SteamVC/SteamVC_Room/backend/signaling-server/internal/config"
	"github.com/SteamVC/SteamVC_Room/backend/signaling-server/internal/idgen"
	"github.com/SteamVC/SteamVC_Room/backend/signaling-server/internal/metrics"
	"github.com/SteamVC/SteamVC_Room/backend/signaling-server/internal/signaling"
	"github.com/gorilla/websocket"
)

// WebSocketHandler はシグナリング用のWebSocket接続を処理するハンドラー
type WebSocketHandler struct {
	coord        *signaling.Coordinator // イベント処理を担当するコーディネーター
	upgrader     websocket.Upgrader     // HTTPからWebSocketへのアップグレーダー
	sendBuffer   int                    // 接続ごとの送信バッファ（メッセージ数）
	maxMsgBytes  int64                  // 受信メッセージの上限サイズ
	writeTimeout time.Duration          // 1メッセージあたりの書き込みタイムアウト
}

// NewWebSocketHandler は新しいWebSocketHandlerを作成します
func NewWebSocketHandler(coord *signaling.Coordinator, cfg config.Config) *WebSocketHandler {
	return &WebSocketHandler{
		coord: coord,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Originの制限はルーターのCORS設定に合わせて行う
				return true
			},
		},
		sendBuffer:   cfg.SendBuffer,
		maxMsgBytes:  int64(cfg.MaxMessageBytes),
		writeTimeout: time.Duration(cfg.WriteTimeoutSec) * time.Second,
	}
}

// HandleWebSocket はWebSocket接続を処理します
// 接続後、以下の処理を行います:
// 1. HTTPからWebSocketへのアップグレード
// 2. 接続IDの割り当てとコーディネーターへの登録
// 3. メッセージ受信ループの開始
// 4. 切断時の自動退出処理とクリーンアップ
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	connID := idgen.NewULID()
	peer := newWSPeer(conn, h.sendBuffer, h.writeTimeout)
	go peer.writePump()

	h.coord.Connect(connID, peer)
	metrics.Connections.Inc()
	defer func() {
		// 切断時は現在のルームからの退出とセッション破棄をコーディネーターに任せる
		h.coord.Disconnect(connID)
		peer.close()
		metrics.Connections.Dec()
	}()

	conn.SetReadLimit(h.maxMsgBytes)

	// メッセージ受信ループ
	for {
		var env signaling.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: connId=%s err=%v", connID, err)
			}
			return
		}
		h.coord.Dispatch(connID, env)
	}
}

// wsPeer は1つのWebSocket接続への送信口です
// 送信はバッファ付きチャネルへの投入のみで、書き込みはwritePumpが直列に行います
type wsPeer struct {
	conn         *websocket.Conn
	send         chan signaling.Outbound
	done         chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration
}

func newWSPeer(conn *websocket.Conn, buffer int, writeTimeout time.Duration) *wsPeer {
	return &wsPeer{
		conn:         conn,
		send:         make(chan signaling.Outbound, buffer),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
	}
}

// Send はメッセージを送信キューに積みます
// ブロックせず、接続が閉じている場合やバッファが満杯の場合は破棄してfalseを返します
func (p *wsPeer) Send(msg signaling.Outbound) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.send <- msg:
		return true
	default:
		// 遅い受信者のためにルーム全体を待たせない
		return false
	}
}

// writePump は送信キューを1本のgoroutineで書き出します
func (p *wsPeer) writePump() {
	for {
		select {
		case <-p.done:
			return
		case msg := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout))
			if err := p.conn.WriteJSON(msg); err != nil {
				p.close()
				return
			}
		}
	}
}

// close は接続を閉じ、writePumpを停止させます（重複呼び出し可）
func (p *wsPeer) close() {
	p.closeOnce.Do(func() {
		close(p.done)
		_ = p.conn.Close()
	})
}
