// Package registry はルームと参加者のインメモリレジストリを提供します
// すべての状態はプロセス内に保持され、再起動時にゼロから再構築されます
package registry

import (
	"sync"
	"time"
)

// Participant はルーム内の参加者のスナップショットです
// ブロードキャストやHTTPの読み取りAPIでそのままJSONとして返されます
type Participant struct {
	ID        string `json:"id"`        // 接続ID（トランスポート層が割り当てる）
	Name      string `json:"name"`      // 表示名（クライアント申告、検証なし）
	IsTalking bool   `json:"isTalking"` // 発話状態（参加時はfalse）
	JoinedAt  int64  `json:"joinedAt"`  // 参加日時（Unixミリ秒）
}

// RoomInfo はルームのメタ情報のスナップショットです
type RoomInfo struct {
	RoomID    string `json:"roomId"`    // ルームID
	CreatedAt int64  `json:"createdAt"` // ルーム作成日時（Unixミリ秒）
	Count     int    `json:"count"`     // 現在の参加者数
}

// member はルームが排他的に所有する参加者レコード
type member struct {
	name     string
	talking  bool
	joinedAt time.Time
}

// room は1つのルームの状態を保持します
// members の読み書きは必ず mu を保持して行います
type room struct {
	id        string
	createdAt time.Time

	mu      sync.Mutex
	members map[string]*member // 接続IDをキーとした参加者のマップ
	order   []string           // 参加順（スナップショットの並び）
	dead    bool               // レジストリから削除済み。掴んだ呼び出し側は取り直す
}

// snapshotLocked は参加順のスナップショットを構築します（mu保持前提）
func (rm *room) snapshotLocked() []Participant {
	out := make([]Participant, 0, len(rm.order))
	for _, id := range rm.order {
		m, ok := rm.members[id]
		if !ok {
			continue
		}
		out = append(out, Participant{
			ID:        id,
			Name:      m.name,
			IsTalking: m.talking,
			JoinedAt:  m.joinedAt.UnixMilli(),
		})
	}
	return out
}

// removeFromOrderLocked は参加順リストから接続IDを取り除きます（mu保持前提）
func (rm *room) removeFromOrderLocked(connID string) {
	for i, id := range rm.order {
		if id == connID {
			rm.order = append(rm.order[:i], rm.order[i+1:]...)
			return
		}
	}
}

// Registry はルームIDをキーとしたルームのレジストリです
// 複数のgoroutineから同時にアクセス可能です
// ルームは最初の参加で遅延生成され、最後の退出で同期的に削除されます
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*room
}

// New は空のRegistryを作成します
func New() *Registry {
	return &Registry{rooms: make(map[string]*room)}
}

// getOrCreate はルームを取得し、存在しない場合は空のルームを作成します
// 冪等であり、失敗しません
func (r *Registry) getOrCreate(roomID string) *room {
	r.mu.RLock()
	rm, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if ok {
		return rm
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if rm, ok := r.rooms[roomID]; ok {
		return rm
	}
	rm = &room{
		id:        roomID,
		createdAt: time.Now(),
		members:   make(map[string]*member),
	}
	r.rooms[roomID] = rm
	return rm
}

// deleteRoom はルームをレジストリから削除します
// 別のルームが同じIDで再生成されている場合は何もしません
func (r *Registry) deleteRoom(roomID string, rm *room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.rooms[roomID]; ok && cur == rm {
		delete(r.rooms, roomID)
	}
}

// AddParticipant は参加者をルームに追加し、追加後の参加者一覧（参加順）を返します
// ルームが存在しない場合は作成します
// 同じ接続IDが既に存在する場合は上書きします（正常運用では発生しません）
func (r *Registry) AddParticipant(roomID, connID, name string) []Participant {
	for {
		rm := r.getOrCreate(roomID)
		rm.mu.Lock()
		if rm.dead {
			// 最後の退出と競合して削除済みのルームを掴んだ。取り直す
			rm.mu.Unlock()
			continue
		}
		if _, exists := rm.members[connID]; !exists {
			rm.order = append(rm.order, connID)
		}
		rm.members[connID] = &member{name: name, joinedAt: time.Now()}
		snap := rm.snapshotLocked()
		rm.mu.Unlock()
		return snap
	}
}

// RemoveParticipant は参加者をルームから取り除きます
// 戻り値は (残りの参加者数, 退出後の参加者一覧, 実際に取り除いたか) です
// 対象が存在しない場合はエラーではなく no-op です（重複退出の競合を吸収）
// ルームが空になった場合はこの呼び出しの中でルーム自体を削除します
func (r *Registry) RemoveParticipant(roomID, connID string) (int, []Participant, bool) {
	r.mu.RLock()
	rm, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return 0, nil, false
	}

	rm.mu.Lock()
	if _, exists := rm.members[connID]; !exists {
		remaining := len(rm.members)
		rm.mu.Unlock()
		return remaining, nil, false
	}
	delete(rm.members, connID)
	rm.removeFromOrderLocked(connID)

	if len(rm.members) == 0 {
		rm.dead = true
		rm.mu.Unlock()
		r.deleteRoom(roomID, rm)
		return 0, nil, true
	}
	remaining := len(rm.members)
	snap := rm.snapshotLocked()
	rm.mu.Unlock()
	return remaining, snap, true
}

// SetTalking は参加者の発話状態を更新します
// ルームと参加者が両方存在する場合のみ適用され、適用したかどうかを返します
// false はエラーではありません（対象が既に退出しているだけ）
func (r *Registry) SetTalking(roomID, connID string, talking bool) (Participant, bool) {
	return r.updateMember(roomID, connID, func(m *member) { m.talking = talking })
}

// Rename は参加者の表示名を更新します
// SetTalking と同じく、対象が存在しない場合は no-op です
func (r *Registry) Rename(roomID, connID, name string) (Participant, bool) {
	return r.updateMember(roomID, connID, func(m *member) { m.name = name })
}

func (r *Registry) updateMember(roomID, connID string, update func(*member)) (Participant, bool) {
	r.mu.RLock()
	rm, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return Participant{}, false
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	m, exists := rm.members[connID]
	if !exists || rm.dead {
		return Participant{}, false
	}
	update(m)
	return Participant{
		ID:        connID,
		Name:      m.name,
		IsTalking: m.talking,
		JoinedAt:  m.joinedAt.UnixMilli(),
	}, true
}

// MemberIDs はルームの参加者の接続ID一覧（参加順）を返します
// ルームが存在しない場合は空を返します
func (r *Registry) MemberIDs(roomID string) []string {
	r.mu.RLock()
	rm, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	out := make([]string, len(rm.order))
	copy(out, rm.order)
	return out
}

// Snapshot はルームのメタ情報と参加者一覧を読み取り専用で返します
// HTTPのルーム照会エンドポイントから利用されます
func (r *Registry) Snapshot(roomID string) (RoomInfo, []Participant, bool) {
	r.mu.RLock()
	rm, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return RoomInfo{}, nil, false
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.dead {
		return RoomInfo{}, nil, false
	}
	info := RoomInfo{
		RoomID:    rm.id,
		CreatedAt: rm.createdAt.UnixMilli(),
		Count:     len(rm.members),
	}
	return info, rm.snapshotLocked(), true
}

// RoomCount は現在のルーム数を返します
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// SweepEmptyRooms は参加者が0人のルームをすべて削除し、そのID一覧を返します
// 同期削除の取りこぼしに対する安全網であり、正常運用では常に空を返すはずです
// 既に存在しないルームの削除は no-op なので、追加の同期は不要です
func (r *Registry) SweepEmptyRooms() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var swept []string
	for id, rm := range r.rooms {
		rm.mu.Lock()
		empty := len(rm.members) == 0
		if empty {
			rm.dead = true
		}
		rm.mu.Unlock()
		if empty {
			delete(r.rooms, id)
			swept = append(swept, id)
		}
	}
	return swept
}
