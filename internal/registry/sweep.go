package registry

import (
	"context"
	"log"
	"time"

	"github.com/SteamVC/SteamVC_Room/backend/signaling-server/internal/metrics"
)

// RunSweeper は一定間隔で空ルームの回収を実行します
// 空ルームは本来 RemoveParticipant が同期的に削除するため、
// ここで回収された場合はクリーンアップ処理の取りこぼしを意味します
// ctx のキャンセルで停止します
func RunSweeper(ctx context.Context, reg *Registry, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			swept := reg.SweepEmptyRooms()
			if len(swept) == 0 {
				continue
			}
			metrics.SweptRooms.Add(float64(len(swept)))
			// 同期削除が働いていれば到達しないはずの経路。目立つように記録する
			log.Printf("sweep reclaimed %d empty room(s) missed by synchronous cleanup: %v", len(swept), swept)
		}
	}
}
