// Package metrics はPrometheusのメトリクスを定義します
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Connections は現在のWebSocket接続数
	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signaling_connections",
		Help: "Number of currently connected clients.",
	})

	// EventsTotal はタイプ別の受信イベント数
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signaling_events_total",
		Help: "Total inbound events by type.",
	}, []string{"type"})

	// RelayedTotal はタイプ別の転送メッセージ数（offer/answer/ice-candidate）
	RelayedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signaling_relayed_total",
		Help: "Total relayed negotiation messages by type.",
	}, []string{"type"})

	// DroppedDeliveries は配送できずに破棄したメッセージ数
	// （切断済みの宛先、または送信バッファ満杯）
	DroppedDeliveries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signaling_dropped_deliveries_total",
		Help: "Total messages dropped because the target was gone or its send buffer was full.",
	})

	// SweptRooms は定期スイープで回収された空ルーム数
	SweptRooms = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signaling_swept_rooms_total",
		Help: "Total empty rooms reclaimed by the periodic sweep.",
	})
)

// RegisterRoomCount は現在のルーム数を返すゲージを登録します
// レジストリへの依存を避けるため、コールバックで受け取ります
func RegisterRoomCount(f func() float64) {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "signaling_rooms",
		Help: "Number of currently active rooms.",
	}, f)
}

// Handler は /metrics 用のハンドラーを返します
func Handler() http.Handler {
	return promhttp.Handler()
}
