package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SteamVC/SteamVC_Room/backend/signaling-server/internal/config"
	"github.com/SteamVC/SteamVC_Room/backend/signaling-server/internal/handlers"
	httpx "github.com/SteamVC/SteamVC_Room/backend/signaling-server/internal/http"
	"github.com/SteamVC/SteamVC_Room/backend/signaling-server/internal/metrics"
	"github.com/SteamVC/SteamVC_Room/backend/signaling-server/internal/registry"
	"github.com/SteamVC/SteamVC_Room/backend/signaling-server/internal/signaling"
)

func main() {
	cfg := config.Load()

	reg := registry.New()
	coord := signaling.New(reg)
	metrics.RegisterRoomCount(func() float64 { return float64(reg.RoomCount()) })

	roomHandler := handlers.NewRoomHandler(reg, coord)
	wsHandler := handlers.NewWebSocketHandler(coord, cfg)
	router := httpx.NewRouter(roomHandler, wsHandler, cfg.AllowedOrigin)

	// 空ルーム回収の定期実行（同期削除の安全網）
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go registry.RunSweeper(sweepCtx, reg, time.Duration(cfg.SweepIntervalSec)*time.Second)

	srv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Graceful shutdown用のシグナルチャネル
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// サーバーを別goroutineで起動
	go func() {
		log.Printf("listening on %s", cfg.APIAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// シャットダウンシグナルを待つ
	<-sigChan
	log.Println("shutdown signal received, shutting down gracefully...")
	stopSweep()

	// 30秒のタイムアウトでGraceful Shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	log.Println("server stopped")
}
