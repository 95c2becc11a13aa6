package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"kiru/internal/claim"
	"kiru/internal/handlers"
	"kiru/internal/ledger"
	"kiru/internal/storage"
	"kiru/internal/version"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func main() {
	// .envファイルを読み込み（存在しない場合はスキップ）
	_ = godotenv.Load()

	// 環境変数からポート番号を取得（デフォルト: 8080）
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	outDir := os.Getenv("KIRU_OUT")
	if outDir == "" {
		outDir = "out"
	}
	stagingDir := os.Getenv("KIRU_STAGING")
	if stagingDir == "" {
		stagingDir = filepath.Join(outDir, "staging")
	}

	led, err := ledger.Open(filepath.Join(outDir, "processed.txt"))
	if err != nil {
		log.Fatalf("Failed to open ledger: %v", err)
	}
	defer led.Close()

	locks, err := claim.NewRegistry(filepath.Join(outDir, "locks"))
	if err != nil {
		log.Fatalf("Failed to open lock registry: %v", err)
	}

	db, err := storage.Open(filepath.Join(outDir, "index.db"))
	if err != nil {
		log.Fatalf("Failed to open index database: %v", err)
	}
	defer db.Close()

	statusHandler := handlers.NewStatusHandler(led, locks, stagingDir)
	recordHandler := handlers.NewRecordHandler(storage.NewRecordRepository(db))

	// Echoインスタンスの作成
	e := echo.New()

	// ミドルウェアの設定
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// ルートの登録
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{
			"status":  "ok",
			"version": version.Version,
		})
	})
	e.GET("/api/status", statusHandler.Status)
	e.GET("/api/records", recordHandler.List)
	e.GET("/api/records/count", recordHandler.Count)

	// サーバー起動
	log.Printf("Starting kiru v%s on port %s", version.Version, port)
	if err := e.Start(fmt.Sprintf(":%s", port)); err != nil {
		log.Fatal(err)
	}
}
