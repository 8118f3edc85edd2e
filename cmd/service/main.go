package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"jam-service/internal/jam"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

func main() {
	ctx := context.Background()

	port := getenv("PORT", "8000")
	redisURL := getenv("REDIS_URL", "")
	manifest := getenv("SONG_MANIFEST", "hosted_songs_manifest.json")

	// Redis is optional; without it lifecycle events are simply not
	// published.
	var rdb *redis.Client
	if redisURL != "" {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Fatalf("jam-service: invalid REDIS_URL: %v", err)
		}
		rdb = redis.NewClient(opt)
		defer rdb.Close()
	}

	srv := jam.NewServer(jam.NewRegistry(), jam.NewEventPublisher(rdb), manifest)
	srv.StartReaper(ctx)

	r := srv.Router(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
	)

	log.Printf("jam-service listening on :%s", port)
	if err := http.ListenAndServe(":"+port, r); err != nil {
		log.Fatalf("jam-service: %v", err)
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
