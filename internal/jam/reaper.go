package jam

import (
	"context"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

// StartReaper starts the background sweep that evicts jams nobody has
// talked to within the inactivity timeout. It is the only path that can
// destroy a jam without an explicit host departure.
func (s *Server) StartReaper(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				s.reapIdleJams(ctx)
			}
		}
	}()
}

func (s *Server) reapIdleJams(ctx context.Context) {
	cutoff := time.Now().Add(-s.idleTimeout)
	for _, j := range s.registry.all() {
		if !j.idleBefore(cutoff) {
			continue
		}
		log.Printf("jam-service: reaping idle jam %s", j.ID())
		if s.endJam(j, "Session timed out due to inactivity", websocket.CloseGoingAway, nil) {
			s.events.Publish(ctx, eventJamTimedOut, map[string]any{
				"jam_id": j.ID(),
			})
		}
	}
}
