package jam

import (
	"time"
)

// Song is the track descriptor shared by the jam state, the playlist and
// every wire message that references a track.
type Song struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Artist    string  `json:"artist"`
	URL       string  `json:"url"`
	Thumbnail string  `json:"thumbnail,omitempty"`
	Duration  float64 `json:"duration,omitempty"`
}

// participantInfo is the public view of a connected participant.
type participantInfo struct {
	Name     string `json:"name"`
	JoinTime string `json:"join_time,omitempty"`
}

// Snapshot is the full session state returned by GET /jams/{id}.
type Snapshot struct {
	CurrentSong *Song             `json:"current_song"`
	Playlist    []Song            `json:"playlist"`
	IsPlaying   bool              `json:"is_playing"`
	Position    float64           `json:"position"`
	Volume      float64           `json:"volume"`
	Host        participantInfo   `json:"host"`
	Guests      []participantInfo `json:"guests"`
	CreatedAt   string            `json:"created_at"`
}

const (
	// Timestamp formats fixed by the wire contract.
	createdAtLayout = "2006-01-02 15:04:05"
	joinTimeLayout  = "15:04:05"
	chatTimeLayout  = "15:04"
)

func formatCreatedAt(t time.Time) string { return t.Format(createdAtLayout) }
