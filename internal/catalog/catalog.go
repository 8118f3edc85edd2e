// Package catalog loads the hosted-song manifest served to clients
// building their playlists.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
)

// Song is one manifest entry. ID and URL are mandatory; everything else
// gets a default.
type Song struct {
	ID        string  `json:"id"`
	URL       string  `json:"url"`
	Title     string  `json:"title"`
	Artist    string  `json:"artist"`
	Thumbnail string  `json:"thumbnail"`
	Duration  float64 `json:"duration"`
}

const (
	defaultTitle     = "Unknown Title"
	defaultArtist    = "Unknown Artist"
	defaultThumbnail = "https://placehold.co/128x128/CCCCCC/FFFFFF?text=MP3"
)

// Load reads and validates the manifest at path. Entries that are not
// objects or lack an id/url are skipped rather than failing the whole
// manifest.
func Load(path string) ([]Song, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("song manifest file not found: %s", path)
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("invalid JSON in %s", path)
	}

	songs := make([]Song, 0, len(entries))
	for _, entry := range entries {
		var song Song
		if err := json.Unmarshal(entry, &song); err != nil {
			continue
		}
		if song.ID == "" || song.URL == "" {
			continue
		}
		if song.Title == "" {
			song.Title = defaultTitle
		}
		if song.Artist == "" {
			song.Artist = defaultArtist
		}
		if song.Thumbnail == "" {
			song.Thumbnail = defaultThumbnail
		}
		songs = append(songs, song)
	}
	return songs, nil
}
