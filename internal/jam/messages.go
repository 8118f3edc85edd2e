package jam

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// Inbound message types accepted while a connection is active. Anything
// else is ignored; only host_init is restricted by role.
const (
	msgPlayerStateUpdate = "player_state_update"
	msgSongChange        = "song_change"
	msgPlaylistUpdate    = "playlist_update"
	msgSeek              = "seek"
	msgSongEnded         = "song_ended"
	msgSyncRequest       = "sync_request"
	msgChatMessage       = "chat_message"
	msgHostInit          = "host_init"
)

// Outbound message types.
const (
	msgInitialSync        = "initial_sync"
	msgSync               = "sync"
	msgParticipantsUpdate = "participants_update"
	msgJamEnded           = "jam_ended"
)

const (
	nameMinLen = 3
	nameMaxLen = 20
	chatMaxLen = 500
)

// inboundMessage is the envelope for everything a participant can send.
// Fields are pointers where absence matters for validation.
type inboundMessage struct {
	Type      string   `json:"type"`
	IsPlaying *bool    `json:"is_playing"`
	Position  *float64 `json:"position"`
	Volume    *float64 `json:"volume"`
	Song      *Song    `json:"song"`
	Playlist  []Song   `json:"playlist"`
	Message   string   `json:"message"`
}

var displayNamePattern = regexp.MustCompile(`^[A-Za-z0-9 _-]+$`)

var (
	errJamNotFound = errors.New("jam session not found")
	errNameTaken   = errors.New("display name already taken")
)

func validateDisplayName(name string) error {
	if n := utf8.RuneCountInString(name); n < nameMinLen || n > nameMaxLen {
		return fmt.Errorf("display name must be %d-%d characters", nameMinLen, nameMaxLen)
	}
	if !displayNamePattern.MatchString(name) {
		return errors.New("display name may only contain letters, digits, spaces, hyphens and underscores")
	}
	return nil
}

// validateChatMessage trims the raw text and enforces the 1-500 char limit.
func validateChatMessage(raw string) (string, bool) {
	msg := strings.TrimSpace(raw)
	if msg == "" || utf8.RuneCountInString(msg) > chatMaxLen {
		return "", false
	}
	return msg, true
}

func chatTimestamp(t time.Time) string { return t.Format(chatTimeLayout) }

func clampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
