package jam

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Minimum spacing between accepted player_state_update mutations. Faster
// updates are dropped, not queued.
const stateUpdateThrottle = 50 * time.Millisecond

// Session is one jam: the host, the guests in join order, and the shared
// playback state. Every read-then-write of shared fields happens under mu,
// including the throttle gate and the playlist advance, so concurrent
// senders cannot interleave into a torn state. Broadcast payloads are
// computed inside the same critical section as the mutation they describe.
type Session struct {
	id string

	mu           sync.Mutex
	host         *participant
	hostName     string // display name recorded at create time, until the host connects
	guests       []*participant
	currentSong  *Song
	playlist     []Song
	isPlaying    bool
	position     float64
	volume       float64
	createdAt    time.Time
	lastActivity time.Time
	lastMutation time.Time
	closed       bool
}

func newSession(id, hostName string) *Session {
	now := time.Now()
	return &Session{
		id:           id,
		hostName:     hostName,
		volume:       1.0,
		createdAt:    now,
		lastActivity: now,
	}
}

func (j *Session) ID() string { return j.id }

// join assigns a role to a new connection: host if the jam has none yet,
// guest otherwise. Guest display names must be unique within the jam and
// distinct from the host's name.
func (j *Session) join(conn *websocket.Conn, name string) (*participant, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil, false, errJamNotFound
	}

	now := time.Now()
	p := &participant{conn: conn, name: name, joinedAt: now, lastHeartbeat: now}

	if j.host == nil {
		j.host = p
		j.hostName = name
		j.lastActivity = now
		return p, true, nil
	}

	if name == j.host.name {
		return nil, false, errNameTaken
	}
	for _, g := range j.guests {
		if g.name == name {
			return nil, false, errNameTaken
		}
	}
	j.guests = append(j.guests, p)
	j.lastActivity = now
	return p, false, nil
}

// removeGuest drops p from the guest list. Idempotent: broadcast pruning
// and the connection's own teardown may both remove the same guest.
func (j *Session) removeGuest(p *participant) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.removeGuestLocked(p)
}

func (j *Session) removeGuestLocked(p *participant) {
	for i, g := range j.guests {
		if g == p {
			j.guests = append(j.guests[:i], j.guests[i+1:]...)
			return
		}
	}
}

// touch records inbound traffic from p: the jam stays out of the reaper's
// reach and the participant's heartbeat advances.
func (j *Session) touch(p *participant) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return
	}
	now := time.Now()
	j.lastActivity = now
	p.lastHeartbeat = now
}

// touchHeartbeat records a transport-level liveness signal from p. Pongs
// keep the connection alive but are not session activity: an otherwise
// silent jam still ages toward the idle sweep.
func (j *Session) touchHeartbeat(p *participant) {
	j.mu.Lock()
	defer j.mu.Unlock()
	p.lastHeartbeat = time.Now()
}

func (j *Session) idleBefore(cutoff time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return !j.closed && j.lastActivity.Before(cutoff)
}

// applyPlayerState handles player_state_update. Returns ok=false when the
// update lost the throttle gate; dropped updates are silent.
func (j *Session) applyPlayerState(sender *participant, msg inboundMessage) (map[string]any, []*participant, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil, nil, false
	}
	now := time.Now()
	if now.Sub(j.lastMutation) < stateUpdateThrottle {
		return nil, nil, false
	}
	j.lastMutation = now
	j.isPlaying = *msg.IsPlaying
	j.position = *msg.Position

	payload := map[string]any{
		"type":       msgSync,
		"is_playing": j.isPlaying,
		"position":   j.position,
	}
	if msg.Volume != nil {
		j.volume = clampVolume(*msg.Volume)
		payload["volume"] = j.volume
	}
	return payload, j.recipientsLocked(sender), true
}

// changeSong makes song the current track and restarts playback from zero.
// The song does not have to be in the playlist; ad-hoc immediate plays are
// allowed.
func (j *Session) changeSong(sender *participant, song *Song) (map[string]any, []*participant, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil, nil, false
	}
	s := *song
	j.currentSong = &s
	j.isPlaying = true
	j.position = 0

	payload := map[string]any{
		"type":       msgSongChange,
		"song":       s,
		"is_playing": true,
		"position":   0.0,
	}
	return payload, j.recipientsLocked(sender), true
}

// replacePlaylist swaps the whole playlist atomically.
func (j *Session) replacePlaylist(sender *participant, playlist []Song) (map[string]any, []*participant, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil, nil, false
	}
	j.playlist = playlist

	payload := map[string]any{
		"type":     msgPlaylistUpdate,
		"playlist": j.playlistLocked(),
	}
	return payload, j.recipientsLocked(sender), true
}

func (j *Session) seek(sender *participant, position float64) (map[string]any, []*participant, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil, nil, false
	}
	j.position = position

	payload := map[string]any{
		"type":     msgSeek,
		"position": j.position,
	}
	return payload, j.recipientsLocked(sender), true
}

// advanceSong moves to the track following the current one in the
// playlist, wrapping at the end. A current song that is not in the
// playlist restarts from index 0. The server is authoritative here, so
// the resulting song_change goes to every participant, sender included.
func (j *Session) advanceSong() (map[string]any, []*participant, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed || len(j.playlist) == 0 {
		return nil, nil, false
	}
	next := 0
	if j.currentSong != nil {
		for i := range j.playlist {
			if j.playlist[i].ID == j.currentSong.ID {
				next = (i + 1) % len(j.playlist)
				break
			}
		}
	}
	song := j.playlist[next]
	j.currentSong = &song
	j.isPlaying = true
	j.position = 0

	payload := map[string]any{
		"type":       msgSongChange,
		"song":       song,
		"is_playing": true,
		"position":   0.0,
	}
	return payload, j.recipientsLocked(nil), true
}

// hostInit bulk-restores authoritative state from a reconnecting host and
// resyncs everyone else with a fresh initial_sync.
func (j *Session) hostInit(sender *participant, msg inboundMessage) (map[string]any, []*participant, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil, nil, false
	}
	if msg.Song != nil {
		s := *msg.Song
		j.currentSong = &s
	}
	if msg.Playlist != nil {
		j.playlist = msg.Playlist
	}
	if msg.IsPlaying != nil {
		j.isPlaying = *msg.IsPlaying
	}
	if msg.Position != nil {
		j.position = *msg.Position
	}
	if msg.Volume != nil {
		j.volume = clampVolume(*msg.Volume)
	}
	return j.initialSyncLocked(false), j.recipientsLocked(sender), true
}

// syncReply builds the direct answer to a sync_request.
func (j *Session) syncReply() map[string]any {
	j.mu.Lock()
	defer j.mu.Unlock()
	return map[string]any{
		"type":       msgSync,
		"song":       j.currentSong,
		"is_playing": j.isPlaying,
		"position":   j.position,
		"volume":     j.volume,
	}
}

// chat builds a chat_message broadcast tagged with whether the sender is
// the host. Chat never mutates session state.
func (j *Session) chat(sender *participant, text string) (map[string]any, []*participant) {
	j.mu.Lock()
	defer j.mu.Unlock()
	payload := map[string]any{
		"type":      msgChatMessage,
		"sender":    sender.name,
		"message":   text,
		"timestamp": chatTimestamp(time.Now()),
		"is_host":   sender == j.host,
	}
	return payload, j.recipientsLocked(nil)
}

func (j *Session) initialSync(youAreHost bool) map[string]any {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.initialSyncLocked(youAreHost)
}

func (j *Session) initialSyncLocked(youAreHost bool) map[string]any {
	return map[string]any{
		"type":            msgInitialSync,
		"current_song":    j.currentSong,
		"playlist":        j.playlistLocked(),
		"is_playing":      j.isPlaying,
		"position":        j.position,
		"volume":          j.volume,
		"host":            participantInfo{Name: j.hostDisplayNameLocked()},
		"guests":          j.guestInfosLocked(),
		"session_created": formatCreatedAt(j.createdAt),
		"you_are_host":    youAreHost,
	}
}

func (j *Session) participantsUpdate() (map[string]any, []*participant) {
	j.mu.Lock()
	defer j.mu.Unlock()
	payload := map[string]any{
		"type":   msgParticipantsUpdate,
		"host":   participantInfo{Name: j.hostDisplayNameLocked()},
		"guests": j.guestInfosLocked(),
	}
	return payload, j.recipientsLocked(nil)
}

// snapshot is the HTTP view of the jam.
func (j *Session) snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Snapshot{
		CurrentSong: j.currentSong,
		Playlist:    j.playlistLocked(),
		IsPlaying:   j.isPlaying,
		Position:    j.position,
		Volume:      j.volume,
		Host:        participantInfo{Name: j.hostDisplayNameLocked()},
		Guests:      j.guestInfosLocked(),
		CreatedAt:   formatCreatedAt(j.createdAt),
	}
}

// shutdown marks the jam closed and hands back everyone still connected.
// Returns nil when the jam was already shut down by a concurrent path.
func (j *Session) shutdown(exclude *participant) []*participant {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	remaining := j.recipientsLocked(exclude)
	j.host = nil
	j.guests = nil
	return remaining
}

func (j *Session) hostDisplayNameLocked() string {
	if j.host != nil {
		return j.host.name
	}
	return j.hostName
}

// playlistLocked copies the playlist so callers never alias the shared
// slice, and marshals as [] rather than null when empty.
func (j *Session) playlistLocked() []Song {
	out := make([]Song, len(j.playlist))
	copy(out, j.playlist)
	return out
}

func (j *Session) guestInfosLocked() []participantInfo {
	infos := make([]participantInfo, 0, len(j.guests))
	for _, g := range j.guests {
		infos = append(infos, participantInfo{
			Name:     g.name,
			JoinTime: g.joinedAt.Format(joinTimeLayout),
		})
	}
	return infos
}

// recipientsLocked lists the host (if connected) and every guest, minus
// an optional excluded sender.
func (j *Session) recipientsLocked(exclude *participant) []*participant {
	targets := make([]*participant, 0, len(j.guests)+1)
	if j.host != nil && j.host != exclude {
		targets = append(targets, j.host)
	}
	for _, g := range j.guests {
		if g != exclude {
			targets = append(targets, g)
		}
	}
	return targets
}
