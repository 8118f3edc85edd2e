package jam

import (
	"reflect"
	"testing"
	"time"
)

func boolPtr(b bool) *bool { return &b }

func f64Ptr(f float64) *float64 { return &f }

func stateMsg(playing bool, pos float64) inboundMessage {
	return inboundMessage{
		Type:      msgPlayerStateUpdate,
		IsPlaying: boolPtr(playing),
		Position:  f64Ptr(pos),
	}
}

func TestSession_RoleAssignment(t *testing.T) {
	j := newSession("abc12345", "Creator")

	host, isHost, err := j.join(nil, "DJ Kat")
	if err != nil {
		t.Fatalf("host join: %v", err)
	}
	if !isHost {
		t.Error("Expected first connection to become host")
	}

	guest1, isHost, err := j.join(nil, "Alice")
	if err != nil {
		t.Fatalf("guest join: %v", err)
	}
	if isHost {
		t.Error("Expected second connection to become guest")
	}

	guest2, _, err := j.join(nil, "Bob")
	if err != nil {
		t.Fatalf("guest join: %v", err)
	}

	if j.host != host {
		t.Error("Expected host reference to stick")
	}
	if len(j.guests) != 2 || j.guests[0] != guest1 || j.guests[1] != guest2 {
		t.Error("Expected guests in join order")
	}

	snap := j.snapshot()
	if snap.Host.Name != "DJ Kat" {
		t.Errorf("Expected host name to be the connecting name, got %q", snap.Host.Name)
	}
}

func TestSession_NameCollision(t *testing.T) {
	j := newSession("abc12345", "Host")
	if _, _, err := j.join(nil, "DJ Kat"); err != nil {
		t.Fatalf("host join: %v", err)
	}
	if _, _, err := j.join(nil, "Alice"); err != nil {
		t.Fatalf("guest join: %v", err)
	}

	if _, _, err := j.join(nil, "Alice"); err != errNameTaken {
		t.Errorf("Expected errNameTaken for duplicate guest name, got %v", err)
	}
	if _, _, err := j.join(nil, "DJ Kat"); err != errNameTaken {
		t.Errorf("Expected errNameTaken for host name, got %v", err)
	}
	if len(j.guests) != 1 {
		t.Errorf("Expected rejected joins to leave the guest list intact, got %d guests", len(j.guests))
	}
}

func TestSession_RemoveGuestAllowsRejoin(t *testing.T) {
	j := newSession("abc12345", "Host")
	j.join(nil, "DJ Kat")
	alice, _, _ := j.join(nil, "Alice")

	j.removeGuest(alice)
	// Removal is synchronous with disconnect handling, so the name is
	// immediately free again.
	if _, _, err := j.join(nil, "Alice"); err != nil {
		t.Errorf("Expected rejoin with a departed guest's name to succeed, got %v", err)
	}

	// Removing an already-removed guest is a no-op.
	j.removeGuest(alice)
	if len(j.guests) != 1 {
		t.Errorf("Expected exactly one guest, got %d", len(j.guests))
	}
}

func TestSession_ThrottleGate(t *testing.T) {
	j := newSession("abc12345", "Host")
	host, _, _ := j.join(nil, "DJ Kat")

	// A burst far faster than the gate: only the first mutation lands,
	// the rest are dropped silently.
	accepted := 0
	for i := 0; i < 100; i++ {
		if _, _, ok := j.applyPlayerState(host, stateMsg(true, float64(i))); ok {
			accepted++
		}
	}
	if accepted != 1 {
		t.Errorf("Expected exactly 1 accepted update in a tight burst, got %d", accepted)
	}
	if j.position != 0 {
		t.Errorf("Expected position from the first update, got %f", j.position)
	}

	// Once the gate has elapsed the next update is accepted.
	j.mu.Lock()
	j.lastMutation = time.Now().Add(-2 * stateUpdateThrottle)
	j.mu.Unlock()
	if _, _, ok := j.applyPlayerState(host, stateMsg(false, 42)); !ok {
		t.Error("Expected update to be accepted after the throttle window")
	}
	if j.isPlaying || j.position != 42 {
		t.Errorf("Expected state (false, 42), got (%v, %f)", j.isPlaying, j.position)
	}
}

func TestSession_ApplyPlayerStateVolume(t *testing.T) {
	j := newSession("abc12345", "Host")
	host, _, _ := j.join(nil, "DJ Kat")

	msg := stateMsg(true, 10)
	msg.Volume = f64Ptr(2.5)
	payload, _, ok := j.applyPlayerState(host, msg)
	if !ok {
		t.Fatal("Expected update to be accepted")
	}
	if j.volume != 1.0 {
		t.Errorf("Expected volume clamped to 1.0, got %f", j.volume)
	}
	if payload["volume"] != 1.0 {
		t.Errorf("Expected clamped volume in payload, got %v", payload["volume"])
	}
}

func TestSession_AdvanceSong(t *testing.T) {
	songs := []Song{
		{ID: "s1", Title: "One", URL: "http://x/1.mp3"},
		{ID: "s2", Title: "Two", URL: "http://x/2.mp3"},
		{ID: "s3", Title: "Three", URL: "http://x/3.mp3"},
	}

	t.Run("Empty Playlist", func(t *testing.T) {
		j := newSession("abc12345", "Host")
		j.join(nil, "DJ Kat")
		if _, _, ok := j.advanceSong(); ok {
			t.Error("Expected advance on empty playlist to be rejected")
		}
	})

	t.Run("Next In Order", func(t *testing.T) {
		j := newSession("abc12345", "Host")
		host, _, _ := j.join(nil, "DJ Kat")
		j.replacePlaylist(host, songs)
		j.changeSong(host, &songs[0])

		_, _, ok := j.advanceSong()
		if !ok || j.currentSong.ID != "s2" {
			t.Errorf("Expected advance to s2, got %+v", j.currentSong)
		}
		if !j.isPlaying || j.position != 0 {
			t.Errorf("Expected playback restarted, got playing=%v position=%f", j.isPlaying, j.position)
		}
	})

	t.Run("Wrap Around", func(t *testing.T) {
		j := newSession("abc12345", "Host")
		host, _, _ := j.join(nil, "DJ Kat")
		j.replacePlaylist(host, songs)
		j.changeSong(host, &songs[2])

		j.advanceSong()
		if j.currentSong.ID != "s1" {
			t.Errorf("Expected wrap-around to s1, got %+v", j.currentSong)
		}
	})

	t.Run("Current Not In Playlist", func(t *testing.T) {
		j := newSession("abc12345", "Host")
		host, _, _ := j.join(nil, "DJ Kat")
		j.replacePlaylist(host, songs)
		j.changeSong(host, &Song{ID: "adhoc", Title: "Ad Hoc", URL: "http://x/a.mp3"})

		j.advanceSong()
		if j.currentSong.ID != "s1" {
			t.Errorf("Expected restart at index 0, got %+v", j.currentSong)
		}
	})

	t.Run("No Current Song", func(t *testing.T) {
		j := newSession("abc12345", "Host")
		host, _, _ := j.join(nil, "DJ Kat")
		j.replacePlaylist(host, songs)

		j.advanceSong()
		if j.currentSong.ID != "s1" {
			t.Errorf("Expected start at index 0, got %+v", j.currentSong)
		}
	})
}

func TestSession_ReplacePlaylistIdempotent(t *testing.T) {
	j := newSession("abc12345", "Host")
	host, _, _ := j.join(nil, "DJ Kat")

	songs := []Song{
		{ID: "s1", Title: "One", URL: "http://x/1.mp3"},
		{ID: "s2", Title: "Two", URL: "http://x/2.mp3"},
	}

	first, _, _ := j.replacePlaylist(host, songs)
	second, _, _ := j.replacePlaylist(host, songs)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Expected identical payloads for identical playlists:\n%v\n%v", first, second)
	}
	if !reflect.DeepEqual(j.snapshot().Playlist, songs) {
		t.Error("Expected snapshot playlist to match the replacement")
	}
}

func TestSession_SnapshotCopiesPlaylist(t *testing.T) {
	j := newSession("abc12345", "Host")
	host, _, _ := j.join(nil, "DJ Kat")
	j.replacePlaylist(host, []Song{{ID: "s1", Title: "One", URL: "http://x/1.mp3"}})

	snap := j.snapshot()
	snap.Playlist[0].Title = "Mutated"
	if j.playlist[0].Title != "One" {
		t.Error("Expected snapshot mutation not to leak into the session")
	}
}

func TestSession_Shutdown(t *testing.T) {
	j := newSession("abc12345", "Host")
	j.join(nil, "DJ Kat")
	j.join(nil, "Alice")

	remaining := j.shutdown(nil)
	if len(remaining) != 2 {
		t.Errorf("Expected 2 remaining participants, got %d", len(remaining))
	}

	if again := j.shutdown(nil); again != nil {
		t.Error("Expected second shutdown to be a no-op")
	}

	if _, _, err := j.join(nil, "Late"); err != errJamNotFound {
		t.Errorf("Expected join on closed session to fail, got %v", err)
	}

	if _, _, ok := j.applyPlayerState(nil, stateMsg(true, 1)); ok {
		t.Error("Expected mutations on a closed session to be rejected")
	}
}

func TestSession_ShutdownExcludesDepartedHost(t *testing.T) {
	j := newSession("abc12345", "Host")
	host, _, _ := j.join(nil, "DJ Kat")
	j.join(nil, "Alice")
	j.join(nil, "Bob")

	remaining := j.shutdown(host)
	if len(remaining) != 2 {
		t.Fatalf("Expected the 2 guests, got %d participants", len(remaining))
	}
	for _, p := range remaining {
		if p == host {
			t.Error("Expected the departed host to be excluded from teardown delivery")
		}
	}
}
