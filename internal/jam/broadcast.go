package jam

import "log"

// deliver fans a payload out to the given recipients, best-effort per
// recipient. A failed send prunes that guest from the jam but never
// aborts delivery to the rest.
func (j *Session) deliver(targets []*participant, payload any) {
	var dead []*participant
	for _, p := range targets {
		if err := p.sendCompressed(payload); err != nil {
			log.Printf("jam-service: jam %s: dropping unreachable participant %q: %v", j.id, p.name, err)
			dead = append(dead, p)
		}
	}
	if len(dead) == 0 {
		return
	}
	j.mu.Lock()
	for _, p := range dead {
		j.removeGuestLocked(p)
	}
	j.mu.Unlock()
	for _, p := range dead {
		_ = p.conn.Close()
	}
}

// broadcastParticipants tells everyone, new arrivals included, who is in
// the jam now.
func (j *Session) broadcastParticipants() {
	payload, targets := j.participantsUpdate()
	j.deliver(targets, payload)
}
