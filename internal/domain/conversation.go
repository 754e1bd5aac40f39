package domain

// Transcript is the ordered, append-only message log exchanged with the model.
// The first message, when present, carries the system role.
type Transcript []ChatMessage

// Clone returns an independent copy of the transcript.
func (t Transcript) Clone() Transcript {
	if t == nil {
		return nil
	}
	out := make(Transcript, len(t))
	copy(out, t)
	return out
}

// ContextEntries maps a prompt, exactly as sent, to the model reply. It is the
// shape persisted by the named context stores.
type ContextEntries map[string]string
