package chatclient

const (
	// RoomCapacity bounds the per-room cache; oldest entries are
	// evicted first.
	RoomCapacity = 100

	// fuzzyWindow is how far apart two timestamps may be for two
	// messages with the same sender and body to count as duplicates.
	fuzzyWindow Millis = 5000
)

// Outcome reports what Reconcile did with the incoming message.
type Outcome int

const (
	// Appended: the message was new and added to the end.
	Appended Outcome = iota
	// Confirmed: an optimistic entry with the same client id was
	// replaced in place and its Local flag cleared.
	Confirmed
	// DuplicateID: an entry with the same server id already exists.
	DuplicateID
	// DuplicateFuzzy: an entry with the same sender and body within
	// the fuzzy window already exists.
	DuplicateFuzzy
)

// Reconcile merges an incoming message into a room's ordered list and
// returns the new list. The incoming message appears exactly once;
// existing entries keep their relative order. Checks run in priority
// order so that an exact optimistic-id match always wins over the
// fuzzy duplicate check, which keeps a sender's own echo from
// duplicating the optimistic entry.
func Reconcile(list []Message, in Message) ([]Message, Outcome) {
	out := append([]Message(nil), list...)

	if in.ClientID != "" {
		for i := range out {
			if out[i].ClientID == in.ClientID {
				merged := in
				merged.Local = false
				if merged.UserID == "" {
					merged.UserID = out[i].UserID
				}
				out[i] = merged
				return trim(out), Confirmed
			}
		}
	}

	if in.ID != "" {
		for i := range out {
			if out[i].ID != "" && out[i].ID == in.ID {
				return trim(out), DuplicateID
			}
		}
	}

	for i := range out {
		if out[i].Username == in.Username && out[i].Body == in.Body &&
			within(out[i].Timestamp, in.Timestamp, fuzzyWindow) {
			return trim(out), DuplicateFuzzy
		}
	}

	out = append(out, in)
	return trim(out), Appended
}

func within(a, b, window Millis) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= window
}

func trim(list []Message) []Message {
	if len(list) <= RoomCapacity {
		return list
	}
	return list[len(list)-RoomCapacity:]
}
