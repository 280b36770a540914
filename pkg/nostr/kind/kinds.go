package kind

// T - which will be externally referenced as kind.T is the event type in the
// nostr protocol, the use of the capital T signifying type, consistent with Go
// idiom, the Go standard library, and much, conformant, existing code.
type T uint16

func (ki T) ToInt() int { return int(ki) }

// The event kinds used by the client. The numbering classes that decide
// whether a kind is regular, replaceable, ephemeral or parameterized
// replaceable are the Start/End bounds further down.
const (
	// ProfileMetadata is an event type that stores user profile data, pet
	// names, bio, lightning address, etc. It is replaceable.
	ProfileMetadata T = 0
	// TextNote is a standard short text note of plain text a la twitter
	TextNote T = 1
	// RecommendRelay is a deprecated relay recommendation.
	RecommendRelay T = 2
	// FollowList an event containing a list of pubkeys of users that should be
	// shown as follows in a timeline. It is replaceable.
	FollowList T = 3
	// EncryptedDirectMessage is a NIP-04 direct message.
	EncryptedDirectMessage T = 4
	// Deletion requests that relays drop the events referenced in its e tags.
	Deletion T = 5
	// Repost shares a text note, the content carries the reposted event.
	Repost T = 6
	// Reaction is a like or emoji response to the event in its e tag.
	Reaction T = 7
	// GenericRepost shares any kind of event.
	GenericRepost T = 16
	// RelayListMetadata is the NIP-65 list of read and write relays.
	RelayListMetadata T = 10002

	ReplaceableStart              T = 10000
	ReplaceableEnd                T = 20000
	EphemeralStart                T = 20000
	EphemeralEnd                  T = 30000
	ParameterizedReplaceableStart T = 30000
	ParameterizedReplaceableEnd   T = 40000
)

// IsReplaceable returns true for kinds where only the newest event per author
// and kind is current.
func (ki T) IsReplaceable() bool {
	return ki == ProfileMetadata || ki == FollowList ||
		(ki >= ReplaceableStart && ki < ReplaceableEnd)
}

// IsEphemeral returns true for kinds relays are not expected to store.
func (ki T) IsEphemeral() bool {
	return ki >= EphemeralStart && ki < EphemeralEnd
}

// IsParameterizedReplaceable returns true for kinds replaced per author, kind
// and d tag.
func (ki T) IsParameterizedReplaceable() bool {
	return ki >= ParameterizedReplaceableStart &&
		ki < ParameterizedReplaceableEnd
}

// IsRegular is the remainder: every distinct event is kept.
func (ki T) IsRegular() bool {
	return !ki.IsReplaceable() && !ki.IsEphemeral() &&
		!ki.IsParameterizedReplaceable()
}

var names = map[T]string{
	ProfileMetadata:        "metadata",
	TextNote:               "note",
	RecommendRelay:         "recommend-relay",
	FollowList:             "contacts",
	EncryptedDirectMessage: "encrypted-dm",
	Deletion:               "deletion",
	Repost:                 "repost",
	Reaction:               "reaction",
	GenericRepost:          "generic-repost",
	RelayListMetadata:      "relay-list",
}

// Name returns a short human readable name, or "unknown".
func (ki T) Name() string {
	if n, ok := names[ki]; ok {
		return n
	}
	return "unknown"
}
