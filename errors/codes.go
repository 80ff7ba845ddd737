package errors

type Code string

const (
	ErrAborted           Code = "aborted"
	ErrBadRequest        Code = "bad-request"
	ErrCommunication     Code = "communication"
	ErrProtocolViolation Code = "protocol-violation"
	ErrFatal             Code = "fatal"
	ErrNotFound          Code = "not-found"
	ErrInternal          Code = "internal"
	ErrUnexpected        Code = "unexpected"
)

type Kind string

const (
	// KindAlreadyInMatch is used when a player wants to join the queue or accept a
	// challenge while still fighting in another match.
	KindAlreadyInMatch Kind = "already-in-match"
	// KindAlreadyQueued is used when a player wants to join the queue twice.
	KindAlreadyQueued Kind = "already-queued"
	// KindCardNotInCollection is used when a team slot references a card that is
	// no longer part of the owner's collection.
	KindCardNotInCollection Kind = "card-not-in-collection"
	// KindContextAborted is used when we were currently performing an operation but
	// the context got aborted.
	KindContextAborted Kind = "context-aborted"
	KindDB             Kind = "db"
	KindDBRollback     Kind = "db-rollback"
	KindDecodeJSON     Kind = "decode-json"
	KindEncodeJSON     Kind = "encode-json"
	// KindInvalidCardStats is used when a card is missing stats or carries values
	// a battle card cannot be built from.
	KindInvalidCardStats Kind = "invalid-card-stats"
	// KindInvalidConfig is used for configuration values that fail validation.
	KindInvalidConfig Kind = "invalid-config"
	// KindInvalidQuery is used for malformed query parameters of API requests.
	KindInvalidQuery Kind = "invalid-query"
	// KindMatchAborted is used when a match ended without a winner, either because
	// of the exchange cap or because it got cancelled.
	KindMatchAborted Kind = "match-aborted"
	KindMissingID    Kind = "missing-id"
	// KindNotInMatch is used for match operations like forfeiting by players who
	// are not fighting.
	KindNotInMatch Kind = "not-in-match"
	// KindNotQueued is used when a player that is not waiting in the queue wants to
	// leave it.
	KindNotQueued        Kind = "not-queued"
	KindResourceNotFound Kind = "resource-not-found"
	// KindSelfChallenge is used when a player challenges themself.
	KindSelfChallenge Kind = "self-challenge"
	// KindShouldNotHappen is used for states that are ruled out by invariants.
	KindShouldNotHappen Kind = "should-not-happen"
	// KindTeamIncomplete is used when a team has at least one empty slot.
	KindTeamIncomplete Kind = "team-incomplete"
	// KindTeamNotOwned is used when a player wants to fight with a team that
	// belongs to someone else.
	KindTeamNotOwned Kind = "team-not-owned"
	KindUnexpected   Kind = "unexpected"
)
