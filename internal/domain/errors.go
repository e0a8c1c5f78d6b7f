package domain

import "errors"

var (
	// ErrSchemaInvalid is returned when a parsed payload fails the minimal
	// structural checks in DiscordEventPayload.Validate.
	ErrSchemaInvalid = errors.New("payload failed schema validation")

	// ErrMissingInteractionToken is returned when an interaction.* event
	// lacks the interactionId/interactionToken pair required for reply.
	ErrMissingInteractionToken = errors.New("interaction event missing interactionId/interactionToken")

	// ErrMalformedPayload covers both JSON-parse failures and schema
	// violations; both are treated uniformly by consumers (spec §9).
	ErrMalformedPayload = errors.New("malformed event payload")

	// ErrJobNotFound is returned by engine stores when a job id is unknown.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobNotCancellable is returned when CancelJob targets an active or
	// completed job (RetryJob also returns it for a job that is not failed).
	ErrJobNotCancellable = errors.New("job cannot be cancelled in its current state")

	// ErrUnavailable wraps transient failures from external collaborators
	// (KV store, broker, database) so callers can classify them uniformly.
	ErrUnavailable = errors.New("collaborator unavailable")

	// ErrNotConnected is returned by a Consumer when StartConsuming is
	// called before Connect has succeeded.
	ErrNotConnected = errors.New("consumer not connected")

	// ErrRateLimited is returned by the chat REST client when the platform
	// responds 429; callers inspect Result.RetryAfterMs/Global instead of
	// treating this as an opaque failure.
	ErrRateLimited = errors.New("platform rate limit exceeded")

	// ErrPermanent marks a platform response that must not be retried
	// (403 forbidden, 404 not found).
	ErrPermanent = errors.New("permanent platform error")
)
