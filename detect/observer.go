package detect

import "github.com/cueword/cueword/stt"

// UnknownIntent is reported when the recognizer understood the
// utterance but could not infer any intent from it.
const UnknownIntent = "unknown"

// Observer receives session events. Callbacks run on the stream's
// receive goroutine and must not block for long; OnResponseIntent,
// OnResponseEndOfUtterance and OnError fire at most once per session.
type Observer interface {
	// OnStart is called once the recognition stream is open, before
	// the handshake is sent.
	OnStart(sessionID string)

	// OnResponse is called for every inbound event, intermediate or
	// terminal.
	OnResponse(sessionID string, resp *stt.Response)

	// OnResponseIntent is called once when a non-empty intent name is
	// recognized.
	OnResponseIntent(sessionID string, resp *stt.Response)

	// OnResponseEndOfUtterance is called once when the recognizer
	// reports the single-utterance boundary without an intent.
	OnResponseEndOfUtterance(sessionID string, resp *stt.Response)

	// OnError is called once when the stream fails terminally.
	OnError(sessionID string, err error)

	// OnComplete is called when the server completes the stream.
	OnComplete(sessionID string)
}

// IntentString returns the intent name carried by the response, or
// UnknownIntent. Never returns an empty string.
func IntentString(resp *stt.Response) string {
	if resp == nil || resp.Intent == "" {
		return UnknownIntent
	}
	return resp.Intent
}
