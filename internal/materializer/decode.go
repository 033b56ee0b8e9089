package materializer

import (
	"github.com/goccy/go-json"

	"hybridmail/internal/queue"
)

// unmarshalPayload decodes env.Payload into dst, the pattern every handler
// uses once it knows the concrete type behind an Envelope.
func unmarshalPayload(env queue.Envelope, dst any) error {
	return json.Unmarshal(env.Payload, dst)
}
