package realtime

import (
	"time"

	"huddle/cmd/identity/ids"
	v1 "huddle/shared/contracts/realtime/v1"
)

// NewConnID returns a ULID identifying one websocket connection.
func NewConnID(now time.Time) (string, error) {
	return ids.NewULID(now)
}

func newEnvelope(typ string, payload []byte, ts time.Time) (v1.Envelope, error) {
	id, err := ids.NewULID(ts)
	if err != nil {
		return v1.Envelope{}, err
	}
	return v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      id,
		TS:      ts,
		Payload: payload,
	}, nil
}
