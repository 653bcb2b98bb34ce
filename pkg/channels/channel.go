// Package channels normalizes per-channel payloads in and out of the
// turn orchestrator.
package channels

import (
	"context"

	"github.com/danang/arunika/pkg/orchestrator"
)

// Adapter translates between one channel's native payloads and the
// canonical inbound/outbound shapes.
type Adapter interface {
	// Name is the channel key, e.g. "web" or "telegram".
	Name() string

	// Parse normalizes a raw ingress payload.
	Parse(raw []byte) (orchestrator.Inbound, error)

	// Present renders an outbound response as the channel-native reply
	// body returned to the caller.
	Present(out orchestrator.Outbound) interface{}

	// Deliver pushes the response over the channel's own transport when
	// it has one. Best-effort: failures are logged inside the adapter and
	// never propagate.
	Deliver(ctx context.Context, in orchestrator.Inbound, out orchestrator.Outbound)
}
