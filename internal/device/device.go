// Package device implements the thin binding layer (C3) between a named
// PDU, its power-state verb→wire-value map, and its Transport. Device never
// synthesizes a power cycle — that decision belongs to the Serial
// Supervisor — it only rejects or forwards.
package device

import (
	"context"
	"fmt"

	"github.com/vpbank/rs232gw/internal/transport"
)

// ErrUnknownPowerState is returned by Set when verb is not a key of
// PowerStates, "cy" included: synthesizing an absent "cy" happens before
// Set is ever reached.
var ErrUnknownPowerState = fmt.Errorf("device: unknown power state")

// Device binds a name, its ordered outlets, its power-state map, and its
// Transport. Outlets[0] is the healthcheck probe outlet, per spec.
type Device struct {
	Name        string
	Outlets     []string
	PowerStates map[string]int
	Transport   transport.Transport
}

// HealthcheckOutlet returns the first configured outlet, used by the
// Scheduler's healthcheck job. Spec: healthcheck only probes the first
// outlet of each device.
func (d *Device) HealthcheckOutlet() string {
	return d.Outlets[0]
}

// HasPowerState reports whether verb is a direct key of PowerStates.
func (d *Device) HasPowerState(verb string) bool {
	_, ok := d.PowerStates[verb]
	return ok
}

// Get issues a single-shot GET against outlet through the Device's Transport.
func (d *Device) Get(ctx context.Context, outlet string) (ok bool, detail transport.Detail, err error) {
	return d.Transport.OutletStateGet(ctx, outlet)
}

// Set resolves verb to a wire value via PowerStates and forwards it to the
// Transport as a single-shot SET. Returns ErrUnknownPowerState if verb is
// not configured; the caller (Serial Supervisor) is responsible for
// synthesizing "cy" when it is absent here.
func (d *Device) Set(ctx context.Context, outlet, verb string) (ok bool, detail transport.Detail, err error) {
	value, known := d.PowerStates[verb]
	if !known {
		return false, transport.Detail{}, fmt.Errorf("%w: device=%s verb=%s", ErrUnknownPowerState, d.Name, verb)
	}
	return d.Transport.OutletStateSet(ctx, outlet, value)
}
