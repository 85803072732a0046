// Package eventbus implements the opaque Emit(topic, payload) sink the
// core subsystems publish frames, stats, and errors onto. The controller
// layer (outside this module's scope) subscribes to a Bus to forward
// events to the host application shell.
package eventbus

// Topic names, matching spec.md section 6 exactly.
const (
	TopicUDPFrame          = "udp-lan-frame"
	TopicUDPStats          = "udp-lan-stats"
	TopicUDPStopped        = "udp-lan-stopped"
	TopicUDPError          = "udp-lan-error"
	TopicInputServerStatus = "lan-input-server-status"
	TopicInputServerStats  = "lan-input-server-stats"
	TopicInputClientStatus = "lan-input-client-status"
	TopicInputError        = "lan-input-error"
)

// Bus is the sink every core component emits onto. Emit must never block
// the caller for long: a slow or absent subscriber must not stall a
// reader task holding a socket deadline.
type Bus interface {
	Emit(topic string, payload any)
}

// Handler receives one emitted event.
type Handler func(topic string, payload any)

// NopBus discards everything. Useful as a default/test sink.
type NopBus struct{}

func (NopBus) Emit(string, any) {}
