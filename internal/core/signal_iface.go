package core

import "errors"

// Frame is a raw encoded message for one channel.
type Frame []byte

var (
	ErrBackpressure  = errors.New("backpressure")
	ErrChannelClosed = errors.New("channel closed")
)

// SignalConnection abstracts a realtime messaging channel.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend enqueues f without blocking. A full outbound buffer yields
	// ErrBackpressure, a closed channel ErrChannelClosed.
	TrySend(Frame) error
	Close()
}
