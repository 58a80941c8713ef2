package queue

import "github.com/dts-project/dts/transport"

// ToTransport maps the queue's string-keyed Method (as read from
// config) onto transport's tagged-variant Method, the form the
// transfer orchestration actually dispatches on.
func (m Method) ToTransport() transport.Method {
	if m == MethodUDT {
		return transport.MethodUDT
	}
	return transport.MethodDTS
}

// ToTransport maps the queue's string-keyed ChecksumPolicy onto
// transport's enum used by the stripe handshake.
func (p ChecksumPolicy) ToTransport() transport.ChecksumPolicy {
	switch p {
	case ChecksumPacket:
		return transport.ChecksumPacket
	case ChecksumChunk:
		return transport.ChecksumChunk
	case ChecksumStripe:
		return transport.ChecksumStripe
	default:
		return transport.ChecksumNone
	}
}
