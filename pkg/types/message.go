package types

// OutboundMessage is the message built from one IncomingRecord and handed to a publisher.
// It has no identity beyond the publish call that consumes it.
type OutboundMessage struct {
	// Data is the message payload.
	Data []byte
	// OrderingKey is empty when no ordering applies.
	OrderingKey string
	// Attributes carries record metadata such as origin topic, partition and offset.
	Attributes map[string]string
}
