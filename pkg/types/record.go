package types

import (
	"strconv"
)

// IncomingRecord is a single record delivered from the source log.
// It is owned by the caller for the duration of one processing call.
type IncomingRecord struct {
	// Topic is the log topic the record was read from.
	Topic string
	// Partition is the partition within Topic.
	Partition int32
	// Offset is monotonic within the partition.
	Offset int64
	// Key is nil when the record has no key.
	Key any
	// Value is nil, a string, a []byte, a Struct, or any other value.
	Value any
	// Timestamp is epoch milliseconds, nil when the record carries none.
	Timestamp *int64
}

// TopicPartition identifies one partition of a source topic.
type TopicPartition struct {
	Topic     string
	Partition int32
}

func (tp TopicPartition) String() string {
	return tp.Topic + "-" + strconv.FormatInt(int64(tp.Partition), 10)
}

// TopicPartition returns the partition the record belongs to.
func (r IncomingRecord) TopicPartition() TopicPartition {
	return TopicPartition{Topic: r.Topic, Partition: r.Partition}
}

// Millis is a convenience for building a record timestamp.
func Millis(ms int64) *int64 {
	return &ms
}
