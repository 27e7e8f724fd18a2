package utils

import "time"

// =============================================================================
// Timeout Constants
// =============================================================================

// HTTP Handler Timeouts
const (
	// DefaultRequestTimeout is the default timeout for HTTP requests
	DefaultRequestTimeout = 30 * time.Second

	// StoreTimeout bounds a single store round-trip issued by a handler
	StoreTimeout = 5 * time.Second

	// UploadTimeout bounds an attachment upload including the file write
	UploadTimeout = 30 * time.Second

	// EventPublishTimeout bounds best-effort event publishing
	EventPublishTimeout = 2 * time.Second

	// ConnectTimeout is used when dialing external backends at startup
	ConnectTimeout = 10 * time.Second
)

// =============================================================================
// Limits
// =============================================================================

const (
	// MaxReadingsPerBatch is the maximum number of readings accepted in one request
	MaxReadingsPerBatch = 10000

	// DefaultUploadMaxSizeMB is the default multipart body limit for attachments
	DefaultUploadMaxSizeMB = 16
)

// =============================================================================
// Backend Type Constants
// =============================================================================

// QueueType represents the type of message queue
type QueueType string

const (
	// QueueTypeNATS represents NATS JetStream queue
	QueueTypeNATS QueueType = "nats"

	// QueueTypeRedis represents Redis Streams queue
	QueueTypeRedis QueueType = "redis"

	// QueueTypeKafka represents Apache Kafka queue
	QueueTypeKafka QueueType = "kafka"

	// QueueTypeMemory represents in-memory queue (default)
	QueueTypeMemory QueueType = "memory"
)

// StoreDriver selects the document store backend
type StoreDriver string

const (
	StoreDriverMemory   StoreDriver = "memory"
	StoreDriverMongo    StoreDriver = "mongo"
	StoreDriverPostgres StoreDriver = "postgres"
	StoreDriverSQLite   StoreDriver = "sqlite"
)

// CounterType selects where installation ids are issued from
type CounterType string

const (
	// CounterTypeStore increments the Settings document inside the store
	CounterTypeStore CounterType = "store"

	// CounterTypeRedis uses Redis INCR
	CounterTypeRedis CounterType = "redis"
)
