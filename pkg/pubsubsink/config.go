package pubsubsink

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Connector property keys.
const (
	KeyProjectID                = "gcp.project.id"
	KeyTopic                    = "pubsub.topic"
	KeyCredentialsFile          = "gcp.credentials.file.path"
	KeyWorkloadIdentityEnabled  = "gcp.workload.identity.enabled"
	KeyWorkloadCredentialConfig = "gcp.workload.credential.config"
	KeyMessageBodyName          = "pubsub.message.body.name"
	KeyOrderingKeySource        = "pubsub.ordering.key.source"
	KeyBatchSize                = "pubsub.batch.size"
	KeyPublishTimeoutMs         = "pubsub.publish.timeout.ms"
	KeyErrorThreshold           = "pubsub.error.threshold"
	KeyEndpoint                 = "pubsub.endpoint"
)

// Ordering key sources with special meaning. Any other non-empty value names a field.
const (
	OrderingSourceKey       = "key"
	OrderingSourcePartition = "partition"
)

const (
	DefaultOrderingKeySource = OrderingSourceKey
	DefaultBatchSize         = 100
	DefaultPublishTimeout    = 30 * time.Second
	DefaultErrorThreshold    = 10
)

// Config holds the sink task configuration.
type Config struct {
	ProjectID string
	TopicID   string

	// CredentialsFile is a static service account key. Deprecated in favour of workload identity.
	CredentialsFile          string
	WorkloadIdentityEnabled  bool
	WorkloadCredentialConfig string

	MessageBodyField  string
	OrderingKeySource string

	// BatchSize is a batching hint passed to the publisher.
	BatchSize int
	// PublishTimeout bounds the drain on Stop.
	PublishTimeout time.Duration
	// ErrorThreshold is the number of consecutive failures tolerated before Put reports ErrThresholdExceeded.
	ErrorThreshold int64

	// Endpoint overrides the Pub/Sub endpoint, e.g. a regional endpoint or an emulator.
	Endpoint string
}

// DefaultConfig returns a Config with every optional value set to its default.
func DefaultConfig() Config {
	return Config{
		WorkloadIdentityEnabled: true,
		OrderingKeySource:       DefaultOrderingKeySource,
		BatchSize:               DefaultBatchSize,
		PublishTimeout:          DefaultPublishTimeout,
		ErrorThreshold:          DefaultErrorThreshold,
	}
}

// ConfigFromProperties parses connector-style properties into a validated Config.
// Unknown keys are ignored.
func ConfigFromProperties(props map[string]string) (Config, error) {
	cfg := DefaultConfig()
	cfg.ProjectID = strings.TrimSpace(props[KeyProjectID])
	cfg.TopicID = strings.TrimSpace(props[KeyTopic])
	cfg.CredentialsFile = props[KeyCredentialsFile]
	cfg.WorkloadCredentialConfig = props[KeyWorkloadCredentialConfig]
	cfg.MessageBodyField = props[KeyMessageBodyName]
	cfg.Endpoint = props[KeyEndpoint]

	if v, ok := props[KeyOrderingKeySource]; ok {
		cfg.OrderingKeySource = strings.TrimSpace(v)
	}
	if v, ok := props[KeyWorkloadIdentityEnabled]; ok && v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return Config{}, &ConfigurationError{Key: KeyWorkloadIdentityEnabled, Reason: "expected a boolean", Err: err}
		}
		cfg.WorkloadIdentityEnabled = b
	}
	if v, ok := props[KeyBatchSize]; ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return Config{}, &ConfigurationError{Key: KeyBatchSize, Reason: "expected an integer", Err: err}
		}
		cfg.BatchSize = n
	}
	if v, ok := props[KeyPublishTimeoutMs]; ok && v != "" {
		ms, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return Config{}, &ConfigurationError{Key: KeyPublishTimeoutMs, Reason: "expected an integer", Err: err}
		}
		cfg.PublishTimeout = time.Duration(ms) * time.Millisecond
	}
	if v, ok := props[KeyErrorThreshold]; ok && v != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return Config{}, &ConfigurationError{Key: KeyErrorThreshold, Reason: "expected an integer", Err: err}
		}
		cfg.ErrorThreshold = n
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks required keys, numeric ranges and that configured credential files are readable.
func (c Config) Validate() error {
	if c.ProjectID == "" {
		return &ConfigurationError{Key: KeyProjectID, Reason: "required"}
	}
	if c.TopicID == "" {
		return &ConfigurationError{Key: KeyTopic, Reason: "required"}
	}
	if c.BatchSize <= 0 {
		return &ConfigurationError{Key: KeyBatchSize, Reason: fmt.Sprintf("must be positive, got %d", c.BatchSize)}
	}
	if c.PublishTimeout <= 0 {
		return &ConfigurationError{Key: KeyPublishTimeoutMs, Reason: fmt.Sprintf("must be positive, got %s", c.PublishTimeout)}
	}
	if c.ErrorThreshold <= 0 {
		return &ConfigurationError{Key: KeyErrorThreshold, Reason: fmt.Sprintf("must be positive, got %d", c.ErrorThreshold)}
	}
	if c.WorkloadIdentityEnabled && c.WorkloadCredentialConfig != "" {
		if err := checkReadable(c.WorkloadCredentialConfig); err != nil {
			return &ConfigurationError{Key: KeyWorkloadCredentialConfig, Reason: "credential config not readable", Err: err}
		}
	}
	if c.CredentialsFile != "" {
		if err := checkReadable(c.CredentialsFile); err != nil {
			return &ConfigurationError{Key: KeyCredentialsFile, Reason: "credentials file not readable", Err: err}
		}
	}
	return nil
}

func checkReadable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	return f.Close()
}

// PropertiesFromEnv reads sink properties from the environment variables used by the
// other services in this repo. Only variables that are set are returned.
func PropertiesFromEnv() map[string]string {
	env := map[string]string{
		"GCP_PROJECT_ID":              KeyProjectID,
		"PUBSUB_TOPIC_ID":             KeyTopic,
		"GCP_PUBSUB_CREDENTIALS_FILE": KeyCredentialsFile,
		"PUBSUB_ORDERING_KEY_SOURCE":  KeyOrderingKeySource,
		"PUBSUB_MESSAGE_BODY_NAME":    KeyMessageBodyName,
	}
	props := make(map[string]string)
	for name, key := range env {
		if v, ok := os.LookupEnv(name); ok {
			props[key] = v
		}
	}
	return props
}
