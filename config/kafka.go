package config

import (
	"fmt"
)

// KafkaConfig holds Kafka connection configuration for ingest notices
type KafkaConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	BootstrapServers string `mapstructure:"bootstrap_servers"`
	SecurityProtocol string `mapstructure:"security_protocol"`
	SASLMechanism    string `mapstructure:"sasl_mechanism"`
	SASLUsername     string `mapstructure:"sasl_username"`
	SASLPassword     string `mapstructure:"sasl_password"`
	Topic            string `mapstructure:"topic"`
	CompressionType  string `mapstructure:"compression_type"`
	Acks             string `mapstructure:"acks"`
	MaxInFlight      int    `mapstructure:"max_in_flight"`
	LingerMS         int    `mapstructure:"linger_ms"`
	BatchSize        int    `mapstructure:"batch_size"`
}

// NewKafkaConfig returns the producer defaults
func NewKafkaConfig() *KafkaConfig {
	return &KafkaConfig{
		BootstrapServers: "localhost:9092",
		SecurityProtocol: "PLAINTEXT",
		SASLMechanism:    "PLAIN",
		Topic:            "vehicle-telemetry-ingested",
		CompressionType:  "snappy",
		Acks:             "all",
		MaxInFlight:      5,
		LingerMS:         10,
		BatchSize:        16384,
	}
}

// Validate checks the settings a producer cannot start without
func (c *KafkaConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.BootstrapServers == "" {
		return fmt.Errorf("kafka.bootstrap_servers is required when kafka is enabled")
	}
	if c.Topic == "" {
		return fmt.Errorf("kafka.topic is required when kafka is enabled")
	}
	if c.MaxInFlight <= 0 {
		return fmt.Errorf("kafka.max_in_flight must be positive, got %d", c.MaxInFlight)
	}
	return nil
}
