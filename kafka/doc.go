// Package kafka carries the deletion notice channel and the lifecycle
// event topics over segmentio/kafka-go.
//
// # Architecture
//
//   - Component: owns the producer and consumer runners (Start/Stop/Health)
//   - kafka/producer: JSON and event publishing with bounded retries
//   - kafka/consumer: consumer-group reads committed after the handler returns
//
// # Configuration
//
//	kafka:
//	  enabled: true
//	  brokers: ["localhost:9092"]
//	  group_id: "playurl"
//	  sasl: {mechanism: SCRAM-SHA-512, username: playurl}
//	  producer: {compression: snappy, retries: 3}
//	  consumer: {session_timeout: 30s}
package kafka
