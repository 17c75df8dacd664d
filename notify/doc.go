// Package notify provides sessionauth.Notifier implementations.
//
// Kafka publishes each message as a JSON envelope to a topic consumed by the
// mail service. Log writes messages to a zap logger and is meant for local
// development, where links are copied from the console.
//
// Send is synchronous in both: when it returns nil the message has been
// accepted by the backend.
package notify
