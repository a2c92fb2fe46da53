// Package outbox implements the transactional outbox for domain events.
//
// Producers call Enqueue with the *sql.Tx that carries their business write,
// so an event row exists exactly when the write commits. A Dispatcher, run on
// a cron schedule by the worker binary, drains pending rows to a Publisher
// (RabbitMQ in production) and records each attempt.
package outbox
