// Package telemetry provides semantic conventions for messenger observability.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Semantic convention attribute keys for messenger telemetry.
// Following OpenTelemetry naming conventions: namespace.attribute_name
const (
	AttrMessageKind = attribute.Key("message.kind")
	AttrRunner      = attribute.Key("subscription.runner")
	AttrReference   = attribute.Key("subscription.reference")
	AttrOperation   = attribute.Key("operation")
	AttrResult      = attribute.Key("result")

	AttrEnvironment = attribute.Key("environment")
)

// Result values
const (
	ResultOK       = "ok"
	ResultPanic    = "panic"
	ResultDropped  = "dropped"
	ResultRejected = "rejected"
)

// KindAttributes returns common attributes for per-kind hub metrics.
func KindAttributes(kind string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(Environment()),
		AttrMessageKind.String(kind),
	}
}

// DeliveryAttributes returns attributes for handler delivery metrics.
func DeliveryAttributes(kind, runner, result string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(Environment()),
		AttrMessageKind.String(kind),
		AttrRunner.String(runner),
		AttrResult.String(result),
	}
}

// OperationAttributes returns attributes for hub lifecycle operations.
func OperationAttributes(operation, result string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(Environment()),
		AttrOperation.String(operation),
		AttrResult.String(result),
	}
}
