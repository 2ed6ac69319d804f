package observe

import (
	"go.opentelemetry.io/otel/attribute"
)

// EventMeta identifies where a telemetry event comes from.
type EventMeta struct {
	Component string // worker component, e.g. "strategy", "push"
	Operation string // operation within the component, e.g. "fetch", "deliver"
	Route     string // request class for fetch events (optional)
	Tier      string // cache tier involved (optional)
}

// Validate checks that the meta names a component.
func (m EventMeta) Validate() error {
	if m.Component == "" {
		return ErrMissingComponent
	}
	return nil
}

// SpanName returns worker.<component>.<operation>, or worker.<component>.
func (m EventMeta) SpanName() string {
	if m.Operation == "" {
		return "worker." + m.Component
	}
	return "worker." + m.Component + "." + m.Operation
}

func (m EventMeta) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("worker.component", m.Component)}
	if m.Operation != "" {
		attrs = append(attrs, attribute.String("worker.operation", m.Operation))
	}
	if m.Route != "" {
		attrs = append(attrs, attribute.String("worker.route", m.Route))
	}
	if m.Tier != "" {
		attrs = append(attrs, attribute.String("worker.tier", m.Tier))
	}
	return attrs
}

func (m EventMeta) fields() map[string]any {
	f := map[string]any{"component": m.Component}
	if m.Operation != "" {
		f["operation"] = m.Operation
	}
	if m.Route != "" {
		f["route"] = m.Route
	}
	if m.Tier != "" {
		f["tier"] = m.Tier
	}
	return f
}
