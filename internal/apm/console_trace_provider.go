package apm

import (
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
)

// emptyTraceProvider leaves the global no-op tracer in place.
type emptyTraceProvider struct{}

func NewEmptyTraceProvider() TraceProvider {
	return emptyTraceProvider{}
}

func (emptyTraceProvider) Stop() error {
	return nil
}

func useConsole() TracerOption {
	return func(option *TracerOptions) {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			option.err = err
			return
		}
		option.exporter = exp
		option.tracerProviderName = string(ConsoleProvider)
	}
}
