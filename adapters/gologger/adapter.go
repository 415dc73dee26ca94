// Package gologger resolves the gate's named component loggers and
// bridges them onto the go-job logging contracts for queue workers.
package gologger

import (
	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

// Component logger names. Every gate subsystem logs under one of these
// so operators can filter a shared provider by channel.
const (
	ComponentSetup    = "storegate.setup"
	ComponentWebhooks = "storegate.webhooks"
	ComponentHTTP     = "storegate.http"
	ComponentResolver = "storegate.resolver"
)

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// ForComponent resolves the logger side only, for subsystems that never
// hand loggers further down.
func ForComponent(name string, provider glog.LoggerProvider, logger glog.Logger) glog.Logger {
	_, resolved := glog.Resolve(name, provider, logger)
	return resolved
}

// ToJobProvider maps a glog provider to the go-job logger provider contract.
func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

// ToJobLogger maps a glog logger to the go-job logger contract.
func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// ResolveForJob resolves a component's glog logger/provider and returns
// the equivalent go-job adapters for queue worker wiring.
func ResolveForJob(
	name string,
	provider glog.LoggerProvider,
	logger glog.Logger,
) (glog.LoggerProvider, glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := Resolve(name, provider, logger)
	return resolvedProvider, resolvedLogger, ToJobProvider(resolvedProvider), ToJobLogger(resolvedLogger)
}
