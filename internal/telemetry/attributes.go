// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"
	HTTPHostKey       = "http.host"

	FetchAttemptKey     = "fetch.attempt"
	FetchBlockedKey     = "fetch.blocked"
	FetchConfidenceKey  = "fetch.block_confidence"
	FetchTLSFallbackKey = "fetch.tls_fallback"

	ChannelIDKey       = "channel.id"
	ChannelNameKey     = "channel.name"
	ResolveTemplateKey = "resolve.template"
	ResolveDepthKey    = "resolve.depth"
	ResolveViaKey      = "resolve.via"
	ResolveAttemptsKey = "resolve.attempts"

	RunIDKey       = "run.id"
	RunChannelsKey = "run.channels"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// ChannelAttributes identifies the channel a span works on. Empty values are skipped.
func ChannelAttributes(id, name string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 2)
	if id != "" {
		attrs = append(attrs, attribute.String(ChannelIDKey, id))
	}
	if name != "" {
		attrs = append(attrs, attribute.String(ChannelNameKey, name))
	}
	return attrs
}

// ProbeAttributes describes one candidate page visit.
func ProbeAttributes(template string, depth int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ResolveTemplateKey, template),
		attribute.Int(ResolveDepthKey, depth),
	}
}
