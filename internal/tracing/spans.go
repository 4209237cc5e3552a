package tracing

// Span attribute keys shared by the registry and the diagnostics server.
const (
	AttrOwner     = "registry.owner"
	AttrClaims    = "registry.claims"
	AttrBatchID   = "registry.batch_id"
	AttrSuccess   = "registry.success"
	AttrErrors    = "registry.errors"
	AttrConflicts = "registry.conflicts"
	AttrRemoved   = "registry.removed"

	AttrHTTPMethod = "http.request.method"
	AttrHTTPRoute  = "http.route"
	AttrHTTPStatus = "http.response.status_code"
)

// Span names.
const (
	SpanRegisterFromManifest = "registry.RegisterFromManifest"
	SpanValidateManifest     = "registry.ValidateManifest"
	SpanUnregisterAll        = "registry.UnregisterAll"
	SpanPrefixHTTP           = "http."
)
