package telemetry

import (
	"context"
	"slices"
	"strings"

	"github.com/grafana/pyroscope-go"
)

// Profiling label keys
const (
	ProfilingLabelController   = "controller"
	ProfilingLabelRoute        = "route"
	ProfilingLabelMethod       = "method"
	ProfilingLabelDocumentKind = "document_kind"
	ProfilingLabelOperation    = "operation"
)

// MaxLabelValueLength caps label values
const MaxLabelValueLength = 128

// highCardinalityLabels are dropped from profiling labels. document_kind is
// not among them: it has four values.
var highCardinalityLabels = map[string]bool{
	"user_id":      true,
	"actor_id":     true,
	"request_id":   true,
	"document_id":  true,
	"product_id":   true,
	"warehouse_id": true,
	"trace_id":     true,
	"span_id":      true,
}

// Engine operations used as profiling labels
const (
	OperationCreateDocument   = "create_document"
	OperationUpdateDocument   = "update_document"
	OperationValidateDocument = "validate_document"
	OperationCancelDocument   = "cancel_document"
	OperationReconcile        = "reconcile"
	OperationInitialStock     = "initial_stock"
)

// WithProfilingLabels runs fn with pprof labels attached, so CPU and
// allocation samples taken inside fn can be filtered in Pyroscope.
// High-cardinality keys are dropped and long values truncated.
func WithProfilingLabels(ctx context.Context, labels map[string]string, fn func(context.Context)) {
	pairs := sanitizeLabels(labels)
	if len(pairs) == 0 {
		fn(ctx)
		return
	}
	pyroscope.TagWrapper(ctx, pyroscope.Labels(pairs...), fn)
}

// sanitizeLabels returns key/value pairs sorted by key
func sanitizeLabels(labels map[string]string) []string {
	if len(labels) == 0 {
		return nil
	}
	clean := make(map[string]string, len(labels))
	for key, value := range labels {
		sanitized := sanitizeLabelKey(key)
		if sanitized == "" || value == "" || highCardinalityLabels[sanitized] {
			continue
		}
		if len(value) > MaxLabelValueLength {
			value = value[:MaxLabelValueLength]
		}
		clean[sanitized] = value
	}
	if len(clean) == 0 {
		return nil
	}

	keys := make([]string, 0, len(clean))
	for k := range clean {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	pairs := make([]string, 0, len(keys)*2)
	for _, key := range keys {
		pairs = append(pairs, key, clean[key])
	}
	return pairs
}

// sanitizeLabelKey lowercases key, maps spaces and dashes to underscores and
// drops everything outside [a-z0-9_].
func sanitizeLabelKey(key string) string {
	var b strings.Builder
	for _, c := range strings.ToLower(key) {
		switch {
		case c == ' ' || c == '-':
			b.WriteByte('_')
		case (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_':
			b.WriteRune(c)
		}
	}
	return b.String()
}

// HTTPRequestLabels builds labels for one request. Empty values are left out.
func HTTPRequestLabels(controller, route, method, documentKind string) map[string]string {
	labels := make(map[string]string, 4)
	for k, v := range map[string]string{
		ProfilingLabelController:   controller,
		ProfilingLabelRoute:        route,
		ProfilingLabelMethod:       method,
		ProfilingLabelDocumentKind: documentKind,
	} {
		if v != "" {
			labels[k] = v
		}
	}
	return labels
}

// StockOperationLabels builds labels for an engine operation on one document
// kind. An empty kind is left out.
func StockOperationLabels(operation, documentKind string) map[string]string {
	labels := map[string]string{ProfilingLabelOperation: operation}
	if documentKind != "" {
		labels[ProfilingLabelDocumentKind] = documentKind
	}
	return labels
}
