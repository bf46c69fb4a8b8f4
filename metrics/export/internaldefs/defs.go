// Package internaldefs holds the shared metric naming table used by the
// exporters. Exporter packages consume it; nothing else should.
package internaldefs

import (
	authcore "github.com/carebridge/authcore"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram for export.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// CounterDefs maps every engine counter to a stable exported name.
var CounterDefs = []CounterDef{
	{ID: authcore.MetricIssueSuccess, Name: "authcore_token_issue_success_total", Help: "Issued opaque tokens."},
	{ID: authcore.MetricIssueFailure, Name: "authcore_token_issue_failure_total", Help: "Failed token issuance attempts."},
	{ID: authcore.MetricValidateSuccess, Name: "authcore_token_validate_success_total", Help: "Successful token validations."},
	{ID: authcore.MetricValidateFailure, Name: "authcore_token_validate_failure_total", Help: "Failed token validations."},
	{ID: authcore.MetricConsumeSuccess, Name: "authcore_token_consume_success_total", Help: "Single-use tokens consumed."},
	{ID: authcore.MetricConsumeReplay, Name: "authcore_token_consume_replay_total", Help: "Consume attempts on already-used tokens."},
	{ID: authcore.MetricConsumeFailure, Name: "authcore_token_consume_failure_total", Help: "Failed consume operations."},
	{ID: authcore.MetricRotateSuccess, Name: "authcore_refresh_rotate_success_total", Help: "Successful refresh rotations."},
	{ID: authcore.MetricRotateFailure, Name: "authcore_refresh_rotate_failure_total", Help: "Failed refresh rotations."},
	{ID: authcore.MetricRotateReuseDetected, Name: "authcore_refresh_reuse_detected_total", Help: "Proven replays of rotated refresh tokens."},
	{ID: authcore.MetricRefreshRevoked, Name: "authcore_refresh_revoked_total", Help: "Revoked refresh tokens."},
	{ID: authcore.MetricAuthSuccess, Name: "authcore_auth_success_total", Help: "Successful bearer authentications."},
	{ID: authcore.MetricAuthUnauthorized, Name: "authcore_auth_unauthorized_total", Help: "Bearer authentications rejected as unauthorized."},
	{ID: authcore.MetricAuthForbidden, Name: "authcore_auth_forbidden_total", Help: "Bearer authentications rejected as forbidden."},
}

// HistogramDefs maps engine latency histograms to exported names.
var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricValidateLatency, Name: "authcore_validate_latency_seconds", Help: "Validate latency histogram."},
}

// HistogramBounds are the upper bucket bounds in seconds, matching the
// engine's doubling buckets starting at 250 microseconds.
var HistogramBounds = []string{
	"0.00025",
	"0.0005",
	"0.001",
	"0.002",
	"0.004",
	"0.008",
	"0.016",
	"+Inf",
}

// HistogramBoundSuffix renders each bound as a metric name suffix.
var HistogramBoundSuffix = []string{
	"0_00025",
	"0_0005",
	"0_001",
	"0_002",
	"0_004",
	"0_008",
	"0_016",
	"inf",
}

// NormalizeBuckets pads or truncates a raw snapshot slice to the fixed
// bucket shape. A missing histogram yields all-zero buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the cumulative form
// both exposition formats use. The last element is the total sample count.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
