package internaldefs

import (
	"github.com/MrEthical07/authgate"
)

// CounterDef names one engine counter.
type CounterDef struct {
	ID   authgate.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram.
type HistogramDef struct {
	ID   authgate.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: authgate.MetricSignUpSuccess, Name: "authgate_sign_up_success_total", Help: "Successful email sign-ups."},
	{ID: authgate.MetricSignUpDuplicate, Name: "authgate_sign_up_duplicate_total", Help: "Sign-ups rejected because the email exists."},
	{ID: authgate.MetricSignInSuccess, Name: "authgate_sign_in_success_total", Help: "Successful sign-ins, password or OTP."},
	{ID: authgate.MetricSignInFailure, Name: "authgate_sign_in_failure_total", Help: "Rejected password sign-ins."},
	{ID: authgate.MetricSignOut, Name: "authgate_sign_out_total", Help: "Single-session sign-outs."},
	{ID: authgate.MetricRateLimitHit, Name: "authgate_rate_limit_hit_total", Help: "Requests rejected by the rate limiter."},
	{ID: authgate.MetricSessionCreated, Name: "authgate_session_created_total", Help: "Issued sessions."},
	{ID: authgate.MetricSessionInvalidated, Name: "authgate_session_invalidated_total", Help: "Revoked sessions."},
	{ID: authgate.MetricSessionCacheHit, Name: "authgate_session_cache_hit_total", Help: "Session lookups answered by Redis."},
	{ID: authgate.MetricSessionCacheMiss, Name: "authgate_session_cache_miss_total", Help: "Session lookups that fell through to the store."},
	{ID: authgate.MetricPasswordSetSuccess, Name: "authgate_password_set_success_total", Help: "Passwords set on an authenticated session."},
	{ID: authgate.MetricPasswordSetFailure, Name: "authgate_password_set_failure_total", Help: "Password sets that failed after validation."},
	{ID: authgate.MetricPasswordHashUpgraded, Name: "authgate_password_hash_upgraded_total", Help: "Password hashes rewritten with current parameters."},
	{ID: authgate.MetricOTPSent, Name: "authgate_otp_sent_total", Help: "One-time codes issued."},
	{ID: authgate.MetricOTPDeliveryDropped, Name: "authgate_otp_delivery_dropped_total", Help: "Codes dropped because the delivery queue was full."},
	{ID: authgate.MetricOTPDeliveryFailed, Name: "authgate_otp_delivery_failed_total", Help: "Codes the sender failed to deliver."},
	{ID: authgate.MetricOTPVerifySuccess, Name: "authgate_otp_verify_success_total", Help: "Accepted one-time codes."},
	{ID: authgate.MetricOTPVerifyFailure, Name: "authgate_otp_verify_failure_total", Help: "Rejected one-time codes."},
	{ID: authgate.MetricOTPAttemptsExceeded, Name: "authgate_otp_attempts_exceeded_total", Help: "Challenges revoked after too many wrong codes."},
	{ID: authgate.MetricEmailVerified, Name: "authgate_email_verified_total", Help: "Email addresses verified."},
	{ID: authgate.MetricPasswordResetSuccess, Name: "authgate_password_reset_success_total", Help: "Passwords reset with a one-time code."},
}

var HistogramDefs = []HistogramDef{
	{ID: authgate.MetricGetSessionLatency, Name: "authgate_get_session_latency_seconds", Help: "get-session latency."},
}

// DeliveryQueueDropped is exported from Engine.DeliveryDropped, which counts
// even when engine metrics are disabled.
const (
	DeliveryQueueDroppedName = "authgate_delivery_queue_dropped_total"
	DeliveryQueueDroppedHelp = "Codes dropped by the delivery queue since start."
)

// HistogramUpperBounds are the finite bucket bounds in seconds. The last
// engine bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to the engine's 8 buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
