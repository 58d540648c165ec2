package authgate

import (
	"context"
	"testing"
	"time"
)

func newBenchmarkEnv(b *testing.B) *testEnv {
	b.Helper()
	cfg := testConfig()
	cfg.Metrics.Enabled = false
	return newTestEnv(b, cfg)
}

func BenchmarkResolveSessionCached(b *testing.B) {
	env := newBenchmarkEnv(b)
	res := env.signUp(b, "alice@example.com", "correct-horse")

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := env.engine.ResolveSession(context.Background(), res.Token); err != nil {
			b.Fatalf("resolve failed: %v", err)
		}
	}
}

func BenchmarkSignInEmail(b *testing.B) {
	env := newBenchmarkEnv(b)
	env.signUp(b, "alice@example.com", "correct-horse")

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		res, err := env.engine.SignInEmail(context.Background(), "alice@example.com", "correct-horse")
		if err != nil {
			b.Fatalf("sign-in failed: %v", err)
		}
		_ = env.engine.SignOut(context.Background(), res.Token)
	}
}

func BenchmarkMetricsInc(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		m.Inc(MetricSignInSuccess)
	}
}

func BenchmarkMetricsIncParallel(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Inc(MetricSessionCacheHit)
		}
	})
}

func BenchmarkMetricsObserveLatencyParallel(b *testing.B) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})
	d := 12 * time.Millisecond
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Observe(MetricGetSessionLatency, d)
		}
	})
}
