// Command authgate-loadtest measures session resolution and sign-in
// throughput against Redis (or an embedded miniredis) with an in-memory
// credential store.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/metrics/export/otel"
	"github.com/MrEthical07/authgate/otp"
	"github.com/MrEthical07/authgate/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type discardSender struct{}

func (discardSender) SendOTP(context.Context, string, string, otp.Purpose) error { return nil }

type account struct {
	email string
	token string
}

const loadtestPassword = "loadtest-password"

func main() {
	var (
		users       = flag.Int("users", 2000, "number of accounts to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "session resolutions to run")
		signIns     = flag.Int("sign-ins", 2000, "sign-ins to run")
		bcryptCost  = flag.Int("bcrypt-cost", 4, "bcrypt cost used for seeded accounts")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 || *signIns < 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := authgate.DefaultConfig()
	cfg.Password.BcryptCost = *bcryptCost
	cfg.RateLimit.Enabled = false
	cfg.Metrics.EnableLatencyHistograms = true

	engine, err := authgate.New().
		WithConfig(cfg).
		WithRedis(client).
		WithCredentialStore(memory.New()).
		WithNotificationSender(discardSender{}).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	exporter, err := otel.NewExporter(provider.Meter("authgate-loadtest"), engine)
	if err != nil {
		fmt.Fprintf(os.Stderr, "metrics exporter failed: %v\n", err)
		os.Exit(1)
	}
	defer exporter.Close()

	accounts := make([]account, *users)
	fmt.Printf("seeding %d accounts...\n", *users)
	startSeed := time.Now()
	for i := range accounts {
		email := fmt.Sprintf("user-%d@loadtest.local", i)
		res, err := engine.SignUpEmail(ctx, authgate.SignUpInput{Email: email, Password: loadtestPassword})
		if err != nil {
			fmt.Fprintf(os.Stderr, "sign-up failed: %v\n", err)
			os.Exit(1)
		}
		accounts[i] = account{email: email, token: res.Token}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	resolveStats := runPhase(*ops, *concurrency, func(r *rand.Rand) error {
		_, err := engine.GetSession(ctx, accounts[r.Intn(len(accounts))].token)
		return err
	})
	signInStats := runPhase(*signIns, *concurrency, func(r *rand.Rand) error {
		_, err := engine.SignInEmail(ctx, accounts[r.Intn(len(accounts))].email, loadtestPassword)
		return err
	})

	fmt.Println("---- results ----")
	printStats("get-session", resolveStats)
	printStats("sign-in", signInStats)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		fmt.Fprintf(os.Stderr, "collect metrics failed: %v\n", err)
		os.Exit(1)
	}
	printCounters(rm)
}

func runPhase(ops, concurrency int, op func(r *rand.Rand) error) phaseStats {
	if ops == 0 {
		return phaseStats{}
	}
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

// printCounters lists every non-zero engine counter.
func printCounters(rm metricdata.ResourceMetrics) {
	fmt.Println("---- engine counters ----")
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				if dp.Value != 0 {
					fmt.Printf("%s %d\n", m.Name, dp.Value)
				}
			}
		}
	}
}
