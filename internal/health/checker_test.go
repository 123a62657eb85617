package health

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

// ── Stubs ────────────────────────────────────────────────────────────────

type stubVerifier struct {
	mu  sync.Mutex
	err error
}

func (s *stubVerifier) set(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *stubVerifier) Verify(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

type stubSetter struct {
	statuses []healthpb.HealthCheckResponse_ServingStatus
}

func (s *stubSetter) SetServingStatus(_ string, st healthpb.HealthCheckResponse_ServingStatus) {
	s.statuses = append(s.statuses, st)
}

func (s *stubSetter) last() healthpb.HealthCheckResponse_ServingStatus {
	return s.statuses[len(s.statuses)-1]
}

var errBroken = errors.New("chain broken at index 2")

// ── Tests ────────────────────────────────────────────────────────────────

func TestCheck_degradesAfterThreshold(t *testing.T) {
	v := &stubVerifier{err: errBroken}
	setter := &stubSetter{}
	var degraded error
	checker := New(v, Config{FailThreshold: 3}, zap.NewNop())
	checker.SetStatusSetter(setter)
	checker.SetDegradedCallback(func(err error) { degraded = err })

	if setter.last() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("initial status = %v, want SERVING", setter.last())
	}

	for i := 0; i < 2; i++ {
		checker.Check(context.Background())
	}
	if !checker.Healthy() {
		t.Fatal("degraded before reaching the threshold")
	}

	checker.Check(context.Background())
	if checker.Healthy() {
		t.Fatal("expected degraded after 3 failures")
	}
	if setter.last() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status = %v, want NOT_SERVING", setter.last())
	}
	if !errors.Is(degraded, errBroken) {
		t.Errorf("degraded callback err = %v", degraded)
	}

	// Further failures do not re-fire the transition.
	degraded = nil
	checker.Check(context.Background())
	if degraded != nil {
		t.Error("degraded callback fired twice")
	}
}

func TestCheck_recoversOnSuccess(t *testing.T) {
	v := &stubVerifier{err: errBroken}
	setter := &stubSetter{}
	checker := New(v, Config{FailThreshold: 1}, zap.NewNop())
	checker.SetStatusSetter(setter)

	checker.Check(context.Background())
	if checker.Healthy() {
		t.Fatal("expected degraded")
	}

	v.set(nil)
	if !checker.Check(context.Background()) {
		t.Fatal("expected check to pass")
	}
	if !checker.Healthy() {
		t.Error("expected healthy after recovery")
	}
	if setter.last() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", setter.last())
	}
}

func TestCheck_metricsAndCancellation(t *testing.T) {
	v := &stubVerifier{}
	var results []bool
	checker := New(v, Config{FailThreshold: 1}, zap.NewNop())
	checker.SetMetricsRecord(func(ok bool) { results = append(results, ok) })

	checker.Check(context.Background())
	v.set(context.Canceled)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Check(ctx)

	if len(results) != 1 || !results[0] {
		t.Errorf("metrics = %v, want [true]", results)
	}
	if !checker.Healthy() {
		t.Error("a cancelled check must not degrade the ledger")
	}
}

func TestStart_stopsOnCancel(t *testing.T) {
	v := &stubVerifier{}
	var mu sync.Mutex
	calls := 0
	checker := New(v, Config{CheckInterval: 10 * time.Millisecond}, zap.NewNop())
	checker.SetMetricsRecord(func(bool) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Start(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
	mu.Lock()
	defer mu.Unlock()
	if calls < 2 {
		t.Errorf("expected repeated checks, got %d", calls)
	}
}

func TestGRPCHealth(t *testing.T) {
	v := &stubVerifier{}
	checker := New(v, Config{FailThreshold: 1}, zap.NewNop())
	srv := NewGRPCServer(checker, nil)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	defer srv.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	hc := healthpb.NewHealthClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := hc.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", resp.GetStatus())
	}

	v.set(errBroken)
	checker.Check(ctx)

	resp, err = hc.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status = %v, want NOT_SERVING", resp.GetStatus())
	}
}
