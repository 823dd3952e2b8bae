package checker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ibp-network/ibpmon/internal/core/domain"
	"github.com/ibp-network/ibpmon/internal/infra/rpc"
)

// fakeConn answers the probe sequence with canned values. Individual methods
// can be failed through errs; healthDelay stretches the timed primary probe.
type fakeConn struct {
	closed      int
	calls       []string
	errs        map[string]error
	readyErr    error
	healthDelay time.Duration

	syncState    syncStateResult
	finalizedHex string
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		errs:         map[string]error{},
		syncState:    syncStateResult{CurrentBlock: 1000, HighestBlock: 1000},
		finalizedHex: "0x3e0", // 992
	}
}

func (c *fakeConn) Ready(ctx context.Context) error { return c.readyErr }

func (c *fakeConn) Close() error {
	c.closed++
	return nil
}

func (c *fakeConn) Call(ctx context.Context, method string, params any, out any) error {
	c.calls = append(c.calls, method)
	if err := c.errs[method]; err != nil {
		return err
	}

	switch method {
	case "system_localPeerId":
		*out.(*string) = "12D3KooWEyoppNCUx8Yx66oV9fJnriXwCcXwDDUA2kj6vnc6iDEp"
	case "system_chain":
		*out.(*string) = "Polkadot"
	case "system_chainType":
		*out.(*string) = "Live"
	case "system_version":
		*out.(*string) = "1.5.0-abcdef"
	case "system_health":
		if c.healthDelay > 0 {
			time.Sleep(c.healthDelay)
		}
		*out.(*healthResult) = healthResult{Peers: 25, IsSyncing: false}
	case "system_syncState":
		*out.(*syncStateResult) = c.syncState
	case "chain_getFinalizedHead":
		*out.(*string) = "0xdeadbeef"
	case "chain_getHeader":
		*out.(*headerResult) = headerResult{Number: c.finalizedHex}
	case "chain_getBlockHash":
		*out.(*string) = "0xcafe"
	case "state_getRuntimeVersion":
		*out.(*runtimeVersionResult) = runtimeVersionResult{SpecName: "polkadot", SpecVersion: 100}
	default:
		return fmt.Errorf("unexpected method %s", method)
	}
	return nil
}

func testJob() Job {
	return Job{
		Subdomain: "rpc",
		Member:    domain.Member{ID: "member-1", ServiceIPAddress: "203.0.113.10"},
		Service:   domain.CheckedService{ID: "svc-1", URL: "wss://rpc.example.network/polkadot", ChainID: "polkadot"},
		MonitorID: "monitor-1",
	}
}

// testChecker wires a checker with an injected dialer and a counting sleep.
func testChecker(cfg Config, dial DialFunc) (*Checker, *int) {
	c := New(cfg)
	c.dial = dial
	sleeps := 0
	c.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps++
		return nil
	}
	return c, &sleeps
}

func TestCheck_Success(t *testing.T) {
	conn := newFakeConn()
	var gotDial rpc.DialConfig
	c, sleeps := testChecker(Config{SLA: time.Minute}, func(ctx context.Context, cfg rpc.DialConfig) (Conn, error) {
		gotDial = cfg
		return conn, nil
	})

	hc := c.Check(context.Background(), testJob())

	if hc.Status != domain.StatusSuccess {
		t.Fatalf("status = %s, want success", hc.Status)
	}
	if hc.MonitorID != "monitor-1" || hc.MemberID != "member-1" || hc.ServiceID != "svc-1" {
		t.Errorf("identity mismatch: %+v", hc)
	}
	if hc.Source != domain.SourceCheck || hc.Level != domain.LevelInfo {
		t.Errorf("source/level = %s/%s", hc.Source, hc.Level)
	}
	if hc.ID == "" || hc.CreatedAt.IsZero() {
		t.Error("missing id or timestamp")
	}

	rec := hc.Record
	if rec.Chain != "Polkadot" || rec.ChainType != "Live" || rec.Version != "1.5.0-abcdef" {
		t.Errorf("record facts: %+v", rec)
	}
	if rec.PeerID == "" {
		t.Error("missing peer id")
	}
	if rec.Performance < 0 {
		t.Errorf("performance = %d", rec.Performance)
	}
	if rec.SyncState == nil || rec.SyncState.CurrentBlock != 1000 {
		t.Errorf("sync state: %+v", rec.SyncState)
	}
	if rec.FinalizedBlock != 992 {
		t.Errorf("finalized = %d, want 992", rec.FinalizedBlock)
	}
	if rec.Archive == nil {
		t.Fatal("missing archive probe")
	}
	if rec.Archive.Block < 1 || rec.Archive.Block > 496 {
		t.Errorf("archive block %d outside [1, 496]", rec.Archive.Block)
	}
	if rec.Archive.SpecVersion != 100 {
		t.Errorf("spec version = %d", rec.Archive.SpecVersion)
	}

	if gotDial.ResolveTo != "203.0.113.10" {
		t.Errorf("dial resolve address = %q", gotDial.ResolveTo)
	}
	if gotDial.URL != "wss://rpc.example.network/polkadot" {
		t.Errorf("dial url = %q", gotDial.URL)
	}
	if conn.closed != 1 {
		t.Errorf("conn closed %d times, want 1", conn.closed)
	}
	if *sleeps != 0 {
		t.Errorf("slept %d times, want 0", *sleeps)
	}
}

func TestCheck_WarningWhenOverSLA(t *testing.T) {
	conn := newFakeConn()
	conn.healthDelay = 5 * time.Millisecond
	c, _ := testChecker(Config{SLA: time.Millisecond}, func(ctx context.Context, cfg rpc.DialConfig) (Conn, error) {
		return conn, nil
	})

	hc := c.Check(context.Background(), testJob())

	if hc.Status != domain.StatusWarning {
		t.Errorf("status = %s, want warning", hc.Status)
	}
	if hc.Record.Performance < 5 {
		t.Errorf("performance = %dms, want >= 5", hc.Record.Performance)
	}
}

func TestCheck_RetriesTransientThenSucceeds(t *testing.T) {
	conn := newFakeConn()
	dials := 0
	c, sleeps := testChecker(Config{Attempts: 3, SLA: time.Minute}, func(ctx context.Context, cfg rpc.DialConfig) (Conn, error) {
		dials++
		if dials <= 2 {
			return nil, rpc.NewTransientError("ConnectFailed", errors.New("connection refused"))
		}
		return conn, nil
	})

	hc := c.Check(context.Background(), testJob())

	if hc.Status != domain.StatusSuccess {
		t.Fatalf("status = %s, want success", hc.Status)
	}
	if dials != 3 {
		t.Errorf("dialed %d times, want 3", dials)
	}
	if *sleeps != 2 {
		t.Errorf("slept %d times, want 2", *sleeps)
	}
}

func TestCheck_RejectionShortCircuits(t *testing.T) {
	conn := newFakeConn()
	conn.errs["system_localPeerId"] = rpc.NewRejectionError(-32601, "Method not found")
	dials := 0
	c, sleeps := testChecker(Config{Attempts: 3, SLA: time.Minute}, func(ctx context.Context, cfg rpc.DialConfig) (Conn, error) {
		dials++
		return conn, nil
	})

	hc := c.Check(context.Background(), testJob())

	if hc.Status != domain.StatusError {
		t.Fatalf("status = %s, want error", hc.Status)
	}
	if dials != 1 {
		t.Errorf("dialed %d times, want 1", dials)
	}
	if *sleeps != 0 {
		t.Errorf("slept %d times, want 0", *sleeps)
	}
	if conn.closed != 1 {
		t.Errorf("conn closed %d times, want 1", conn.closed)
	}
	if hc.Record.Error == nil || hc.Record.Error.Name != "RpcError(-32601)" {
		t.Errorf("error info: %+v", hc.Record.Error)
	}
	if hc.Record.Error.Message != "Method not found" {
		t.Errorf("error message = %q", hc.Record.Error.Message)
	}
}

func TestCheck_ExhaustedBudget(t *testing.T) {
	dials := 0
	c, sleeps := testChecker(Config{Attempts: 3, SLA: time.Minute}, func(ctx context.Context, cfg rpc.DialConfig) (Conn, error) {
		dials++
		return nil, rpc.NewTransientError("ConnectFailed", errors.New("connection refused"))
	})

	hc := c.Check(context.Background(), testJob())

	if hc.Status != domain.StatusError {
		t.Fatalf("status = %s, want error", hc.Status)
	}
	if dials != 3 {
		t.Errorf("dialed %d times, want 3", dials)
	}
	if *sleeps != 2 {
		t.Errorf("slept %d times, want 2 (no sleep after the last attempt)", *sleeps)
	}
	if hc.Record.Performance != -1 {
		t.Errorf("performance = %d, want -1", hc.Record.Performance)
	}
	if hc.Level != "error" {
		t.Errorf("level = %q, want error", hc.Level)
	}
	if hc.Record.Error == nil || hc.Record.Error.Name != "ConnectFailed" {
		t.Errorf("error info: %+v", hc.Record.Error)
	}
}

func TestCheck_ClosesConnWhenProbeFails(t *testing.T) {
	conn := newFakeConn()
	conn.errs["system_syncState"] = rpc.NewTransientError("Timeout", errors.New("read deadline exceeded"))
	c, _ := testChecker(Config{Attempts: 2, SLA: time.Minute}, func(ctx context.Context, cfg rpc.DialConfig) (Conn, error) {
		return conn, nil
	})

	hc := c.Check(context.Background(), testJob())

	if hc.Status != domain.StatusError {
		t.Fatalf("status = %s, want error", hc.Status)
	}
	if conn.closed != 2 {
		t.Errorf("conn closed %d times, want one close per attempt (2)", conn.closed)
	}
}

func TestCheck_NonRPCErrorFallback(t *testing.T) {
	c, _ := testChecker(Config{Attempts: 1, SLA: time.Minute}, func(ctx context.Context, cfg rpc.DialConfig) (Conn, error) {
		return nil, errors.New("no route to host")
	})

	hc := c.Check(context.Background(), testJob())

	if hc.Record.Error == nil {
		t.Fatal("missing error info")
	}
	if hc.Record.Error.Name != "Error" {
		t.Errorf("name = %q, want Error", hc.Record.Error.Name)
	}
	if hc.Record.Error.Message != "no route to host" {
		t.Errorf("message = %q", hc.Record.Error.Message)
	}
}

func TestCheck_SkipsArchiveProbeOnYoungChain(t *testing.T) {
	conn := newFakeConn()
	conn.finalizedHex = "0x1" // finalized/2 == 0
	c, _ := testChecker(Config{SLA: time.Minute}, func(ctx context.Context, cfg rpc.DialConfig) (Conn, error) {
		return conn, nil
	})

	hc := c.Check(context.Background(), testJob())

	if hc.Status != domain.StatusSuccess {
		t.Fatalf("status = %s, want success", hc.Status)
	}
	if hc.Record.Archive != nil {
		t.Errorf("archive probe ran on a young chain: %+v", hc.Record.Archive)
	}
	for _, m := range conn.calls {
		if m == "chain_getBlockHash" || m == "state_getRuntimeVersion" {
			t.Errorf("unexpected archive call %s", m)
		}
	}
}

func TestParseHexUint(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{"0x3e0", 992, false},
		{"0x0", 0, false},
		{"ff", 255, false},
		{"0xzz", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := parseHexUint(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseHexUint(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseHexUint(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
