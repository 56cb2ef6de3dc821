package kvClient

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"testing"

	"cobraverifier"
	"cobraverifier/checking"
	"cobraverifier/cycle"
	"cobraverifier/history"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1024 * 1024

var initial = map[string]string{"x": "0", "y": "0", "z": "0"}

// Start a memory server on an in-process listener and connect a recording client to it
func setup(t *testing.T, isolation Isolation) (*Client, *history.Store) {
	t.Helper()
	conn, store := serve(t, func(srv *grpc.Server) {
		RegisterKvServiceServer(srv, NewMemoryServer(initial, isolation))
	})
	return NewClient(conn), store
}

// Start a server with the registered services and dial it through the recording interceptor
func serve(t *testing.T, register func(srv *grpc.Server)) (*grpc.ClientConn, *history.Store) {
	t.Helper()
	lis := bufconn.Listen(bufSize)
	srv := grpc.NewServer()
	register(srv)
	go func() {
		srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	var clock int64
	store := history.NewStore(initial)
	conn, err := grpc.Dial("bufnet",
		grpc.WithContextDialer(func(ctx context.Context, s string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(UnaryClientRecorderInterceptor(store, func() int64 { return atomic.AddInt64(&clock, 1) })),
	)
	if err != nil {
		t.Fatalf("Unable to dial server: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, store
}

func TestSerialServerIsStrictlySerializable(t *testing.T) {
	client, store := setup(t, Serial)
	keys := []string{"x", "y", "z"}
	ctx := context.Background()

	group := errgroup.Group{}
	for i := 0; i < 4; i++ {
		i := i
		group.Go(func() error {
			for j := 0; j < 10; j++ {
				txn, err := client.Begin(ctx)
				if err != nil {
					return err
				}
				if _, err := txn.Read(ctx, keys[(i+j)%3]); err != nil {
					return err
				}
				if err := txn.Write(ctx, keys[(i+j+1)%3], fmt.Sprintf("%d-%d", i, j)); err != nil {
					return err
				}
				if _, err := txn.Commit(ctx); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		t.Fatalf("Did not expect to receive an error. Got %v", err)
	}

	if store.Len() != 4*10*4 {
		t.Errorf("Expected %v recorded operations. Got %v", 4*10*4, store.Len())
	}
	verdict, err := cobraverifier.VerifyStore(store, cobraverifier.WithRealTimeEdges())
	if err != nil {
		t.Fatalf("Did not expect to receive an error. Got %v", err)
	}
	if verdict.Result != checking.StrictlySerializable {
		_, resp := verdict.Response()
		t.Errorf("Expected the history to be strictly serializable. Got %v", resp)
	}
}

func TestSnapshotIsolationWriteSkew(t *testing.T) {
	client, store := setup(t, SnapshotIsolation)
	ctx := context.Background()

	t1, err := client.Begin(ctx)
	if err != nil {
		t.Fatalf("Did not expect to receive an error. Got %v", err)
	}
	t2, err := client.Begin(ctx)
	if err != nil {
		t.Fatalf("Did not expect to receive an error. Got %v", err)
	}
	steps := []func() error{
		func() error { _, err := t1.Read(ctx, "x"); return err },
		func() error { _, err := t2.Read(ctx, "y"); return err },
		func() error { return t1.Write(ctx, "y", "1") },
		func() error { return t2.Write(ctx, "x", "1") },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("Step %v: Did not expect to receive an error. Got %v", i, err)
		}
	}
	for _, txn := range []*Txn{t1, t2} {
		ok, err := txn.Commit(ctx)
		if err != nil || !ok {
			t.Fatalf("Expected T%v to commit. Got %v and %v", txn.Id, ok, err)
		}
	}

	verdict, err := cobraverifier.VerifyStore(store)
	if err != nil {
		t.Fatalf("Did not expect to receive an error. Got %v", err)
	}
	if verdict.Result != checking.NotSerializable {
		t.Fatalf("Expected the history to not be serializable. Got %v", verdict.Result)
	}
	if len(verdict.Violations) != 1 || verdict.Violations[0].Anomaly != cycle.G2 {
		t.Errorf("Expected a single write skew. Got %v", verdict.Violations)
	}
}

func TestRefusedCommitIsRecordedAsAbort(t *testing.T) {
	client, store := setup(t, SnapshotIsolation)
	ctx := context.Background()

	t1, _ := client.Begin(ctx)
	t2, _ := client.Begin(ctx)
	if err := t1.Write(ctx, "x", "1"); err != nil {
		t.Fatalf("Did not expect to receive an error. Got %v", err)
	}
	if err := t2.Write(ctx, "x", "2"); err != nil {
		t.Fatalf("Did not expect to receive an error. Got %v", err)
	}
	if ok, err := t1.Commit(ctx); err != nil || !ok {
		t.Fatalf("Expected the first committer to commit. Got %v and %v", ok, err)
	}
	if ok, err := t2.Commit(ctx); err != nil || ok {
		t.Fatalf("Expected the second committer to abort. Got %v and %v", ok, err)
	}

	ops := store.Operations()
	last := ops[len(ops)-1]
	if last.Kind != history.Abort || last.Txn != t2.Id {
		t.Errorf("Expected the refused commit to be recorded as an abort of T%v. Got %v", t2.Id, last)
	}
	verdict, err := cobraverifier.VerifyStore(store, cobraverifier.WithRealTimeEdges())
	if err != nil {
		t.Fatalf("Did not expect to receive an error. Got %v", err)
	}
	if !verdict.Ok() {
		t.Errorf("Expected no violations. Got %v", verdict.Violations)
	}
}

func TestFailedCallsAreNotRecorded(t *testing.T) {
	client, store := setup(t, SnapshotIsolation)
	ctx := context.Background()

	// The transaction was never started
	txn := &Txn{Id: 42, cc: client.cc}
	if _, err := txn.Read(ctx, "x"); err == nil {
		t.Errorf("Expected an error when reading in an unknown transaction")
	}
	if store.Len() != 0 {
		t.Errorf("Expected no recorded operations. Got %v", store.Operations())
	}
}

func TestOtherServicesAreNotRecorded(t *testing.T) {
	conn, store := serve(t, func(srv *grpc.Server) {
		RegisterKvServiceServer(srv, NewMemoryServer(initial, Serial))
		healthpb.RegisterHealthServer(srv, health.NewServer())
	})

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Did not expect to receive an error. Got %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("Expected the server to be serving. Got %v", resp.GetStatus())
	}
	if store.Len() != 0 {
		t.Errorf("Expected no recorded operations. Got %v", store.Len())
	}

	// The recorded service still works on the same connection
	client := NewClient(conn)
	txn, err := client.Begin(context.Background())
	if err != nil {
		t.Fatalf("Did not expect to receive an error. Got %v", err)
	}
	if _, err := txn.Commit(context.Background()); err != nil {
		t.Fatalf("Did not expect to receive an error. Got %v", err)
	}
	if store.Len() != 2 {
		t.Errorf("Expected two recorded operations. Got %v", store.Len())
	}
}
