package kvClient

import (
	"context"
	"sync"

	"cobraverifier/history"

	"github.com/golang/protobuf/ptypes/empty"
	"golang.org/x/exp/maps"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// The isolation level provided by a MemoryServer
type Isolation int

const (
	// Transactions hold a global lock from Begin until they commit or abort
	Serial Isolation = iota + 1
	// Transactions read from the state committed when they began.
	// A transaction is aborted at commit if a concurrent transaction has committed a write to one of its keys.
	SnapshotIsolation
)

type memoryTxn struct {
	snapshot map[string]string
	version  int
	writes   map[string]string
}

// An in-memory implementation of the key-value service
type MemoryServer struct {
	sync.Mutex

	isolation Isolation
	// Held by the running transaction when the isolation is Serial
	serial sync.Mutex

	data map[string]string
	// Number of committed transactions that wrote at least one key
	version int
	// The version that last wrote each key
	lastWrite map[string]int

	txns   map[history.TxnId]*memoryTxn
	nextId history.TxnId
}

func NewMemoryServer(initial map[string]string, isolation Isolation) *MemoryServer {
	return &MemoryServer{
		isolation: isolation,
		data:      maps.Clone(initial),
		lastWrite: make(map[string]int),
		txns:      make(map[history.TxnId]*memoryTxn),
	}
}

func (s *MemoryServer) Begin(_ context.Context, _ *empty.Empty) (*wrapperspb.UInt64Value, error) {
	if s.isolation == Serial {
		s.serial.Lock()
	}
	s.Lock()
	defer s.Unlock()
	s.nextId++
	s.txns[s.nextId] = &memoryTxn{
		snapshot: maps.Clone(s.data),
		version:  s.version,
		writes:   make(map[string]string),
	}
	return wrapperspb.UInt64(uint64(s.nextId)), nil
}

// Returns the running transaction of the call. Must be called while holding the lock.
func (s *MemoryServer) txn(ctx context.Context) (history.TxnId, *memoryTxn, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	id, err := txnId(md)
	if err != nil {
		return 0, nil, status.Error(codes.InvalidArgument, err.Error())
	}
	txn, ok := s.txns[id]
	if !ok {
		return 0, nil, status.Errorf(codes.NotFound, "kvClient: Transaction %v is not running", id)
	}
	return id, txn, nil
}

func (s *MemoryServer) Read(ctx context.Context, in *structpb.Struct) (*wrapperspb.StringValue, error) {
	s.Lock()
	defer s.Unlock()
	_, txn, err := s.txn(ctx)
	if err != nil {
		return nil, err
	}
	key := field(in, "key")
	if val, ok := txn.writes[key]; ok {
		return wrapperspb.String(val), nil
	}
	return wrapperspb.String(txn.snapshot[key]), nil
}

func (s *MemoryServer) Write(ctx context.Context, in *structpb.Struct) (*empty.Empty, error) {
	s.Lock()
	defer s.Unlock()
	_, txn, err := s.txn(ctx)
	if err != nil {
		return nil, err
	}
	txn.writes[field(in, "key")] = field(in, "value")
	return &emptypb.Empty{}, nil
}

func (s *MemoryServer) Commit(ctx context.Context, _ *empty.Empty) (*wrapperspb.BoolValue, error) {
	s.Lock()
	defer s.Unlock()
	id, txn, err := s.txn(ctx)
	if err != nil {
		return nil, err
	}
	s.end(id)
	for key := range txn.writes {
		if s.lastWrite[key] > txn.version {
			return wrapperspb.Bool(false), nil
		}
	}
	if len(txn.writes) == 0 {
		return wrapperspb.Bool(true), nil
	}
	s.version++
	for key, val := range txn.writes {
		s.data[key] = val
		s.lastWrite[key] = s.version
	}
	return wrapperspb.Bool(true), nil
}

func (s *MemoryServer) Abort(ctx context.Context, _ *empty.Empty) (*empty.Empty, error) {
	s.Lock()
	defer s.Unlock()
	id, _, err := s.txn(ctx)
	if err != nil {
		return nil, err
	}
	s.end(id)
	return &emptypb.Empty{}, nil
}

// Remove a transaction that has ended. Must be called while holding the lock.
func (s *MemoryServer) end(id history.TxnId) {
	delete(s.txns, id)
	if s.isolation == Serial {
		s.serial.Unlock()
	}
}
