package kvClient

import (
	"context"
	"errors"
	"strconv"

	"cobraverifier/history"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

var ErrMissingTxnId = errors.New("kvClient: Call does not carry a transaction id")

// A client of the key-value service
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// A transaction started by a client.
//
// A transaction must not be used from several goroutines at the same time.
type Txn struct {
	Id history.TxnId

	cc grpc.ClientConnInterface
}

// Start a new transaction
func (c *Client) Begin(ctx context.Context, opts ...grpc.CallOption) (*Txn, error) {
	out := new(wrapperspb.UInt64Value)
	if err := c.cc.Invoke(ctx, beginMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return &Txn{Id: history.TxnId(out.GetValue()), cc: c.cc}, nil
}

func (t *Txn) ctx(ctx context.Context) context.Context {
	return metadata.AppendToOutgoingContext(ctx, txnIdKey, strconv.FormatUint(uint64(t.Id), 10))
}

func (t *Txn) Read(ctx context.Context, key string, opts ...grpc.CallOption) (string, error) {
	in, err := structpb.NewStruct(map[string]interface{}{"key": key})
	if err != nil {
		return "", err
	}
	out := new(wrapperspb.StringValue)
	if err := t.cc.Invoke(t.ctx(ctx), readMethod, in, out, opts...); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

func (t *Txn) Write(ctx context.Context, key, value string, opts ...grpc.CallOption) error {
	in, err := structpb.NewStruct(map[string]interface{}{"key": key, "value": value})
	if err != nil {
		return err
	}
	return t.cc.Invoke(t.ctx(ctx), writeMethod, in, new(emptypb.Empty), opts...)
}

// Try to commit the transaction. Returns false if the service aborted it.
func (t *Txn) Commit(ctx context.Context, opts ...grpc.CallOption) (bool, error) {
	out := new(wrapperspb.BoolValue)
	if err := t.cc.Invoke(t.ctx(ctx), commitMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return false, err
	}
	return out.GetValue(), nil
}

func (t *Txn) Abort(ctx context.Context, opts ...grpc.CallOption) error {
	return t.cc.Invoke(t.ctx(ctx), abortMethod, &emptypb.Empty{}, new(emptypb.Empty), opts...)
}

// Read the transaction id from the metadata of a call
func txnId(md metadata.MD) (history.TxnId, error) {
	vals := md.Get(txnIdKey)
	if len(vals) == 0 {
		return 0, ErrMissingTxnId
	}
	id, err := strconv.ParseUint(vals[0], 10, 64)
	if err != nil {
		return 0, err
	}
	return history.TxnId(id), nil
}

// Read a string field of a request
func field(s *structpb.Struct, name string) string {
	return s.GetFields()[name].GetStringValue()
}
