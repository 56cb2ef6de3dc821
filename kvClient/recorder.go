package kvClient

import (
	"context"
	"time"

	"cobraverifier/history"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Returns a client interceptor that records every call to the key-value service in the store.
//
// The clock is read before a call is sent and after the response is received.
// If clock is nil the wall clock in nanoseconds is used.
// Calls that fail are not recorded. A commit that the service refuses is recorded as an abort.
// Calls to other services on the same connection pass through unrecorded.
func UnaryClientRecorderInterceptor(store *history.Store, clock func() int64) grpc.UnaryClientInterceptor {
	if clock == nil {
		clock = func() int64 { return time.Now().UnixNano() }
	}
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		switch method {
		case beginMethod, readMethod, writeMethod, commitMethod, abortMethod:
		default:
			return invoker(ctx, method, req, reply, cc, opts...)
		}

		start := clock()
		if err := invoker(ctx, method, req, reply, cc, opts...); err != nil {
			return err
		}
		end := clock()

		op := history.Operation{Start: start, End: end}
		if method == beginMethod {
			op.Kind = history.Begin
			op.Txn = history.TxnId(reply.(*wrapperspb.UInt64Value).GetValue())
			return store.Append(op)
		}

		md, _ := metadata.FromOutgoingContext(ctx)
		id, err := txnId(md)
		if err != nil {
			return err
		}
		op.Txn = id
		switch method {
		case readMethod:
			op.Kind = history.Read
			op.Key = field(req.(*structpb.Struct), "key")
			op.Value = reply.(*wrapperspb.StringValue).GetValue()
		case writeMethod:
			op.Kind = history.Write
			op.Key = field(req.(*structpb.Struct), "key")
			op.Value = field(req.(*structpb.Struct), "value")
		case commitMethod:
			op.Kind = history.Commit
			if !reply.(*wrapperspb.BoolValue).GetValue() {
				op.Kind = history.Abort
			}
		case abortMethod:
			op.Kind = history.Abort
		}
		return store.Append(op)
	}
}
