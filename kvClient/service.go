package kvClient

import (
	"context"

	"github.com/golang/protobuf/ptypes/empty"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	serviceName = "pb.KvService"

	beginMethod  = "/pb.KvService/Begin"
	readMethod   = "/pb.KvService/Read"
	writeMethod  = "/pb.KvService/Write"
	commitMethod = "/pb.KvService/Commit"
	abortMethod  = "/pb.KvService/Abort"

	// The metadata key carrying the transaction id of a call
	txnIdKey = "txn-id"
)

// The transactional key-value service under test.
//
// Every call except Begin belongs to the transaction named by the txn-id metadata of the request.
type KvServiceServer interface {
	// Start a new transaction and return its id
	Begin(context.Context, *empty.Empty) (*wrapperspb.UInt64Value, error)
	// Read the value of the "key" field
	Read(context.Context, *structpb.Struct) (*wrapperspb.StringValue, error)
	// Write the "value" field to the "key" field
	Write(context.Context, *structpb.Struct) (*empty.Empty, error)
	// Try to commit the transaction. Returns false if the transaction was aborted instead.
	Commit(context.Context, *empty.Empty) (*wrapperspb.BoolValue, error)
	Abort(context.Context, *empty.Empty) (*empty.Empty, error)
}

func RegisterKvServiceServer(s grpc.ServiceRegistrar, srv KvServiceServer) {
	s.RegisterService(&kvServiceDesc, srv)
}

// Create a unary handler that decodes a request of type Req and passes it to call
func unaryHandler[Req any](method string, call func(KvServiceServer, context.Context, *Req) (interface{}, error)) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(KvServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(KvServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var kvServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*KvServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Begin",
			Handler: unaryHandler(beginMethod, func(s KvServiceServer, ctx context.Context, in *empty.Empty) (interface{}, error) {
				return s.Begin(ctx, in)
			}),
		},
		{
			MethodName: "Read",
			Handler: unaryHandler(readMethod, func(s KvServiceServer, ctx context.Context, in *structpb.Struct) (interface{}, error) {
				return s.Read(ctx, in)
			}),
		},
		{
			MethodName: "Write",
			Handler: unaryHandler(writeMethod, func(s KvServiceServer, ctx context.Context, in *structpb.Struct) (interface{}, error) {
				return s.Write(ctx, in)
			}),
		},
		{
			MethodName: "Commit",
			Handler: unaryHandler(commitMethod, func(s KvServiceServer, ctx context.Context, in *empty.Empty) (interface{}, error) {
				return s.Commit(ctx, in)
			}),
		},
		{
			MethodName: "Abort",
			Handler: unaryHandler(abortMethod, func(s KvServiceServer, ctx context.Context, in *empty.Empty) (interface{}, error) {
				return s.Abort(ctx, in)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "kv.proto",
}
