package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// PassageServiceServer is the server API for the passage service.
type PassageServiceServer interface {
	Filter(context.Context, *FilterRequest) (*FilterResponse, error)
	Rerank(context.Context, *RerankRequest) (*RerankResponse, error)
	EvaluatePrecision(context.Context, *PrecisionRequest) (*PrecisionResponse, error)
	RetrieveAndFilter(context.Context, *RetrieveRequest) (*RetrieveResponse, error)
}

// RegisterPassageServiceServer registers srv on s.
func RegisterPassageServiceServer(s grpc.ServiceRegistrar, srv PassageServiceServer) {
	s.RegisterService(&PassageServiceDesc, srv)
}

// PassageServiceDesc describes the passage service. Every method takes and returns a
// google.protobuf.Struct holding the JSON form of the typed request and response.
var PassageServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PassageServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Filter", Handler: unaryHandler(MethodFilter, PassageServiceServer.Filter)},
		{MethodName: "Rerank", Handler: unaryHandler(MethodRerank, PassageServiceServer.Rerank)},
		{MethodName: "EvaluatePrecision", Handler: unaryHandler(MethodEvaluatePrecision, PassageServiceServer.EvaluatePrecision)},
		{MethodName: "RetrieveAndFilter", Handler: unaryHandler(MethodRetrieveAndFilter, PassageServiceServer.RetrieveAndFilter)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rse/v1/passage.proto",
}

func unaryHandler[Req, Resp any](
	fullMethod string,
	call func(PassageServiceServer, context.Context, *Req) (*Resp, error),
) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}

		handler := func(ctx context.Context, req any) (any, error) {
			typed := new(Req)
			if err := FromStruct(req.(*structpb.Struct), typed); err != nil {
				return nil, status.Error(codes.InvalidArgument, err.Error())
			}

			resp, err := call(srv.(PassageServiceServer), ctx, typed)
			if err != nil {
				return nil, err
			}

			out, err := ToStruct(resp)
			if err != nil {
				return nil, status.Error(codes.Internal, err.Error())
			}
			return out, nil
		}

		if interceptor == nil {
			return handler(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, handler)
	}
}
