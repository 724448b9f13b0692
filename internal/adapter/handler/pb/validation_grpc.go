package pb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	CartValidation_Validate_FullMethodName = "/cartsync.v1.CartValidation/Validate"
	CartValidation_Stats_FullMethodName    = "/cartsync.v1.CartValidation/Stats"
)

type CartValidationClient interface {
	Validate(ctx context.Context, in *ValidateRequest, opts ...grpc.CallOption) (*ValidateResponse, error)
	Stats(ctx context.Context, in *StatsRequest, opts ...grpc.CallOption) (*StatsResponse, error)
}

type cartValidationClient struct {
	cc grpc.ClientConnInterface
}

func NewCartValidationClient(cc grpc.ClientConnInterface) CartValidationClient {
	return &cartValidationClient{cc: cc}
}

func (c *cartValidationClient) Validate(ctx context.Context, in *ValidateRequest, opts ...grpc.CallOption) (*ValidateResponse, error) {
	out := new(ValidateResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, CartValidation_Validate_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *cartValidationClient) Stats(ctx context.Context, in *StatsRequest, opts ...grpc.CallOption) (*StatsResponse, error) {
	out := new(StatsResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, CartValidation_Stats_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

type CartValidationServer interface {
	Validate(context.Context, *ValidateRequest) (*ValidateResponse, error)
	Stats(context.Context, *StatsRequest) (*StatsResponse, error)
}

type UnimplementedCartValidationServer struct{}

func (UnimplementedCartValidationServer) Validate(context.Context, *ValidateRequest) (*ValidateResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Validate not implemented")
}

func (UnimplementedCartValidationServer) Stats(context.Context, *StatsRequest) (*StatsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Stats not implemented")
}

func RegisterCartValidationServer(s grpc.ServiceRegistrar, srv CartValidationServer) {
	s.RegisterService(&CartValidation_ServiceDesc, srv)
}

func _CartValidation_Validate_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ValidateRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CartValidationServer).Validate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: CartValidation_Validate_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CartValidationServer).Validate(ctx, req.(*ValidateRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _CartValidation_Stats_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(StatsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CartValidationServer).Stats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: CartValidation_Stats_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CartValidationServer).Stats(ctx, req.(*StatsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var CartValidation_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "cartsync.v1.CartValidation",
	HandlerType: (*CartValidationServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Validate", Handler: _CartValidation_Validate_Handler},
		{MethodName: "Stats", Handler: _CartValidation_Stats_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cartsync/v1/validation.proto",
}
