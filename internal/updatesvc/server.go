package updatesvc

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/kuncarous/nextmu-remix/internal/domain"
)

// RegisterServer exposes impl as nextmu.v1.UpdateService on s. The server
// must be created with ServerCodec. It backs local update service stubs and
// the binding's tests.
func RegisterServer(s grpc.ServiceRegistrar, impl domain.UpdateService) {
	s.RegisterService(&serviceDesc, impl)
}

// BearerToken returns the bearer token sent with an incoming call.
func BearerToken(ctx context.Context) (string, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", false
	}
	for _, v := range md.Get("authorization") {
		scheme, token, found := strings.Cut(v, " ")
		if found && strings.EqualFold(scheme, "bearer") && token != "" {
			return token, true
		}
	}
	return "", false
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*domain.UpdateService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "StartUploadVersion", Handler: startUploadVersionHandler},
		{MethodName: "UploadVersionChunk", Handler: uploadVersionChunkHandler},
	},
	Metadata: "nextmu/v1/update.proto",
}

func startUploadVersionHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := &startUploadVersionRequest{}
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, req any) (any, error) {
		resp, err := srv.(domain.UpdateService).StartUploadVersion(ctx, req.(*startUploadVersionRequest).StartUploadRequest)
		if err != nil {
			return nil, toStatus(err)
		}
		return &startUploadVersionResponse{*resp}, nil
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodStartUploadVersion}
	return interceptor(ctx, in, info, call)
}

func uploadVersionChunkHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := &uploadVersionChunkRequest{}
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, req any) (any, error) {
		if err := srv.(domain.UpdateService).UploadVersionChunk(ctx, req.(*uploadVersionChunkRequest).UploadChunkRequest); err != nil {
			return nil, toStatus(err)
		}
		return &uploadVersionChunkResponse{}, nil
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodUploadVersionChunk}
	return interceptor(ctx, in, info, call)
}
