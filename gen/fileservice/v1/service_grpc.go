package fileservicev1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	FileService_UploadFile_FullMethodName        = "/clouddrive.v1.FileService/UploadFile"
	FileService_GetUploadProgress_FullMethodName = "/clouddrive.v1.FileService/GetUploadProgress"
	FileService_DownloadFile_FullMethodName      = "/clouddrive.v1.FileService/DownloadFile"
	FileService_GetDownloadURL_FullMethodName    = "/clouddrive.v1.FileService/GetDownloadURL"
	FileService_ListFiles_FullMethodName         = "/clouddrive.v1.FileService/ListFiles"
	FileService_RenameFile_FullMethodName        = "/clouddrive.v1.FileService/RenameFile"
	FileService_CreateFolder_FullMethodName      = "/clouddrive.v1.FileService/CreateFolder"
	FileService_DeleteFile_FullMethodName        = "/clouddrive.v1.FileService/DeleteFile"
)

type (
	FileService_UploadFileServer   = grpc.ClientStreamingServer[UploadFileRequest, UploadFileResponse]
	FileService_DownloadFileServer = grpc.ServerStreamingServer[DownloadFileResponse]
	FileService_UploadFileClient   = grpc.ClientStreamingClient[UploadFileRequest, UploadFileResponse]
	FileService_DownloadFileClient = grpc.ServerStreamingClient[DownloadFileResponse]
)

type FileServiceServer interface {
	UploadFile(FileService_UploadFileServer) error
	GetUploadProgress(context.Context, *GetUploadProgressRequest) (*UploadProgress, error)
	DownloadFile(*DownloadFileRequest, FileService_DownloadFileServer) error
	GetDownloadURL(context.Context, *GetDownloadURLRequest) (*GetDownloadURLResponse, error)
	ListFiles(context.Context, *ListFilesRequest) (*ListFilesResponse, error)
	RenameFile(context.Context, *RenameFileRequest) (*RenameFileResponse, error)
	CreateFolder(context.Context, *CreateFolderRequest) (*CreateFolderResponse, error)
	DeleteFile(context.Context, *DeleteFileRequest) (*DeleteFileResponse, error)
}

// UnimplementedFileServiceServer must be embedded for forward compatibility.
type UnimplementedFileServiceServer struct{}

func (UnimplementedFileServiceServer) UploadFile(FileService_UploadFileServer) error {
	return status.Error(codes.Unimplemented, "method UploadFile not implemented")
}
func (UnimplementedFileServiceServer) GetUploadProgress(context.Context, *GetUploadProgressRequest) (*UploadProgress, error) {
	return nil, status.Error(codes.Unimplemented, "method GetUploadProgress not implemented")
}
func (UnimplementedFileServiceServer) DownloadFile(*DownloadFileRequest, FileService_DownloadFileServer) error {
	return status.Error(codes.Unimplemented, "method DownloadFile not implemented")
}
func (UnimplementedFileServiceServer) GetDownloadURL(context.Context, *GetDownloadURLRequest) (*GetDownloadURLResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetDownloadURL not implemented")
}
func (UnimplementedFileServiceServer) ListFiles(context.Context, *ListFilesRequest) (*ListFilesResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListFiles not implemented")
}
func (UnimplementedFileServiceServer) RenameFile(context.Context, *RenameFileRequest) (*RenameFileResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method RenameFile not implemented")
}
func (UnimplementedFileServiceServer) CreateFolder(context.Context, *CreateFolderRequest) (*CreateFolderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CreateFolder not implemented")
}
func (UnimplementedFileServiceServer) DeleteFile(context.Context, *DeleteFileRequest) (*DeleteFileResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method DeleteFile not implemented")
}

func RegisterFileServiceServer(s grpc.ServiceRegistrar, srv FileServiceServer) {
	s.RegisterService(&FileService_ServiceDesc, srv)
}

// unaryHandler adapts one typed unary method to grpc.MethodHandler.
func unaryHandler[Req, Res any](fullMethod string, call func(FileServiceServer, context.Context, *Req) (*Res, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(FileServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(FileServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func _FileService_UploadFile_Handler(srv any, stream grpc.ServerStream) error {
	return srv.(FileServiceServer).UploadFile(&grpc.GenericServerStream[UploadFileRequest, UploadFileResponse]{ServerStream: stream})
}

func _FileService_DownloadFile_Handler(srv any, stream grpc.ServerStream) error {
	m := new(DownloadFileRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(FileServiceServer).DownloadFile(m, &grpc.GenericServerStream[DownloadFileRequest, DownloadFileResponse]{ServerStream: stream})
}

var FileService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "clouddrive.v1.FileService",
	HandlerType: (*FileServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetUploadProgress",
			Handler:    unaryHandler(FileService_GetUploadProgress_FullMethodName, FileServiceServer.GetUploadProgress),
		},
		{
			MethodName: "GetDownloadURL",
			Handler:    unaryHandler(FileService_GetDownloadURL_FullMethodName, FileServiceServer.GetDownloadURL),
		},
		{
			MethodName: "ListFiles",
			Handler:    unaryHandler(FileService_ListFiles_FullMethodName, FileServiceServer.ListFiles),
		},
		{
			MethodName: "RenameFile",
			Handler:    unaryHandler(FileService_RenameFile_FullMethodName, FileServiceServer.RenameFile),
		},
		{
			MethodName: "CreateFolder",
			Handler:    unaryHandler(FileService_CreateFolder_FullMethodName, FileServiceServer.CreateFolder),
		},
		{
			MethodName: "DeleteFile",
			Handler:    unaryHandler(FileService_DeleteFile_FullMethodName, FileServiceServer.DeleteFile),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "UploadFile",
			Handler:       _FileService_UploadFile_Handler,
			ClientStreams: true,
		},
		{
			StreamName:    "DownloadFile",
			Handler:       _FileService_DownloadFile_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "clouddrive/v1/file_service.proto",
}

type FileServiceClient interface {
	UploadFile(ctx context.Context, opts ...grpc.CallOption) (FileService_UploadFileClient, error)
	GetUploadProgress(ctx context.Context, in *GetUploadProgressRequest, opts ...grpc.CallOption) (*UploadProgress, error)
	DownloadFile(ctx context.Context, in *DownloadFileRequest, opts ...grpc.CallOption) (FileService_DownloadFileClient, error)
	GetDownloadURL(ctx context.Context, in *GetDownloadURLRequest, opts ...grpc.CallOption) (*GetDownloadURLResponse, error)
	ListFiles(ctx context.Context, in *ListFilesRequest, opts ...grpc.CallOption) (*ListFilesResponse, error)
	RenameFile(ctx context.Context, in *RenameFileRequest, opts ...grpc.CallOption) (*RenameFileResponse, error)
	CreateFolder(ctx context.Context, in *CreateFolderRequest, opts ...grpc.CallOption) (*CreateFolderResponse, error)
	DeleteFile(ctx context.Context, in *DeleteFileRequest, opts ...grpc.CallOption) (*DeleteFileResponse, error)
}

type fileServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewFileServiceClient returns a client that always speaks the JSON codec.
func NewFileServiceClient(cc grpc.ClientConnInterface) FileServiceClient {
	return &fileServiceClient{cc: cc}
}

func callOptions(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}

func invoke[Req, Res any](ctx context.Context, cc grpc.ClientConnInterface, method string, in *Req, opts []grpc.CallOption) (*Res, error) {
	out := new(Res)
	if err := cc.Invoke(ctx, method, in, out, callOptions(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *fileServiceClient) UploadFile(ctx context.Context, opts ...grpc.CallOption) (FileService_UploadFileClient, error) {
	stream, err := c.cc.NewStream(ctx, &FileService_ServiceDesc.Streams[0], FileService_UploadFile_FullMethodName, callOptions(opts)...)
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[UploadFileRequest, UploadFileResponse]{ClientStream: stream}, nil
}

func (c *fileServiceClient) DownloadFile(ctx context.Context, in *DownloadFileRequest, opts ...grpc.CallOption) (FileService_DownloadFileClient, error) {
	stream, err := c.cc.NewStream(ctx, &FileService_ServiceDesc.Streams[1], FileService_DownloadFile_FullMethodName, callOptions(opts)...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[DownloadFileRequest, DownloadFileResponse]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

func (c *fileServiceClient) GetUploadProgress(ctx context.Context, in *GetUploadProgressRequest, opts ...grpc.CallOption) (*UploadProgress, error) {
	return invoke[GetUploadProgressRequest, UploadProgress](ctx, c.cc, FileService_GetUploadProgress_FullMethodName, in, opts)
}

func (c *fileServiceClient) GetDownloadURL(ctx context.Context, in *GetDownloadURLRequest, opts ...grpc.CallOption) (*GetDownloadURLResponse, error) {
	return invoke[GetDownloadURLRequest, GetDownloadURLResponse](ctx, c.cc, FileService_GetDownloadURL_FullMethodName, in, opts)
}

func (c *fileServiceClient) ListFiles(ctx context.Context, in *ListFilesRequest, opts ...grpc.CallOption) (*ListFilesResponse, error) {
	return invoke[ListFilesRequest, ListFilesResponse](ctx, c.cc, FileService_ListFiles_FullMethodName, in, opts)
}

func (c *fileServiceClient) RenameFile(ctx context.Context, in *RenameFileRequest, opts ...grpc.CallOption) (*RenameFileResponse, error) {
	return invoke[RenameFileRequest, RenameFileResponse](ctx, c.cc, FileService_RenameFile_FullMethodName, in, opts)
}

func (c *fileServiceClient) CreateFolder(ctx context.Context, in *CreateFolderRequest, opts ...grpc.CallOption) (*CreateFolderResponse, error) {
	return invoke[CreateFolderRequest, CreateFolderResponse](ctx, c.cc, FileService_CreateFolder_FullMethodName, in, opts)
}

func (c *fileServiceClient) DeleteFile(ctx context.Context, in *DeleteFileRequest, opts ...grpc.CallOption) (*DeleteFileResponse, error) {
	return invoke[DeleteFileRequest, DeleteFileResponse](ctx, c.cc, FileService_DeleteFile_FullMethodName, in, opts)
}
