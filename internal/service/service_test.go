package service_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net"
	"testing"
	"time"

	pbv1 "github.com/PaulBabatuyi/CloudDrive-gRPC/gen/fileservice/v1"
	"github.com/PaulBabatuyi/CloudDrive-gRPC/internal/database"
	"github.com/PaulBabatuyi/CloudDrive-gRPC/internal/middleware"
	"github.com/PaulBabatuyi/CloudDrive-gRPC/internal/progress"
	"github.com/PaulBabatuyi/CloudDrive-gRPC/internal/service"
	"github.com/PaulBabatuyi/CloudDrive-gRPC/internal/storage"
	"github.com/PaulBabatuyi/CloudDrive-gRPC/internal/upload"
	"github.com/PaulBabatuyi/CloudDrive-gRPC/internal/worker"
	"github.com/code19m/errx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const (
	bufSize    = 1024 * 1024
	testUserID = "550e8400-e29b-41d4-a716-446655440000"
	otherUser  = "7c9e6679-7425-40de-944b-e07fc1f90ae7"
	maxUpload  = 256 * 1024
	chunkSize  = 32 * 1024
)

func setupTestServer(t *testing.T) pbv1.FileServiceClient {
	t.Helper()
	backend, err := storage.NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)
	return setupServerWithBackend(t, backend)
}

func setupServerWithBackend(t *testing.T, backend storage.Backend, opts ...upload.Option) pbv1.FileServiceClient {
	t.Helper()
	logger := zap.NewNop()

	kv, err := progress.OpenBadger("")
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })
	store := progress.NewStore(progress.NewBadgerRepository(kv), logger)

	opts = append([]upload.Option{upload.WithSpoolDir(t.TempDir())}, opts...)
	orch := upload.New(backend, store, database.NewMemoryDB(), logger, opts...)

	auth := middleware.NewAuthenticator("")
	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			middleware.UnaryLoggingInterceptor(logger),
			auth.UnaryInterceptor(),
			middleware.UnaryErrorInterceptor("clouddrive"),
		),
		grpc.ChainStreamInterceptor(
			middleware.StreamLoggingInterceptor(logger),
			auth.StreamInterceptor(),
			middleware.StreamErrorInterceptor("clouddrive"),
		),
	)
	pbv1.RegisterFileServiceServer(server, service.NewFileServer(orch, logger, service.Config{
		MaxUploadSize:        maxUpload,
		MaxConcurrentUploads: 2,
		SpoolDir:             t.TempDir(),
		PresignTTL:           time.Hour,
	}))

	lis := bufconn.Listen(bufSize)
	go func() {
		if err := server.Serve(lis); err != nil {
			t.Logf("Server error: %v", err)
		}
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return lis.Dial()
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		pbv1.WithJSONCodec(),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		server.Stop()
	})
	return pbv1.NewFileServiceClient(conn)
}

func asUser(userID string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "user-id", userID)
}

// errCode returns the taxonomy code a call failed with.
func errCode(t *testing.T, err error) string {
	t.Helper()
	require.Error(t, err)
	if ok, e := errx.FromGRPCError(err); ok {
		return upload.Code(e)
	}
	return upload.Code(err)
}

func uploadBytes(ctx context.Context, client pbv1.FileServiceClient, meta *pbv1.FileMetadata, content []byte) (*pbv1.UploadFileResponse, error) {
	stream, err := client.UploadFile(ctx)
	if err != nil {
		return nil, err
	}
	if err := stream.Send(&pbv1.UploadFileRequest{Metadata: meta}); err != nil {
		return nil, err
	}
	for len(content) > 0 {
		n := min(chunkSize, len(content))
		if err := stream.Send(&pbv1.UploadFileRequest{Chunk: content[:n]}); err != nil {
			break // the server already answered; CloseAndRecv reports why
		}
		content = content[n:]
	}
	return stream.CloseAndRecv()
}

func downloadBytes(t *testing.T, ctx context.Context, client pbv1.FileServiceClient, fileID string) (*pbv1.FileInfo, []byte, error) {
	t.Helper()
	return downloadRequest(t, ctx, client, &pbv1.DownloadFileRequest{FileID: fileID})
}

func downloadRequest(t *testing.T, ctx context.Context, client pbv1.FileServiceClient, req *pbv1.DownloadFileRequest) (*pbv1.FileInfo, []byte, error) {
	t.Helper()
	stream, err := client.DownloadFile(ctx, req)
	require.NoError(t, err)

	first, err := stream.Recv()
	if err != nil {
		return nil, nil, err
	}
	info := first.GetInfo()
	require.NotNil(t, info, "expected file info in first message")

	var buf bytes.Buffer
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return info, buf.Bytes(), nil
		}
		if err != nil {
			return nil, nil, err
		}
		buf.Write(msg.GetChunk())
	}
}

func TestUploadDownloadFlow(t *testing.T) {
	client := setupTestServer(t)
	ctx := asUser(testUserID)
	content := []byte("Hello, gRPC streaming!")

	resp, err := uploadBytes(ctx, client, &pbv1.FileMetadata{
		TaskID:      "task-1",
		Filename:    "test.txt",
		ContentType: "text/plain",
		Size:        int64(len(content)),
	}, content)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.FileID)
	assert.Equal(t, "test.txt", resp.Filename)
	assert.Equal(t, int64(len(content)), resp.Size)
	assert.False(t, resp.Instant)
	assert.Contains(t, resp.Path, "user_"+testUserID+"/")

	prog, err := client.GetUploadProgress(ctx, &pbv1.GetUploadProgressRequest{TaskID: "task-1"})
	require.NoError(t, err)
	assert.True(t, prog.Completed)
	assert.True(t, prog.Success)
	assert.Equal(t, float64(100), prog.Percentage)
	assert.Equal(t, "upload complete", prog.Message)

	info, got, err := downloadBytes(t, ctx, client, resp.FileID)
	require.NoError(t, err)
	assert.Equal(t, "test.txt", info.Filename)
	assert.Equal(t, int64(len(content)), info.Size)
	assert.Equal(t, content, got)
}

func TestSecondUploadIsInstant(t *testing.T) {
	client := setupTestServer(t)
	ctx := asUser(testUserID)
	content := bytes.Repeat([]byte("dedup"), 1000)

	first, err := uploadBytes(ctx, client, &pbv1.FileMetadata{Filename: "a.bin", Size: int64(len(content))}, content)
	require.NoError(t, err)

	second, err := uploadBytes(ctx, client, &pbv1.FileMetadata{TaskID: "task-2", Filename: "b.bin", Size: int64(len(content))}, content)
	require.NoError(t, err)
	assert.True(t, second.Instant)
	assert.Equal(t, first.Path, second.Path)
	assert.NotEqual(t, first.FileID, second.FileID)
	assert.Equal(t, "b.bin", second.Filename)

	prog, err := client.GetUploadProgress(ctx, &pbv1.GetUploadProgressRequest{TaskID: "task-2"})
	require.NoError(t, err)
	assert.Equal(t, "instant upload", prog.Message)

	// Another owner never shares the object
	third, err := uploadBytes(asUser(otherUser), client, &pbv1.FileMetadata{Filename: "c.bin"}, content)
	require.NoError(t, err)
	assert.False(t, third.Instant)
	assert.NotEqual(t, first.Path, third.Path)
}

func TestUploadRejectsBadInput(t *testing.T) {
	client := setupTestServer(t)
	ctx := asUser(testUserID)

	_, err := uploadBytes(ctx, client, &pbv1.FileMetadata{Filename: ""}, []byte("x"))
	assert.Equal(t, upload.CodeInvalidArgument, errCode(t, err))

	big := bytes.Repeat([]byte{1}, maxUpload+1)
	_, err = uploadBytes(ctx, client, &pbv1.FileMetadata{Filename: "big.bin", Size: int64(len(big))}, big)
	assert.Equal(t, upload.CodeInvalidArgument, errCode(t, err))

	// undeclared size still hits the limit while receiving
	_, err = uploadBytes(ctx, client, &pbv1.FileMetadata{Filename: "big.bin"}, big)
	assert.Equal(t, upload.CodeInvalidArgument, errCode(t, err))

	_, err = uploadBytes(ctx, client, &pbv1.FileMetadata{Filename: "fake.png", ContentType: "image/png"}, []byte("just text"))
	assert.Equal(t, upload.CodeInvalidArgument, errCode(t, err))
}

func TestUploadSniffsContentType(t *testing.T) {
	client := setupTestServer(t)
	ctx := asUser(testUserID)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4))))

	resp, err := uploadBytes(ctx, client, &pbv1.FileMetadata{Filename: "pic"}, buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "image/png", resp.ContentType)
}

func TestDownloadGuards(t *testing.T) {
	client := setupTestServer(t)
	ctx := asUser(testUserID)

	resp, err := uploadBytes(ctx, client, &pbv1.FileMetadata{Filename: "secret.txt"}, []byte("top secret"))
	require.NoError(t, err)

	_, _, err = downloadBytes(t, asUser(otherUser), client, resp.FileID)
	assert.Equal(t, upload.CodeNoPermission, errCode(t, err))

	folder, err := client.CreateFolder(ctx, &pbv1.CreateFolderRequest{Name: "docs"})
	require.NoError(t, err)
	_, _, err = downloadBytes(t, ctx, client, folder.Folder.FileID)
	assert.Equal(t, upload.CodeInvalidState, errCode(t, err))

	_, err = client.DeleteFile(ctx, &pbv1.DeleteFileRequest{FileID: resp.FileID})
	require.NoError(t, err)
	_, _, err = downloadBytes(t, ctx, client, resp.FileID)
	assert.Equal(t, upload.CodeNotFound, errCode(t, err))
}

func TestFoldersAndListing(t *testing.T) {
	client := setupTestServer(t)
	ctx := asUser(testUserID)

	folder, err := client.CreateFolder(ctx, &pbv1.CreateFolderRequest{Name: "photos"})
	require.NoError(t, err)
	assert.True(t, folder.Folder.IsFolder)

	nested, err := uploadBytes(ctx, client, &pbv1.FileMetadata{Filename: "in.txt", ParentID: folder.Folder.FileID}, []byte("nested"))
	require.NoError(t, err)
	assert.Contains(t, nested.Path, folder.Folder.FileID+"/")

	for _, name := range []string{"one.txt", "two.txt", "three.txt"} {
		_, err := uploadBytes(ctx, client, &pbv1.FileMetadata{Filename: name}, []byte(name))
		require.NoError(t, err)
	}

	page, err := client.ListFiles(ctx, &pbv1.ListFilesRequest{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page.Files, 2)
	assert.True(t, page.Files[0].IsFolder, "folders list first")
	assert.Equal(t, "2", page.NextPageToken)

	rest, err := client.ListFiles(ctx, &pbv1.ListFilesRequest{PageSize: 2, PageToken: page.NextPageToken})
	require.NoError(t, err)
	assert.Len(t, rest.Files, 2)
	assert.Empty(t, rest.NextPageToken)

	inside, err := client.ListFiles(ctx, &pbv1.ListFilesRequest{ParentID: folder.Folder.FileID})
	require.NoError(t, err)
	require.Len(t, inside.Files, 1)
	assert.Equal(t, "in.txt", inside.Files[0].Filename)

	_, err = client.ListFiles(asUser(otherUser), &pbv1.ListFilesRequest{ParentID: folder.Folder.FileID})
	assert.Equal(t, upload.CodeNoPermission, errCode(t, err))
}

func TestListFilesRejectsMalformedPageTokens(t *testing.T) {
	client := setupTestServer(t)
	ctx := asUser(testUserID)

	_, err := uploadBytes(ctx, client, &pbv1.FileMetadata{Filename: "a.txt"}, []byte("a"))
	require.NoError(t, err)

	for _, token := range []string{"-1", "1.5", "+3", "abc"} {
		_, err := client.ListFiles(ctx, &pbv1.ListFilesRequest{PageToken: token})
		assert.Equal(t, upload.CodeInvalidArgument, errCode(t, err), token)
	}

	// the server is still serving
	page, err := client.ListFiles(ctx, &pbv1.ListFilesRequest{PageToken: "0"})
	require.NoError(t, err)
	assert.Len(t, page.Files, 1)
}

func TestDownloadPreviews(t *testing.T) {
	backend, err := storage.NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)
	thumbnails := worker.NewProcessingWorker(&worker.WorkerConfig{Backend: backend, Logger: zap.NewNop()})
	thumbnails.Start(context.Background())
	t.Cleanup(thumbnails.Stop)

	client := setupServerWithBackend(t, backend, upload.WithPostProcessor(thumbnails))
	ctx := asUser(testUserID)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 500, 250))))
	resp, err := uploadBytes(ctx, client, &pbv1.FileMetadata{Filename: "scan.png"}, buf.Bytes())
	require.NoError(t, err)

	page, err := client.ListFiles(ctx, &pbv1.ListFilesRequest{})
	require.NoError(t, err)
	require.Len(t, page.Files, 1)
	assert.Equal(t, []string{"small", "medium", "large"}, page.Files[0].Previews)

	var (
		info *pbv1.FileInfo
		data []byte
	)
	require.Eventually(t, func() bool {
		info, data, err = downloadRequest(t, ctx, client, &pbv1.DownloadFileRequest{FileID: resp.FileID, Preview: "medium"})
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "scan-medium.jpg", info.Filename)
	assert.Equal(t, "image/jpeg", info.ContentType)
	assert.Equal(t, int64(len(data)), info.Size)
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 400, cfg.Width)

	_, _, err = downloadRequest(t, ctx, client, &pbv1.DownloadFileRequest{FileID: resp.FileID, Preview: "poster"})
	assert.Equal(t, upload.CodeInvalidArgument, errCode(t, err))

	text, err := uploadBytes(ctx, client, &pbv1.FileMetadata{Filename: "a.txt"}, []byte("plain"))
	require.NoError(t, err)
	_, _, err = downloadRequest(t, ctx, client, &pbv1.DownloadFileRequest{FileID: text.FileID, Preview: "small"})
	assert.Equal(t, upload.CodeInvalidState, errCode(t, err))
}

func TestRenameFile(t *testing.T) {
	client := setupTestServer(t)
	ctx := asUser(testUserID)

	resp, err := uploadBytes(ctx, client, &pbv1.FileMetadata{Filename: "draft.txt"}, []byte("draft"))
	require.NoError(t, err)

	renamed, err := client.RenameFile(ctx, &pbv1.RenameFileRequest{FileID: resp.FileID, Name: "final.txt"})
	require.NoError(t, err)
	assert.Equal(t, "final.txt", renamed.File.Filename)
	assert.Equal(t, "draft.txt", renamed.File.OriginalName)

	_, err = client.RenameFile(ctx, &pbv1.RenameFileRequest{FileID: resp.FileID, Name: "   "})
	assert.Equal(t, upload.CodeInvalidArgument, errCode(t, err))

	_, err = client.RenameFile(asUser(otherUser), &pbv1.RenameFileRequest{FileID: resp.FileID, Name: "mine.txt"})
	assert.Equal(t, upload.CodeNoPermission, errCode(t, err))
}

func TestGetDownloadURLOnLocalDisk(t *testing.T) {
	client := setupTestServer(t)
	ctx := asUser(testUserID)

	resp, err := uploadBytes(ctx, client, &pbv1.FileMetadata{Filename: "a.txt"}, []byte("abc"))
	require.NoError(t, err)

	_, err = client.GetDownloadURL(ctx, &pbv1.GetDownloadURLRequest{FileID: resp.FileID})
	assert.Equal(t, upload.CodeInvalidState, errCode(t, err))
}

func TestUnknownTaskIsNotFound(t *testing.T) {
	client := setupTestServer(t)

	_, err := client.GetUploadProgress(asUser(testUserID), &pbv1.GetUploadProgressRequest{TaskID: "nope"})
	assert.Equal(t, upload.CodeNotFound, errCode(t, err))
}

func TestCallsNeedAnOwner(t *testing.T) {
	client := setupTestServer(t)

	_, err := client.ListFiles(context.Background(), &pbv1.ListFilesRequest{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}
