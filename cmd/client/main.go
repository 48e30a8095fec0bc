package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	pbv1 "github.com/PaulBabatuyi/CloudDrive-gRPC/gen/fileservice/v1"
	"github.com/PaulBabatuyi/CloudDrive-gRPC/internal/middleware"
	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

const (
	defaultAddr  = "localhost:50051"
	chunkSize    = 64 * 1024 // 64KB chunks
	pollInterval = 200 * time.Millisecond
)

type FileClient struct {
	client pbv1.FileServiceClient
	conn   *grpc.ClientConn
}

func NewFileClient(addr string) (*FileClient, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(middleware.UnaryErrorUnwrap()),
		pbv1.WithJSONCodec(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return &FileClient{client: pbv1.NewFileServiceClient(conn), conn: conn}, nil
}

func (fc *FileClient) Close() error {
	return fc.conn.Close()
}

// UploadFile streams a file to the server while polling its progress task.
func (fc *FileClient) UploadFile(ctx context.Context, filePath, parentID string) (*pbv1.UploadFileResponse, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	fileInfo, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	stream, err := fc.client.UploadFile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	taskID := uuid.NewString()
	err = stream.Send(&pbv1.UploadFileRequest{Metadata: &pbv1.FileMetadata{
		TaskID:   taskID,
		Filename: fileInfo.Name(),
		Size:     fileInfo.Size(),
		ParentID: parentID,
	}})
	if err != nil {
		return nil, fmt.Errorf("failed to send metadata: %w", err)
	}

	pollCtx, stopPolling := context.WithCancel(ctx)
	polled := make(chan struct{})
	go func() {
		defer close(polled)
		fc.pollProgress(pollCtx, taskID)
	}()
	defer func() {
		stopPolling()
		<-polled
		fmt.Println()
	}()

	buffer := make([]byte, chunkSize)
	for {
		n, err := file.Read(buffer)
		if n > 0 {
			if sendErr := stream.Send(&pbv1.UploadFileRequest{Chunk: buffer[:n]}); sendErr != nil {
				// the server closed the stream; CloseAndRecv has the reason
				break
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read file: %w", err)
		}
	}

	resp, err := stream.CloseAndRecv()
	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	return resp, nil
}

// pollProgress prints the server-side store progress until the task
// completes or ctx ends.
func (fc *FileClient) pollProgress(ctx context.Context, taskID string) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		p, err := fc.client.GetUploadProgress(ctx, &pbv1.GetUploadProgressRequest{TaskID: taskID})
		if err != nil {
			// not created yet, or already expired
			continue
		}
		fmt.Printf("\rStoring: %6.2f%% (%d/%d bytes)", p.Percentage, p.BytesTransferred, p.TotalBytes)
		if p.Completed {
			fmt.Printf(" %s", p.Message)
			return
		}
	}
}

// DownloadFile streams a file, or one of its previews when preview names a
// size, from the server
func (fc *FileClient) DownloadFile(ctx context.Context, fileID, preview, outputPath string) error {
	stream, err := fc.client.DownloadFile(ctx, &pbv1.DownloadFileRequest{FileID: fileID, Preview: preview})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	firstMsg, err := stream.Recv()
	if err != nil {
		return fmt.Errorf("failed to receive file info: %w", err)
	}
	fileInfo := firstMsg.GetInfo()
	if fileInfo == nil {
		return fmt.Errorf("expected file info in first message")
	}
	if outputPath == "" {
		outputPath = filepath.Base(fileInfo.Filename)
	}
	fmt.Printf("Downloading: %s (%d bytes)\n", fileInfo.Filename, fileInfo.Size)

	outFile, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer outFile.Close()

	totalReceived := int64(0)
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to receive chunk: %w", err)
		}

		n, err := outFile.Write(msg.GetChunk())
		if err != nil {
			return fmt.Errorf("failed to write chunk: %w", err)
		}
		totalReceived += int64(n)
		if fileInfo.Size > 0 {
			fmt.Printf("\rDownloading: %.2f%%", float64(totalReceived)/float64(fileInfo.Size)*100)
		}
	}
	fmt.Println()
	return nil
}

func (fc *FileClient) ListFiles(ctx context.Context, parentID string, pageSize int32, pageToken string) error {
	resp, err := fc.client.ListFiles(ctx, &pbv1.ListFilesRequest{
		ParentID:  parentID,
		PageSize:  pageSize,
		PageToken: pageToken,
	})
	if err != nil {
		return fmt.Errorf("failed to list files: %w", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Name", "Type", "Size", "Previews", "Updated"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	for _, f := range resp.Files {
		kind := f.ContentType
		if f.IsFolder {
			kind = "folder"
		}
		table.Append([]string{f.FileID, f.Filename, kind, strconv.FormatInt(f.Size, 10), strings.Join(f.Previews, ","), f.UpdatedAt.Local().Format(time.DateTime)})
	}
	table.Render()

	if resp.NextPageToken != "" {
		fmt.Printf("Next page token: %s\n", resp.NextPageToken)
	}
	return nil
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: client [flags] <command> [args]

commands:
  upload <path> [parent-id]     upload a file
  download <file-id> [out]      download a file
  preview <file-id> <size> [out] download a small, medium or large image preview
  url <file-id>                 print a presigned download url
  list [parent-id] [token]      list a folder (root when omitted)
  mkdir <name> [parent-id]      create a folder
  rename <file-id> <name>       rename a file or folder
  rm <file-id>                  delete a file or folder
  token <user-id> <secret>      mint a development JWT

flags:
`)
	flag.PrintDefaults()
}

func main() {
	addr := flag.String("addr", defaultAddr, "server address")
	userID := flag.String("user", os.Getenv("CLOUDDRIVE_USER"), "user id sent in the user-id header")
	token := flag.String("token", os.Getenv("CLOUDDRIVE_TOKEN"), "bearer token (takes precedence over -user)")
	timeout := flag.Duration("timeout", 10*time.Minute, "request timeout")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}
	need := func(n int) {
		if len(args) < n+1 {
			usage()
			os.Exit(2)
		}
	}
	arg := func(i int) string {
		if i < len(args) {
			return args[i]
		}
		return ""
	}

	if args[0] == "token" {
		need(2)
		t, err := middleware.GenerateToken(args[1], []byte(args[2]), 24*time.Hour)
		if err != nil {
			log.Fatalf("Token failed: %v", err)
		}
		fmt.Println(t)
		return
	}

	client, err := NewFileClient(*addr)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	switch {
	case *token != "":
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+*token)
	case *userID != "":
		ctx = metadata.AppendToOutgoingContext(ctx, "user-id", *userID)
	}

	switch args[0] {
	case "upload":
		need(1)
		resp, err := client.UploadFile(ctx, args[1], arg(2))
		if err != nil {
			log.Fatalf("Upload failed: %v", err)
		}
		mode := "stored"
		if resp.Instant {
			mode = "instant"
		}
		fmt.Printf("✓ Uploaded (%s): %s (ID: %s, %d bytes, %s)\n", mode, resp.Filename, resp.FileID, resp.Size, resp.ContentType)

	case "download":
		need(1)
		if err := client.DownloadFile(ctx, args[1], "", arg(2)); err != nil {
			log.Fatalf("Download failed: %v", err)
		}
		fmt.Println("✓ File downloaded successfully")

	case "preview":
		need(2)
		if err := client.DownloadFile(ctx, args[1], args[2], arg(3)); err != nil {
			log.Fatalf("Preview failed: %v", err)
		}
		fmt.Println("✓ Preview downloaded successfully")

	case "url":
		need(1)
		resp, err := client.client.GetDownloadURL(ctx, &pbv1.GetDownloadURLRequest{FileID: args[1]})
		if err != nil {
			log.Fatalf("Presign failed: %v", err)
		}
		fmt.Printf("%s\n(expires %s)\n", resp.URL, resp.ExpiresAt.Local().Format(time.RFC3339))

	case "list":
		if err := client.ListFiles(ctx, arg(1), 20, arg(2)); err != nil {
			log.Fatalf("List failed: %v", err)
		}

	case "mkdir":
		need(1)
		resp, err := client.client.CreateFolder(ctx, &pbv1.CreateFolderRequest{Name: args[1], ParentID: arg(2)})
		if err != nil {
			log.Fatalf("Create folder failed: %v", err)
		}
		fmt.Printf("✓ Folder created: %s (ID: %s)\n", resp.Folder.Filename, resp.Folder.FileID)

	case "rename":
		need(2)
		resp, err := client.client.RenameFile(ctx, &pbv1.RenameFileRequest{FileID: args[1], Name: args[2]})
		if err != nil {
			log.Fatalf("Rename failed: %v", err)
		}
		fmt.Printf("✓ Renamed to %s\n", resp.File.Filename)

	case "rm":
		need(1)
		resp, err := client.client.DeleteFile(ctx, &pbv1.DeleteFileRequest{FileID: args[1]})
		if err != nil {
			log.Fatalf("Delete failed: %v", err)
		}
		fmt.Printf("✓ %s\n", resp.Message)

	default:
		usage()
		os.Exit(2)
	}
}
