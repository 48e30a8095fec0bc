package fileservicev1

import "time"

// FileMetadata opens every UploadFile stream.
type FileMetadata struct {
	TaskID      string `json:"task_id,omitempty" validate:"omitempty,max=128"`
	Filename    string `json:"filename" validate:"required,max=255"`
	ContentType string `json:"content_type,omitempty" validate:"omitempty,max=255"`
	Size        int64  `json:"size" validate:"gte=0"`
	ParentID    string `json:"parent_id,omitempty"`
}

// UploadFileRequest carries either the metadata (first message) or a chunk.
type UploadFileRequest struct {
	Metadata *FileMetadata `json:"metadata,omitempty"`
	Chunk    []byte        `json:"chunk,omitempty"`
}

func (r *UploadFileRequest) GetMetadata() *FileMetadata {
	if r == nil {
		return nil
	}
	return r.Metadata
}

func (r *UploadFileRequest) GetChunk() []byte {
	if r == nil {
		return nil
	}
	return r.Chunk
}

type UploadFileResponse struct {
	FileID      string `json:"file_id"`
	Filename    string `json:"filename"`
	Path        string `json:"path"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Instant     bool   `json:"instant"`
}

type GetUploadProgressRequest struct {
	TaskID string `json:"task_id" validate:"required"`
}

type UploadProgress struct {
	TaskID           string    `json:"task_id"`
	Filename         string    `json:"filename"`
	Percentage       float64   `json:"percentage"`
	BytesTransferred int64     `json:"bytes_transferred"`
	TotalBytes       int64     `json:"total_bytes"`
	Completed        bool      `json:"completed"`
	Success          bool      `json:"success"`
	Message          string    `json:"message,omitempty"`
	StartedAt        time.Time `json:"started_at"`
}

type FileInfo struct {
	FileID       string    `json:"file_id"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"original_name"`
	ContentType  string    `json:"content_type,omitempty"`
	Size         int64     `json:"size"`
	ParentID     string    `json:"parent_id,omitempty"`
	IsFolder     bool      `json:"is_folder"`
	Previews     []string  `json:"previews,omitempty"` // preview sizes DownloadFile accepts
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DownloadFileRequest fetches the stored file, or one of its rendered
// previews when Preview names a size.
type DownloadFileRequest struct {
	FileID  string `json:"file_id" validate:"required"`
	Preview string `json:"preview,omitempty" validate:"omitempty,oneof=small medium large"`
}

// DownloadFileResponse carries the file info (first message) or a chunk.
type DownloadFileResponse struct {
	Info  *FileInfo `json:"info,omitempty"`
	Chunk []byte    `json:"chunk,omitempty"`
}

func (r *DownloadFileResponse) GetInfo() *FileInfo {
	if r == nil {
		return nil
	}
	return r.Info
}

func (r *DownloadFileResponse) GetChunk() []byte {
	if r == nil {
		return nil
	}
	return r.Chunk
}

type GetDownloadURLRequest struct {
	FileID     string `json:"file_id" validate:"required"`
	TTLSeconds int64  `json:"ttl_seconds,omitempty" validate:"gte=0,lte=604800"`
}

type GetDownloadURLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ListFilesRequest struct {
	ParentID  string `json:"parent_id,omitempty"`
	PageSize  int32  `json:"page_size,omitempty" validate:"gte=0,lte=100"`
	PageToken string `json:"page_token,omitempty" validate:"omitempty,number"`
}

type ListFilesResponse struct {
	Files         []*FileInfo `json:"files"`
	NextPageToken string      `json:"next_page_token,omitempty"`
}

type RenameFileRequest struct {
	FileID string `json:"file_id" validate:"required"`
	Name   string `json:"name" validate:"required,max=255"`
}

type RenameFileResponse struct {
	File *FileInfo `json:"file"`
}

type CreateFolderRequest struct {
	ParentID string `json:"parent_id,omitempty"`
	Name     string `json:"name" validate:"required,max=255"`
}

type CreateFolderResponse struct {
	Folder *FileInfo `json:"folder"`
}

type DeleteFileRequest struct {
	FileID string `json:"file_id" validate:"required"`
}

type DeleteFileResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
