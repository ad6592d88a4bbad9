package utils

import (
	"fmt"
	"io"
	"mime/multipart"

	"github.com/gabriel-vasile/mimetype"
)

const (
	// MaxFileSize is 5MB in bytes
	MaxFileSize = 5 * 1024 * 1024
)

// AllowedImageTypes maps the accepted MIME types to the extension used when storing them
var AllowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// FileUploadError represents a file upload validation error
type FileUploadError struct {
	Code    string
	Message string
}

func (e *FileUploadError) Error() string {
	return e.Message
}

// ImageFile is an uploaded image that passed validation
type ImageFile struct {
	Content     []byte
	ContentType string
	Extension   string
}

// ValidateImageFile checks the upload size and sniffs its content type.
// The filename extension is ignored; only the bytes decide the type.
func ValidateImageFile(fileHeader *multipart.FileHeader) (*ImageFile, error) {
	// Check file size
	if fileHeader.Size > MaxFileSize {
		return nil, &FileUploadError{
			Code:    "FILE_TOO_LARGE",
			Message: fmt.Sprintf("File too large. Maximum size is %dMB.", MaxFileSize/(1024*1024)),
		}
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read uploaded file: %w", err)
	}
	if len(content) > MaxFileSize {
		return nil, &FileUploadError{
			Code:    "FILE_TOO_LARGE",
			Message: fmt.Sprintf("File too large. Maximum size is %dMB.", MaxFileSize/(1024*1024)),
		}
	}

	contentType := mimetype.Detect(content).String()
	ext, ok := AllowedImageTypes[contentType]
	if !ok {
		return nil, &FileUploadError{
			Code:    "INVALID_FILE_TYPE",
			Message: "Invalid file type. Only JPEG, PNG, GIF, and WebP are allowed.",
		}
	}

	return &ImageFile{Content: content, ContentType: contentType, Extension: ext}, nil
}
