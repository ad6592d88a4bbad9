package services

import (
	"context"
	"fmt"
	"mime/multipart"
	"time"

	"github.com/kendall-kelly/support-relay-api/logger"
	"github.com/kendall-kelly/support-relay-api/utils"
)

// SupportImagePrefix is the key prefix every support image is stored under
const SupportImagePrefix = "support-images/"

// UploadedImage describes a stored support image
type UploadedImage struct {
	URL         string `json:"url"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

// ImageService validates and stores images visitors attach to support messages
type ImageService interface {
	UploadImage(ctx context.Context, fileHeader *multipart.FileHeader) (*UploadedImage, error)
}

// S3ImageService implements ImageService on top of ObjectStorage
type S3ImageService struct {
	storage ObjectStorage
	now     func() time.Time
}

// NewImageService creates an image service writing to storage
func NewImageService(storage ObjectStorage) *S3ImageService {
	return &S3ImageService{storage: storage, now: time.Now}
}

// UploadImage validates the file by content and stores it as
// support-images/<epoch-millis>_<random>.<ext>. Validation failures are
// returned as *utils.FileUploadError.
func (s *S3ImageService) UploadImage(ctx context.Context, fileHeader *multipart.FileHeader) (*UploadedImage, error) {
	image, err := utils.ValidateImageFile(fileHeader)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s%d_%s%s", SupportImagePrefix, s.now().UnixMilli(), utils.RandomAlnum(11), image.Extension)
	if err := s.storage.PutObject(ctx, key, image.ContentType, image.Content); err != nil {
		return nil, fmt.Errorf("failed to upload image: %w", err)
	}

	logger.Infow("Stored support image", "key", key, "content_type", image.ContentType, "size", len(image.Content))

	return &UploadedImage{
		URL:         s.storage.PublicURL(key),
		Filename:    key,
		ContentType: image.ContentType,
		Size:        len(image.Content),
	}, nil
}
