package utils

import (
	"fmt"
	"mime/multipart"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

const (
	// MaxFileSize is 20MB in bytes
	MaxFileSize = 20 * 1024 * 1024
)

// AllowedAttachmentTypes maps accepted extensions to their content type
var AllowedAttachmentTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".pdf":  "application/pdf",
	".stl":  "model/stl",
}

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// FileUploadError represents a file upload validation error
type FileUploadError struct {
	Code    string
	Message string
}

func (e *FileUploadError) Error() string {
	return e.Message
}

// ValidateAttachment validates the uploaded file format and size
func ValidateAttachment(fileHeader *multipart.FileHeader) error {
	if fileHeader.Size <= 0 {
		return &FileUploadError{
			Code:    "EMPTY_FILE",
			Message: "File is empty",
		}
	}

	// Check file size
	if fileHeader.Size > MaxFileSize {
		return &FileUploadError{
			Code:    "FILE_TOO_LARGE",
			Message: fmt.Sprintf("File size exceeds maximum allowed size of %d MB", MaxFileSize/(1024*1024)),
		}
	}

	// Check file extension
	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if _, ok := AllowedAttachmentTypes[ext]; !ok {
		return &FileUploadError{
			Code:    "INVALID_FILE_FORMAT",
			Message: fmt.Sprintf("Only %s files are allowed", strings.Join(allowedExtensions(), ", ")),
		}
	}

	return nil
}

// ContentTypeFor returns the content type stored for filename
func ContentTypeFor(filename string) string {
	if ct, ok := AllowedAttachmentTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// SanitizeFileName strips directories and characters unsafe in object keys
func SanitizeFileName(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	clean := strings.Trim(unsafeFileChars.ReplaceAllString(base, "_"), "_")
	if clean == "" || clean == "." {
		return "file"
	}
	return clean
}

// AttachmentKey builds the storage key of an order attachment
// Format: orders/{orderID}/{unix nanos}_{filename}
func AttachmentKey(orderID, filename string, at time.Time) string {
	return fmt.Sprintf("orders/%s/%d_%s", orderID, at.UnixNano(), SanitizeFileName(filename))
}

func allowedExtensions() []string {
	exts := make([]string, 0, len(AllowedAttachmentTypes))
	for ext := range AllowedAttachmentTypes {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
