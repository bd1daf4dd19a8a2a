// Package upload handles validated multipart image uploads.
//
// Storage itself is an external collaborator behind the Store interface:
// hand it bytes, get back a public URL and an opaque id. The local-disk
// implementation in disk.go is the development default; production points
// Store at a real image host.
package upload

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/volfir1/gadget-galaxy-api/internal/apperror"
	"github.com/volfir1/gadget-galaxy-api/internal/model"
)

// MaxImageSize caps uploads at 5 MB, matching the admin console's limit.
const MaxImageSize = 5 << 20

// Raster formats only. SVG is excluded: it is scriptable, and anything under
// /uploads/ is served back to browsers.
var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Store persists image bytes somewhere public.
type Store interface {
	// Put stores the image and returns its public form. name is a storage
	// key hint, ext the file extension including the dot.
	Put(ctx context.Context, data []byte, name, ext string) (model.Image, error)
}

// ReadImage extracts and validates the named file from an already-parsed
// multipart request. Returns (nil, "", nil) when the field is absent — an
// image is always optional.
//
// Content type is sniffed from the bytes, not trusted from the part header.
func ReadImage(r *http.Request, field string) ([]byte, string, error) {
	if r.MultipartForm == nil {
		return nil, "", nil
	}
	files := r.MultipartForm.File[field]
	if len(files) == 0 {
		return nil, "", nil
	}

	fh := files[0]
	if fh.Size > MaxImageSize {
		return nil, "", apperror.ValidationFailed(field,
			fmt.Sprintf("Image must be %d MB or smaller", MaxImageSize>>20))
	}

	data, err := readAll(fh)
	if err != nil {
		return nil, "", fmt.Errorf("upload: reading %s: %w", field, err)
	}

	contentType := http.DetectContentType(data)
	ext, ok := allowedTypes[contentType]
	if !ok {
		return nil, "", apperror.ValidationFailed(field,
			"Invalid file type. Allowed types are: image/jpeg, image/png, image/gif, image/webp")
	}
	return data, ext, nil
}

func readAll(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	// +1 so an underreported Size still trips the limit check upstream.
	return io.ReadAll(io.LimitReader(f, MaxImageSize+1))
}
