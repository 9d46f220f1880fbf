// Package blobsvc stores receipts, subscription proofs and plan QR codes.
package blobsvc

import (
	"context"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/feedesk/core"
)

const uploadTimeout = 30 * time.Second

type CloudinaryStore struct {
	cld    *cloudinary.Cloudinary
	folder string
}

var _ core.BlobStore = (*CloudinaryStore)(nil)

func NewCloudinaryStore(conf *core.Config) (*CloudinaryStore, error) {
	cld, err := cloudinary.NewFromURL(conf.Storage.CloudinaryURL)
	if err != nil {
		return nil, errors.Wrap(err, "cloudinary.NewFromURL()")
	}
	return &CloudinaryStore{cld: cld, folder: conf.Storage.Folder}, nil
}

func (s CloudinaryStore) Store(ctx context.Context, folder string, file core.File) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	res, err := s.cld.Upload.Upload(ctx, file.Content, uploader.UploadParams{
		Folder:       path.Join(s.folder, folder),
		PublicID:     publicID(file.Name),
		ResourceType: "auto",
	})
	if err != nil {
		return "", core.NewStorageError(err)
	}
	if res.Error.Message != "" {
		return "", core.NewStorageError(errors.New(res.Error.Message))
	}
	return res.SecureURL, nil
}

// publicID keeps the file's base name readable and makes it unique.
// publicID keeps the file's base name readable and makes it unique.
func publicID(name string) string {
	base := strings.TrimSuffix(path.Base(name), path.Ext(name))
	base = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
			return r
		}
		return '_'
	}, base)
	if strings.Trim(base, "_") == "" {
		base = "file"
	}
	return base + "_" + uuid.NewString()
}
