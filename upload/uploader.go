////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package upload stores media attachments in object storage before the
// message referencing them is sent.
package upload

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	_ "image/png"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/heartline/convsync/model"
)

const thumbnailQuality = 80

// Uploader uploads local media files and image thumbnails to an ObjectStore.
type Uploader struct {
	store   ObjectStore
	breaker *gobreaker.CircuitBreaker
	params  Params

	// replaced in tests
	newKey func() string
}

// NewUploader wraps store with a circuit breaker.
func NewUploader(store ObjectStore, params Params) *Uploader {
	settings := gobreaker.Settings{
		Name:        "ObjectStore",
		MaxRequests: 1,
		Timeout:     params.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= params.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			jww.WARN.Printf("Circuit breaker %s moved from %s to %s", name,
				from, to)
		},
	}
	return &Uploader{
		store:   store,
		breaker: gobreaker.NewCircuitBreaker(settings),
		params:  params,
		newKey:  uuid.NewString,
	}
}

// Upload stores the file at localPath and returns where it can be fetched.
// Images also get a JPEG thumbnail. A missing or oversized file is Invalid;
// a storage failure is an ExternalService error.
func (u *Uploader) Upload(ctx context.Context, localPath string,
	kind model.MessageType) (model.Media, error) {
	if !kind.IsMedia() {
		return model.Media{}, errors.Wrapf(model.ErrInvalid,
			"%s messages have no media", kind)
	}

	data, err := u.read(localPath)
	if err != nil {
		return model.Media{}, err
	}

	ext := strings.ToLower(filepath.Ext(localPath))
	key := path.Join(u.params.KeyPrefix, kind.String(), u.newKey()+ext)
	media := model.Media{LocalPath: localPath}

	media.URL, err = u.put(ctx, key, contentType(ext, data), data)
	if err != nil {
		return model.Media{}, err
	}

	if kind == model.ImageMessage {
		thumb, err := thumbnail(data, u.params.ThumbnailSize)
		if err != nil {
			jww.WARN.Printf("No thumbnail for %s: %+v", localPath, err)
		} else {
			thumbKey := strings.TrimSuffix(key, ext) + "_thumb.jpg"
			media.ThumbnailURL, err = u.put(ctx, thumbKey, "image/jpeg", thumb)
			if err != nil {
				jww.WARN.Printf("Failed to upload thumbnail of %s: %+v",
					localPath, err)
			}
		}
	}

	jww.INFO.Printf("Uploaded %s (%d bytes) to %s", localPath, len(data),
		media.URL)
	return media, nil
}

func (u *Uploader) read(localPath string) ([]byte, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return nil, errors.Wrapf(model.ErrInvalid, "cannot read %s: %v",
			localPath, err)
	} else if info.IsDir() {
		return nil, errors.Wrapf(model.ErrInvalid, "%s is a directory",
			localPath)
	} else if u.params.MaxSize > 0 && info.Size() > u.params.MaxSize {
		return nil, errors.Wrapf(model.ErrInvalid,
			"%s is %d bytes, the limit is %d", localPath, info.Size(),
			u.params.MaxSize)
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return nil, errors.Wrapf(model.ErrInvalid, "cannot read %s: %v",
			localPath, err)
	}
	return data, nil
}

func (u *Uploader) put(ctx context.Context, key, contentType string,
	data []byte) (string, error) {
	if u.params.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.params.Timeout)
		defer cancel()
	}
	res, err := u.breaker.Execute(func() (interface{}, error) {
		return u.store.Put(ctx, key, contentType, bytes.NewReader(data))
	})
	if err != nil {
		return "", errors.Wrapf(model.ErrExternalService,
			"failed to upload %s: %v", key, err)
	}
	return res.(string), nil
}

// contentType guesses the MIME type from the extension, falling back to the
// file contents.
func contentType(ext string, data []byte) string {
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return http.DetectContentType(data)
}

// thumbnail decodes an image and encodes a JPEG no larger than size on
// either side.
func thumbnail(data []byte, size uint) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode image")
	}
	thumb := resize.Thumbnail(size, size, img, resize.Lanczos3)

	var buf bytes.Buffer
	if err = jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: thumbnailQuality}); err != nil {
		return nil, errors.Wrap(err, "failed to encode thumbnail")
	}
	return buf.Bytes(), nil
}
