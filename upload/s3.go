////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package upload

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// ObjectStore stores blobs and returns the URL they are served from.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) (
		string, error)
}

// S3Store is an ObjectStore backed by an S3 bucket.
type S3Store struct {
	uploader *manager.Uploader
	bucket   string
	region   string
	baseURL  string
}

// NewS3Store loads the default AWS configuration for the region in params and
// returns a store writing to params.Bucket.
func NewS3Store(ctx context.Context, params Params) (*S3Store, error) {
	if params.Bucket == "" {
		return nil, errors.New("no S3 bucket configured")
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(params.Region))
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AWS configuration")
	}
	client := s3.NewFromConfig(cfg)
	return &S3Store{
		uploader: manager.NewUploader(client),
		bucket:   params.Bucket,
		region:   params.Region,
		baseURL:  strings.TrimSuffix(params.BaseURL, "/"),
	}, nil
}

// Put uploads body under key.
func (s *S3Store) Put(ctx context.Context, key, contentType string,
	body io.Reader) (string, error) {
	out, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to put %s", key)
	}
	jww.TRACE.Printf("Uploaded %s to %s", key, out.Location)
	return s.objectURL(key), nil
}

func (s *S3Store) objectURL(key string) string {
	escaped := (&url.URL{Path: key}).EscapedPath()
	if s.baseURL != "" {
		return s.baseURL + "/" + escaped
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket,
		s.region, escaped)
}
