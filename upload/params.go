////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package upload

import (
	"encoding/json"
	"time"
)

// Params configures the Uploader and the S3 store.
type Params struct {
	// Region and Bucket locate the S3 bucket.
	Region string
	Bucket string

	// BaseURL, if set, replaces the public bucket URL, e.g. a CDN.
	BaseURL string

	// KeyPrefix is prepended to every object key.
	KeyPrefix string

	// MaxSize is the largest file accepted, in bytes.
	MaxSize int64

	// ThumbnailSize bounds both sides of image thumbnails, in pixels.
	ThumbnailSize uint

	// Timeout bounds one object upload.
	Timeout time.Duration

	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// GetDefaultParams returns a Params object containing the default
// parameters.
func GetDefaultParams() Params {
	return Params{
		Region:          "us-east-1",
		KeyPrefix:       "media",
		MaxSize:         64 << 20,
		ThumbnailSize:   320,
		Timeout:         2 * time.Minute,
		BreakerFailures: 5,
		BreakerTimeout:  time.Minute,
	}
}

// GetParameters returns the default Params, or override with given
// parameters, if set.
func GetParameters(params string) (Params, error) {
	p := GetDefaultParams()
	if len(params) > 0 {
		err := json.Unmarshal([]byte(params), &p)
		if err != nil {
			return Params{}, err
		}
	}
	return p, nil
}
