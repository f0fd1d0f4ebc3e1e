package main

import (
	"crypto/tls"
	"errors"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/docker/go-units"
	"github.com/minio/minio-go/v7"
)

// betterMime wraps mime.TypeByExtension and tries to handle a few edge cases.
func betterMime(fname string) (mt string) {
	ext := strings.ToLower(filepath.Ext(fname))
	if mt = mime.TypeByExtension(ext); mt != "" {
		return
	} else if ext == ".ttf" {
		mt = "binary/octet-stream"
	}

	return
}

// errorCode extracts the S3 error code from either backend's errors, blank if there is none.
func errorCode(err error) string {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		return aerr.Code()
	}

	var merr minio.ErrorResponse
	if errors.As(err, &merr) {
		return merr.Code
	}

	return ""
}

func humanSize(size int64) string {
	return units.HumanSize(float64(size))
}

// httpTransport clones the default transport, optionally trusting any certificate.
func httpTransport(insecure bool) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	if insecure {
		// nolint: gosec
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return t
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}

	return ""
}
