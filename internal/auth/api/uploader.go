package authapi

import "context"

// Uploader stores a profile picture and returns its public URL.
// Production deployments point this at a CDN; the default passes the data URL
// through unchanged so profiles work without any external service.
type Uploader interface {
	Upload(ctx context.Context, dataURL string) (string, error)
}

// PassthroughUploader returns the data URL as-is.
type PassthroughUploader struct{}

// Upload implements Uploader.
func (PassthroughUploader) Upload(_ context.Context, dataURL string) (string, error) {
	return dataURL, nil
}
