package handoff

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"

	"github.com/andresmejia3/shadecheck/internal/capture"
	"github.com/andresmejia3/shadecheck/internal/logger"
	"github.com/andresmejia3/shadecheck/internal/types"
)

// uploader is the part of *azblob.Client the sink needs.
type uploader interface {
	UploadBuffer(ctx context.Context, containerName string, blobName string, buffer []byte, o *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error)
}

// AzureSink uploads the captured image to a blob container.
// Blobs are named <session id>/<file name>.
type AzureSink struct {
	client    uploader
	container string
}

func NewAzureSink(accountName, accountKey, container string) (*AzureSink, error) {
	if accountName == "" || accountKey == "" || container == "" {
		return nil, errors.New("azure sink needs an account name, account key and container")
	}
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		logger.Error("error generating azblob shared key credential", logger.LoggerOptions{Key: "error", Data: err})
		return nil, err
	}
	client, err := azblob.NewClientWithSharedKeyCredential(fmt.Sprintf("https://%s.blob.core.windows.net/", accountName), credential, nil)
	if err != nil {
		logger.Error("error creating azblob client", logger.LoggerOptions{Key: "error", Data: err})
		return nil, err
	}
	return &AzureSink{client: client, container: container}, nil
}

func (a *AzureSink) Handoff(ctx context.Context, desc types.ImageDescriptor) error {
	data, err := imageBytes(ctx, desc)
	if err != nil {
		return err
	}

	name := desc.FileName
	metadata := map[string]*string{"sourcetag": &desc.SourceTag}
	if sub, ok := capture.SubmissionFromContext(ctx); ok && sub.SessionID != "" {
		name = path.Join(sub.SessionID, desc.FileName)
		metadata["session"] = &sub.SessionID
	}

	_, err = a.client.UploadBuffer(ctx, a.container, name, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &desc.MimeType},
		Metadata:    metadata,
	})
	if err != nil {
		logger.Error("error uploading capture", logger.LoggerOptions{Key: "error", Data: err}, logger.LoggerOptions{Key: "blob", Data: name})
		return fmt.Errorf("failed to upload capture: %w", err)
	}
	logger.Info("capture uploaded", logger.LoggerOptions{Key: "blob", Data: name})
	return nil
}
