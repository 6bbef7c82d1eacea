package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

type AzureConfig struct {
	Account    string
	StorageKey string
	Container  string
	// ServiceURL is the account endpoint, e.g. https://{account}.blob.core.windows.net/.
	ServiceURL string
}

// AzureGateway stores blobs in one Azure Blob Storage container.
type AzureGateway struct {
	client     *azblob.Client
	container  string
	serviceURL string
}

func NewAzureGateway(cfg AzureConfig) (*AzureGateway, error) {
	cred, err := azblob.NewSharedKeyCredential(cfg.Account, cfg.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("azure credential: %w", err)
	}
	client, err := azblob.NewClientWithSharedKeyCredential(cfg.ServiceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("azure client: %w", err)
	}
	return &AzureGateway{client: client, container: cfg.Container, serviceURL: cfg.ServiceURL}, nil
}

// EnsureContainer creates the container if it does not exist yet.
func (g *AzureGateway) EnsureContainer(ctx context.Context) error {
	_, err := g.client.CreateContainer(ctx, g.container, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return fmt.Errorf("create container %s: %w", g.container, err)
	}
	return nil
}

func (g *AzureGateway) Upload(ctx context.Context, name string, r io.Reader, contentType string) (string, error) {
	opts := &azblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	}
	if _, err := g.client.UploadStream(ctx, g.container, name, r, opts); err != nil {
		return "", fmt.Errorf("upload blob %s: %w", name, err)
	}
	return g.URL(name), nil
}

func (g *AzureGateway) Delete(ctx context.Context, name string) error {
	_, err := g.client.DeleteBlob(ctx, g.container, name, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			return nil
		}
		return fmt.Errorf("delete blob %s: %w", name, err)
	}
	return nil
}

func (g *AzureGateway) URL(name string) string {
	return joinURL(joinURL(g.serviceURL, g.container), name)
}
