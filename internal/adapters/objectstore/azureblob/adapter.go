// Package azureblob implements the backend.ObjectStore capability contract
// over Azure Blob Storage, the durable adapter for resource_kind=object_store
// when a route's backend_type is azureblob.
package azureblob

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/r3e-labs/engines-controlplane/internal/platform/errs"
)

// Adapter implements backend.ObjectStore over a single Azure Blob
// container. Keys are tenant/env-prefixed by the resolver before reaching
// Put/Get/Exists/List/Delete (spec §4.3): this adapter never computes or
// strips that prefix itself.
type Adapter struct {
	client    *azblob.Client
	container string
}

// New builds an Adapter from an already-constructed azblob.Client, typically
// authenticated via azidentity.NewDefaultAzureCredential in the caller that
// resolves a route's config into a client.
func New(client *azblob.Client, container string) *Adapter {
	return &Adapter{client: client, container: container}
}

// Put satisfies backend.ObjectStore.Put.
func (a *Adapter) Put(ctx context.Context, key string, data io.Reader, contentType string) error {
	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, data); err != nil {
		return errs.BackendUnavailable("object_store", err)
	}
	_, err := a.client.UploadBuffer(ctx, a.container, key, buf.Bytes(), nil)
	if err != nil {
		return errs.BackendUnavailable("object_store", err)
	}
	return nil
}

// Get satisfies backend.ObjectStore.Get.
func (a *Adapter) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := a.client.DownloadStream(ctx, a.container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, errs.NotFound("object_store", key)
		}
		return nil, errs.BackendUnavailable("object_store", err)
	}
	return resp.Body, nil
}

// Exists satisfies backend.ObjectStore.Exists.
func (a *Adapter) Exists(ctx context.Context, key string) (bool, error) {
	_, err := a.client.ServiceClient().NewContainerClient(a.container).NewBlobClient(key).GetProperties(ctx, nil)
	if err == nil {
		return true, nil
	}
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return false, nil
	}
	return false, errs.BackendUnavailable("object_store", err)
}

// List satisfies backend.ObjectStore.List, paging via Azure's continuation
// token as the opaque cursor.
func (a *Adapter) List(ctx context.Context, prefix, cursor string) ([]string, string, error) {
	pager := a.client.NewListBlobsFlatPager(a.container, &azblob.ListBlobsFlatOptions{
		Prefix: &prefix,
		Marker: markerOrNil(cursor),
	})

	if !pager.More() {
		return nil, "", nil
	}

	page, err := pager.NextPage(ctx)
	if err != nil {
		return nil, "", errs.BackendUnavailable("object_store", err)
	}

	var keys []string
	for _, item := range page.Segment.BlobItems {
		if item.Name != nil {
			keys = append(keys, *item.Name)
		}
	}

	nextCursor := ""
	if page.NextMarker != nil {
		nextCursor = *page.NextMarker
	}
	return keys, nextCursor, nil
}

// Delete satisfies backend.ObjectStore.Delete.
func (a *Adapter) Delete(ctx context.Context, key string) error {
	_, err := a.client.DeleteBlob(ctx, a.container, key, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.BlobNotFound) {
		return errs.BackendUnavailable("object_store", err)
	}
	return nil
}

func markerOrNil(cursor string) *string {
	if strings.TrimSpace(cursor) == "" {
		return nil
	}
	return &cursor
}
