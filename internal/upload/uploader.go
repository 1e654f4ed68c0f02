// Package upload pushes a group of attachments into a remote folder.
package upload

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"

	"github.com/GBSLIT/FairForm/internal/graph"
	"github.com/GBSLIT/FairForm/internal/model"
	"github.com/GBSLIT/FairForm/internal/naming"
)

const fallbackContentType = "application/octet-stream"

// Remote is the slice of the Graph client the uploader needs.
type Remote interface {
	UploadFile(ctx context.Context, token, folderID, filename, contentType string, data []byte) (*graph.DriveItem, error)
}

// Error reports the file that stopped a group.
type Error struct {
	Group model.GroupName
	File  string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("upload %s/%s: %v", e.Group, e.File, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Uploader sends files with at most limit uploads in flight.
type Uploader struct {
	remote Remote
	limit  int
}

// New returns an Uploader. A limit below 1 means strictly sequential.
func New(remote Remote, limit int) *Uploader {
	if limit < 1 {
		limit = 1
	}
	return &Uploader{remote: remote, limit: limit}
}

// UploadGroup uploads every file of group into folderID and returns how many
// succeeded. The first failure stops the group: nothing new starts after it
// and files already uploaded stay in place.
func (u *Uploader) UploadGroup(ctx context.Context, token, folderID string, group model.FileGroup) (int, error) {
	if len(group.Files) == 0 {
		return 0, nil
	}
	var uploaded atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.limit)
	for _, file := range group.Files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			name := naming.SanitizeFilename(file.Filename)
			if _, err := u.remote.UploadFile(gctx, token, folderID, name, ContentType(file), file.Data); err != nil {
				return &Error{Group: group.Name, File: name, Err: err}
			}
			uploaded.Add(1)
			return nil
		})
	}
	err := g.Wait()
	n := int(uploaded.Load())
	if err != nil {
		log.Printf("group %s stopped after %d of %d files: %v", group.Name, n, len(group.Files), err)
		return n, err
	}
	return n, nil
}

// ContentType returns the declared type as given, including an explicit
// application/octet-stream. Only parts sent without a type are sniffed.
func ContentType(a model.Attachment) string {
	if a.ContentType != "" {
		return a.ContentType
	}
	if len(a.Data) > 0 {
		if m := mimetype.Detect(a.Data); m != nil {
			return m.String()
		}
	}
	return fallbackContentType
}
