package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/GBSLIT/FairForm/internal/model"
)

const maxFieldBytes = 64 << 10

// ErrBadRequest is wrapped by every rejection of the posted form.
var ErrBadRequest = errors.New("invalid submission")

// readSubmission streams the multipart body into a Submission. File inputs
// other than the known groups are ignored. Limits are enforced while
// reading, before any remote call is made.
func readSubmission(w http.ResponseWriter, r *http.Request, maxFileSize int64) (*model.Submission, error) {
	total := int64(0)
	for _, n := range model.MaxFiles {
		total += int64(n)
	}
	r.Body = http.MaxBytesReader(w, r.Body, total*maxFileSize+total*maxFieldBytes)
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("%w: expecting multipart form", ErrBadRequest)
	}

	sub := &model.Submission{Form: model.Form{}}
	groups := make(map[model.GroupName]*model.FileGroup)
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read multipart: %v", ErrBadRequest, err)
		}
		name := part.FormName()
		if part.FileName() == "" {
			value, err := readLimited(part, maxFieldBytes)
			part.Close()
			if err != nil {
				return nil, fmt.Errorf("%w: field %s: %v", ErrBadRequest, name, err)
			}
			sub.Form[name] = append(sub.Form[name], string(value))
			continue
		}

		group := model.GroupName(name)
		limit, ok := model.MaxFiles[group]
		if !ok {
			part.Close()
			continue
		}
		fg := groups[group]
		if fg == nil {
			fg = &model.FileGroup{Name: group}
			groups[group] = fg
		}
		if len(fg.Files) >= limit {
			part.Close()
			return nil, fmt.Errorf("%w: too many files in %s (max %d)", ErrBadRequest, group, limit)
		}
		data, err := readLimited(part, maxFileSize)
		part.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrBadRequest, part.FileName(), err)
		}
		fg.Files = append(fg.Files, model.Attachment{
			Filename:    part.FileName(),
			ContentType: part.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	for _, name := range model.Groups {
		if fg := groups[name]; fg != nil {
			sub.Groups = append(sub.Groups, *fg)
		}
	}
	return sub, nil
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("exceeds limit (%d bytes)", limit)
	}
	return data, nil
}
