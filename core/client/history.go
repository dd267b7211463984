package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	ds "github.com/ipfs/go-datastore"
	dsq "github.com/ipfs/go-datastore/query"
	dslvl "github.com/ipfs/go-ds-leveldb"

	"github.com/pyropy/chunkup/core/model"
)

var (
	ErrUploadNotFound = errors.New("upload not found")
)

// UploadHistory keeps a record of every upload attempted by this client,
// keyed by record id so retrying a session id keeps earlier attempts.
type UploadHistory struct {
	Uploads *dslvl.Datastore
}

func NewUploadHistory(dsPath string) (*UploadHistory, error) {
	p := fmt.Sprintf("%s/uploads", dsPath)
	store, err := dslvl.NewDatastore(p, nil)
	if err != nil {
		return nil, err
	}

	return &UploadHistory{
		Uploads: store,
	}, nil
}

func (h *UploadHistory) Get(ctx context.Context, id uuid.UUID) (*model.UploadRecord, error) {
	k := ds.NewKey(id.String())
	b, err := h.Uploads.Get(ctx, k)
	if err != nil {
		if errors.Is(err, ds.ErrNotFound) {
			return nil, ErrUploadNotFound
		}

		return nil, err
	}

	var record model.UploadRecord
	err = json.Unmarshal(b, &record)
	if err != nil {
		return nil, err
	}

	return &record, nil
}

func (h *UploadHistory) Put(ctx context.Context, record model.UploadRecord) error {
	b, err := json.Marshal(record)
	if err != nil {
		return err
	}

	k := ds.NewKey(record.ID.String())
	return h.Uploads.Put(ctx, k, b)
}

// BySession returns the records of every attempt made under sessionID,
// oldest first.
func (h *UploadHistory) BySession(ctx context.Context, sessionID string) ([]*model.UploadRecord, error) {
	all, err := h.All(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]*model.UploadRecord, 0)
	for _, r := range all {
		if r.SessionID == sessionID {
			records = append(records, r)
		}
	}

	if len(records) == 0 {
		return nil, ErrUploadNotFound
	}

	return records, nil
}

// All returns every record, oldest first.
func (h *UploadHistory) All(ctx context.Context) ([]*model.UploadRecord, error) {
	q := dsq.Query{}
	records := make([]*model.UploadRecord, 0)

	res, err := h.Uploads.Query(ctx, q)
	if err != nil {
		return records, err
	}
	defer res.Close()

	for {
		r, hasNext := res.NextSync()
		if !hasNext {
			break
		}

		if r.Error != nil {
			return records, r.Error
		}

		var record model.UploadRecord
		err = json.Unmarshal(r.Value, &record)
		if err != nil {
			return records, err
		}
		records = append(records, &record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})

	return records, nil
}

func (h *UploadHistory) Close() error {
	return h.Uploads.Close()
}
