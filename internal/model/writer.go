package model

import "context"

// RecordWriter persists or forwards a batch of flow records.
type RecordWriter interface {
	Insert(ctx context.Context, records []FlowRecord) error
}
