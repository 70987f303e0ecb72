package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"nebula-api/domain"
)

// tablePartition keys every row of the single-user collection. The table is
// the external object-store boundary; its schema stays private to this file.
const tablePartition = "tasks"

// TableStore backs the task collection with an Azure Storage table for
// deployments where the collection lives in a remote object store instead of
// the local database.
type TableStore struct {
	table *aztables.Client
}

// NewTableStore creates a TableStore from the given connection string.
func NewTableStore(connStr, tableName string) (*TableStore, error) {
	clientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &clientOptions)
	if err != nil {
		return nil, err
	}
	return &TableStore{table: svc.NewClient(tableName)}, nil
}

type taskEntity struct {
	aztables.Entity
	Title       string `json:"Title"`
	Description string `json:"Description"`
	DueDate     string `json:"DueDate"`
	Priority    string `json:"Priority"`
	Category    string `json:"Category"`
	Completed   bool   `json:"Completed"`
	CreatedAt   string `json:"CreatedAt"`
	Seq         int64  `json:"Seq,omitempty"`
}

func encodeTaskEntity(task domain.Task, seq int64) ([]byte, error) {
	ent := taskEntity{
		Entity: aztables.Entity{
			PartitionKey: tablePartition,
			RowKey:       task.ID,
		},
		Title:       task.Title,
		Description: task.Description,
		DueDate:     task.DueDate.UTC().Format(time.RFC3339Nano),
		Priority:    string(task.Priority),
		Category:    string(task.Category),
		Completed:   task.IsCompleted,
		CreatedAt:   task.CreationDate.UTC().Format(time.RFC3339Nano),
		Seq:         seq,
	}
	return json.Marshal(ent)
}

// decodeTaskEntity maps a stored entity back onto a Task, applying the
// documented fallbacks for legacy values instead of failing the load.
func decodeTaskEntity(data []byte) (domain.Task, int64, error) {
	var ent taskEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, 0, err
	}
	task := domain.Task{
		ID:          ent.RowKey,
		Title:       ent.Title,
		Description: ent.Description,
		Priority:    domain.ParsePriority(ent.Priority),
		Category:    domain.ParseCategory(ent.Category),
		IsCompleted: ent.Completed,
	}
	if task.Title == "" {
		task.Title = domain.FallbackTitle
	}
	if t, err := time.Parse(time.RFC3339Nano, ent.DueDate); err == nil {
		task.DueDate = t
	}
	if t, err := time.Parse(time.RFC3339Nano, ent.CreatedAt); err == nil {
		task.CreationDate = t
	}
	return task, ent.Seq, nil
}

func (s *TableStore) InsertTask(ctx context.Context, task domain.Task) error {
	payload, err := encodeTaskEntity(task, time.Now().UnixNano())
	if err != nil {
		return err
	}
	_, err = s.table.AddEntity(ctx, payload, nil)
	return err
}

func (s *TableStore) UpdateTask(ctx context.Context, task domain.Task) error {
	if _, err := s.GetTask(ctx, task.ID); err != nil {
		return err
	}
	// Seq stays 0 so the merge leaves the insert-time ordering column alone.
	payload, err := encodeTaskEntity(task, 0)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.table.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{
		IfMatch:    &et,
		UpdateMode: aztables.UpdateModeMerge,
	})
	return err
}

func (s *TableStore) DeleteTask(ctx context.Context, id string) error {
	if _, err := s.GetTask(ctx, id); err != nil {
		return err
	}
	_, err := s.table.DeleteEntity(ctx, tablePartition, id, nil)
	return err
}

func (s *TableStore) GetTask(ctx context.Context, id string) (domain.Task, error) {
	resp, err := s.table.GetEntity(ctx, tablePartition, id, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 404 {
			return domain.Task{}, domain.NotFoundError{ID: id}
		}
		return domain.Task{}, err
	}
	task, _, err := decodeTaskEntity(resp.Value)
	return task, err
}

// ListTasks returns the collection in insertion order. Table listings come
// back keyed by RowKey, so the original order is reconstructed from the Seq
// column written at insert time.
func (s *TableStore) ListTasks(ctx context.Context) ([]domain.Task, error) {
	filter := "PartitionKey eq '" + tablePartition + "'"
	pager := s.table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})

	type seqTask struct {
		task domain.Task
		seq  int64
	}
	entries := []seqTask{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			task, seq, err := decodeTaskEntity(e)
			if err != nil {
				return nil, err
			}
			entries = append(entries, seqTask{task: task, seq: seq})
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	tasks := make([]domain.Task, len(entries))
	for i, e := range entries {
		tasks[i] = e.task
	}
	return tasks, nil
}
