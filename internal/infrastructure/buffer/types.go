package buffer

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EntityReport = "report"

	OperationAppend = "append"
)

// Item is an event write that could not reach the event store yet.
type Item struct {
	ID        string          `json:"id"`
	Entity    string          `json:"entity"`
	Operation string          `json:"operation"`
	Data      json.RawMessage `json:"data"`
	Retries   int             `json:"retries"`
	LastError string          `json:"last_error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`

	bucketKey []byte
}

// NewItem marshals payload into an append item for entity.
func NewItem(id, entity string, payload any) (Item, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Item{}, err
	}
	return Item{
		ID:        id,
		Entity:    entity,
		Operation: OperationAppend,
		Data:      data,
		Timestamp: time.Now(),
	}, nil
}

// Decode unmarshals the payload into dst.
func (i Item) Decode(dst any) error {
	return json.Unmarshal(i.Data, dst)
}

func (i *Item) normalize() {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if i.Operation == "" {
		i.Operation = OperationAppend
	}
	if i.Timestamp.IsZero() {
		i.Timestamp = time.Now()
	}
}
