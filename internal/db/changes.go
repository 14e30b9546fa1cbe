package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Change stream operation types the dispatcher handles.
const (
	OperationInsert  = "insert"
	OperationUpdate  = "update"
	OperationReplace = "replace"
)

// ChangeEvent is one decoded change stream document.
type ChangeEvent struct {
	Token             bson.Raw           `bson:"_id"`
	OperationType     string             `bson:"operationType"`
	FullDocument      bson.RawValue      `bson:"fullDocument"`
	UpdateDescription *UpdateDescription `bson:"updateDescription,omitempty"`
}

// UpdateDescription lists the fields an update changed.
type UpdateDescription struct {
	UpdatedFields bson.Raw `bson:"updatedFields"`
	RemovedFields []string `bson:"removedFields"`
}

// ChangedField returns the new value of a field set by the update. The second
// result is false when the field was not part of the update.
func (e ChangeEvent) ChangedField(name string) (bson.RawValue, bool) {
	if e.UpdateDescription == nil || len(e.UpdateDescription.UpdatedFields) == 0 {
		return bson.RawValue{}, false
	}
	value, err := e.UpdateDescription.UpdatedFields.LookupErr(name)
	if err != nil {
		return bson.RawValue{}, false
	}
	return value, true
}

// HasFullDocument reports whether the event carries the post-change document.
func (e ChangeEvent) HasFullDocument() bool {
	return e.FullDocument.Type == bson.TypeEmbeddedDocument
}

// CheckpointCollection persists change stream resume tokens.
type CheckpointCollection struct {
	Collection *mongo.Collection
}

type checkpoint struct {
	ID        string    `bson:"_id"`
	Token     bson.Raw  `bson:"token"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// LoadCheckpoint returns the stored resume token, or nil when none was saved.
func (c *CheckpointCollection) LoadCheckpoint(ctx context.Context, id string) (bson.Raw, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	var cp checkpoint
	err := c.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&cp)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return cp.Token, nil
}

// SaveCheckpoint upserts the resume token for id.
func (c *CheckpointCollection) SaveCheckpoint(ctx context.Context, id string, token bson.Raw) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	_, err := c.Collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"token": token, "updated_at": time.Now().UTC()}},
		options.Update().SetUpsert(true),
	)
	return err
}
