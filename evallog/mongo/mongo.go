// Package mongo implements evallog.Buffer backed by MongoDB, the durable
// cross-process sample-buffer alternative to evallog/local named in
// SPEC_FULL.md's DOMAIN STACK table, grounded on
// features/runlog/mongo/store.go and features/run/mongo/clients/mongo and
// registry/store/mongo/mongo.go (the teacher's own
// collection-with-upsert-by-id idiom), adapted from the teacher's v1
// mongo-driver import paths to go.mongodb.org/mongo-driver/v2 since that is
// the version this module depends on.
package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/evalforge/evalforge/evallog"
)

const defaultTimeout = 5 * time.Second

// Buffer implements evallog.Buffer using one document per (run, sample,
// epoch), upserted on every Put so later events overwrite the prior
// snapshot for that sample.
type Buffer struct {
	coll    *mongo.Collection
	timeout time.Duration
}

var _ evallog.Buffer = (*Buffer)(nil)

type document struct {
	Key      string             `bson:"_id"`
	RunID    string             `bson:"run_id"`
	Sample   evallog.EvalSample `bson:"sample"`
	Updated  time.Time          `bson:"updated_at"`
}

// New constructs a Buffer backed by the given collection. timeout bounds
// every operation; zero uses defaultTimeout.
func New(coll *mongo.Collection, timeout time.Duration) (*Buffer, error) {
	if coll == nil {
		return nil, errors.New("evallog/mongo: collection is required")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	b := &Buffer{coll: coll, timeout: timeout}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "run_id", Value: 1}},
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

func docKey(runID string, sampleID any, epoch int) string {
	return runID + "::" + keyOf(sampleID, epoch)
}

func keyOf(sampleID any, epoch int) string {
	s := evallog.EvalSample{ID: sampleID, Epoch: epoch}
	return s.Key()
}

// Put implements evallog.Buffer.
func (b *Buffer) Put(ctx context.Context, runID string, sample evallog.EvalSample) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	doc := document{
		Key:     docKey(runID, sample.ID, sample.Epoch),
		RunID:   runID,
		Sample:  sample,
		Updated: time.Now().UTC(),
	}
	_, err := b.coll.ReplaceOne(ctx, bson.M{"_id": doc.Key}, doc, options.Replace().SetUpsert(true))
	return err
}

// Get implements evallog.Buffer.
func (b *Buffer) Get(ctx context.Context, runID string, sampleID any, epoch int) (evallog.EvalSample, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	var doc document
	err := b.coll.FindOne(ctx, bson.M{"_id": docKey(runID, sampleID, epoch)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return evallog.EvalSample{}, evallog.ErrNotFound
	}
	if err != nil {
		return evallog.EvalSample{}, err
	}
	return doc.Sample, nil
}

// List implements evallog.Buffer.
func (b *Buffer) List(ctx context.Context, runID string) ([]evallog.EvalSample, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	cur, err := b.coll.Find(ctx, bson.M{"run_id": runID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []evallog.EvalSample
	for cur.Next(ctx) {
		var doc document
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.Sample)
	}
	return out, cur.Err()
}

// Delete implements evallog.Buffer.
func (b *Buffer) Delete(ctx context.Context, runID string, sampleID any, epoch int) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	_, err := b.coll.DeleteOne(ctx, bson.M{"_id": docKey(runID, sampleID, epoch)})
	return err
}
