package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/jwalitptl/patient-records/internal/model"
	"github.com/jwalitptl/patient-records/internal/query"
	"github.com/jwalitptl/patient-records/internal/repository"
	"github.com/jwalitptl/patient-records/pkg/metrics"
)

type patientRepository struct {
	coll    *mongo.Collection
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewPatientRepository returns a repository over coll. m may be nil.
func NewPatientRepository(coll *mongo.Collection, m *metrics.Metrics) repository.PatientRepository {
	return &patientRepository{
		coll:    coll,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (r *patientRepository) Create(ctx context.Context, p *model.Patient) (err error) {
	defer r.observe("create", time.Now(), &err)

	res, err := r.coll.InsertOne(ctx, p)
	if err != nil {
		return translateWriteError(err, "failed to create patient")
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		p.ID = id
	}
	return nil
}

func (r *patientRepository) InsertMany(ctx context.Context, patients []*model.Patient) (err error) {
	defer r.observe("insert_many", time.Now(), &err)

	docs := make([]interface{}, 0, len(patients))
	for _, p := range patients {
		docs = append(docs, p)
	}
	res, err := r.coll.InsertMany(ctx, docs)
	if err != nil {
		return translateWriteError(err, "failed to insert patients")
	}
	for i, id := range res.InsertedIDs {
		if oid, ok := id.(primitive.ObjectID); ok && i < len(patients) {
			patients[i].ID = oid
		}
	}
	return nil
}

func (r *patientRepository) GetByCode(ctx context.Context, code string) (_ *model.Patient, err error) {
	defer r.observe("get", time.Now(), &err)

	var p model.Patient
	if err = r.coll.FindOne(ctx, codeFilter(code)).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return &p, nil
}

func (r *patientRepository) UpdateByCode(ctx context.Context, code string, patch *model.PatientPatch) (_ *model.Patient, err error) {
	defer r.observe("update", time.Now(), &err)

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var p model.Patient
	err = r.coll.FindOneAndUpdate(ctx, codeFilter(code), setDoc(patch, r.now()), opts).Decode(&p)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, translateWriteError(err, "failed to update patient")
	}
	return &p, nil
}

// UpdateMany counts the matches first, then updates only records that differ
// from the patch. The two steps are not atomic.
func (r *patientRepository) UpdateMany(ctx context.Context, c query.Criteria, patch *model.PatientPatch) (_ *model.BulkUpdateResult, err error) {
	defer r.observe("update_many", time.Now(), &err)

	filter := criteriaFilter(c)
	matched, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to count patients: %w", err)
	}
	if matched == 0 {
		return &model.BulkUpdateResult{}, nil
	}

	res, err := r.coll.UpdateMany(ctx, notHeldFilter(filter, patch), setDoc(patch, r.now()))
	if err != nil {
		return nil, translateWriteError(err, "failed to update patients")
	}

	return &model.BulkUpdateResult{
		MatchedCount:  matched,
		ModifiedCount: res.ModifiedCount,
	}, nil
}

func (r *patientRepository) DeleteByCode(ctx context.Context, code string) (_ *model.Patient, err error) {
	defer r.observe("delete", time.Now(), &err)

	var p model.Patient
	if err = r.coll.FindOneAndDelete(ctx, codeFilter(code)).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to delete patient: %w", err)
	}
	return &p, nil
}

func (r *patientRepository) List(ctx context.Context, params query.ListParams) (_ []*model.Patient, _ int64, err error) {
	defer r.observe("list", time.Now(), &err)

	total, err := r.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count patients: %w", err)
	}

	skip := params.Skip()
	if skip >= total {
		return []*model.Patient{}, total, nil
	}

	opts := findOptions(params.Sort).
		SetSkip(skip).
		SetLimit(int64(params.Limit))

	patients, err := r.find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, 0, err
	}
	return patients, total, nil
}

func (r *patientRepository) Search(ctx context.Context, s query.Search) (_ []*model.Patient, err error) {
	defer r.observe("search", time.Now(), &err)

	return r.find(ctx, criteriaFilter(s.Criteria), findOptions(s.Sort))
}

func (r *patientRepository) find(ctx context.Context, filter bson.D, opts *options.FindOptions) ([]*model.Patient, error) {
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find patients: %w", err)
	}

	patients := make([]*model.Patient, 0)
	if err := cursor.All(ctx, &patients); err != nil {
		return nil, fmt.Errorf("failed to decode patients: %w", err)
	}
	return patients, nil
}

func (r *patientRepository) LastPatientCode(ctx context.Context) (_ string, err error) {
	defer r.observe("last_code", time.Now(), &err)

	opts := options.FindOne().
		SetSort(bson.D{{Key: "patientCode", Value: -1}}).
		SetCollation(numericCollation).
		SetProjection(bson.D{{Key: "patientCode", Value: 1}})

	var p model.Patient
	if err = r.coll.FindOne(ctx, bson.D{}, opts).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", nil
		}
		return "", fmt.Errorf("failed to find last patient code: %w", err)
	}
	return p.PatientCode, nil
}

func (r *patientRepository) Count(ctx context.Context) (_ int64, err error) {
	defer r.observe("count", time.Now(), &err)

	n, err := r.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("failed to count patients: %w", err)
	}
	return n, nil
}

func (r *patientRepository) GroupCount(ctx context.Context, g query.Grouping) (_ []model.GroupCount, err error) {
	defer r.observe("aggregate", time.Now(), &err)

	cursor, err := r.coll.Aggregate(ctx, groupPipeline(g))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate by %s: %w", g.Field, err)
	}

	buckets := make([]model.GroupCount, 0)
	if err := cursor.All(ctx, &buckets); err != nil {
		return nil, fmt.Errorf("failed to decode %s buckets: %w", g.Field, err)
	}
	if g.Limit <= 0 {
		buckets = g.Ranked(buckets)
	}
	return buckets, nil
}

func (r *patientRepository) Ping(ctx context.Context) error {
	return r.coll.Database().Client().Ping(ctx, readpref.Primary())
}

// translateWriteError maps unique index violations to DuplicateKeyError.
func translateWriteError(err error, msg string) error {
	if mongo.IsDuplicateKeyError(err) {
		return &repository.DuplicateKeyError{Field: duplicateField(err), Err: err}
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// duplicateField names the field behind a duplicate key error from the
// index name in the server message.
func duplicateField(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, indexPatientCode):
		return "patientCode"
	case strings.Contains(msg, indexEmail):
		return "email"
	default:
		return "key"
	}
}

func (r *patientRepository) observe(op string, start time.Time, err *error) {
	r.metrics.ObserveDB(op, start, *err)
}
