package store

import (
	"context"
	"errors"
	"time"

	"ai-mistake-tracker/pkg/apperr"
	"ai-mistake-tracker/pkg/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	reportsCollection = "mistake_reports"
	toolsCollection   = "ai_tools"

	// maxUpdateAttempts bounds optimistic retries before an update is
	// reported as a conflict.
	maxUpdateAttempts = 5
)

// Mongo stores reports and tools in MongoDB. Single-document updates use an
// optimistic doc_version check so concurrent writers never lose each other's
// ledger changes.
type Mongo struct {
	reports *mongo.Collection
	tools   *mongo.Collection
}

func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{
		reports: db.Collection(reportsCollection),
		tools:   db.Collection(toolsCollection),
	}
}

var _ Store = (*Mongo)(nil)

// EnsureIndexes creates the secondary indexes queried by the services.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	_, err := m.reports.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "ai_tool", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "category", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "vote_score", Value: -1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "reporter_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "reporter_tag", Value: 1}}, Options: options.Index().SetSparse(true)},
		{Keys: bson.D{{Key: "votes.user_id", Value: 1}}},
	})
	if err != nil {
		return err
	}
	_, err = m.tools.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "slug", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "performance.current.accuracy", Value: -1}}},
		{Keys: bson.D{{Key: "stats.mistake_rate", Value: 1}}},
	})
	return err
}

func (m *Mongo) InsertReport(ctx context.Context, r *models.MistakeReport) error {
	if r.ID.IsZero() {
		r.ID = primitive.NewObjectID()
	}
	_, err := m.reports.InsertOne(ctx, r)
	if mongo.IsDuplicateKeyError(err) {
		return apperr.InvalidArgument("report %s already exists", r.ID.Hex())
	}
	return err
}

func (m *Mongo) GetReport(ctx context.Context, id primitive.ObjectID) (*models.MistakeReport, error) {
	var r models.MistakeReport
	err := m.reports.FindOne(ctx, bson.M{"_id": id}).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("mistake report %s", id.Hex())
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (m *Mongo) UpdateReport(ctx context.Context, id primitive.ObjectID, fn func(*models.MistakeReport) error) (*models.MistakeReport, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		r, err := m.GetReport(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(r); err != nil {
			return nil, err
		}
		ok, err := replaceVersioned(ctx, m.reports, id, r.DocVersion, func(v int64) { r.DocVersion = v }, r)
		if err != nil {
			return nil, err
		}
		if ok {
			return r, nil
		}
	}
	return nil, apperr.Conflict("mistake report %s was modified concurrently", id.Hex())
}

// IncrementReport bumps a counter in place. The version is bumped too so a
// concurrent versioned replace retries instead of writing back a stale count.
func (m *Mongo) IncrementReport(ctx context.Context, id primitive.ObjectID, c ReportCounter) (*models.MistakeReport, error) {
	if c != CounterViews && c != CounterShares {
		return nil, apperr.InvalidArgument("unknown report counter %q", c)
	}
	var r models.MistakeReport
	err := m.reports.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$inc": bson.M{string(c): 1, "doc_version": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("mistake report %s", id.Hex())
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (m *Mongo) FindReports(ctx context.Context, f ReportFilter, s ReportSort, skip, limit int) ([]*models.MistakeReport, error) {
	opts := options.Find().SetSort(reportSortDoc(s))
	if skip > 0 {
		opts.SetSkip(int64(skip))
	}
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := m.reports.Find(ctx, reportFilterDoc(f), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	reports := make([]*models.MistakeReport, 0)
	if err := cursor.All(ctx, &reports); err != nil {
		return nil, err
	}
	return reports, nil
}

func (m *Mongo) CountReports(ctx context.Context, f ReportFilter) (int64, error) {
	return m.reports.CountDocuments(ctx, reportFilterDoc(f))
}

func (m *Mongo) GroupReports(ctx context.Context, f ReportFilter, by GroupField) ([]GroupCount, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: reportFilterDoc(f)}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$" + string(by)},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "avg_vote_score", Value: bson.D{{Key: "$avg", Value: "$vote_score"}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
	}
	cursor, err := m.reports.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := make([]GroupCount, 0)
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Mongo) SumTotalVotes(ctx context.Context, f ReportFilter) (int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: reportFilterDoc(f)}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: "$total_votes"}}},
		}}},
	}
	return m.aggregateTotal(ctx, pipeline)
}

func (m *Mongo) CountVotesSince(ctx context.Context, since time.Time) (int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"votes.created_at": bson.M{"$gte": since}}}},
		{{Key: "$unwind", Value: "$votes"}},
		{{Key: "$match", Value: bson.M{"votes.created_at": bson.M{"$gte": since}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	return m.aggregateTotal(ctx, pipeline)
}

func (m *Mongo) aggregateTotal(ctx context.Context, pipeline mongo.Pipeline) (int64, error) {
	cursor, err := m.reports.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Total int64 `bson:"total"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Total, nil
}

// AnonymizeReporter clears the reporter link on every report filed by
// userID, and the sealed identity on anonymous reports tagged with tag.
// Vote ledgers are untouched so no derived field is affected.
func (m *Mongo) AnonymizeReporter(ctx context.Context, userID, tag string, now time.Time) (int64, error) {
	res, err := m.reports.UpdateMany(ctx,
		anonymizeFilterDoc(userID, tag),
		bson.M{
			"$set":   bson.M{"reporter_id": nil, "is_anonymous": true, "updated_at": now},
			"$unset": bson.M{"reporter_name": "", "reporter_id_enc": "", "reporter_tag": ""},
			"$inc":   bson.M{"doc_version": 1},
		},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func anonymizeFilterDoc(userID, tag string) bson.M {
	if tag == "" {
		return bson.M{"reporter_id": userID}
	}
	return bson.M{"$or": bson.A{
		bson.M{"reporter_id": userID},
		bson.M{"reporter_tag": tag},
	}}
}

func reportFilterDoc(f ReportFilter) bson.M {
	filter := bson.M{}
	if f.AITool != "" {
		filter["ai_tool"] = f.AITool
	}
	if f.Category != "" {
		filter["category"] = f.Category
	}
	if f.Severity != "" {
		filter["severity"] = f.Severity
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.PublicOnly {
		filter["is_public"] = true
	}
	if f.ReporterID != "" {
		filter["reporter_id"] = f.ReporterID
	}
	if f.VoterID != "" {
		filter["votes.user_id"] = f.VoterID
	}
	if !f.Since.IsZero() {
		filter["created_at"] = bson.M{"$gte": f.Since}
	}
	return filter
}

func reportSortDoc(s ReportSort) bson.D {
	switch s {
	case SortOldest:
		return bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}
	case SortMostVoted:
		return bson.D{{Key: "vote_score", Value: -1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}
	case SortLeastVoted:
		return bson.D{{Key: "vote_score", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}
	default:
		return bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}
	}
}

func (m *Mongo) InsertTool(ctx context.Context, t *models.AITool) error {
	if t.ID.IsZero() {
		t.ID = primitive.NewObjectID()
	}
	_, err := m.tools.InsertOne(ctx, t)
	if mongo.IsDuplicateKeyError(err) {
		return apperr.InvalidArgument("AI tool %q already exists", t.Name)
	}
	return err
}

func (m *Mongo) GetTool(ctx context.Context, id primitive.ObjectID) (*models.AITool, error) {
	return m.findOneTool(ctx, bson.M{"_id": id}, "AI tool "+id.Hex())
}

func (m *Mongo) GetToolBySlug(ctx context.Context, slug string) (*models.AITool, error) {
	return m.findOneTool(ctx, bson.M{"slug": slug}, "AI tool with slug "+slug)
}

func (m *Mongo) GetToolByName(ctx context.Context, name string) (*models.AITool, error) {
	return m.findOneTool(ctx, bson.M{"name": name}, "AI tool named "+name)
}

func (m *Mongo) findOneTool(ctx context.Context, filter bson.M, what string) (*models.AITool, error) {
	var t models.AITool
	err := m.tools.FindOne(ctx, filter).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("%s", what)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (m *Mongo) UpdateTool(ctx context.Context, id primitive.ObjectID, fn func(*models.AITool) error) (*models.AITool, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		t, err := m.GetTool(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(t); err != nil {
			return nil, err
		}
		ok, err := replaceVersioned(ctx, m.tools, id, t.DocVersion, func(v int64) { t.DocVersion = v }, t)
		if mongo.IsDuplicateKeyError(err) {
			return nil, apperr.InvalidArgument("AI tool %q already exists", t.Name)
		}
		if err != nil {
			return nil, err
		}
		if ok {
			return t, nil
		}
	}
	return nil, apperr.Conflict("AI tool %s was modified concurrently", id.Hex())
}

func (m *Mongo) DeleteTool(ctx context.Context, id primitive.ObjectID) error {
	res, err := m.tools.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return apperr.NotFound("AI tool %s", id.Hex())
	}
	return nil
}

func (m *Mongo) FindTools(ctx context.Context, f ToolFilter, s ToolSort, limit int) ([]*models.AITool, error) {
	opts := options.Find().SetSort(toolSortDoc(s))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := m.tools.Find(ctx, toolFilterDoc(f), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	tools := make([]*models.AITool, 0)
	if err := cursor.All(ctx, &tools); err != nil {
		return nil, err
	}
	return tools, nil
}

func (m *Mongo) CountTools(ctx context.Context, f ToolFilter) (int64, error) {
	return m.tools.CountDocuments(ctx, toolFilterDoc(f))
}

func toolFilterDoc(f ToolFilter) bson.M {
	filter := bson.M{}
	if f.Category != "" {
		filter["category"] = f.Category
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.ListedOnly {
		filter["is_public"] = true
		if f.Status != "" && f.Status != models.ToolActive {
			// Listed tools are active, so nothing can match.
			filter["status"] = bson.M{"$in": bson.A{}}
		} else {
			filter["status"] = models.ToolActive
		}
	}
	if len(f.Names) > 0 {
		filter["name"] = bson.M{"$in": f.Names}
	}
	if !f.UpdatedSince.IsZero() {
		filter["performance.last_updated"] = bson.M{"$gte": f.UpdatedSince}
	}
	return filter
}

func toolSortDoc(s ToolSort) bson.D {
	switch s {
	case ToolSortName:
		return bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}}
	case ToolSortMistakeRate:
		return bson.D{{Key: "stats.mistake_rate", Value: 1}, {Key: "_id", Value: 1}}
	case ToolSortPopularity:
		return bson.D{{Key: "stats.active_users", Value: -1}, {Key: "performance.current.user_satisfaction", Value: -1}, {Key: "_id", Value: 1}}
	case ToolSortRecentlyUpdated:
		return bson.D{{Key: "performance.last_updated", Value: -1}, {Key: "_id", Value: 1}}
	default:
		return bson.D{{Key: "performance.current.accuracy", Value: -1}, {Key: "stats.mistake_rate", Value: 1}, {Key: "_id", Value: 1}}
	}
}

// replaceVersioned writes doc only if the stored doc_version still equals
// version. It reports false when another writer got there first.
func replaceVersioned(ctx context.Context, coll *mongo.Collection, id primitive.ObjectID, version int64, bump func(int64), doc any) (bool, error) {
	bump(version + 1)
	res, err := coll.ReplaceOne(ctx, bson.M{"_id": id, "doc_version": version}, doc)
	if err != nil {
		bump(version)
		return false, err
	}
	if res.MatchedCount == 0 {
		bump(version)
		return false, nil
	}
	return true, nil
}
