// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package docdb is the DOC-DB engine of spec.md §4.5: it implements
[engine.Engine] directly against `go.mongodb.org/mongo-driver/mongo` rather
than going through a [sqlengine.Builder]/[executor.Executor] pair, since
there is no SQL text to build — filter, projection, and sort translate
straight from a [queryir.QueryStructure] into BSON. Per SPEC_FULL.md's
restated Non-goals, analytic push-down beyond filter/limit/sort is out of
scope (no aggregation pipeline beyond what $match/$project/$sort/$limit
express).
*/
package docdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/taibuivan/dataapi/internal/executor"
	"github.com/taibuivan/dataapi/internal/metadata"
	"github.com/taibuivan/dataapi/internal/platform/apperr"
	"github.com/taibuivan/dataapi/internal/platform/principal"
	"github.com/taibuivan/dataapi/internal/queryir"
)

const connectTimeout = 10 * time.Second

// Connect dials uri and validates connectivity with a ping, mirroring the
// connect-then-ping pattern internal/platform/postgres and
// internal/platform/redis use for their own stores.
func Connect(ctx context.Context, uri string, logger *slog.Logger) (*mongo.Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(dialCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("docdb: failed to connect: %w", err)
	}
	if err := client.Ping(dialCtx, nil); err != nil {
		_ = client.Disconnect(dialCtx)
		return nil, fmt.Errorf("docdb: ping failed: %w", err)
	}

	logger.Info("docdb_client_connected")
	return client, nil
}

// Engine adapts one Mongo database into the engine.Engine surface declared
// by internal/engine (not imported here to avoid a cycle).
type Engine struct {
	client        *mongo.Client
	database      string
	logger        *slog.Logger
	developerMode bool
}

// New constructs a DOC-DB [Engine] over database.
func New(client *mongo.Client, database string, logger *slog.Logger, developerMode bool) *Engine {
	return &Engine{client: client, database: database, logger: logger, developerMode: developerMode}
}

func (e *Engine) collection(source *metadata.SourceDefinition) *mongo.Collection {
	return e.client.Database(e.database).Collection(source.Object)
}

func (e *Engine) wrap(err error) error {
	return apperr.DatabaseOperationFailed(err, 0, e.developerMode)
}

// Find runs a filter/project/sort/limit query and shapes the result into
// the same JSON-document contract the SQL dialects' json_string handler
// produces, so callers need not special-case the store.
func (e *Engine) Find(ctx context.Context, caller *principal.Principal, s *queryir.FindStructure) (*executor.Result, error) {
	filter, err := filterFrom(s.Predicates, s.GetDBPolicy(queryir.OpRead), s.Parameters)
	if err != nil {
		return nil, apperr.UnexpectedError(err)
	}

	opts := options.Find()
	if proj := projection(s.Columns); len(proj) > 0 {
		opts.SetProjection(proj)
	}
	if len(s.OrderBy) > 0 {
		opts.SetSort(sortDocument(s.OrderBy))
	}
	if s.Limit > 0 {
		opts.SetLimit(int64(s.Limit))
	}

	cur, err := e.collection(s.Source).Find(ctx, filter, opts)
	if err != nil {
		return nil, e.wrap(err)
	}
	defer cur.Close(ctx)

	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, e.wrap(err)
	}

	if s.Singleton {
		if len(docs) == 0 {
			return &executor.Result{JSON: []byte("null")}, nil
		}
		payload, err := json.Marshal(docs[0])
		if err != nil {
			return nil, apperr.UnexpectedError(err)
		}
		return &executor.Result{JSON: payload}, nil
	}

	payload, err := json.Marshal(docs)
	if err != nil {
		return nil, apperr.UnexpectedError(err)
	}
	return &executor.Result{JSON: payload}, nil
}

// Insert inserts one document built from s.Values.
func (e *Engine) Insert(ctx context.Context, caller *principal.Principal, s *queryir.InsertStructure) (*executor.Result, error) {
	doc := documentFromValues(s.Values, s.Parameters)

	res, err := e.collection(s.Source).InsertOne(ctx, doc)
	if err != nil {
		return nil, e.wrap(err)
	}
	doc["_id"] = res.InsertedID
	return &executor.Result{Row: doc}, nil
}

// Update applies a $set of s.Values to the document matched by the update
// policy and structure predicates, returning the post-image.
func (e *Engine) Update(ctx context.Context, caller *principal.Principal, s *queryir.UpdateStructure) (*executor.Result, error) {
	filter, err := filterFrom(s.Predicates, s.GetDBPolicy(queryir.OpUpdate), s.Parameters)
	if err != nil {
		return nil, apperr.UnexpectedError(err)
	}
	update := bson.M{"$set": documentFromValues(s.Values, s.Parameters)}

	after := options.After
	var doc bson.M
	err = e.collection(s.Source).FindOneAndUpdate(ctx, filter, update, &options.FindOneAndUpdateOptions{ReturnDocument: &after}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.ItemNotFound("")
	}
	if err != nil {
		return nil, e.wrap(err)
	}
	return &executor.Result{Row: doc}, nil
}

// Delete removes the document matched by the structure's predicates.
func (e *Engine) Delete(ctx context.Context, caller *principal.Principal, s *queryir.DeleteStructure) (*executor.Result, error) {
	filter, err := filterFrom(s.Predicates, s.GetDBPolicy(queryir.OpDelete), s.Parameters)
	if err != nil {
		return nil, apperr.UnexpectedError(err)
	}

	res, err := e.collection(s.Source).DeleteOne(ctx, filter)
	if err != nil {
		return nil, e.wrap(err)
	}
	if res.DeletedCount == 0 {
		return nil, apperr.ItemNotFound("")
	}
	return &executor.Result{}, nil
}

// Upsert mirrors the Init→ReadCount→ReadResult→Done state machine of
// spec.md §4.7: first check whether a matching document exists (ReadCount),
// then apply the upsert and classify by what ReadCount observed, rather
// than trusting Mongo's own insert-vs-update signal — the same shape the
// T-SQL two-batch classification uses.
func (e *Engine) Upsert(ctx context.Context, caller *principal.Principal, s *queryir.UpsertStructure) (*executor.Result, error) {
	filter, err := filterFrom(s.Predicates, s.GetDBPolicy(queryir.OpUpdate), s.Parameters)
	if err != nil {
		return nil, apperr.UnexpectedError(err)
	}

	existed := true
	if err := e.collection(s.Source).FindOne(ctx, filter).Err(); err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, e.wrap(err)
		}
		existed = false
	}

	update := bson.M{"$set": documentFromValues(s.Values, s.Parameters)}
	after := options.After
	upsertOpt := true
	var doc bson.M
	err = e.collection(s.Source).FindOneAndUpdate(ctx, filter, update, &options.FindOneAndUpdateOptions{
		ReturnDocument: &after,
		Upsert:         &upsertOpt,
	}).Decode(&doc)
	if err != nil {
		return nil, e.wrap(err)
	}

	return &executor.Result{Row: doc, IsUpdate: existed}, nil
}

// Execute is unreachable for a document store: stored procedures are a SQL
// concept, and no DOC-DB entity carries [metadata.SourceObjectStoredProc].
func (e *Engine) Execute(ctx context.Context, caller *principal.Principal, s *queryir.ExecuteStructure) (*executor.Result, error) {
	return nil, apperr.Unprocessable("docdb: stored-procedure Execute is not supported against a document store")
}

// # BSON Translation

func filterFrom(predicates []*queryir.Predicate, policy *queryir.Predicate, params map[string]queryir.Parameter) (bson.M, error) {
	all := predicates
	if policy != nil {
		all = append(append([]*queryir.Predicate{}, predicates...), policy)
	}
	if len(all) == 0 {
		return bson.M{}, nil
	}

	var clauses []bson.M
	for _, p := range all {
		clause, err := predicateToBSON(p, params)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)
	}
	if len(clauses) == 1 {
		return clauses[0], nil
	}
	return bson.M{"$and": clauses}, nil
}

func predicateToBSON(p *queryir.Predicate, params map[string]queryir.Parameter) (bson.M, error) {
	if p == nil {
		return bson.M{}, nil
	}

	if p.Left == nil {
		// Unary predicates (EXISTS) have no cross-database-join analogue.
		return nil, fmt.Errorf("docdb: unary predicate operator %s unsupported", p.Op)
	}

	if p.Left.Kind == queryir.OperandPredicate && p.Right.Kind == queryir.OperandPredicate {
		left, err := predicateToBSON(p.Left.Predicate, params)
		if err != nil {
			return nil, err
		}
		right, err := predicateToBSON(p.Right.Predicate, params)
		if err != nil {
			return nil, err
		}
		switch p.Op {
		case queryir.OpAnd:
			return bson.M{"$and": []bson.M{left, right}}, nil
		case queryir.OpOr:
			return bson.M{"$or": []bson.M{left, right}}, nil
		}
	}

	if p.Left.Kind != queryir.OperandColumn {
		return nil, fmt.Errorf("docdb: predicate left operand must be a field reference")
	}
	field := p.Left.Column.BackingName
	value := literalValue(p.Right, params)

	switch p.Op {
	case queryir.OpEq:
		return bson.M{field: value}, nil
	case queryir.OpNeq:
		return bson.M{field: bson.M{"$ne": value}}, nil
	case queryir.OpGt:
		return bson.M{field: bson.M{"$gt": value}}, nil
	case queryir.OpGte:
		return bson.M{field: bson.M{"$gte": value}}, nil
	case queryir.OpLt:
		return bson.M{field: bson.M{"$lt": value}}, nil
	case queryir.OpLte:
		return bson.M{field: bson.M{"$lte": value}}, nil
	case queryir.OpLike:
		return bson.M{field: bson.M{"$regex": likeToRegex(fmt.Sprint(value))}}, nil
	case queryir.OpNotLike:
		return bson.M{field: bson.M{"$not": bson.M{"$regex": likeToRegex(fmt.Sprint(value))}}}, nil
	case queryir.OpIs:
		return bson.M{field: nil}, nil
	case queryir.OpIsNot:
		return bson.M{field: bson.M{"$ne": nil}}, nil
	default:
		return nil, fmt.Errorf("docdb: unsupported predicate operator %s", p.Op)
	}
}

func literalValue(operand queryir.PredicateOperand, params map[string]queryir.Parameter) any {
	if operand.Kind != queryir.OperandLiteral || operand.ParamName == "" {
		return nil
	}
	return params[operand.ParamName].Value
}

// likeToRegex translates a SQL LIKE pattern's `%`/`_` wildcards into an
// anchored regular expression.
func likeToRegex(pattern string) string {
	var sb strings.Builder
	sb.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexQuoteRune(r))
		}
	}
	sb.WriteString("$")
	return sb.String()
}

func regexQuoteRune(r rune) string {
	switch r {
	case '.', '*', '+', '?', '(', ')', '[', ']', '{', '}', '^', '$', '|', '\\':
		return "\\" + string(r)
	default:
		return string(r)
	}
}

func projection(cols []queryir.LabelledColumn) bson.M {
	if len(cols) == 0 {
		return nil
	}
	proj := bson.M{"_id": 0}
	for _, c := range cols {
		proj[c.Column.BackingName] = 1
	}
	return proj
}

func sortDocument(orderBy []queryir.OrderByColumn) bson.D {
	sort := bson.D{}
	for _, ob := range orderBy {
		dir := 1
		if ob.Direction == queryir.Desc {
			dir = -1
		}
		sort = append(sort, bson.E{Key: ob.Column.BackingName, Value: dir})
	}
	return sort
}

func documentFromValues(values map[string]string, params map[string]queryir.Parameter) bson.M {
	doc := bson.M{}
	for backingName, paramName := range values {
		doc[backingName] = params[paramName].Value
	}
	return doc
}
