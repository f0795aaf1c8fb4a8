// Package dynamodb implements the counter store on DynamoDB, the backend
// used when the monitor runs next to an AWS-hosted pipeline. The table keys
// records by (resource, period); the counter advances through UpdateItem ADD,
// which is atomic at the table.
package dynamodb

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/artpar/quotamon/ports"
)

// API is the subset of the DynamoDB client used by this package.
type API interface {
	UpdateItem(ctx context.Context, params *ddb.UpdateItemInput, optFns ...func(*ddb.Options)) (*ddb.UpdateItemOutput, error)
	GetItem(ctx context.Context, params *ddb.GetItemInput, optFns ...func(*ddb.Options)) (*ddb.GetItemOutput, error)
}

// CounterStore wraps a DynamoDB table as a ports.CounterStore.
type CounterStore struct {
	api   API
	table string
}

// New creates a counter store from an AWS config.
func New(cfg aws.Config, table string) *CounterStore {
	return &CounterStore{api: ddb.NewFromConfig(cfg), table: table}
}

// NewFromAPI creates a CounterStore from an explicit API implementation (for testing).
func NewFromAPI(api API, table string) *CounterStore {
	return &CounterStore{api: api, table: table}
}

// Increment atomically adds delta to the counter for (resource, period) and
// returns the post-increment record from the ALL_NEW response, so the caller
// sees the exact value its own increment produced.
func (s *CounterStore) Increment(ctx context.Context, resource, period string, delta int64, operation string, at time.Time) (ports.UsageRecord, error) {
	expr := "ADD usage_count :d SET last_updated = :t"
	values := map[string]ddbtypes.AttributeValue{
		":d": &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(delta, 10)},
		":t": &ddbtypes.AttributeValueMemberS{Value: at.UTC().Format(time.RFC3339)},
	}
	if operation != "" {
		expr += ", last_operation = :o"
		values[":o"] = &ddbtypes.AttributeValueMemberS{Value: operation}
	}

	out, err := s.api.UpdateItem(ctx, &ddb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       s.key(resource, period),
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeValues: values,
		ReturnValues:              ddbtypes.ReturnValueAllNew,
	})
	if err != nil {
		return ports.UsageRecord{}, fmt.Errorf("update counter: %w", err)
	}

	return decodeRecord(out.Attributes, resource, period)
}

// Read performs a point read of the record for (resource, period).
// Eventually consistent reads are acceptable for admission checks.
func (s *CounterStore) Read(ctx context.Context, resource, period string) (ports.UsageRecord, error) {
	out, err := s.api.GetItem(ctx, &ddb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       s.key(resource, period),
	})
	if err != nil {
		return ports.UsageRecord{}, fmt.Errorf("read counter: %w", err)
	}
	if len(out.Item) == 0 {
		return ports.UsageRecord{Resource: resource, Period: period}, nil
	}

	return decodeRecord(out.Item, resource, period)
}

func (s *CounterStore) key(resource, period string) map[string]ddbtypes.AttributeValue {
	return map[string]ddbtypes.AttributeValue{
		"resource": &ddbtypes.AttributeValueMemberS{Value: resource},
		"period":   &ddbtypes.AttributeValueMemberS{Value: period},
	}
}

// decodeRecord maps item attributes onto a UsageRecord. Missing attributes
// decode to zero values rather than errors, matching a half-written row.
func decodeRecord(item map[string]ddbtypes.AttributeValue, resource, period string) (ports.UsageRecord, error) {
	rec := ports.UsageRecord{Resource: resource, Period: period}

	if v, ok := item["usage_count"].(*ddbtypes.AttributeValueMemberN); ok {
		n, err := strconv.ParseInt(v.Value, 10, 64)
		if err != nil {
			return ports.UsageRecord{}, fmt.Errorf("parse usage_count %q: %w", v.Value, err)
		}
		rec.Count = n
	}
	if v, ok := item["last_updated"].(*ddbtypes.AttributeValueMemberS); ok {
		if t, err := time.Parse(time.RFC3339, v.Value); err == nil {
			rec.LastUpdated = t
		}
	}
	if v, ok := item["last_operation"].(*ddbtypes.AttributeValueMemberS); ok {
		rec.LastOperation = v.Value
	}

	return rec, nil
}

// Ensure interface compliance.
var _ ports.CounterStore = (*CounterStore)(nil)
