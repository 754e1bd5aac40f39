package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"calendar-agent/internal/domain"
)

type fakeDynamo struct {
	getOut       *dynamodb.GetItemOutput
	getErr       error
	putErr       error
	lastGetInput *dynamodb.GetItemInput
	lastPutInput *dynamodb.PutItemInput
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.lastGetInput = in
	return f.getOut, f.getErr
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.lastPutInput = in
	return &dynamodb.PutItemOutput{}, f.putErr
}

func makeStoreItem(name string, entries map[string]string) map[string]types.AttributeValue {
	m := map[string]types.AttributeValue{}
	for k, v := range entries {
		m[k] = &types.AttributeValueMemberS{Value: v}
	}
	return map[string]types.AttributeValue{
		"PK":      &types.AttributeValueMemberS{Value: storePK(name)},
		"SK":      &types.AttributeValueMemberS{Value: skEntries},
		"entries": &types.AttributeValueMemberM{Value: m},
	}
}

func mustNewDynamoStore(t *testing.T, db *fakeDynamo) *DynamoStore {
	t.Helper()
	c, err := NewDynamoStore(db, "test-table")
	require.NoError(t, err)
	return c
}

func putEntries(t *testing.T, in *dynamodb.PutItemInput) map[string]string {
	t.Helper()
	require.NotNil(t, in)
	m, ok := in.Item["entries"].(*types.AttributeValueMemberM)
	require.True(t, ok)
	out := map[string]string{}
	for k, v := range m.Value {
		out[k] = v.(*types.AttributeValueMemberS).Value
	}
	return out
}

func TestNewDynamoStore_Validates(t *testing.T) {
	_, err := NewDynamoStore(nil, "t")
	require.Error(t, err)
	_, err = NewDynamoStore(&fakeDynamo{}, " ")
	require.Error(t, err)
}

func TestDynamoStore_Load(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: makeStoreItem("ctx", map[string]string{"q ": "a"})}}
	c := mustNewDynamoStore(t, db)

	got, err := c.Load(context.Background(), "ctx")
	require.NoError(t, err)
	require.Equal(t, domain.ContextEntries{"q ": "a"}, got)
	require.Equal(t, "test-table", *db.lastGetInput.TableName)
	require.True(t, *db.lastGetInput.ConsistentRead)
	require.Equal(t, "STORE#ctx", db.lastGetInput.Key["PK"].(*types.AttributeValueMemberS).Value)
}

func TestDynamoStore_LoadMissingItem(t *testing.T) {
	c := mustNewDynamoStore(t, &fakeDynamo{getOut: &dynamodb.GetItemOutput{}})
	got, err := c.Load(context.Background(), "ctx")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestDynamoStore_LoadWrongShape(t *testing.T) {
	item := map[string]types.AttributeValue{
		"entries": &types.AttributeValueMemberS{Value: "oops"},
	}
	c := mustNewDynamoStore(t, &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: item}})
	_, err := c.Load(context.Background(), "ctx")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not a map")
}

func TestDynamoStore_MergeOverlaysExisting(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: makeStoreItem("ctx", map[string]string{"old ": "1"})}}
	c := mustNewDynamoStore(t, db)

	require.NoError(t, c.Merge(context.Background(), "ctx", domain.ContextEntries{"new ": "2"}))
	require.Equal(t, map[string]string{"old ": "1", "new ": "2"}, putEntries(t, db.lastPutInput))
}

func TestDynamoStore_MergeReturnsReadError(t *testing.T) {
	db := &fakeDynamo{getErr: errors.New("throttled")}
	c := mustNewDynamoStore(t, db)

	err := c.Merge(context.Background(), "ctx", domain.ContextEntries{"new ": "2"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "throttled")
	require.Nil(t, db.lastPutInput, "existing entries must not be overwritten")
}

func TestDynamoStore_MergeReplacesMalformedItem(t *testing.T) {
	item := map[string]types.AttributeValue{
		"entries": &types.AttributeValueMemberS{Value: "oops"},
	}
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: item}}
	c := mustNewDynamoStore(t, db)

	require.NoError(t, c.Merge(context.Background(), "ctx", domain.ContextEntries{"new ": "2"}))
	require.Equal(t, map[string]string{"new ": "2"}, putEntries(t, db.lastPutInput))
}

func TestDynamoStore_MergePutError(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{}, putErr: errors.New("boom")}
	c := mustNewDynamoStore(t, db)

	err := c.Merge(context.Background(), "ctx", domain.ContextEntries{"k": "v"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom")
}

func TestDynamoStore_Reset(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewDynamoStore(t, db)

	require.NoError(t, c.Reset(context.Background(), "ctx"))
	require.Empty(t, putEntries(t, db.lastPutInput))
	require.Equal(t, "ctx", db.lastPutInput.Item["store"].(*types.AttributeValueMemberS).Value)

	require.Error(t, c.Reset(context.Background(), ""))
}
