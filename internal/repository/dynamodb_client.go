package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"calendar-agent/internal/domain"
)

// errMalformedItem marks a stored item whose entries cannot be decoded.
var errMalformedItem = errors.New("repository: malformed store item")

const (
	pkPrefixStore = "STORE#"
	skEntries     = "ENTRIES#"
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoStore.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoStore keeps each named store as a single item whose "entries"
// attribute is a string map of prompt to reply.
type DynamoStore struct {
	api       dynamodbAPI
	tableName string
}

// NewDynamoStore creates a DynamoStore over tableName.
func NewDynamoStore(api dynamodbAPI, tableName string) (*DynamoStore, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &DynamoStore{api: api, tableName: tableName}, nil
}

// storePK returns the partition key for a named store.
func storePK(name string) string {
	return pkPrefixStore + name
}

func (c *DynamoStore) key(name string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: storePK(name)},
		"SK": &types.AttributeValueMemberS{Value: skEntries},
	}
}

// Load reads the entries item. A missing item is an empty store.
func (c *DynamoStore) Load(ctx context.Context, name string) (domain.ContextEntries, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            c.key(name),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: Load get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.ContextEntries{}, nil
	}
	entries, err := entriesAttr(out.Item, "entries")
	if err != nil {
		return nil, fmt.Errorf("repository: Load decode entries: %w", err)
	}
	return entries, nil
}

// Merge reads the current item and writes it back with entries overlaid. An
// item that cannot be decoded is replaced rather than merged; a failed read is
// returned so existing entries are never overwritten.
func (c *DynamoStore) Merge(ctx context.Context, name string, entries domain.ContextEntries) error {
	if err := validateName(name); err != nil {
		return err
	}
	current, err := c.Load(ctx, name)
	if errors.Is(err, errMalformedItem) {
		current = domain.ContextEntries{}
	} else if err != nil {
		return fmt.Errorf("repository: Merge: %w", err)
	}
	for k, v := range entries {
		current[k] = v
	}
	if err := c.put(ctx, name, current); err != nil {
		return fmt.Errorf("repository: Merge: %w", err)
	}
	return nil
}

// Reset replaces the item with an empty entries map.
func (c *DynamoStore) Reset(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := c.put(ctx, name, domain.ContextEntries{}); err != nil {
		return fmt.Errorf("repository: Reset: %w", err)
	}
	return nil
}

func (c *DynamoStore) put(ctx context.Context, name string, entries domain.ContextEntries) error {
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      storeItem(name, entries, time.Now().UTC()),
	})
	return err
}

func storeItem(name string, entries domain.ContextEntries, now time.Time) map[string]types.AttributeValue {
	m := make(map[string]types.AttributeValue, len(entries))
	for k, v := range entries {
		m[k] = &types.AttributeValueMemberS{Value: v}
	}
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: storePK(name)},
		"SK":        &types.AttributeValueMemberS{Value: skEntries},
		"store":     &types.AttributeValueMemberS{Value: name},
		"entries":   &types.AttributeValueMemberM{Value: m},
		"updatedAt": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
	}
}

func entriesAttr(item map[string]types.AttributeValue, key string) (domain.ContextEntries, error) {
	v, ok := item[key]
	if !ok {
		return domain.ContextEntries{}, nil
	}
	m, ok := v.(*types.AttributeValueMemberM)
	if !ok {
		return nil, fmt.Errorf("%w: attribute %q is not a map", errMalformedItem, key)
	}
	entries := make(domain.ContextEntries, len(m.Value))
	for k, av := range m.Value {
		s, ok := av.(*types.AttributeValueMemberS)
		if !ok {
			return nil, fmt.Errorf("%w: entry %q is not a string", errMalformedItem, k)
		}
		entries[k] = s.Value
	}
	return entries, nil
}
