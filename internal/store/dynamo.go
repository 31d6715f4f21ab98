package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	// DynamoDB attribute names. The table key is (collection, id).
	attrCollection = "collection"
	attrID         = "id"
	attrVersion    = "version"
	attrDoc        = "doc"
	attrSeq        = "seq"

	// metaCollection holds the version counter item.
	metaCollection = "__meta"
	metaVersionID  = "version"

	// maxTransactItems is the DynamoDB limit for TransactWriteItems.
	maxTransactItems = 100
)

// DynamoAPI is the subset of the DynamoDB client the store uses.
type DynamoAPI interface {
	dynamodb.QueryAPIClient
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Dynamo stores each document as a native map attribute so QueryByField can
// filter server side. AtomicBatch maps to TransactWriteItems with condition
// expressions and is limited to 100 mutations.
type Dynamo struct {
	client DynamoAPI
	table  string
}

// NewDynamo creates a DynamoDB-backed document store on table.
func NewDynamo(client DynamoAPI, table string) *Dynamo {
	return &Dynamo{client: client, table: table}
}

// QueryByField implements Store.
func (d *Dynamo) QueryByField(ctx context.Context, collection, field string, op Operator, value any) ([]Document, error) {
	filter, err := newFieldFilter(field, op, value)
	if err != nil {
		return nil, err
	}
	av, err := attributevalue.Marshal(filter.value)
	if err != nil {
		return nil, fmt.Errorf("store: dynamo encode filter value: %w", err)
	}

	names := map[string]string{"#c": attrCollection, "#doc": attrDoc}
	parts := []string{"#doc"}
	for i, key := range filter.path {
		alias := "#f" + strconv.Itoa(i)
		names[alias] = key
		parts = append(parts, alias)
	}
	path := strings.Join(parts, ".")

	var expr string
	switch op {
	case OpEqual:
		expr = path + " = :v"
	case OpNotEqual:
		expr = "attribute_exists(" + path + ") AND " + path + " <> :v"
	case OpArrayContains:
		expr = "contains(" + path + ", :v)"
	}

	input := &dynamodb.QueryInput{
		TableName:                aws.String(d.table),
		KeyConditionExpression:   aws.String("#c = :c"),
		FilterExpression:         aws.String(expr),
		ExpressionAttributeNames: names,
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":c": &types.AttributeValueMemberS{Value: collection},
			":v": av,
		},
	}

	var docs []Document
	pager := dynamodb.NewQueryPaginator(d.client, input)
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, unavailable("dynamo query", err)
		}
		for _, item := range page.Items {
			doc, err := decodeDynamoItem(item)
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
		}
	}

	// Items come back in id order; versions follow insertion order.
	sort.Slice(docs, func(i, j int) bool { return docs[i].Version < docs[j].Version })
	return docs, nil
}

// Insert implements Store.
func (d *Dynamo) Insert(ctx context.Context, collection string, data any) (string, error) {
	version, err := d.nextVersion(ctx)
	if err != nil {
		return "", err
	}

	id := NewID()
	item, err := encodeDynamoItem(collection, id, version, data)
	if err != nil {
		return "", err
	}
	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(d.table),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": attrID},
	})
	if err != nil {
		return "", unavailable("dynamo put", err)
	}
	return id, nil
}

// DeleteByID implements Store.
func (d *Dynamo) DeleteByID(ctx context.Context, collection, id string) error {
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(d.table),
		Key:                      dynamoKey(collection, id),
		ConditionExpression:      aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": attrID},
	})
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return ErrNotFound
	}
	if err != nil {
		return unavailable("dynamo delete", err)
	}
	return nil
}

// AtomicBatch implements Store.
func (d *Dynamo) AtomicBatch(ctx context.Context, mutations []Mutation) error {
	if len(mutations) > maxTransactItems {
		return fmt.Errorf("store: dynamo batch of %d exceeds %d mutations", len(mutations), maxTransactItems)
	}

	items := make([]types.TransactWriteItem, 0, len(mutations))
	for _, m := range mutations {
		switch m.Kind {
		case MutationInsert:
			version, err := d.nextVersion(ctx)
			if err != nil {
				return err
			}
			id := m.ID
			if id == "" {
				id = NewID()
			}
			item, err := encodeDynamoItem(m.Collection, id, version, m.Data)
			if err != nil {
				return err
			}
			items = append(items, types.TransactWriteItem{Put: &types.Put{
				TableName:                aws.String(d.table),
				Item:                     item,
				ConditionExpression:      aws.String("attribute_not_exists(#id)"),
				ExpressionAttributeNames: map[string]string{"#id": attrID},
			}})

		case MutationDelete:
			del := &types.Delete{
				TableName: aws.String(d.table),
				Key:       dynamoKey(m.Collection, m.ID),
			}
			if m.ExpectVersion != 0 {
				del.ConditionExpression = aws.String("#ver = :ver")
				del.ExpressionAttributeNames = map[string]string{"#ver": attrVersion}
				del.ExpressionAttributeValues = map[string]types.AttributeValue{
					":ver": &types.AttributeValueMemberN{Value: strconv.FormatInt(m.ExpectVersion, 10)},
				}
			}
			items = append(items, types.TransactWriteItem{Delete: del})

		default:
			return fmt.Errorf("store: unknown mutation kind %d", m.Kind)
		}
	}

	_, err := d.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		for _, reason := range canceled.CancellationReasons {
			if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
				return fmt.Errorf("%w: %s", ErrConflict, canceled.ErrorMessage())
			}
		}
	}
	if err != nil {
		return unavailable("dynamo transact", err)
	}
	return nil
}

// nextVersion atomically bumps the table's version counter.
func (d *Dynamo) nextVersion(ctx context.Context) (int64, error) {
	out, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(d.table),
		Key:                      dynamoKey(metaCollection, metaVersionID),
		UpdateExpression:         aws.String("ADD #seq :one"),
		ExpressionAttributeNames: map[string]string{"#seq": attrSeq},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, unavailable("dynamo version", err)
	}
	var seq int64
	if err := attributevalue.Unmarshal(out.Attributes[attrSeq], &seq); err != nil {
		return 0, fmt.Errorf("store: dynamo decode version: %w", err)
	}
	return seq, nil
}

func dynamoKey(collection, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrCollection: &types.AttributeValueMemberS{Value: collection},
		attrID:         &types.AttributeValueMemberS{Value: id},
	}
}

func encodeDynamoItem(collection, id string, version int64, data any) (map[string]types.AttributeValue, error) {
	raw, err := encode(data)
	if err != nil {
		return nil, err
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("store: dynamo encode: %w", err)
	}
	doc, err := attributevalue.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("store: dynamo encode: %w", err)
	}

	item := dynamoKey(collection, id)
	item[attrVersion] = &types.AttributeValueMemberN{Value: strconv.FormatInt(version, 10)}
	item[attrDoc] = doc
	return item, nil
}

func decodeDynamoItem(item map[string]types.AttributeValue) (Document, error) {
	var row struct {
		ID      string         `dynamodbav:"id"`
		Version int64          `dynamodbav:"version"`
		Doc     map[string]any `dynamodbav:"doc"`
	}
	if err := attributevalue.UnmarshalMap(item, &row); err != nil {
		return Document{}, fmt.Errorf("store: dynamo decode: %w", err)
	}
	raw, err := json.Marshal(row.Doc)
	if err != nil {
		return Document{}, fmt.Errorf("store: dynamo decode %s: %w", row.ID, err)
	}
	return Document{ID: row.ID, Version: row.Version, Data: raw}, nil
}
