package store

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDynamo records requests and replays canned responses.
type fakeDynamo struct {
	seq       int64
	items     []map[string]types.AttributeValue
	lastQuery *dynamodb.QueryInput
	lastTx    *dynamodb.TransactWriteItemsInput
	deleteErr error
	txErr     error
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.lastQuery = in
	return &dynamodb.QueryOutput{Items: f.items}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.items = append(f.items, in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	return &dynamodb.DeleteItemOutput{}, f.deleteErr
}

func (f *fakeDynamo) UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.seq++
	return &dynamodb.UpdateItemOutput{Attributes: map[string]types.AttributeValue{
		attrSeq: &types.AttributeValueMemberN{Value: strconv.FormatInt(f.seq, 10)},
	}}, nil
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.lastTx = in
	return &dynamodb.TransactWriteItemsOutput{}, f.txErr
}

func TestDynamo_InsertAndQuery(t *testing.T) {
	fake := &fakeDynamo{}
	d := NewDynamo(fake, "docs")
	ctx := context.Background()

	first, err := d.Insert(ctx, "events", testDoc{Topic: "chess", CreatedBy: "alice"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	second, err := d.Insert(ctx, "events", testDoc{Topic: "chess", CreatedBy: "bob"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	// Return items out of insertion order; the store sorts by version.
	fake.items[0], fake.items[1] = fake.items[1], fake.items[0]

	docs, err := d.QueryByField(ctx, "events", "location.address", OpNotEqual, "x")
	if err != nil {
		t.Fatalf("QueryByField: %v", err)
	}
	assertIDs(t, docs, first, second)
	if docs[0].Version != 1 || docs[1].Version != 2 {
		t.Errorf("expected versions 1 and 2, got %d and %d", docs[0].Version, docs[1].Version)
	}

	var got testDoc
	if err := docs[1].Decode(&got); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.CreatedBy != "bob" {
		t.Errorf("expected bob, got %q", got.CreatedBy)
	}

	expr := aws.ToString(fake.lastQuery.FilterExpression)
	if !strings.HasPrefix(expr, "attribute_exists(#doc.#f0.#f1)") {
		t.Errorf("unexpected filter expression %q", expr)
	}
	if fake.lastQuery.ExpressionAttributeNames["#f1"] != "address" {
		t.Errorf("expected nested path alias, got %v", fake.lastQuery.ExpressionAttributeNames)
	}
}

func TestDynamo_DeleteMissing(t *testing.T) {
	fake := &fakeDynamo{deleteErr: &types.ConditionalCheckFailedException{}}
	err := NewDynamo(fake, "docs").DeleteByID(context.Background(), "events", "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDynamo_AtomicBatch(t *testing.T) {
	t.Run("consume carries a version condition", func(t *testing.T) {
		fake := &fakeDynamo{}
		err := NewDynamo(fake, "docs").AtomicBatch(context.Background(), []Mutation{
			Insert("planned", "p1", testDoc{Topic: "chess"}),
			Consume("events", "e1", 7),
			Delete("events", "e2"),
		})
		if err != nil {
			t.Fatalf("AtomicBatch: %v", err)
		}
		items := fake.lastTx.TransactItems
		if len(items) != 3 {
			t.Fatalf("expected 3 transact items, got %d", len(items))
		}
		if items[0].Put == nil {
			t.Error("expected the insert first")
		}
		cond := items[1].Delete.ExpressionAttributeValues[":ver"].(*types.AttributeValueMemberN)
		if cond.Value != "7" {
			t.Errorf("expected version condition 7, got %s", cond.Value)
		}
		if items[2].Delete.ConditionExpression != nil {
			t.Error("plain delete should be unconditional")
		}
	})

	t.Run("condition failure is a conflict", func(t *testing.T) {
		fake := &fakeDynamo{txErr: &types.TransactionCanceledException{
			CancellationReasons: []types.CancellationReason{
				{Code: aws.String("None")},
				{Code: aws.String("ConditionalCheckFailed")},
			},
		}}
		err := NewDynamo(fake, "docs").AtomicBatch(context.Background(), []Mutation{
			Insert("planned", "p1", testDoc{}),
			Consume("events", "e1", 3),
		})
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("other failures are unavailable", func(t *testing.T) {
		fake := &fakeDynamo{txErr: errors.New("throttled")}
		err := NewDynamo(fake, "docs").AtomicBatch(context.Background(), []Mutation{Delete("events", "e1")})
		if !errors.Is(err, ErrUnavailable) {
			t.Fatalf("expected ErrUnavailable, got %v", err)
		}
	})

	t.Run("too many mutations", func(t *testing.T) {
		muts := make([]Mutation, maxTransactItems+1)
		for i := range muts {
			muts[i] = Delete("events", strconv.Itoa(i))
		}
		if err := NewDynamo(&fakeDynamo{}, "docs").AtomicBatch(context.Background(), muts); err == nil {
			t.Fatal("expected an error for an oversized batch")
		}
	})
}
