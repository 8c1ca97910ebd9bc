package cloud

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/domain"
)

const (
	batchSize         = 25 // DynamoDB batch write limit
	maxBatchAttempts  = 5
	batchRetryBackoff = 50 * time.Millisecond
)

// DynamoAPI is the part of the DynamoDB client the store uses.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// DynamoDBStore keeps device records in three tables sharing a name prefix:
// <prefix>Latest keyed by device, <prefix>History keyed by device and
// capture time, and <prefix>Pins keyed by device and pin id.
//
// Writes are conditional so that late or repeated writes converge: a
// condition failure means a newer item is already there and is not an error.
type DynamoDBStore struct {
	api     DynamoAPI
	latest  string
	history string
	pins    string
}

func NewDynamoDBStore(api DynamoAPI, prefix string) *DynamoDBStore {
	return &DynamoDBStore{
		api:     api,
		latest:  prefix + "Latest",
		history: prefix + "History",
		pins:    prefix + "Pins",
	}
}

type readingItem struct {
	Device     string   `dynamodbav:"device,omitempty"`
	CapturedAt int64    `dynamodbav:"capturedAt"`
	PH         float64  `dynamodbav:"ph"`
	TDS        float64  `dynamodbav:"tds"`
	Temp       float64  `dynamodbav:"temp"`
	Turbidity  float64  `dynamodbav:"turbidity"`
	Status     string   `dynamodbav:"status"`
	Lat        *float64 `dynamodbav:"lat,omitempty"`
	Lng        *float64 `dynamodbav:"lng,omitempty"`
}

type pinItem struct {
	Device      string      `dynamodbav:"device"`
	PinID       string      `dynamodbav:"pinId"`
	Lat         float64     `dynamodbav:"lat"`
	Lng         float64     `dynamodbav:"lng"`
	LastReading readingItem `dynamodbav:"lastReading"`
	CreatedAt   int64       `dynamodbav:"createdAt"`
	UpdatedAt   int64       `dynamodbav:"updatedAt"`
}

func toReadingItem(device string, r domain.Reading) readingItem {
	return readingItem{
		Device:     device,
		CapturedAt: r.CapturedAt.UnixNano(),
		PH:         r.PH,
		TDS:        r.TDS,
		Temp:       r.Temp,
		Turbidity:  r.Turbidity,
		Status:     string(r.Status),
		Lat:        r.Lat,
		Lng:        r.Lng,
	}
}

func (i readingItem) reading() domain.Reading {
	return domain.Reading{
		CapturedAt: time.Unix(0, i.CapturedAt).UTC(),
		PH:         i.PH,
		TDS:        i.TDS,
		Temp:       i.Temp,
		Turbidity:  i.Turbidity,
		Status:     domain.Status(i.Status),
		Lat:        i.Lat,
		Lng:        i.Lng,
	}
}

func toPinItem(device string, p domain.Pin) pinItem {
	return pinItem{
		Device:      device,
		PinID:       p.ID,
		Lat:         p.Lat,
		Lng:         p.Lng,
		LastReading: toReadingItem("", p.LastReading),
		CreatedAt:   p.CreatedAt.UnixNano(),
		UpdatedAt:   p.UpdatedAt.UnixNano(),
	}
}

func (i pinItem) pin() domain.Pin {
	return domain.Pin{
		ID:          i.PinID,
		Lat:         i.Lat,
		Lng:         i.Lng,
		LastReading: i.LastReading.reading(),
		CreatedAt:   time.Unix(0, i.CreatedAt).UTC(),
		UpdatedAt:   time.Unix(0, i.UpdatedAt).UTC(),
	}
}

// WriteLatest replaces the device's latest reading unless a newer one is
// stored.
func (s *DynamoDBStore) WriteLatest(ctx context.Context, device string, r domain.Reading) error {
	item, err := attributevalue.MarshalMap(toReadingItem(device, r))
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}

	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.latest),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(#d) OR #at <= :at"),
		ExpressionAttributeNames: map[string]string{
			"#d":  "device",
			"#at": "capturedAt",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":at": nanos(r.CapturedAt),
		},
	})
	if err != nil && !conditionFailed(err) {
		return fmt.Errorf("failed to write latest reading: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) AppendHistory(ctx context.Context, device string, r domain.Reading) error {
	item, err := attributevalue.MarshalMap(toReadingItem(device, r))
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}

	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.history),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

// ListPins returns the device's pins oldest first.
func (s *DynamoDBStore) ListPins(ctx context.Context, device string) ([]domain.Pin, error) {
	paginator := dynamodb.NewQueryPaginator(s.api, &dynamodb.QueryInput{
		TableName:                aws.String(s.pins),
		KeyConditionExpression:   aws.String("#d = :d"),
		ExpressionAttributeNames: map[string]string{"#d": "device"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":d": &types.AttributeValueMemberS{Value: device},
		},
	})

	var items []pinItem
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query pins: %w", err)
		}
		var batch []pinItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("failed to unmarshal pins: %w", err)
		}
		items = append(items, batch...)
	}

	out := make([]domain.Pin, len(items))
	for i, item := range items {
		out[i] = item.pin()
	}
	slices.SortStableFunc(out, func(a, b domain.Pin) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

// CreatePin stores a new pin. An existing pin with the same id wins.
func (s *DynamoDBStore) CreatePin(ctx context.Context, device string, p domain.Pin) error {
	item, err := attributevalue.MarshalMap(toPinItem(device, p))
	if err != nil {
		return fmt.Errorf("failed to marshal pin: %w", err)
	}

	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(s.pins),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": "pinId"},
	})
	if err != nil && !conditionFailed(err) {
		return fmt.Errorf("failed to create pin: %w", err)
	}
	return nil
}

// UpdatePin writes a pin's latest state, creating it when the create has
// not landed yet. A stored pin with a newer update is kept.
func (s *DynamoDBStore) UpdatePin(ctx context.Context, device string, p domain.Pin) error {
	item, err := attributevalue.MarshalMap(toPinItem(device, p))
	if err != nil {
		return fmt.Errorf("failed to marshal pin: %w", err)
	}

	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.pins),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(#id) OR #at <= :at"),
		ExpressionAttributeNames: map[string]string{
			"#id": "pinId",
			"#at": "updatedAt",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":at": nanos(p.UpdatedAt),
		},
	})
	if err != nil && !conditionFailed(err) {
		return fmt.Errorf("failed to update pin: %w", err)
	}
	return nil
}

// DeleteDevice removes the device from all three tables.
func (s *DynamoDBStore) DeleteDevice(ctx context.Context, device string) error {
	if err := s.deletePartition(ctx, s.history, device, "capturedAt"); err != nil {
		return err
	}
	if err := s.deletePartition(ctx, s.pins, device, "pinId"); err != nil {
		return err
	}

	_, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.latest),
		Key: map[string]types.AttributeValue{
			"device": &types.AttributeValueMemberS{Value: device},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete latest reading: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) deletePartition(ctx context.Context, table, device, sortKey string) error {
	paginator := dynamodb.NewQueryPaginator(s.api, &dynamodb.QueryInput{
		TableName:              aws.String(table),
		KeyConditionExpression: aws.String("#d = :d"),
		ProjectionExpression:   aws.String("#d, #k"),
		ExpressionAttributeNames: map[string]string{
			"#d": "device",
			"#k": sortKey,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":d": &types.AttributeValueMemberS{Value: device},
		},
	})

	var pending []types.WriteRequest
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to query %s: %w", table, err)
		}
		for _, key := range page.Items {
			pending = append(pending, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: key},
			})
		}
	}

	for i := 0; i < len(pending); i += batchSize {
		end := i + batchSize
		if end > len(pending) {
			end = len(pending)
		}
		if err := s.batchWrite(ctx, table, pending[i:end]); err != nil {
			return err
		}
	}
	return nil
}

// batchWrite sends one batch and resubmits whatever DynamoDB reports as
// unprocessed.
func (s *DynamoDBStore) batchWrite(ctx context.Context, table string, requests []types.WriteRequest) error {
	for attempt := 1; len(requests) > 0; attempt++ {
		if attempt > maxBatchAttempts {
			return fmt.Errorf("failed to batch write %s: %d items left unprocessed", table, len(requests))
		}

		out, err := s.api.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{table: requests},
		})
		if err != nil {
			return fmt.Errorf("failed to batch write %s: %w", table, err)
		}
		requests = out.UnprocessedItems[table]
		if len(requests) == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * batchRetryBackoff):
		}
	}
	return nil
}

func conditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func nanos(t time.Time) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(t.UnixNano(), 10)}
}
