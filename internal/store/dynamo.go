package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/pawel/toolgate/internal/config"
	"github.com/pawel/toolgate/internal/domain"
)

// Dynamo is a Store backed by DynamoDB. All counter mutations are single
// UpdateItem calls with condition and update expressions, so concurrent
// workers never race in application memory. Record expiry uses the
// table's native TTL on the expiresAt attribute.
type Dynamo struct {
	client     *dynamodb.Client
	jobsTable  string
	linksTable string
}

// NewDynamo creates a DynamoDB-backed store.
// Parameters:
//   - cfg: store configuration including region, tables and optional
//     endpoint override for local DynamoDB.
// Returns:
//   - *Dynamo: initialized store.
//   - error: non-nil if the AWS config cannot be loaded.
func NewDynamo(cfg *config.StoreConfig) (*Dynamo, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	// Static credentials for local stacks; the default chain otherwise.
	if cfg.AccessKey != "" && cfg.Endpoint != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &Dynamo{
		client:     client,
		jobsTable:  cfg.JobsTable,
		linksTable: cfg.LinksTable,
	}, nil
}

func (d *Dynamo) CreateJob(ctx context.Context, rec *domain.JobRecord) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshaling job record: %w", err)
	}
	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.jobsTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(jobId)"),
	})
	if isConditionFailed(err) {
		return ErrAlreadyExists
	}
	return err
}

func (d *Dynamo) GetJob(ctx context.Context, jobID string) (*domain.JobRecord, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.jobsTable),
		Key:            jobKey(jobID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}
	var rec domain.JobRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshaling job record: %w", err)
	}
	return &rec, nil
}

func (d *Dynamo) MarkItemDone(ctx context.Context, jobID, itemID string) (*domain.JobRecord, error) {
	out, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(d.jobsTable),
		Key:                 jobKey(jobID),
		UpdateExpression:    aws.String("ADD processed :one, seen :item SET updatedAt = :now"),
		ConditionExpression: aws.String("attribute_exists(jobId) AND (attribute_not_exists(seen) OR NOT contains(seen, :itemId))"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one":    &types.AttributeValueMemberN{Value: "1"},
			":item":   &types.AttributeValueMemberSS{Value: []string{itemID}},
			":itemId": &types.AttributeValueMemberS{Value: itemID},
			":now":    nowAttr(),
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	return d.updatedRecord(out, err)
}

func (d *Dynamo) MarkItemFailed(ctx context.Context, jobID string, itemErr domain.ItemError) (*domain.JobRecord, error) {
	errAttr, err := attributevalue.Marshal(itemErr)
	if err != nil {
		return nil, fmt.Errorf("marshaling item error: %w", err)
	}
	out, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(d.jobsTable),
		Key:       jobKey(jobID),
		UpdateExpression: aws.String(
			"ADD failed :one, seen :item SET updatedAt = :now, errors = list_append(if_not_exists(errors, :empty), :err)"),
		ConditionExpression: aws.String("attribute_exists(jobId) AND (attribute_not_exists(seen) OR NOT contains(seen, :itemId))"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one":    &types.AttributeValueMemberN{Value: "1"},
			":item":   &types.AttributeValueMemberSS{Value: []string{itemErr.ItemID}},
			":itemId": &types.AttributeValueMemberS{Value: itemErr.ItemID},
			":now":    nowAttr(),
			":empty":  &types.AttributeValueMemberL{Value: []types.AttributeValue{}},
			":err":    &types.AttributeValueMemberL{Value: []types.AttributeValue{errAttr}},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	return d.updatedRecord(out, err)
}

func (d *Dynamo) SetTerminal(ctx context.Context, jobID string, status domain.JobStatus) error {
	_, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(d.jobsTable),
		Key:                 jobKey(jobID),
		UpdateExpression:    aws.String("SET jobStatus = :status, updatedAt = :now"),
		ConditionExpression: aws.String("jobStatus = :inprogress"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status":     &types.AttributeValueMemberS{Value: string(status)},
			":inprogress": &types.AttributeValueMemberS{Value: string(domain.StatusInProgress)},
			":now":        nowAttr(),
		},
	})
	if isConditionFailed(err) {
		// Already terminal (or expired), the racing write is a no-op.
		return nil
	}
	return err
}

func (d *Dynamo) StaleJobIDs(ctx context.Context, olderThan time.Time) ([]string, error) {
	var ids []string
	var startKey map[string]types.AttributeValue
	for {
		out, err := d.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:        aws.String(d.jobsTable),
			FilterExpression: aws.String("jobStatus = :inprogress AND updatedAt < :cutoff"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":inprogress": &types.AttributeValueMemberS{Value: string(domain.StatusInProgress)},
				":cutoff":     &types.AttributeValueMemberN{Value: strconv.FormatInt(olderThan.Unix(), 10)},
			},
			ProjectionExpression: aws.String("jobId"),
			ExclusiveStartKey:    startKey,
		})
		if err != nil {
			return nil, err
		}
		for _, item := range out.Items {
			if v, ok := item["jobId"].(*types.AttributeValueMemberS); ok {
				ids = append(ids, v.Value)
			}
		}
		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return ids, nil
}

// DeleteExpired is a no-op: the table's TTL on expiresAt garbage-collects
// records.
func (d *Dynamo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

func (d *Dynamo) CreateLink(ctx context.Context, link *domain.Link) error {
	item, err := attributevalue.MarshalMap(link)
	if err != nil {
		return fmt.Errorf("marshaling link: %w", err)
	}
	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.linksTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(code)"),
	})
	if isConditionFailed(err) {
		return ErrAlreadyExists
	}
	return err
}

func (d *Dynamo) GetLink(ctx context.Context, code string) (*domain.Link, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.linksTable),
		Key:       linkKey(code),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}
	var link domain.Link
	if err := attributevalue.UnmarshalMap(out.Item, &link); err != nil {
		return nil, fmt.Errorf("unmarshaling link: %w", err)
	}
	return &link, nil
}

func (d *Dynamo) IncrementClicks(ctx context.Context, code string) error {
	_, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(d.linksTable),
		Key:                 linkKey(code),
		UpdateExpression:    aws.String("ADD clicks :one"),
		ConditionExpression: aws.String("attribute_exists(code)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
	})
	if isConditionFailed(err) {
		return ErrNotFound
	}
	return err
}

func (d *Dynamo) updatedRecord(out *dynamodb.UpdateItemOutput, err error) (*domain.JobRecord, error) {
	if isConditionFailed(err) {
		return nil, ErrConditionFailed
	}
	if err != nil {
		return nil, err
	}
	var rec domain.JobRecord
	if err := attributevalue.UnmarshalMap(out.Attributes, &rec); err != nil {
		return nil, fmt.Errorf("unmarshaling job record: %w", err)
	}
	return &rec, nil
}

func jobKey(jobID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"jobId": &types.AttributeValueMemberS{Value: jobID},
	}
}

func linkKey(code string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"code": &types.AttributeValueMemberS{Value: code},
	}
}

// nowAttr stamps updatedAt as epoch seconds; numbers keep the staleness
// scan's ordering exact, which RFC3339Nano strings do not (trimmed
// fractional zeros break lexicographic comparison).
func nowAttr() types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(time.Now().Unix(), 10)}
}

func isConditionFailed(err error) bool {
	if err == nil {
		return false
	}
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

var _ Store = (*Dynamo)(nil)
