package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"support-agent/internal/domain"
)

const (
	skConfig   = "CONFIG"
	skPrefixKB = "KB#"
)

// dynamodbAPI is the minimal DynamoDB interface required by BusinessTable.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// BusinessTable reads business configuration and knowledge entries from a
// single DynamoDB table:
//
//	PK=BIZ#<id> SK=CONFIG        identity, contact and messages
//	PK=BIZ#<id> SK=KB#<ordinal>  one knowledge entry, ordinal zero-padded
type BusinessTable struct {
	api       dynamodbAPI
	tableName string
}

// NewBusinessTable creates a BusinessTable over the given DynamoDB API.
func NewBusinessTable(api dynamodbAPI, tableName string) (*BusinessTable, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &BusinessTable{api: api, tableName: tableName}, nil
}

func businessPK(businessID string) string {
	return "BIZ#" + businessID
}

// KnowledgeSK returns the sort key for the entry at ordinal position i.
func KnowledgeSK(i int) string {
	return fmt.Sprintf("%s%06d", skPrefixKB, i)
}

// FetchBusinessConfig reads the CONFIG item. Knowledge entries are not loaded.
func (t *BusinessTable) FetchBusinessConfig(ctx context.Context, businessID string) (domain.BusinessContext, error) {
	out, err := t.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(t.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: businessPK(businessID)},
			"SK": &types.AttributeValueMemberS{Value: skConfig},
		},
	})
	if err != nil {
		return domain.BusinessContext{}, fmt.Errorf("repository: FetchBusinessConfig get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.BusinessContext{}, ErrBusinessNotFound
	}
	return itemToBusiness(businessID, out.Item), nil
}

// FetchKnowledgeBase returns all KB# items in ordinal order, following
// pagination until the partition is exhausted.
func (t *BusinessTable) FetchKnowledgeBase(ctx context.Context, businessID string) ([]domain.KnowledgeEntry, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(t.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: businessPK(businessID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixKB},
		},
		ScanIndexForward: aws.Bool(true),
	}

	entries := make([]domain.KnowledgeEntry, 0)
	for {
		out, err := t.api.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("repository: FetchKnowledgeBase query: %w", err)
		}
		for _, item := range out.Items {
			entry, err := itemToKnowledgeEntry(item)
			if err != nil {
				return nil, fmt.Errorf("repository: FetchKnowledgeBase unmarshal: %w", err)
			}
			entries = append(entries, entry)
		}
		if len(out.LastEvaluatedKey) == 0 {
			return entries, nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func itemToBusiness(businessID string, item map[string]types.AttributeValue) domain.BusinessContext {
	opt := func(key string) string {
		v, _ := strAttr(item, key) // optional attributes
		return v
	}
	return domain.BusinessContext{
		ID: businessID,
		Business: domain.BusinessIdentity{
			Name:           opt("name"),
			Logo:           opt("logo"),
			Type:           opt("type"),
			Specialization: opt("specialization"),
		},
		Contact: domain.ContactInfo{
			Phone:   opt("phone"),
			Email:   opt("email"),
			Address: opt("address"),
			Hours:   opt("hours"),
			Website: opt("website"),
		},
		InitialMessage: opt("initialMessage"),
		SystemMessage:  opt("systemMessage"),
	}
}

func itemToKnowledgeEntry(item map[string]types.AttributeValue) (domain.KnowledgeEntry, error) {
	question, err := strAttr(item, "question")
	if err != nil {
		return domain.KnowledgeEntry{}, err
	}
	answer, err := strAttr(item, "answer")
	if err != nil {
		return domain.KnowledgeEntry{}, err
	}
	category, _ := strAttr(item, "category") // allow empty
	priority := 0
	if _, ok := item["priority"]; ok {
		priority, err = intAttr(item, "priority")
		if err != nil {
			return domain.KnowledgeEntry{}, err
		}
	}
	return domain.KnowledgeEntry{
		Question: question,
		Answer:   answer,
		Category: category,
		Priority: priority,
	}, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
