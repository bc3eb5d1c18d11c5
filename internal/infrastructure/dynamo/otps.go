package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-otp-auth/internal/domain"
)

// OTPRepo manages one-time code records.
// PK: identity, SK: purpose. The ttl attribute drives DynamoDB's expiry reaper.
type OTPRepo struct {
	client    API
	tableName string
}

func NewOTPRepo(client API, tableName string) *OTPRepo {
	return &OTPRepo{client: client, tableName: tableName}
}

// Put writes rec, replacing any record already held for its (identity, purpose).
func (r *OTPRepo) Put(ctx context.Context, rec *domain.OTP) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal otp: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *OTPRepo) Get(ctx context.Context, identity string, purpose domain.OTPPurpose) (*domain.OTP, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            compositeKey(fieldIdentity, identity, fieldPurpose, string(purpose)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("otp not found: %w", domain.ErrNotFound)
	}
	var rec domain.OTP
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Delete removes the record only if it is still the version named by otpID.
// A record that was already replaced or removed is not an error.
func (r *OTPRepo) Delete(ctx context.Context, identity string, purpose domain.OTPPurpose, otpID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       compositeKey(fieldIdentity, identity, fieldPurpose, string(purpose)),
		ConditionExpression:       aws.String("#id = :id"),
		ExpressionAttributeNames:  map[string]string{"#id": fieldOTPID},
		ExpressionAttributeValues: map[string]types.AttributeValue{":id": &types.AttributeValueMemberS{Value: otpID}},
	})
	if isConditionalCheckFailed(err) {
		return nil
	}
	return err
}

// RecordAttempt increments attempts (and marks the record verified on success)
// only if the stored record is the same version, still unverified, and still
// holds the attempts count the caller observed. Otherwise domain.ErrConflict.
func (r *OTPRepo) RecordAttempt(ctx context.Context, rec *domain.OTP, verified bool) error {
	expr := "SET #a = #a + :one"
	if verified {
		expr += ", #v = :true"
	}
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 compositeKey(fieldIdentity, rec.Identity, fieldPurpose, string(rec.Purpose)),
		UpdateExpression:    aws.String(expr),
		ConditionExpression: aws.String("#id = :id AND #a = :seen AND #v = :false"),
		ExpressionAttributeNames: map[string]string{
			"#a":  fieldAttempts,
			"#v":  fieldVerified,
			"#id": fieldOTPID,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one":   &types.AttributeValueMemberN{Value: "1"},
			":seen":  &types.AttributeValueMemberN{Value: fmt.Sprint(rec.Attempts)},
			":id":    &types.AttributeValueMemberS{Value: rec.OTPID},
			":true":  &types.AttributeValueMemberBOOL{Value: true},
			":false": &types.AttributeValueMemberBOOL{Value: false},
		},
	})
	if isConditionalCheckFailed(err) {
		return fmt.Errorf("otp changed concurrently: %w", domain.ErrConflict)
	}
	return err
}
