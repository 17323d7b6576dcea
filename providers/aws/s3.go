package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/cumulus-iac/cumulus/pkg/provider"
)

type BucketConfig struct {
	BucketName    string `json:"bucketName"`
	IndexDocument string `json:"indexDocument"`
	ErrorDocument string `json:"errorDocument"`
	BlockPublic   *bool  `json:"blockPublicAccess"`
}

type BucketState struct {
	ID             string `json:"id"`
	ARN            string `json:"arn"`
	WebsiteDomain  string `json:"websiteDomain"`
	RegionalDomain string `json:"regionalDomain"`
}

func (p *Provider) applyBucket(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired BucketConfig
	if err := json.Unmarshal(req.Desired, &desired); err != nil {
		return nil, provider.Permanent(fmt.Errorf("failed to unmarshal desired config: %w", err))
	}
	if desired.BucketName == "" {
		return nil, provider.Permanent(fmt.Errorf("bucketName is required"))
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(desired.BucketName)}
	if p.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(p.region),
		}
	}

	// CreateBucket is idempotent when we already own the bucket.
	if _, err := p.s3Client.CreateBucket(ctx, input); err != nil {
		var ae smithy.APIError
		if !errors.As(err, &ae) || ae.ErrorCode() != "BucketAlreadyOwnedByYou" {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	if desired.IndexDocument != "" {
		website := &types.WebsiteConfiguration{
			IndexDocument: &types.IndexDocument{Suffix: aws.String(desired.IndexDocument)},
		}
		if desired.ErrorDocument != "" {
			website.ErrorDocument = &types.ErrorDocument{Key: aws.String(desired.ErrorDocument)}
		}
		_, err := p.s3Client.PutBucketWebsite(ctx, &s3.PutBucketWebsiteInput{
			Bucket:               aws.String(desired.BucketName),
			WebsiteConfiguration: website,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to configure bucket website: %w", err)
		}
	}

	blockPublic := desired.BlockPublic == nil || *desired.BlockPublic
	_, err := p.s3Client.PutPublicAccessBlock(ctx, &s3.PutPublicAccessBlockInput{
		Bucket: aws.String(desired.BucketName),
		PublicAccessBlockConfiguration: &types.PublicAccessBlockConfiguration{
			BlockPublicAcls:       aws.Bool(blockPublic),
			BlockPublicPolicy:     aws.Bool(blockPublic),
			IgnorePublicAcls:      aws.Bool(blockPublic),
			RestrictPublicBuckets: aws.Bool(blockPublic),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set public access block: %w", err)
	}

	newState := BucketState{
		ID:             desired.BucketName,
		ARN:            fmt.Sprintf("arn:aws:s3:::%s", desired.BucketName),
		WebsiteDomain:  fmt.Sprintf("%s.s3-website-%s.amazonaws.com", desired.BucketName, p.region),
		RegionalDomain: fmt.Sprintf("%s.s3.%s.amazonaws.com", desired.BucketName, p.region),
	}
	stateJSON, _ := json.Marshal(newState)

	return &provider.ApplyResponse{NewState: stateJSON}, nil
}

func (p *Provider) readBucket(ctx context.Context, req *provider.ReadRequest) (*provider.ReadResponse, error) {
	_, err := p.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(req.ID)})
	if err != nil {
		var ae smithy.APIError
		if errors.As(err, &ae) && (ae.ErrorCode() == "NotFound" || ae.ErrorCode() == "NoSuchBucket") {
			return &provider.ReadResponse{Exists: false}, nil
		}
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	return &provider.ReadResponse{Exists: true, NewState: req.Current}, nil
}

func (p *Provider) deleteBucket(ctx context.Context, req *provider.DeleteRequest) (*provider.DeleteResponse, error) {
	if req.ID == "" {
		return &provider.DeleteResponse{}, nil
	}
	_, err := p.s3Client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(req.ID)})
	if err != nil {
		var ae smithy.APIError
		if errors.As(err, &ae) && ae.ErrorCode() == "NoSuchBucket" {
			return &provider.DeleteResponse{}, nil
		}
		return nil, fmt.Errorf("failed to delete bucket: %w", err)
	}
	return &provider.DeleteResponse{}, nil
}

type BucketPolicyConfig struct {
	Bucket string `json:"bucket"`
	Policy any    `json:"policy"`
}

type BucketPolicyState struct {
	ID     string `json:"id"`
	Bucket string `json:"bucket"`
}

func (p *Provider) applyBucketPolicy(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired BucketPolicyConfig
	if err := json.Unmarshal(req.Desired, &desired); err != nil {
		return nil, provider.Permanent(fmt.Errorf("failed to unmarshal desired config: %w", err))
	}

	policyJSON, err := json.Marshal(desired.Policy)
	if err != nil {
		return nil, provider.Permanent(fmt.Errorf("failed to marshal policy document: %w", err))
	}

	_, err = p.s3Client.PutBucketPolicy(ctx, &s3.PutBucketPolicyInput{
		Bucket: aws.String(desired.Bucket),
		Policy: aws.String(string(policyJSON)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to put bucket policy: %w", err)
	}

	newState := BucketPolicyState{
		ID:     fmt.Sprintf("%s-policy", desired.Bucket),
		Bucket: desired.Bucket,
	}
	stateJSON, _ := json.Marshal(newState)

	return &provider.ApplyResponse{NewState: stateJSON}, nil
}

func (p *Provider) deleteBucketPolicy(ctx context.Context, req *provider.DeleteRequest) (*provider.DeleteResponse, error) {
	var prior BucketPolicyState
	if len(req.Current) > 0 {
		if err := json.Unmarshal(req.Current, &prior); err != nil {
			return nil, fmt.Errorf("failed to unmarshal prior state: %w", err)
		}
	}
	if prior.Bucket == "" {
		return &provider.DeleteResponse{}, nil
	}
	_, err := p.s3Client.DeleteBucketPolicy(ctx, &s3.DeleteBucketPolicyInput{Bucket: aws.String(prior.Bucket)})
	if err != nil {
		return nil, fmt.Errorf("failed to delete bucket policy: %w", err)
	}
	return &provider.DeleteResponse{}, nil
}
