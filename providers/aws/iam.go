package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"

	"github.com/cumulus-iac/cumulus/pkg/provider"
)

type UserConfig struct {
	UserName string            `json:"userName"`
	Path     string            `json:"path"`
	Tags     map[string]string `json:"tags"`
}

type UserState struct {
	ID  string `json:"id"` // user name
	ARN string `json:"arn"`
}

func (p *Provider) applyUser(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired UserConfig
	if err := json.Unmarshal(req.Desired, &desired); err != nil {
		return nil, provider.Permanent(fmt.Errorf("failed to unmarshal desired config: %w", err))
	}
	if desired.UserName == "" {
		return nil, provider.Permanent(fmt.Errorf("userName is required"))
	}

	input := &iam.CreateUserInput{UserName: aws.String(desired.UserName)}
	if desired.Path != "" {
		input.Path = aws.String(desired.Path)
	}
	for k, v := range desired.Tags {
		input.Tags = append(input.Tags, types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}

	var arn string
	resp, err := p.iamClient.CreateUser(ctx, input)
	if err != nil {
		var exists *types.EntityAlreadyExistsException
		if !errors.As(err, &exists) {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		got, gerr := p.iamClient.GetUser(ctx, &iam.GetUserInput{UserName: aws.String(desired.UserName)})
		if gerr != nil {
			return nil, fmt.Errorf("failed to fetch existing user: %w", gerr)
		}
		arn = aws.ToString(got.User.Arn)
	} else {
		arn = aws.ToString(resp.User.Arn)
	}

	newState := UserState{ID: desired.UserName, ARN: arn}
	stateJSON, _ := json.Marshal(newState)

	return &provider.ApplyResponse{NewState: stateJSON}, nil
}

func (p *Provider) deleteUser(ctx context.Context, req *provider.DeleteRequest) (*provider.DeleteResponse, error) {
	if req.ID == "" {
		return &provider.DeleteResponse{}, nil
	}
	_, err := p.iamClient.DeleteUser(ctx, &iam.DeleteUserInput{UserName: aws.String(req.ID)})
	if err != nil {
		var nse *types.NoSuchEntityException
		if errors.As(err, &nse) {
			return &provider.DeleteResponse{}, nil
		}
		return nil, fmt.Errorf("failed to delete user: %w", err)
	}
	return &provider.DeleteResponse{}, nil
}

type UserPolicyConfig struct {
	UserName   string `json:"userName"`
	PolicyName string `json:"policyName"`
	Policy     any    `json:"policy"`
}

type UserPolicyState struct {
	ID         string `json:"id"` // userName:policyName
	UserName   string `json:"userName"`
	PolicyName string `json:"policyName"`
}

func (p *Provider) applyUserPolicy(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired UserPolicyConfig
	if err := json.Unmarshal(req.Desired, &desired); err != nil {
		return nil, provider.Permanent(fmt.Errorf("failed to unmarshal desired config: %w", err))
	}
	if desired.UserName == "" || desired.PolicyName == "" {
		return nil, provider.Permanent(fmt.Errorf("userName and policyName are required"))
	}

	policyJSON, err := json.Marshal(desired.Policy)
	if err != nil {
		return nil, provider.Permanent(fmt.Errorf("failed to marshal policy document: %w", err))
	}

	// PutUserPolicy is an upsert.
	_, err = p.iamClient.PutUserPolicy(ctx, &iam.PutUserPolicyInput{
		UserName:       aws.String(desired.UserName),
		PolicyName:     aws.String(desired.PolicyName),
		PolicyDocument: aws.String(string(policyJSON)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to put user policy: %w", err)
	}

	newState := UserPolicyState{
		ID:         fmt.Sprintf("%s:%s", desired.UserName, desired.PolicyName),
		UserName:   desired.UserName,
		PolicyName: desired.PolicyName,
	}
	stateJSON, _ := json.Marshal(newState)

	return &provider.ApplyResponse{NewState: stateJSON}, nil
}

func (p *Provider) deleteUserPolicy(ctx context.Context, req *provider.DeleteRequest) (*provider.DeleteResponse, error) {
	var prior UserPolicyState
	if len(req.Current) > 0 {
		if err := json.Unmarshal(req.Current, &prior); err != nil {
			return nil, fmt.Errorf("failed to unmarshal prior state: %w", err)
		}
	}
	if prior.UserName == "" {
		return &provider.DeleteResponse{}, nil
	}
	_, err := p.iamClient.DeleteUserPolicy(ctx, &iam.DeleteUserPolicyInput{
		UserName:   aws.String(prior.UserName),
		PolicyName: aws.String(prior.PolicyName),
	})
	if err != nil {
		var nse *types.NoSuchEntityException
		if errors.As(err, &nse) {
			return &provider.DeleteResponse{}, nil
		}
		return nil, fmt.Errorf("failed to delete user policy: %w", err)
	}
	return &provider.DeleteResponse{}, nil
}

type AccessKeyConfig struct {
	UserName string `json:"userName"`
}

type AccessKeyState struct {
	ID       string `json:"id"` // access key ID
	UserName string `json:"userName"`
	// The secret is only returned at creation time. It lands in state;
	// use state encryption when managing access keys.
	SecretAccessKey string `json:"secretAccessKey"`
}

func (p *Provider) applyAccessKey(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired AccessKeyConfig
	if err := json.Unmarshal(req.Desired, &desired); err != nil {
		return nil, provider.Permanent(fmt.Errorf("failed to unmarshal desired config: %w", err))
	}
	if desired.UserName == "" {
		return nil, provider.Permanent(fmt.Errorf("userName is required"))
	}

	// An existing key for the same user is kept as-is; rotating keys is
	// an explicit delete-and-recreate.
	if len(req.Prior) > 0 {
		var prior AccessKeyState
		if err := json.Unmarshal(req.Prior, &prior); err == nil && prior.ID != "" && prior.UserName == desired.UserName {
			return &provider.ApplyResponse{NewState: req.Prior}, nil
		}
	}

	resp, err := p.iamClient.CreateAccessKey(ctx, &iam.CreateAccessKeyInput{
		UserName: aws.String(desired.UserName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create access key: %w", err)
	}

	newState := AccessKeyState{
		ID:              aws.ToString(resp.AccessKey.AccessKeyId),
		UserName:        desired.UserName,
		SecretAccessKey: aws.ToString(resp.AccessKey.SecretAccessKey),
	}
	stateJSON, _ := json.Marshal(newState)

	return &provider.ApplyResponse{NewState: stateJSON}, nil
}

func (p *Provider) deleteAccessKey(ctx context.Context, req *provider.DeleteRequest) (*provider.DeleteResponse, error) {
	var prior AccessKeyState
	if len(req.Current) > 0 {
		if err := json.Unmarshal(req.Current, &prior); err != nil {
			return nil, fmt.Errorf("failed to unmarshal prior state: %w", err)
		}
	}
	if prior.ID == "" {
		return &provider.DeleteResponse{}, nil
	}
	_, err := p.iamClient.DeleteAccessKey(ctx, &iam.DeleteAccessKeyInput{
		UserName:    aws.String(prior.UserName),
		AccessKeyId: aws.String(prior.ID),
	})
	if err != nil {
		var nse *types.NoSuchEntityException
		if errors.As(err, &nse) {
			return &provider.DeleteResponse{}, nil
		}
		return nil, fmt.Errorf("failed to delete access key: %w", err)
	}
	return &provider.DeleteResponse{}, nil
}
