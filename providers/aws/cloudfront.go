package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"github.com/aws/smithy-go"

	"github.com/cumulus-iac/cumulus/pkg/provider"
)

type DistributionConfig struct {
	Enabled           *bool    `json:"enabled"`
	Aliases           []string `json:"aliases"`
	OriginDomain      string   `json:"originDomain"`
	DefaultRootObject string   `json:"defaultRootObject"`
	PriceClass        string   `json:"priceClass"`
	CertificateARN    string   `json:"certificateArn"`
	FunctionARN       string   `json:"functionArn"` // viewer-request URL rewrite
	Comment           string   `json:"comment"`
}

type DistributionState struct {
	ID         string `json:"id"`
	ARN        string `json:"arn"`
	DomainName string `json:"domainName"`
	// CloudFront alias records always target this fixed hosted zone.
	HostedZoneID string `json:"hostedZoneId"`
	ETag         string `json:"etag"`
}

const cloudfrontHostedZoneID = "Z2FDTNDATAQYW2"

func (p *Provider) applyDistribution(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired DistributionConfig
	if err := json.Unmarshal(req.Desired, &desired); err != nil {
		return nil, provider.Permanent(fmt.Errorf("failed to unmarshal desired config: %w", err))
	}
	if desired.OriginDomain == "" {
		return nil, provider.Permanent(fmt.Errorf("originDomain is required"))
	}

	var prior DistributionState
	if len(req.Prior) > 0 {
		if err := json.Unmarshal(req.Prior, &prior); err != nil {
			return nil, fmt.Errorf("failed to unmarshal prior state: %w", err)
		}
	}

	distConfig := buildDistributionConfig(&desired, req.Name)

	if prior.ID != "" {
		return p.updateDistribution(ctx, &prior, distConfig)
	}

	distConfig.CallerReference = aws.String(fmt.Sprintf("cumulus-%s-%d", req.Name, time.Now().UnixNano()))
	resp, err := p.cloudfrontClient.CreateDistribution(ctx, &cloudfront.CreateDistributionInput{
		DistributionConfig: distConfig,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create distribution: %w", err)
	}

	newState := DistributionState{
		ID:           aws.ToString(resp.Distribution.Id),
		ARN:          aws.ToString(resp.Distribution.ARN),
		DomainName:   aws.ToString(resp.Distribution.DomainName),
		HostedZoneID: cloudfrontHostedZoneID,
		ETag:         aws.ToString(resp.ETag),
	}
	stateJSON, _ := json.Marshal(newState)

	return &provider.ApplyResponse{NewState: stateJSON}, nil
}

func (p *Provider) updateDistribution(ctx context.Context, prior *DistributionState, distConfig *types.DistributionConfig) (*provider.ApplyResponse, error) {
	current, err := p.cloudfrontClient.GetDistributionConfig(ctx, &cloudfront.GetDistributionConfigInput{
		Id: aws.String(prior.ID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch distribution config: %w", err)
	}

	distConfig.CallerReference = current.DistributionConfig.CallerReference
	resp, err := p.cloudfrontClient.UpdateDistribution(ctx, &cloudfront.UpdateDistributionInput{
		Id:                 aws.String(prior.ID),
		IfMatch:            current.ETag,
		DistributionConfig: distConfig,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update distribution: %w", err)
	}

	newState := DistributionState{
		ID:           aws.ToString(resp.Distribution.Id),
		ARN:          aws.ToString(resp.Distribution.ARN),
		DomainName:   aws.ToString(resp.Distribution.DomainName),
		HostedZoneID: cloudfrontHostedZoneID,
		ETag:         aws.ToString(resp.ETag),
	}
	stateJSON, _ := json.Marshal(newState)

	return &provider.ApplyResponse{NewState: stateJSON}, nil
}

func buildDistributionConfig(desired *DistributionConfig, name string) *types.DistributionConfig {
	const originID = "primary"

	enabled := desired.Enabled == nil || *desired.Enabled
	comment := desired.Comment
	if comment == "" {
		comment = fmt.Sprintf("cumulus-managed distribution %s", name)
	}
	priceClass := types.PriceClassPriceClass100
	if desired.PriceClass != "" {
		priceClass = types.PriceClass(desired.PriceClass)
	}

	behavior := &types.DefaultCacheBehavior{
		TargetOriginId:       aws.String(originID),
		ViewerProtocolPolicy: types.ViewerProtocolPolicyRedirectToHttps,
		AllowedMethods: &types.AllowedMethods{
			Quantity: aws.Int32(2),
			Items:    []types.Method{types.MethodGet, types.MethodHead},
			CachedMethods: &types.CachedMethods{
				Quantity: aws.Int32(2),
				Items:    []types.Method{types.MethodGet, types.MethodHead},
			},
		},
		Compress: aws.Bool(true),
		MinTTL:   aws.Int64(0),
		ForwardedValues: &types.ForwardedValues{
			QueryString: aws.Bool(false),
			Cookies:     &types.CookiePreference{Forward: types.ItemSelectionNone},
		},
	}
	if desired.FunctionARN != "" {
		behavior.FunctionAssociations = &types.FunctionAssociations{
			Quantity: aws.Int32(1),
			Items: []types.FunctionAssociation{
				{
					EventType:   types.EventTypeViewerRequest,
					FunctionARN: aws.String(desired.FunctionARN),
				},
			},
		}
	}

	cfg := &types.DistributionConfig{
		Enabled:    aws.Bool(enabled),
		Comment:    aws.String(comment),
		PriceClass: priceClass,
		Origins: &types.Origins{
			Quantity: aws.Int32(1),
			Items: []types.Origin{
				{
					Id:         aws.String(originID),
					DomainName: aws.String(desired.OriginDomain),
					CustomOriginConfig: &types.CustomOriginConfig{
						HTTPPort:             aws.Int32(80),
						HTTPSPort:            aws.Int32(443),
						OriginProtocolPolicy: types.OriginProtocolPolicyHttpOnly,
					},
				},
			},
		},
		DefaultCacheBehavior: behavior,
	}

	if desired.DefaultRootObject != "" {
		cfg.DefaultRootObject = aws.String(desired.DefaultRootObject)
	}
	if len(desired.Aliases) > 0 {
		cfg.Aliases = &types.Aliases{
			Quantity: aws.Int32(int32(len(desired.Aliases))),
			Items:    desired.Aliases,
		}
	}
	if desired.CertificateARN != "" {
		cfg.ViewerCertificate = &types.ViewerCertificate{
			ACMCertificateArn:      aws.String(desired.CertificateARN),
			SSLSupportMethod:       types.SSLSupportMethodSniOnly,
			MinimumProtocolVersion: types.MinimumProtocolVersionTLSv122021,
		}
	} else {
		cfg.ViewerCertificate = &types.ViewerCertificate{
			CloudFrontDefaultCertificate: aws.Bool(true),
		}
	}

	return cfg
}

func (p *Provider) readDistribution(ctx context.Context, req *provider.ReadRequest) (*provider.ReadResponse, error) {
	_, err := p.cloudfrontClient.GetDistribution(ctx, &cloudfront.GetDistributionInput{Id: aws.String(req.ID)})
	if err != nil {
		var nsd *types.NoSuchDistribution
		if errors.As(err, &nsd) {
			return &provider.ReadResponse{Exists: false}, nil
		}
		return nil, fmt.Errorf("failed to read distribution: %w", err)
	}
	return &provider.ReadResponse{Exists: true, NewState: req.Current}, nil
}

// deleteDistribution disables the distribution, waits for it to deploy,
// then deletes it. CloudFront rejects deletion of an enabled
// distribution.
func (p *Provider) deleteDistribution(ctx context.Context, req *provider.DeleteRequest) (*provider.DeleteResponse, error) {
	if req.ID == "" {
		return &provider.DeleteResponse{}, nil
	}

	current, err := p.cloudfrontClient.GetDistributionConfig(ctx, &cloudfront.GetDistributionConfigInput{
		Id: aws.String(req.ID),
	})
	if err != nil {
		var nsd *types.NoSuchDistribution
		if errors.As(err, &nsd) {
			return &provider.DeleteResponse{}, nil
		}
		return nil, fmt.Errorf("failed to fetch distribution config: %w", err)
	}

	etag := current.ETag
	if aws.ToBool(current.DistributionConfig.Enabled) {
		current.DistributionConfig.Enabled = aws.Bool(false)
		resp, err := p.cloudfrontClient.UpdateDistribution(ctx, &cloudfront.UpdateDistributionInput{
			Id:                 aws.String(req.ID),
			IfMatch:            etag,
			DistributionConfig: current.DistributionConfig,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to disable distribution: %w", err)
		}
		etag = resp.ETag

		waiter := cloudfront.NewDistributionDeployedWaiter(p.cloudfrontClient)
		if err := waiter.Wait(ctx, &cloudfront.GetDistributionInput{Id: aws.String(req.ID)}, 30*time.Minute); err != nil {
			return nil, fmt.Errorf("distribution did not reach deployed state after disable: %w", err)
		}
	}

	_, err = p.cloudfrontClient.DeleteDistribution(ctx, &cloudfront.DeleteDistributionInput{
		Id:      aws.String(req.ID),
		IfMatch: etag,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete distribution: %w", err)
	}
	return &provider.DeleteResponse{}, nil
}

type EdgeFunctionConfig struct {
	Name    string `json:"name"`
	Code    string `json:"code"`
	Comment string `json:"comment"`
}

type EdgeFunctionState struct {
	ID    string `json:"id"` // function name
	ARN   string `json:"arn"`
	Stage string `json:"stage"`
	ETag  string `json:"etag"`
}

// applyEdgeFunction creates or updates a CloudFront Function and
// publishes it to the LIVE stage so distributions can associate it.
func (p *Provider) applyEdgeFunction(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired EdgeFunctionConfig
	if err := json.Unmarshal(req.Desired, &desired); err != nil {
		return nil, provider.Permanent(fmt.Errorf("failed to unmarshal desired config: %w", err))
	}
	name := desired.Name
	if name == "" {
		name = req.Name
	}
	if desired.Code == "" {
		return nil, provider.Permanent(fmt.Errorf("code is required"))
	}

	fnConfig := &types.FunctionConfig{
		Comment: aws.String(desired.Comment),
		Runtime: types.FunctionRuntimeCloudfrontJs20,
	}

	var etag string
	create, err := p.cloudfrontClient.CreateFunction(ctx, &cloudfront.CreateFunctionInput{
		Name:           aws.String(name),
		FunctionCode:   []byte(desired.Code),
		FunctionConfig: fnConfig,
	})
	if err != nil {
		var ae smithy.APIError
		if !errors.As(err, &ae) || ae.ErrorCode() != "FunctionAlreadyExists" {
			return nil, fmt.Errorf("failed to create function: %w", err)
		}
		described, derr := p.cloudfrontClient.DescribeFunction(ctx, &cloudfront.DescribeFunctionInput{
			Name: aws.String(name),
		})
		if derr != nil {
			return nil, fmt.Errorf("failed to describe existing function: %w", derr)
		}
		updated, uerr := p.cloudfrontClient.UpdateFunction(ctx, &cloudfront.UpdateFunctionInput{
			Name:           aws.String(name),
			IfMatch:        described.ETag,
			FunctionCode:   []byte(desired.Code),
			FunctionConfig: fnConfig,
		})
		if uerr != nil {
			return nil, fmt.Errorf("failed to update function: %w", uerr)
		}
		etag = aws.ToString(updated.ETag)
	} else {
		etag = aws.ToString(create.ETag)
	}

	published, err := p.cloudfrontClient.PublishFunction(ctx, &cloudfront.PublishFunctionInput{
		Name:    aws.String(name),
		IfMatch: aws.String(etag),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to publish function: %w", err)
	}

	newState := EdgeFunctionState{
		ID:    name,
		ARN:   aws.ToString(published.FunctionSummary.FunctionMetadata.FunctionARN),
		Stage: string(published.FunctionSummary.FunctionMetadata.Stage),
		ETag:  etag,
	}
	stateJSON, _ := json.Marshal(newState)

	return &provider.ApplyResponse{NewState: stateJSON}, nil
}

func (p *Provider) deleteEdgeFunction(ctx context.Context, req *provider.DeleteRequest) (*provider.DeleteResponse, error) {
	if req.ID == "" {
		return &provider.DeleteResponse{}, nil
	}

	described, err := p.cloudfrontClient.DescribeFunction(ctx, &cloudfront.DescribeFunctionInput{
		Name: aws.String(req.ID),
	})
	if err != nil {
		var nsf *types.NoSuchFunctionExists
		if errors.As(err, &nsf) {
			return &provider.DeleteResponse{}, nil
		}
		return nil, fmt.Errorf("failed to describe function: %w", err)
	}

	_, err = p.cloudfrontClient.DeleteFunction(ctx, &cloudfront.DeleteFunctionInput{
		Name:    aws.String(req.ID),
		IfMatch: described.ETag,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete function: %w", err)
	}
	return &provider.DeleteResponse{}, nil
}
