// Package aws implements the AWS control-plane adapter for the
// static-site hosting resource set: S3, CloudFront, Route53, ACM, IAM.
package aws

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/acm"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/cumulus-iac/cumulus/pkg/provider"
)

type Provider struct {
	mu      sync.Mutex
	region  string
	profile string

	s3Client         *s3.Client
	cloudfrontClient *cloudfront.Client
	route53Client    *route53.Client
	acmClient        *acm.Client
	iamClient        *iam.Client
}

func New() *Provider {
	return &Provider{region: "us-east-1"}
}

func (p *Provider) ensureClients(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.s3Client != nil {
		return nil
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(p.region)}
	if p.profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(p.profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("unable to load SDK config: %w", err)
	}

	p.s3Client = s3.NewFromConfig(cfg)
	p.cloudfrontClient = cloudfront.NewFromConfig(cfg)
	p.route53Client = route53.NewFromConfig(cfg)
	p.acmClient = acm.NewFromConfig(cfg)
	p.iamClient = iam.NewFromConfig(cfg)

	return nil
}

func (p *Provider) Configure(ctx context.Context, req *provider.ConfigureRequest) (*provider.ConfigureResponse, error) {
	if region := req.Settings["region"]; region != "" {
		p.region = region
	}
	if profile := req.Settings["profile"]; profile != "" {
		p.profile = profile
	}
	if err := p.ensureClients(ctx); err != nil {
		return &provider.ConfigureResponse{
			Diagnostics: []*provider.Diagnostic{
				{
					Severity: provider.SeverityError,
					Summary:  "Failed to load AWS config",
					Detail:   err.Error(),
				},
			},
		}, nil
	}
	return &provider.ConfigureResponse{}, nil
}

func (p *Provider) Apply(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	if err := p.ensureClients(ctx); err != nil {
		return nil, err
	}

	switch req.Type {
	case "aws:S3.Bucket":
		return p.applyBucket(ctx, req)
	case "aws:S3.BucketPolicy":
		return p.applyBucketPolicy(ctx, req)
	case "aws:CloudFront.Distribution":
		return p.applyDistribution(ctx, req)
	case "aws:CloudFront.Function":
		return p.applyEdgeFunction(ctx, req)
	case "aws:Route53.RecordSet":
		return p.applyRecordSet(ctx, req)
	case "aws:ACM.Certificate":
		return p.applyCertificate(ctx, req)
	case "aws:ACM.CertificateValidation":
		return p.applyCertificateValidation(ctx, req)
	case "aws:IAM.User":
		return p.applyUser(ctx, req)
	case "aws:IAM.UserPolicy":
		return p.applyUserPolicy(ctx, req)
	case "aws:IAM.AccessKey":
		return p.applyAccessKey(ctx, req)
	}

	return nil, fmt.Errorf("unknown resource type: %s", req.Type)
}

func (p *Provider) Read(ctx context.Context, req *provider.ReadRequest) (*provider.ReadResponse, error) {
	if err := p.ensureClients(ctx); err != nil {
		return nil, err
	}

	switch req.Type {
	case "aws:S3.Bucket":
		return p.readBucket(ctx, req)
	case "aws:CloudFront.Distribution":
		return p.readDistribution(ctx, req)
	}

	// Remaining types have no drift detection; trust recorded state.
	return &provider.ReadResponse{Exists: true, NewState: req.Current}, nil
}

func (p *Provider) Delete(ctx context.Context, req *provider.DeleteRequest) (*provider.DeleteResponse, error) {
	if err := p.ensureClients(ctx); err != nil {
		return nil, err
	}

	switch req.Type {
	case "aws:S3.Bucket":
		return p.deleteBucket(ctx, req)
	case "aws:S3.BucketPolicy":
		return p.deleteBucketPolicy(ctx, req)
	case "aws:CloudFront.Distribution":
		return p.deleteDistribution(ctx, req)
	case "aws:CloudFront.Function":
		return p.deleteEdgeFunction(ctx, req)
	case "aws:Route53.RecordSet":
		return p.deleteRecordSet(ctx, req)
	case "aws:ACM.Certificate":
		return p.deleteCertificate(ctx, req)
	case "aws:ACM.CertificateValidation":
		// Validation is a waiter over the certificate; nothing to remove.
		return &provider.DeleteResponse{}, nil
	case "aws:IAM.User":
		return p.deleteUser(ctx, req)
	case "aws:IAM.UserPolicy":
		return p.deleteUserPolicy(ctx, req)
	case "aws:IAM.AccessKey":
		return p.deleteAccessKey(ctx, req)
	}

	return nil, fmt.Errorf("unknown resource type: %s", req.Type)
}
