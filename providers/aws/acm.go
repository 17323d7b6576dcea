package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/acm"
	"github.com/aws/aws-sdk-go-v2/service/acm/types"

	"github.com/cumulus-iac/cumulus/pkg/provider"
)

type CertificateConfig struct {
	DomainName              string   `json:"domainName"`
	SubjectAlternativeNames []string `json:"subjectAlternativeNames"`
	ValidationMethod        string   `json:"validationMethod"`
}

type CertificateState struct {
	ID                string             `json:"id"` // certificate ARN
	ARN               string             `json:"arn"`
	DomainName        string             `json:"domainName"`
	ValidationRecords []ValidationRecord `json:"validationRecords,omitempty"`
}

// ValidationRecord is the DNS record ACM asks for to prove domain
// ownership.
type ValidationRecord struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

func (p *Provider) applyCertificate(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired CertificateConfig
	if err := json.Unmarshal(req.Desired, &desired); err != nil {
		return nil, provider.Permanent(fmt.Errorf("failed to unmarshal desired config: %w", err))
	}
	if desired.DomainName == "" {
		return nil, provider.Permanent(fmt.Errorf("domainName is required"))
	}

	method := types.ValidationMethodDns
	if desired.ValidationMethod != "" {
		method = types.ValidationMethod(desired.ValidationMethod)
	}

	var prior CertificateState
	if len(req.Prior) > 0 {
		if err := json.Unmarshal(req.Prior, &prior); err != nil {
			return nil, fmt.Errorf("failed to unmarshal prior state: %w", err)
		}
	}

	var arn string
	if prior.ARN != "" && prior.DomainName == desired.DomainName {
		arn = prior.ARN
	} else {
		input := &acm.RequestCertificateInput{
			DomainName:       aws.String(desired.DomainName),
			ValidationMethod: method,
		}
		if len(desired.SubjectAlternativeNames) > 0 {
			input.SubjectAlternativeNames = desired.SubjectAlternativeNames
		}
		resp, err := p.acmClient.RequestCertificate(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to request certificate: %w", err)
		}
		arn = aws.ToString(resp.CertificateArn)
	}

	// ACM populates the validation options asynchronously.
	records, err := p.waitForValidationRecords(ctx, arn)
	if err != nil {
		return nil, err
	}

	newState := CertificateState{
		ID:                arn,
		ARN:               arn,
		DomainName:        desired.DomainName,
		ValidationRecords: records,
	}
	stateJSON, _ := json.Marshal(newState)

	return &provider.ApplyResponse{NewState: stateJSON}, nil
}

func (p *Provider) waitForValidationRecords(ctx context.Context, arn string) ([]ValidationRecord, error) {
	for attempt := 0; attempt < 12; attempt++ {
		described, err := p.acmClient.DescribeCertificate(ctx, &acm.DescribeCertificateInput{
			CertificateArn: aws.String(arn),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to describe certificate: %w", err)
		}

		var records []ValidationRecord
		complete := true
		for _, opt := range described.Certificate.DomainValidationOptions {
			if opt.ResourceRecord == nil {
				complete = false
				break
			}
			records = append(records, ValidationRecord{
				Name:  aws.ToString(opt.ResourceRecord.Name),
				Type:  string(opt.ResourceRecord.Type),
				Value: aws.ToString(opt.ResourceRecord.Value),
			})
		}
		if complete && len(records) > 0 {
			return records, nil
		}

		select {
		case <-time.After(5 * time.Second):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, provider.Transient(fmt.Errorf("validation records for %s not available yet", arn))
}

func (p *Provider) deleteCertificate(ctx context.Context, req *provider.DeleteRequest) (*provider.DeleteResponse, error) {
	if req.ID == "" {
		return &provider.DeleteResponse{}, nil
	}
	_, err := p.acmClient.DeleteCertificate(ctx, &acm.DeleteCertificateInput{
		CertificateArn: aws.String(req.ID),
	})
	if err != nil {
		var rnf *types.ResourceNotFoundException
		if errors.As(err, &rnf) {
			return &provider.DeleteResponse{}, nil
		}
		return nil, fmt.Errorf("failed to delete certificate: %w", err)
	}
	return &provider.DeleteResponse{}, nil
}

type CertificateValidationConfig struct {
	CertificateARN string `json:"certificateArn"`
}

type CertificateValidationState struct {
	ID             string `json:"id"`
	CertificateARN string `json:"certificateArn"`
	Status         string `json:"status"`
}

// applyCertificateValidation blocks until the referenced certificate
// reaches ISSUED. The DNS validation record must already be in place.
func (p *Provider) applyCertificateValidation(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired CertificateValidationConfig
	if err := json.Unmarshal(req.Desired, &desired); err != nil {
		return nil, provider.Permanent(fmt.Errorf("failed to unmarshal desired config: %w", err))
	}
	if desired.CertificateARN == "" {
		return nil, provider.Permanent(fmt.Errorf("certificateArn is required"))
	}

	waiter := acm.NewCertificateValidatedWaiter(p.acmClient)
	err := waiter.Wait(ctx, &acm.DescribeCertificateInput{
		CertificateArn: aws.String(desired.CertificateARN),
	}, 30*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("certificate %s was not validated: %w", desired.CertificateARN, err)
	}

	newState := CertificateValidationState{
		ID:             fmt.Sprintf("%s-validation", desired.CertificateARN),
		CertificateARN: desired.CertificateARN,
		Status:         string(types.CertificateStatusIssued),
	}
	stateJSON, _ := json.Marshal(newState)

	return &provider.ApplyResponse{NewState: stateJSON}, nil
}
