package aws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"

	"github.com/cumulus-iac/cumulus/pkg/provider"
)

type RecordSetConfig struct {
	ZoneID  string       `json:"zoneId"`
	Name    string       `json:"name"`
	Type    string       `json:"type"`
	TTL     int          `json:"ttl"`
	Records []string     `json:"records"`
	Alias   *AliasTarget `json:"alias"`
}

type AliasTarget struct {
	DNSName              string `json:"dnsName"`
	HostedZoneID         string `json:"hostedZoneId"`
	EvaluateTargetHealth bool   `json:"evaluateTargetHealth"`
}

type RecordSetState struct {
	ID     string       `json:"id"` // zoneId:name:type
	ZoneID string       `json:"zoneId"`
	Name   string       `json:"name"`
	Type   string       `json:"type"`
	TTL    int          `json:"ttl"`
	Values []string     `json:"values"`
	Alias  *AliasTarget `json:"alias,omitempty"`
}

func buildResourceRecordSet(cfg *RecordSetConfig) *types.ResourceRecordSet {
	rrs := &types.ResourceRecordSet{
		Name: aws.String(cfg.Name),
		Type: types.RRType(cfg.Type),
	}
	if cfg.Alias != nil {
		rrs.AliasTarget = &types.AliasTarget{
			DNSName:              aws.String(cfg.Alias.DNSName),
			HostedZoneId:         aws.String(cfg.Alias.HostedZoneID),
			EvaluateTargetHealth: cfg.Alias.EvaluateTargetHealth,
		}
		return rrs
	}
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 300
	}
	rrs.TTL = aws.Int64(int64(ttl))
	for _, v := range cfg.Records {
		rrs.ResourceRecords = append(rrs.ResourceRecords, types.ResourceRecord{Value: aws.String(v)})
	}
	return rrs
}

func (p *Provider) applyRecordSet(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired RecordSetConfig
	if err := json.Unmarshal(req.Desired, &desired); err != nil {
		return nil, provider.Permanent(fmt.Errorf("failed to unmarshal desired config: %w", err))
	}
	if desired.ZoneID == "" || desired.Name == "" || desired.Type == "" {
		return nil, provider.Permanent(fmt.Errorf("zoneId, name and type are required"))
	}
	if desired.Alias == nil && len(desired.Records) == 0 {
		return nil, provider.Permanent(fmt.Errorf("either alias or records must be set"))
	}

	_, err := p.route53Client.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(desired.ZoneID),
		ChangeBatch: &types.ChangeBatch{
			Changes: []types.Change{
				{
					Action:            types.ChangeActionUpsert,
					ResourceRecordSet: buildResourceRecordSet(&desired),
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert record set: %w", err)
	}

	// Record enough in state to delete later without the template.
	newState := RecordSetState{
		ID:     fmt.Sprintf("%s:%s:%s", desired.ZoneID, desired.Name, desired.Type),
		ZoneID: desired.ZoneID,
		Name:   desired.Name,
		Type:   desired.Type,
		TTL:    desired.TTL,
		Values: desired.Records,
		Alias:  desired.Alias,
	}
	stateJSON, _ := json.Marshal(newState)

	return &provider.ApplyResponse{NewState: stateJSON}, nil
}

func (p *Provider) deleteRecordSet(ctx context.Context, req *provider.DeleteRequest) (*provider.DeleteResponse, error) {
	var prior RecordSetState
	if len(req.Current) > 0 {
		if err := json.Unmarshal(req.Current, &prior); err != nil {
			return nil, fmt.Errorf("failed to unmarshal prior state: %w", err)
		}
	}
	if prior.ZoneID == "" {
		return &provider.DeleteResponse{}, nil
	}

	_, err := p.route53Client.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(prior.ZoneID),
		ChangeBatch: &types.ChangeBatch{
			Changes: []types.Change{
				{
					Action: types.ChangeActionDelete,
					ResourceRecordSet: buildResourceRecordSet(&RecordSetConfig{
						ZoneID:  prior.ZoneID,
						Name:    prior.Name,
						Type:    prior.Type,
						TTL:     prior.TTL,
						Records: prior.Values,
						Alias:   prior.Alias,
					}),
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete record set: %w", err)
	}
	return &provider.DeleteResponse{}, nil
}
