// Package ec2 captures EBS snapshots of an instance for forensic analysis.
package ec2

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/rs/zerolog"
)

// Tag keys and values attached to every forensic snapshot.
const (
	TagIR         = "IR"
	TagInstanceID = "InstanceId"
	TagPurpose    = "Purpose"
	PurposeValue  = "incident-forensics"
)

// API is the subset of the EC2 client used here.
type API interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	CreateSnapshot(ctx context.Context, params *ec2.CreateSnapshotInput, optFns ...func(*ec2.Options)) (*ec2.CreateSnapshotOutput, error)
}

// Forensics snapshots every EBS volume attached to an instance.
type Forensics struct {
	api    API
	now    func() time.Time
	logger zerolog.Logger
}

// NewForensics creates a Forensics trigger.
func NewForensics(api API, logger zerolog.Logger) *Forensics {
	return &Forensics{
		api:    api,
		now:    time.Now,
		logger: logger.With().Str("component", "ec2-forensics").Logger(),
	}
}

// CaptureAll snapshots every attached EBS volume of instanceID and returns the
// snapshot ids. Snapshots are tagged at creation so they can be correlated
// with the instance later. An instance without EBS volumes yields no ids.
func (f *Forensics) CaptureAll(ctx context.Context, instanceID string) ([]string, error) {
	volumes, err := f.attachedVolumes(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	description := fmt.Sprintf("IR snapshot for %s @ %sZ",
		instanceID, f.now().UTC().Format("2006-01-02T15:04:05.000000"))

	snapshots := make([]string, 0, len(volumes))
	for _, volumeID := range volumes {
		out, err := f.api.CreateSnapshot(ctx, &ec2.CreateSnapshotInput{
			VolumeId:    aws.String(volumeID),
			Description: aws.String(description),
			TagSpecifications: []types.TagSpecification{
				{
					ResourceType: types.ResourceTypeSnapshot,
					Tags: []types.Tag{
						{Key: aws.String(TagIR), Value: aws.String("true")},
						{Key: aws.String(TagInstanceID), Value: aws.String(instanceID)},
						{Key: aws.String(TagPurpose), Value: aws.String(PurposeValue)},
					},
				},
			},
		})
		if err != nil {
			if len(snapshots) > 0 {
				return nil, fmt.Errorf("failed to snapshot %s (already created %v): %w", volumeID, snapshots, err)
			}
			return nil, fmt.Errorf("failed to snapshot %s: %w", volumeID, err)
		}

		snapshotID := aws.ToString(out.SnapshotId)
		snapshots = append(snapshots, snapshotID)
		f.logger.Info().
			Str("instance", instanceID).
			Str("volume", volumeID).
			Str("snapshot", snapshotID).
			Msg("snapshot created")
	}

	return snapshots, nil
}

// attachedVolumes lists the EBS volume ids attached to instanceID.
func (f *Forensics) attachedVolumes(ctx context.Context, instanceID string) ([]string, error) {
	out, err := f.api.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe instance %s: %w", instanceID, err)
	}

	var volumes []string
	for _, r := range out.Reservations {
		for _, inst := range r.Instances {
			for _, m := range inst.BlockDeviceMappings {
				if m.Ebs != nil && aws.ToString(m.Ebs.VolumeId) != "" {
					volumes = append(volumes, aws.ToString(m.Ebs.VolumeId))
				}
			}
		}
	}
	return volumes, nil
}
