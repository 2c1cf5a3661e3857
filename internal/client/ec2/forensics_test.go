package ec2

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	volumes     []string
	describeErr error
	failVolume  string
	created     []*ec2.CreateSnapshotInput
}

func (f *fakeAPI) DescribeInstances(_ context.Context, in *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	mappings := []types.InstanceBlockDeviceMapping{
		{DeviceName: aws.String("/dev/ephemeral0")}, // instance store, no EBS
	}
	for _, v := range f.volumes {
		mappings = append(mappings, types.InstanceBlockDeviceMapping{
			DeviceName: aws.String("/dev/xvd"),
			Ebs:        &types.EbsInstanceBlockDevice{VolumeId: aws.String(v)},
		})
	}
	return &ec2.DescribeInstancesOutput{
		Reservations: []types.Reservation{{
			Instances: []types.Instance{{
				InstanceId:          aws.String(in.InstanceIds[0]),
				BlockDeviceMappings: mappings,
			}},
		}},
	}, nil
}

func (f *fakeAPI) CreateSnapshot(_ context.Context, in *ec2.CreateSnapshotInput, _ ...func(*ec2.Options)) (*ec2.CreateSnapshotOutput, error) {
	if aws.ToString(in.VolumeId) == f.failVolume {
		return nil, errors.New("SnapshotCreationPerVolumeRateExceeded")
	}
	f.created = append(f.created, in)
	return &ec2.CreateSnapshotOutput{
		SnapshotId: aws.String(fmt.Sprintf("snap-%d", len(f.created))),
	}, nil
}

func newTestForensics(api API) *Forensics {
	f := NewForensics(api, zerolog.Nop())
	f.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return f
}

func TestForensics_CaptureAll(t *testing.T) {
	api := &fakeAPI{volumes: []string{"vol-1", "vol-2"}}
	f := newTestForensics(api)

	ids, err := f.CaptureAll(context.Background(), "i-0abc")
	require.NoError(t, err)
	assert.Equal(t, []string{"snap-1", "snap-2"}, ids)

	require.Len(t, api.created, 2)
	in := api.created[0]
	assert.Equal(t, "vol-1", aws.ToString(in.VolumeId))
	assert.Equal(t, "IR snapshot for i-0abc @ 2024-03-01T12:00:00.000000Z", aws.ToString(in.Description))

	require.Len(t, in.TagSpecifications, 1)
	spec := in.TagSpecifications[0]
	assert.Equal(t, types.ResourceTypeSnapshot, spec.ResourceType)
	tags := map[string]string{}
	for _, tag := range spec.Tags {
		tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	assert.Equal(t, map[string]string{
		"IR":         "true",
		"InstanceId": "i-0abc",
		"Purpose":    "incident-forensics",
	}, tags)
}

func TestForensics_NoVolumes(t *testing.T) {
	f := newTestForensics(&fakeAPI{})

	ids, err := f.CaptureAll(context.Background(), "i-0abc")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestForensics_DescribeError(t *testing.T) {
	f := newTestForensics(&fakeAPI{describeErr: errors.New("InvalidInstanceID.NotFound")})

	_, err := f.CaptureAll(context.Background(), "i-missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "InvalidInstanceID.NotFound")
}

func TestForensics_PartialFailure(t *testing.T) {
	api := &fakeAPI{volumes: []string{"vol-1", "vol-2"}, failVolume: "vol-2"}
	f := newTestForensics(api)

	ids, err := f.CaptureAll(context.Background(), "i-0abc")
	require.Error(t, err)
	assert.Nil(t, ids)
	assert.Contains(t, err.Error(), "snap-1")
	assert.Contains(t, err.Error(), "vol-2")
}
