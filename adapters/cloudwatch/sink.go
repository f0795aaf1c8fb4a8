// Package cloudwatch publishes metric datums to CloudWatch, the sink used
// when the monitor runs next to an AWS-hosted pipeline.
package cloudwatch

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	cw "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/artpar/quotamon/ports"
)

// DefaultNamespace groups the monitor's metrics in the CloudWatch console.
const DefaultNamespace = "QuotaMonitor"

// maxBatch is the number of datums sent per PutMetricData request.
const maxBatch = 20

// API is the subset of the CloudWatch client used by this package.
type API interface {
	PutMetricData(ctx context.Context, params *cw.PutMetricDataInput, optFns ...func(*cw.Options)) (*cw.PutMetricDataOutput, error)
}

// Sink publishes datums under a fixed namespace.
type Sink struct {
	api       API
	namespace string
}

// New creates a sink from an AWS config.
func New(cfg aws.Config, namespace string) *Sink {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Sink{api: cw.NewFromConfig(cfg), namespace: namespace}
}

// NewFromAPI creates a Sink from an explicit API implementation (for testing).
func NewFromAPI(api API, namespace string) *Sink {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Sink{api: api, namespace: namespace}
}

// Publish sends a single datum.
func (s *Sink) Publish(ctx context.Context, d ports.Datum) error {
	return s.PublishBatch(ctx, []ports.Datum{d})
}

// PublishBatch sends datums in chunks of maxBatch per request.
func (s *Sink) PublishBatch(ctx context.Context, ds []ports.Datum) error {
	for start := 0; start < len(ds); start += maxBatch {
		end := start + maxBatch
		if end > len(ds) {
			end = len(ds)
		}

		data := make([]cwtypes.MetricDatum, 0, end-start)
		for _, d := range ds[start:end] {
			data = append(data, toMetricDatum(d))
		}

		_, err := s.api.PutMetricData(ctx, &cw.PutMetricDataInput{
			Namespace:  aws.String(s.namespace),
			MetricData: data,
		})
		if err != nil {
			return fmt.Errorf("put metric data: %w", err)
		}
	}
	return nil
}

func toMetricDatum(d ports.Datum) cwtypes.MetricDatum {
	md := cwtypes.MetricDatum{
		MetricName: aws.String(d.Name),
		Value:      aws.Float64(d.Value),
	}
	if d.Unit != "" {
		md.Unit = cwtypes.StandardUnit(d.Unit)
	}
	if !d.At.IsZero() {
		md.Timestamp = aws.Time(d.At)
	}

	// Dimensions in sorted order so requests are deterministic.
	names := make([]string, 0, len(d.Dimensions))
	for name := range d.Dimensions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		md.Dimensions = append(md.Dimensions, cwtypes.Dimension{
			Name:  aws.String(name),
			Value: aws.String(d.Dimensions[name]),
		})
	}

	return md
}

// Ensure interface compliance.
var (
	_ ports.MetricSink = (*Sink)(nil)
	_ ports.BatchSink  = (*Sink)(nil)
)
