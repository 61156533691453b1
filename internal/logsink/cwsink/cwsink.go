// Package cwsink mirrors log entries to an Amazon CloudWatch Logs stream.
package cwsink

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"

	"renderhub/internal/logbuf"
)

// DefaultStream is used when no stream is named.
const DefaultStream = "default-stream"

type logsAPI interface {
	CreateLogGroup(ctx context.Context, in *cloudwatchlogs.CreateLogGroupInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogGroupOutput, error)
	CreateLogStream(ctx context.Context, in *cloudwatchlogs.CreateLogStreamInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error)
	PutLogEvents(ctx context.Context, in *cloudwatchlogs.PutLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error)
}

// Writer implements logsink.Writer with one PutLogEvents call per entry.
type Writer struct {
	api    logsAPI
	group  string
	stream string
}

func New(api logsAPI, group, stream string) *Writer {
	if stream == "" {
		stream = DefaultStream
	}
	return &Writer{api: api, group: group, stream: stream}
}

// Dial loads the default AWS credential chain for region and makes sure the
// group and stream exist.
func Dial(ctx context.Context, region, group, stream string) (*Writer, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("cwsink: load aws config: %w", err)
	}
	w := New(cloudwatchlogs.NewFromConfig(cfg), group, stream)
	if err := w.EnsureStream(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) Name() string { return "cloudwatch" }

// EnsureStream creates the log group and stream. Existing ones are kept.
func (w *Writer) EnsureStream(ctx context.Context) error {
	_, err := w.api.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{
		LogGroupName: aws.String(w.group),
	})
	if err != nil && !alreadyExists(err) {
		return fmt.Errorf("cwsink: create log group %s: %w", w.group, err)
	}
	_, err = w.api.CreateLogStream(ctx, &cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  aws.String(w.group),
		LogStreamName: aws.String(w.stream),
	})
	if err != nil && !alreadyExists(err) {
		return fmt.Errorf("cwsink: create log stream %s: %w", w.stream, err)
	}
	return nil
}

// Write sends e. A stream deleted under us is recreated and the entry sent
// again once.
func (w *Writer) Write(ctx context.Context, e logbuf.Entry) error {
	err := w.put(ctx, e)
	if notFound(err) {
		if err := w.EnsureStream(ctx); err != nil {
			return err
		}
		err = w.put(ctx, e)
	}
	if err != nil {
		return fmt.Errorf("cwsink: put log events: %w", err)
	}
	return nil
}

func (w *Writer) put(ctx context.Context, e logbuf.Entry) error {
	_, err := w.api.PutLogEvents(ctx, &cloudwatchlogs.PutLogEventsInput{
		LogGroupName:  aws.String(w.group),
		LogStreamName: aws.String(w.stream),
		LogEvents: []types.InputLogEvent{{
			Message:   aws.String(e.Line),
			Timestamp: aws.Int64(e.Time.UnixMilli()),
		}},
	})
	return err
}

func (w *Writer) Close() error { return nil }

func alreadyExists(err error) bool {
	var exists *types.ResourceAlreadyExistsException
	return errors.As(err, &exists)
}

func notFound(err error) bool {
	var missing *types.ResourceNotFoundException
	return errors.As(err, &missing)
}
