package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/lorekeep/lorekeep/internal/util"
)

const reportPrefix = "reports"

func NewS3Client(ctx context.Context) *s3.Client {
	region := util.GetEnv("AWS_REGION")
	endpoint := util.GetEnv("AWS_ENDPOINT")
	accessKey := util.GetEnv("AWS_ACCESS_KEY")
	secretKey := util.GetEnv("AWS_SECRET_KEY")
	util.GetEnv("AWS_BUCKET")
	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(region),
		config.WithBaseEndpoint(endpoint),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey,
			secretKey,
			"",
		)),
	)
	if err != nil {
		return nil
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return client
}

func GetFile(ctx context.Context, client *s3.Client, key string) (*[]byte, error) {
	bucket := util.GetEnv("AWS_BUCKET")
	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return &[]byte{}, fmt.Errorf("failed to get file from S3: %v", err)
	}
	defer result.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, result.Body); err != nil {
		return &[]byte{}, fmt.Errorf("failed to read file contents: %v", err)
	}

	bytes := buf.Bytes()

	return &bytes, nil
}

func PutFile(ctx context.Context, client *s3.Client, key string, contentType string, file io.Reader) (string, error) {
	bucket := util.GetEnv("AWS_BUCKET")
	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file to S3: %v", err)
	}

	return key, nil
}

// ArchiveReport stores a finished extraction report under a timestamped
// key so past runs stay inspectable after the local report file is
// overwritten by the next run.
func ArchiveReport(ctx context.Context, client *s3.Client, runAt time.Time, report []byte) (string, error) {
	key := fmt.Sprintf("%s/%s.json", reportPrefix, runAt.UTC().Format("2006-01-02T15-04-05Z"))
	return PutFile(ctx, client, key, "application/json", bytes.NewReader(report))
}

// ListReports returns the keys of all archived extraction reports,
// oldest first by key order.
func ListReports(ctx context.Context, client *s3.Client) ([]string, error) {
	return ListFilesWithPrefix(ctx, client, reportPrefix+"/")
}

// PruneReports deletes the oldest archived reports so at most keep
// remain. Report keys embed the run timestamp, so lexicographic order
// is chronological order. Returns how many were deleted.
func PruneReports(ctx context.Context, client *s3.Client, keep int) (int, error) {
	keys, err := ListReports(ctx, client)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, key := range reportKeysToPrune(keys, keep) {
		if err := DeleteFile(ctx, client, key); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

// reportKeysToPrune returns the keys to delete, oldest first. A keep of
// zero or less disables pruning.
func reportKeysToPrune(keys []string, keep int) []string {
	if keep <= 0 || len(keys) <= keep {
		return nil
	}
	sorted := make([]string, len(keys))
	copy(sorted, keys)
	sort.Strings(sorted)
	return sorted[:len(sorted)-keep]
}

func DeleteFile(ctx context.Context, client *s3.Client, key string) error {
	bucket := util.GetEnv("AWS_BUCKET")
	_, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete file from S3: %v", err)
	}

	return nil
}

func ListFilesWithPrefix(ctx context.Context, client *s3.Client, prefix string) ([]string, error) {
	bucket := util.GetEnv("AWS_BUCKET")

	var keys []string
	listInput := &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	}

	for {
		listOutput, err := client.ListObjectsV2(ctx, listInput)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects with prefix %s: %w", prefix, err)
		}

		for _, obj := range listOutput.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}

		if listOutput.IsTruncated != nil && *listOutput.IsTruncated {
			listInput.ContinuationToken = listOutput.NextContinuationToken
		} else {
			break
		}
	}

	return keys, nil
}
