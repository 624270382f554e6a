package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"sensor-replay/pkg/calibration"
)

type S3Reader struct {
	client     *s3.Client
	downloader *manager.Downloader
	scratchDir string
}

func NewS3Reader(ctx context.Context, region, scratchDir string) (*S3Reader, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3Reader{
		client:     client,
		downloader: manager.NewDownloader(client),
		scratchDir: scratchDir,
	}, nil
}

// ReadRecord downloads "bucket key" to a scratch file. The caller
// removes the file after converting the record.
func (r *S3Reader) ReadRecord(ctx context.Context, locator string) (string, bool, error) {
	bucket, key, found := strings.Cut(locator, " ")
	if !found {
		return "", false, fmt.Errorf("malformed object locator '%s'", locator)
	}

	out, err := os.CreateTemp(r.scratchDir, "record-*")
	if err != nil {
		return "", false, err
	}
	_, err = r.downloader.Download(ctx, out, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(out.Name())
		return "", false, fmt.Errorf("downloading s3://%s/%s: %w", bucket, key, err)
	}

	switch {
	case strings.HasSuffix(key, ".gz"):
		path, gerr := gunzipToScratch(out.Name(), r.scratchDir)
		os.Remove(out.Name())
		return path, gerr == nil, gerr
	case strings.HasSuffix(key, ".zip"):
		path, zerr := unzipToScratch(out.Name(), r.scratchDir)
		os.Remove(out.Name())
		return path, zerr == nil, zerr
	default:
		return out.Name(), true, nil
	}
}

// CalibrationLoader reads the calibration document from the object store.
func (r *S3Reader) CalibrationLoader(bucket, key string) calibration.Loader {
	return func(ctx context.Context) ([]byte, error) {
		obj, err := r.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, fmt.Errorf("fetching calibration s3://%s/%s: %w", bucket, key, err)
		}
		defer obj.Body.Close()
		return io.ReadAll(obj.Body)
	}
}
