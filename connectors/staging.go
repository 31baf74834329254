package connectors

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscredentials "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/cenkalti/backoff/v4"
)

const stagingUploadRetries = 3

// S3StagingParams describes one file to place into a customer bucket before
// the bucket is connected as a dataset source.
type S3StagingParams struct {
	LocalPath       string
	Key             string
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

type s3StagingService struct {
	client *s3.Client
	bucket string
	logger log.Logger
}

// StageToS3 uploads a local file to the given bucket and key. An object
// already present under the key is left alone.
func StageToS3(ctx context.Context, params S3StagingParams, logger log.Logger) error {
	if params.Bucket == "" {
		return fmt.Errorf("Bucket must not be empty")
	}
	if params.LocalPath == "" {
		return fmt.Errorf("LocalPath must not be empty")
	}
	if params.Key == "" {
		return fmt.Errorf("Key must not be empty")
	}

	cfg, err := loadAWSConfig(ctx, params.Region, params.AccessKeyID, params.SecretAccessKey, logger)
	if err != nil {
		return fmt.Errorf("load aws credentials: %w", err)
	}

	service := &s3StagingService{
		client: s3.NewFromConfig(*cfg),
		bucket: params.Bucket,
		logger: logger,
	}
	return service.stage(ctx, params.Key, params.LocalPath)
}

func (service *s3StagingService) stage(ctx context.Context, key, localPath string) error {
	exists, err := service.objectExists(ctx, key)
	if err != nil {
		return fmt.Errorf("validate object: %w", err)
	}
	if exists {
		service.logger.Debugf("Object %s already staged, skipping upload", key)
		return nil
	}

	service.logger.Debugf("Staging %s to s3://%s/%s", localPath, service.bucket, key)
	return service.putObjectWithRetry(ctx, key, localPath)
}

func (service *s3StagingService) objectExists(ctx context.Context, key string) (bool, error) {
	_, err := service.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(service.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var apiError smithy.APIError
		if errors.As(err, &apiError) {
			if _, notFound := apiError.(*types.NotFound); notFound {
				return false, nil
			}
		}
		return false, err
	}
	return true, nil
}

func (service *s3StagingService) putObjectWithRetry(ctx context.Context, key, localPath string) error {
	operation := func() error {
		file, err := os.Open(localPath)
		if err != nil {
			// A missing local file never heals.
			return backoff.Permanent(fmt.Errorf("open %s: %w", localPath, err))
		}
		defer file.Close()

		var partMB int64 = 10
		uploader := manager.NewUploader(service.client, func(u *manager.Uploader) {
			u.PartSize = partMB * 1024 * 1024
		})

		_, err = uploader.Upload(ctx, &s3.PutObjectInput{
			Body:   file,
			Bucket: aws.String(service.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return fmt.Errorf("upload object: %w", err)
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), stagingUploadRetries), ctx)
	return backoff.Retry(operation, policy)
}

func loadAWSConfig(ctx context.Context, region, accessKeyID, secretKey string, logger log.Logger) (*aws.Config, error) {
	if region == "" {
		return nil, fmt.Errorf("region must not be empty")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}

	if accessKeyID != "" && secretKey != "" {
		logger.Debugf("aws credentials provided, using them...")
		opts = append(opts,
			awsconfig.WithCredentialsProvider(awscredentials.NewStaticCredentialsProvider(accessKeyID, secretKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config, %v", err)
	}

	return &cfg, nil
}
