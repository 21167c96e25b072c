package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/pkg/errors"

	"github.com/sekai02/redcloud-pages/internal/config"
)

// S3Store maps every object onto a key below objectPrefix. S3 has no
// directories, so a container is a zero-byte "name/" marker object.
type S3Store struct {
	objectPrefix       string
	bucketName         string
	endpointWithScheme string
	client             *s3.Client
}

func NewS3Store(ctx context.Context, cfg config.S3) (*S3Store, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "s3.amazonaws.com"
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "https"
	}
	endpointWithScheme := fmt.Sprintf("%s://%s", cfg.Scheme, cfg.Endpoint)

	if cfg.BucketName == "" || cfg.Region == "" {
		return nil, fmt.Errorf("invalid S3 configuration: missing 'bucket_name' or 'region'")
	}

	awsConfig, err := awscfg.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load default AWS config")
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		o.BaseEndpoint = &endpointWithScheme
		o.Region = cfg.Region
		o.UsePathStyle = true
		if len(cfg.AccessKeySecret) > 0 && len(cfg.AccessKeyID) > 0 {
			o.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.AccessKeySecret, "")
		}
	})

	return &S3Store{
		objectPrefix:       cfg.ObjectPrefix,
		bucketName:         cfg.BucketName,
		endpointWithScheme: endpointWithScheme,
		client:             client,
	}, nil
}

func (s *S3Store) objectKey(name string) string {
	return s.objectPrefix + name
}

func (s *S3Store) containerKey(name string) string {
	return s.objectPrefix + strings.Trim(name, "/") + "/"
}

func isS3NotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var responseError *awshttp.ResponseError
	return errors.As(err, &responseError) && responseError.ResponseError.HTTPStatusCode() == http.StatusNotFound
}

func (s *S3Store) existObject(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &s.bucketName,
		Key:    &key,
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *S3Store) ContainerExists(ctx context.Context, name string) bool {
	exist, err := s.existObject(ctx, s.containerKey(name))
	return err == nil && exist
}

// CreateContainer ignores recursive: key prefixes need no parents.
func (s *S3Store) CreateContainer(ctx context.Context, name string, recursive bool) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(s.containerKey(name)),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return errors.Wrapf(err, "create container %s", name)
	}
	return nil
}

func (s *S3Store) LoadObject(ctx context.Context, name string) ([]byte, error) {
	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(s.objectKey(name)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, errors.Wrapf(ErrNotFound, "load %s", name)
		}
		return nil, errors.Wrapf(err, "load %s", name)
	}
	defer output.Body.Close()

	data, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "read body of %s", name)
	}
	return data, nil
}

func (s *S3Store) SaveObject(ctx context.Context, name string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:            aws.String(s.bucketName),
		Key:               aws.String(s.objectKey(name)),
		Body:              bytes.NewReader(data),
		ChecksumAlgorithm: types.ChecksumAlgorithmCrc32,
	})
	if err != nil {
		return errors.Wrapf(err, "save %s", name)
	}
	return nil
}

// RemoveObject checks existence first because DeleteObject succeeds on
// missing keys.
func (s *S3Store) RemoveObject(ctx context.Context, name string) error {
	key := s.objectKey(name)

	exist, err := s.existObject(ctx, key)
	if err != nil {
		return errors.Wrapf(err, "check %s", name)
	}
	if !exist {
		return errors.Wrapf(ErrNotFound, "remove %s", name)
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return errors.Wrapf(err, "remove %s", name)
	}
	return nil
}

func (s *S3Store) LoadText(ctx context.Context, name string) (string, error) {
	data, err := s.LoadObject(ctx, name)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *S3Store) SaveText(ctx context.Context, name string, text string) error {
	return s.SaveObject(ctx, name, []byte(text))
}

func (s *S3Store) Close() error {
	return nil
}
