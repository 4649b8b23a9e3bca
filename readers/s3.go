//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of AvroMerge.
//
// AvroMerge is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// AvroMerge is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with AvroMerge. If not, see https://www.gnu.org/licenses/.

package readers

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/aaronlmathis/avromerge/core"
)

const s3Scheme = "s3://"

// S3API is the subset of the S3 client used for inputs.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	s3.ListObjectsV2APIClient
}

// S3OpenerStats holds statistics about objects fetched from S3.
type S3OpenerStats struct {
	ObjectsListed  int64    // Objects discovered by prefix expansion
	ObjectsOpened  int64    // Objects successfully opened
	BytesRequested int64    // Sum of reported content lengths
	ObjectErrors   int64    // Objects that failed to open
	ProcessedFiles []string // Opened object URIs, in open order
}

// S3Options configures S3 access.
type S3Options struct {
	Region         string          // AWS region
	Profile        string          // AWS shared config profile
	Credentials    aws.Credentials // Explicit credentials
	EndpointURL    string          // Custom S3 endpoint (for S3-compatible services)
	ForcePathStyle bool            // Use path-style addressing
	Suffix         string          // Key suffix kept by prefix expansion
	MaxKeys        int32           // Page size for listing
}

// OptionS3 represents a configuration function for S3Opener.
type OptionS3 func(*S3Options)

func WithS3Region(region string) OptionS3 {
	return func(opts *S3Options) {
		opts.Region = region
	}
}

func WithS3Profile(profile string) OptionS3 {
	return func(opts *S3Options) {
		opts.Profile = profile
	}
}

func WithS3Credentials(creds aws.Credentials) OptionS3 {
	return func(opts *S3Options) {
		opts.Credentials = creds
	}
}

func WithS3Endpoint(endpoint string) OptionS3 {
	return func(opts *S3Options) {
		opts.EndpointURL = endpoint
	}
}

func WithS3PathStyle(pathStyle bool) OptionS3 {
	return func(opts *S3Options) {
		opts.ForcePathStyle = pathStyle
	}
}

func WithS3Suffix(suffix string) OptionS3 {
	return func(opts *S3Options) {
		opts.Suffix = suffix
	}
}

// S3Opener implements Opener for s3://bucket/key names.
type S3Opener struct {
	client S3API
	opts   S3Options
	stats  S3OpenerStats
	mu     sync.Mutex
}

func defaultS3Options() S3Options {
	return S3Options{
		Suffix:  ".avro",
		MaxKeys: 1000,
	}
}

// NewS3Opener creates an S3 client from the default AWS configuration chain and the options.
func NewS3Opener(ctx context.Context, options ...OptionS3) (*S3Opener, error) {
	opts := defaultS3Options()
	for _, option := range options {
		option(&opts)
	}

	cfg, err := createAWSConfig(ctx, opts)
	if err != nil {
		return nil, core.NewError(core.ErrConfig, "create_aws_config", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.EndpointURL != "" {
			o.BaseEndpoint = aws.String(opts.EndpointURL)
		}
		o.UsePathStyle = opts.ForcePathStyle
	})

	return &S3Opener{client: client, opts: opts}, nil
}

// NewS3OpenerWithClient wraps an existing client.
func NewS3OpenerWithClient(client S3API, options ...OptionS3) *S3Opener {
	opts := defaultS3Options()
	for _, option := range options {
		option(&opts)
	}
	return &S3Opener{client: client, opts: opts}
}

// createAWSConfig creates AWS configuration from options
func createAWSConfig(ctx context.Context, opts S3Options) (aws.Config, error) {
	configOpts := []func(*config.LoadOptions) error{}

	if opts.Region != "" {
		configOpts = append(configOpts, config.WithRegion(opts.Region))
	}

	if opts.Profile != "" {
		configOpts = append(configOpts, config.WithSharedConfigProfile(opts.Profile))
	}

	cfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return aws.Config{}, err
	}

	if opts.Credentials.AccessKeyID != "" {
		cfg.Credentials = aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(
				opts.Credentials.AccessKeyID,
				opts.Credentials.SecretAccessKey,
				opts.Credentials.SessionToken,
			),
		)
	}

	return cfg, nil
}

// Open implements the Opener interface.
func (s *S3Opener) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	bucket, key, err := ParseS3URI(name)
	if err != nil {
		return nil, core.NewSubjectError(core.ErrIO, "open_object", name, err)
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.stats.ObjectErrors++
		return nil, core.NewSubjectError(core.ErrIO, "open_object", name, err)
	}
	s.stats.ObjectsOpened++
	if result.ContentLength != nil {
		s.stats.BytesRequested += *result.ContentLength
	}
	s.stats.ProcessedFiles = append(s.stats.ProcessedFiles, name)

	return result.Body, nil
}

// Expand replaces every s3://bucket/prefix/ name (trailing slash) with the URIs of the
// objects under that prefix whose keys end in the configured suffix, in ascending key
// order. Other names are kept in place.
func (s *S3Opener) Expand(ctx context.Context, names []string) ([]string, error) {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if !IsS3URI(name) || !strings.HasSuffix(name, "/") {
			out = append(out, name)
			continue
		}
		bucket, prefix, err := ParseS3URI(name)
		if err != nil {
			return nil, core.NewSubjectError(core.ErrIO, "list_objects", name, err)
		}
		keys, err := s.listObjects(ctx, bucket, prefix)
		if err != nil {
			return nil, core.NewSubjectError(core.ErrIO, "list_objects", name, err)
		}
		for _, key := range keys {
			out = append(out, s3Scheme+bucket+"/"+key)
		}
	}
	return out, nil
}

// listObjects retrieves and filters keys under a prefix
func (s *S3Opener) listObjects(ctx context.Context, bucket, prefix string) ([]string, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		MaxKeys: aws.Int32(s.opts.MaxKeys),
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil || !strings.HasSuffix(*obj.Key, s.opts.Suffix) {
				continue
			}
			keys = append(keys, *obj.Key)
		}
	}
	slices.Sort(keys)

	s.mu.Lock()
	s.stats.ObjectsListed += int64(len(keys))
	s.mu.Unlock()

	return keys, nil
}

// Stats returns S3 access statistics.
func (s *S3Opener) Stats() S3OpenerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := s.stats
	stats.ProcessedFiles = slices.Clone(s.stats.ProcessedFiles)
	return stats
}

// IsS3URI reports whether name uses the s3:// scheme.
func IsS3URI(name string) bool {
	return strings.HasPrefix(name, s3Scheme)
}

// HasS3URI reports whether any of names uses the s3:// scheme.
func HasS3URI(names []string) bool {
	return slices.ContainsFunc(names, IsS3URI)
}

// ParseS3URI splits s3://bucket/key into its bucket and key.
func ParseS3URI(name string) (bucket, key string, err error) {
	if !IsS3URI(name) {
		return "", "", fmt.Errorf("not an s3 uri: %q", name)
	}
	bucket, key, _ = strings.Cut(strings.TrimPrefix(name, s3Scheme), "/")
	if bucket == "" {
		return "", "", fmt.Errorf("missing bucket in %q", name)
	}
	return bucket, key, nil
}
