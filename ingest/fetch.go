package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Options configure the client used for s3:// sources. Empty credentials
// fall back to the default AWS chain.
type S3Options struct {
	Region          string
	Endpoint        string // optional, for S3-compatible services
	PathStyle       bool
	AccessKeyID     string
	SecretAccessKey string
}

type Fetcher struct {
	HTTP   *http.Client
	S3     S3Options
	Logger *slog.Logger
}

// Fetch makes the archive named by src available as a local file and returns
// its path. http(s) and s3 sources are downloaded into workDir; anything else
// is treated as a local path and used in place. The caller owns any
// downloaded file.
func (f *Fetcher) Fetch(ctx context.Context, src, workDir string) (string, error) {
	if src == "" {
		return "", errors.New("empty source")
	}
	u, err := url.Parse(src)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Not a URL (or a Windows drive letter)
		return f.local(src)
	}

	switch u.Scheme {
	case "http", "https":
		return f.fetchHTTP(ctx, src, workDir)
	case "s3":
		return f.fetchS3(ctx, u.Host, strings.TrimPrefix(u.Path, "/"), workDir)
	case "file":
		return f.local(u.Path)
	default:
		return "", fmt.Errorf("unsupported source scheme %q", u.Scheme)
	}
}

// IsRemote reports whether Fetch downloads src rather than using it in place.
func IsRemote(src string) bool {
	u, err := url.Parse(src)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "http", "https", "s3":
		return true
	default:
		return false
	}
}

func (f *Fetcher) logger() *slog.Logger {
	if f.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return f.Logger
}

func (f *Fetcher) local(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}
	return path, nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, src, workDir string) (string, error) {
	client := f.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", src, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s: unexpected status %s", src, resp.Status)
	}

	path, n, err := writeTemp(workDir, resp.Body)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", src, err)
	}
	f.logger().Info("downloaded feed", "source", src, "bytes", n, "path", path)
	return path, nil
}

func (f *Fetcher) fetchS3(ctx context.Context, bucket, key, workDir string) (string, error) {
	if bucket == "" || key == "" {
		return "", fmt.Errorf("s3 source needs bucket and key, got %q/%q", bucket, key)
	}
	client, err := f.s3Client(ctx)
	if err != nil {
		return "", err
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	defer func() { _ = out.Body.Close() }()

	path, n, err := writeTemp(workDir, out.Body)
	if err != nil {
		return "", fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	f.logger().Info("downloaded feed", "source", "s3://"+bucket+"/"+key, "bytes", n, "path", path)
	return path, nil
}

func (f *Fetcher) s3Client(ctx context.Context) (*s3.Client, error) {
	region := f.S3.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if f.S3.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(f.S3.AccessKeyID, f.S3.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = f.S3.PathStyle
		if f.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(f.S3.Endpoint)
		}
	}), nil
}

func writeTemp(workDir string, r io.Reader) (string, int64, error) {
	out, err := os.CreateTemp(workDir, "gtfs-*.zip")
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(out, r)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(out.Name())
		return "", 0, err
	}
	return out.Name(), n, nil
}
