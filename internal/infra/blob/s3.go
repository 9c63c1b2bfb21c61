package blob

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/bytedance/sonic"

	"github.com/valis-ai/valis/internal/config"
	"github.com/valis-ai/valis/internal/pkg/apperr"
)

type S3Deps struct {
	Client    *s3.Client
	Uploader  *manager.Uploader
	Presigner *s3.PresignClient
	Bucket    string
	SSE       *s3types.ServerSideEncryption
	Expire    time.Duration
}

func NewS3(ctx context.Context, cfg *config.Config) (*S3Deps, error) {
	loadOpts := []func(*awsCfg.LoadOptions) error{
		awsCfg.WithRegion(cfg.S3.Region),
	}
	if cfg.S3.AccessKey != "" && cfg.S3.SecretKey != "" {
		loadOpts = append(loadOpts, awsCfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3.AccessKey, cfg.S3.SecretKey, ""),
		))
	}

	acfg, err := awsCfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}

	s3Opts := func(o *s3.Options) {
		if ep := strings.TrimSpace(cfg.S3.Endpoint); ep != "" {
			if !strings.HasPrefix(ep, "http://") && !strings.HasPrefix(ep, "https://") {
				ep = "https://" + ep
			}
			if u, uerr := url.Parse(ep); uerr == nil {
				o.BaseEndpoint = aws.String(u.String())
			}
		}
		o.UsePathStyle = cfg.S3.UsePathStyle
	}

	client := s3.NewFromConfig(acfg, s3Opts)

	var sse *s3types.ServerSideEncryption
	if cfg.S3.SSE != "" {
		v := s3types.ServerSideEncryption(cfg.S3.SSE)
		sse = &v
	}

	expire := time.Duration(cfg.S3.PresignExpireSec) * time.Second
	if expire <= 0 {
		expire = 15 * time.Minute
	}

	return &S3Deps{
		Client:    client,
		Uploader:  manager.NewUploader(client),
		Presigner: s3.NewPresignClient(client),
		Bucket:    cfg.S3.Bucket,
		SSE:       sse,
		Expire:    expire,
	}, nil
}

// PresignGet returns a time-limited download URL for key.
func (s *S3Deps) PresignGet(ctx context.Context, key string, expire time.Duration) (string, error) {
	if key == "" {
		return "", errors.New("key is empty")
	}
	ps, err := s.Presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.Bucket,
		Key:    &key,
	}, func(po *s3.PresignOptions) {
		po.Expires = expire
	})
	if err != nil {
		return "", err
	}
	return ps.URL, nil
}

type UploadedMeta struct {
	Bucket string
	Key    string
	SHA256 string
	MIME   string
	SizeB  int64
}

// Upload stores body under keyPrefix/<date>/<sha256><ext>. Identical
// content lands on the same key.
func (s *S3Deps) Upload(ctx context.Context, keyPrefix, ext, contentType string, body []byte) (*UploadedMeta, error) {
	h := sha256.Sum256(body)
	sumHex := hex.EncodeToString(h[:])

	datePrefix := time.Now().UTC().Format("2006/01/02")
	key := fmt.Sprintf("%s/%s/%s%s", keyPrefix, datePrefix, sumHex, ext)

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"sha256": sumHex,
		},
	}
	if s.SSE != nil {
		input.ServerSideEncryption = *s.SSE
	}

	if _, err := s.Uploader.Upload(ctx, input); err != nil {
		return nil, err
	}

	return &UploadedMeta{
		Bucket: s.Bucket,
		Key:    key,
		SHA256: sumHex,
		MIME:   contentType,
		SizeB:  int64(len(body)),
	}, nil
}

// deployable result keys in priority order, with the file type they publish as
var deployKeys = []struct {
	key, ext, mime string
}{
	{"generated_content", ".html", "text/html; charset=utf-8"},
	{"application_code", ".txt", "text/plain; charset=utf-8"},
	{"api_code", ".py", "text/x-python; charset=utf-8"},
}

// Deploy publishes a task's primary artifact and returns a presigned URL to it.
// Results without a known artifact are published as a JSON document.
func (s *S3Deps) Deploy(ctx context.Context, taskID string, results map[string]any) (string, error) {
	const op = "blob.Deploy"
	prefix := "deployments/" + taskID

	var (
		meta *UploadedMeta
		err  error
	)
	for _, d := range deployKeys {
		if content, ok := results[d.key].(string); ok && content != "" {
			meta, err = s.Upload(ctx, prefix, d.ext, d.mime, []byte(content))
			break
		}
	}
	if meta == nil && err == nil {
		var raw []byte
		raw, err = sonic.Marshal(results)
		if err != nil {
			return "", apperr.Wrap(op, fmt.Errorf("marshal results: %w", err))
		}
		meta, err = s.Upload(ctx, prefix, ".json", "application/json", raw)
	}
	if err != nil {
		return "", apperr.Collaborator(op, err)
	}

	u, err := s.PresignGet(ctx, meta.Key, s.Expire)
	if err != nil {
		return "", apperr.Collaborator(op, err)
	}
	return u, nil
}
