package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// AssetService verifies that card art referenced by a set actually exists in
// the Spaces bucket before the set can be created.
type AssetService struct {
	client   *s3.Client
	bucket   string
	region   string
	CardRoot string
}

func NewAssetService(spacesKey, spacesSecret, region, bucket, cardRoot string) *AssetService {
	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL: fmt.Sprintf("https://%s.digitaloceanspaces.com", region),
		}, nil
	})

	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithEndpointResolverWithOptions(resolver),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(spacesKey, spacesSecret, "")),
		config.WithRegion(region),
	)
	if err != nil {
		panic(fmt.Sprintf("Unable to load Spaces config: %v", err))
	}

	return &AssetService{
		client:   s3.NewFromConfig(cfg),
		bucket:   bucket,
		region:   region,
		CardRoot: strings.TrimPrefix(cardRoot, "/"),
	}
}

// CheckCardURI satisfies the card set registry's URI checker. A URI passes
// when the object it points at exists in the bucket. URIs outside the bucket
// are accepted as-is; we can only vouch for our own storage.
func (s *AssetService) CheckCardURI(ctx context.Context, uri string) error {
	key, ok := s.objectKey(uri)
	if !ok {
		return nil
	}
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		return fmt.Errorf("card art %q not found in bucket: %w", uri, err)
	}
	return nil
}

// objectKey extracts the bucket key from a URI. Returns false when the URI
// does not point into our bucket.
func (s *AssetService) objectKey(uri string) (string, bool) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", false
	}
	host := fmt.Sprintf("%s.%s.digitaloceanspaces.com", s.bucket, s.region)
	if u.Host != host {
		return "", false
	}
	return strings.TrimPrefix(u.Path, "/"), true
}

func (s *AssetService) GetBucket() string {
	return s.bucket
}

func (s *AssetService) GetRegion() string {
	return s.region
}
