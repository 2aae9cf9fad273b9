// Package profiles defines the deployment contract a mirror runs
// under: which fields are excluded from identity computation, which
// fields a machine representation must carry, and the header names
// used on the wire. A profile can load from a local YAML file or from
// an SSM parameter holding the same YAML, so fleets can manage the
// identity-affecting exclude list centrally.
package profiles

import (
	"context"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"gopkg.in/yaml.v3"

	"github.com/contentmirror/contentmirror/internal/xerrors"
)

// Headers fixes the wire header names a deployment uses.
type Headers struct {
	// Identity carries the entity validator. Default "ETag".
	Identity string `yaml:"identity" json:"identity"`
	// Digest carries the response-byte digest. Default "Content-Digest".
	Digest string `yaml:"digest" json:"digest"`
}

// Profile is a named contract: the exclude-list feeding identity
// computation, the fields every machine representation must carry,
// and header conventions.
type Profile struct {
	Name           string   `yaml:"name" json:"name"`
	ExcludeKeys    []string `yaml:"exclude_keys" json:"exclude_keys"`
	RequiredFields []string `yaml:"required_fields" json:"required_fields"`
	Headers        Headers  `yaml:"headers" json:"headers"`
}

// Default is the mirror-core/v1 profile: identity, link, and timestamp
// fields are excluded because they change without the content itself
// changing, or echo values derived from it.
func Default() Profile {
	return Profile{
		Name: "mirror-core/v1",
		ExcludeKeys: []string{
			"id", "guid", "link", "_links",
			"modified", "modified_gmt", "etag",
		},
		RequiredFields: []string{"title", "content"},
		Headers: Headers{
			Identity: "ETag",
			Digest:   "Content-Digest",
		},
	}
}

func (p Profile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return xerrors.New("profile name is required")
	}
	for _, k := range p.ExcludeKeys {
		if strings.TrimSpace(k) == "" {
			return xerrors.New("exclude_keys must not contain empty keys")
		}
	}
	return nil
}

// withDefaults fills header names a profile file left out.
func (p Profile) withDefaults() Profile {
	if p.Headers.Identity == "" {
		p.Headers.Identity = "ETag"
	}
	if p.Headers.Digest == "" {
		p.Headers.Digest = "Content-Digest"
	}
	return p
}

func parse(data []byte) (Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, xerrors.Wrap(err, "decode profile yaml")
	}
	p = p.withDefaults()
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Load reads a profile from a YAML file.
func Load(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, xerrors.Wrapf(err, "read profile file %s", path)
	}
	return parse(data)
}

// ParameterClient is the slice of the SSM API profile fetching needs.
type ParameterClient interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// FetchFromSSM loads a profile from an SSM parameter whose value is
// the profile YAML.
func FetchFromSSM(ctx context.Context, client ParameterClient, param string) (Profile, error) {
	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(param),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return Profile{}, xerrors.Wrapf(err, "get SSM parameter %s", param)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return Profile{}, xerrors.Newf("SSM parameter %s has no value", param)
	}
	return parse([]byte(*out.Parameter.Value))
}
