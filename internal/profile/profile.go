// Package profile renders the dbt connection profile document.
package profile

import (
	"bytes"

	"gopkg.in/yaml.v3"

	"olistpipe/internal/common"
	"olistpipe/internal/config"
	"olistpipe/pkg/errors"
)

// QualityProfileName is the profile the data-quality report reads
const QualityProfileName = "elementary"

const (
	primaryThreads = 4
	qualityThreads = 1
)

// Output is one connection target of a profile
type Output struct {
	Type                   string `yaml:"type"`
	Account                string `yaml:"account"`
	User                   string `yaml:"user"`
	Password               string `yaml:"password"`
	Role                   string `yaml:"role"`
	Warehouse              string `yaml:"warehouse"`
	Database               string `yaml:"database"`
	Schema                 string `yaml:"schema"`
	Threads                int    `yaml:"threads"`
	ClientSessionKeepAlive bool   `yaml:"client_session_keep_alive"`
}

// Profile is a named profile with a default target and its outputs
type Profile struct {
	Name    string
	Target  string
	Outputs map[string]Output
}

// Document is an ordered set of profiles
type Document struct {
	Profiles []Profile
}

func newProfile(name string, creds config.Credentials, threads int) Profile {
	return Profile{
		Name:   name,
		Target: creds.Env,
		Outputs: map[string]Output{
			creds.Env: {
				Type:                   "snowflake",
				Account:                creds.Account,
				User:                   creds.User,
				Password:               creds.Password,
				Role:                   creds.Role,
				Warehouse:              creds.Warehouse,
				Database:               creds.Database,
				Schema:                 creds.Schema,
				Threads:                threads,
				ClientSessionKeepAlive: true,
			},
		},
	}
}

// Build assembles the document: the dbt project profile first, then the
// quality-tool profile. Both credential sets must be complete.
func Build(layout config.Layout, primary, quality config.Credentials) (*Document, error) {
	if missing := missingKeys(primary, quality); len(missing) > 0 {
		return nil, errors.MissingConfigError(scopeOf(primary, quality), missing)
	}

	return &Document{
		Profiles: []Profile{
			newProfile(layout.DBTProject, primary, primaryThreads),
			newProfile(QualityProfileName, quality, qualityThreads),
		},
	}, nil
}

// MarshalYAML keeps profiles in document order
func (d *Document) MarshalYAML() (interface{}, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, p := range d.Profiles {
		body := &yaml.Node{Kind: yaml.MappingNode}
		outputs := &yaml.Node{Kind: yaml.MappingNode}
		for name, out := range p.Outputs {
			value := &yaml.Node{}
			if err := value.Encode(out); err != nil {
				return nil, err
			}
			outputs.Content = append(outputs.Content, scalar(name), value)
		}
		body.Content = append(body.Content,
			scalar("target"), scalar(p.Target),
			scalar("outputs"), outputs,
		)
		root.Content = append(root.Content, scalar(p.Name), body)
	}
	return root, nil
}

func scalar(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}

// Encode renders the document as YAML
func (d *Document) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "Failed to encode profiles document")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "Failed to encode profiles document")
	}
	return buf.Bytes(), nil
}

// Generate validates both credential namespaces and writes profiles.yml under
// the dbt project directory, replacing any existing file. Nothing is written
// when a credential is missing.
func Generate(env config.Environment, layout config.Layout) (string, error) {
	primary, _ := config.LoadCredentials(env, config.PrimaryPrefix)
	quality, _ := config.LoadCredentials(env, config.QualityPrefix)

	doc, err := Build(layout, primary, quality)
	if err != nil {
		return "", err
	}

	data, err := doc.Encode()
	if err != nil {
		return "", err
	}

	path := layout.ProfilesPath()
	if err := common.WriteFile(path, data, common.FilePermissionSecure); err != nil {
		return "", errors.FileError(errors.ErrCodeFileWrite, "Failed to write profiles.yml", path, err)
	}
	return path, nil
}

func missingKeys(primary, quality config.Credentials) []string {
	missing := primary.Missing(config.ProfileFields...)
	return append(missing, quality.Missing(config.ProfileFields...)...)
}

func scopeOf(primary, quality config.Credentials) string {
	p := len(primary.Missing(config.ProfileFields...)) > 0
	q := len(quality.Missing(config.ProfileFields...)) > 0
	switch {
	case p && q:
		return "Snowflake and Elementary"
	case q:
		return "Elementary"
	default:
		return "Snowflake"
	}
}
