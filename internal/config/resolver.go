package config

import (
	"os"

	"github.com/rocketdoo/rkd/internal/output"
)

// ConfigSource indicates where a configuration value came from.
type ConfigSource string

const (
	// SourceFlag indicates value came from command-line flag.
	SourceFlag ConfigSource = "flag"
	// SourceEnv indicates value came from environment variable.
	SourceEnv ConfigSource = "env"
	// SourceDefault indicates value is the built-in default.
	SourceDefault ConfigSource = "default"
)

// Environment variables read by the resolver.
const (
	EnvProject = "RKD_PROJECT"
	EnvConfig  = "RKD_CONFIG"
)

// ResolvedValue is a configuration value together with its origin.
type ResolvedValue struct {
	Key    string
	Value  string
	Source ConfigSource

	// Shadowed contains values overridden by a higher precedence source.
	Shadowed map[ConfigSource]string
}

// ResolveOptions carries raw flag values (empty when not set).
type ResolveOptions struct {
	ProjectFlag string
	ConfigFlag  string
}

// ResolvedPaths is the outcome of Resolve.
type ResolvedPaths struct {
	Project    ResolvedValue
	ConfigFile ResolvedValue
	Paths      *Paths
}

// Resolve determines the project root and configuration file using the
// precedence flag > env > default. The default project is the working
// directory and the default config file is <project>/.rkd/deploy.yaml.
func Resolve(opts ResolveOptions) (*ResolvedPaths, error) {
	project := resolveValue("project", opts.ProjectFlag, os.Getenv(EnvProject), "")

	paths, err := ProjectPaths(project.Value)
	if err != nil {
		return nil, err
	}
	project.Value = paths.Root

	cfgFile := resolveValue("config", opts.ConfigFlag, os.Getenv(EnvConfig), paths.ConfigFile)
	if cfgFile.Source != SourceDefault {
		cfgFile.Value = paths.Resolve(cfgFile.Value)
		paths.ConfigFile = cfgFile.Value
	}

	return &ResolvedPaths{Project: project, ConfigFile: cfgFile, Paths: paths}, nil
}

func resolveValue(key, flag, env, def string) ResolvedValue {
	v := ResolvedValue{Key: key, Shadowed: map[ConfigSource]string{}}
	switch {
	case flag != "":
		v.Value, v.Source = flag, SourceFlag
		if env != "" {
			v.Shadowed[SourceEnv] = env
		}
		if def != "" {
			v.Shadowed[SourceDefault] = def
		}
	case env != "":
		v.Value, v.Source = env, SourceEnv
		if def != "" {
			v.Shadowed[SourceDefault] = def
		}
	default:
		v.Value, v.Source = def, SourceDefault
	}
	return v
}

// LogResolvedValues logs configuration resolution at DEBUG level.
func LogResolvedValues(values ...ResolvedValue) {
	for _, v := range values {
		output.Debug("config value resolved",
			"key", v.Key,
			"value", v.Value,
			"source", v.Source,
		)
		for source, shadowed := range v.Shadowed {
			output.Debug("  shadowed by higher precedence",
				"key", v.Key,
				"shadowed_source", source,
				"shadowed_value", shadowed,
			)
		}
	}
}
