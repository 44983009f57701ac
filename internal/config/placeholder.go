package config

import (
	"fmt"
	"os"
	"regexp"
	"sort"
)

var placeholderRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// wholePlaceholderRe matches a value that is exactly one placeholder.
var wholePlaceholderRe = regexp.MustCompile(`^\$\{([A-Za-z_][A-Za-z0-9_]*)\}$`)

// LookupFunc returns the value of an environment variable.
type LookupFunc func(key string) (string, bool)

// ResolvePlaceholders replaces ${VAR} references in string fields of the
// configuration with values from lookup (os.LookupEnv when nil). References
// whose variable is unset are left in place and recorded in cfg.Unresolved,
// keyed by field path. A password that is a single unresolved placeholder is
// cleared and its variable name kept on Connection.PasswordVar.
//
// Custom post-deploy commands are not touched; they run in a remote shell
// that expands its own variables.
func ResolvePlaceholders(cfg *DeployConfig, lookup LookupFunc) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	r := &resolver{lookup: lookup, unresolved: map[string]string{}}

	r.field("modules.base_path", &cfg.Modules.BasePath)
	r.field("backup.path", &cfg.Backup.Path)

	names := make([]string, 0, len(cfg.Targets))
	for n := range cfg.Targets {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, name := range names {
		t := cfg.Targets[name]
		if t == nil {
			continue
		}
		prefix := "targets." + name
		if c := t.Connection; c != nil {
			r.field(prefix+".connection.host", &c.Host)
			r.field(prefix+".connection.user", &c.User)
			r.field(prefix+".connection.ssh_key", &c.SSHKey)
			r.password(prefix+".connection.password", c)
		}
		for _, gp := range []*GitPushConfig{t.GitPush, t.OdooSH} {
			if gp == nil {
				continue
			}
			r.field(prefix+".git_push.project_id", &gp.ProjectID)
			r.field(prefix+".git_push.branch", &gp.Branch)
			r.field(prefix+".git_push.api_token", &gp.APIToken)
			r.field(prefix+".git_push.git_url", &gp.GitURL)
			r.field(prefix+".git_push.instance_url", &gp.InstanceURL)
		}
		r.field(prefix+".post_deploy.database", &t.PostDeploy.Database)
	}

	if len(r.unresolved) > 0 {
		cfg.Unresolved = r.unresolved
	} else {
		cfg.Unresolved = nil
	}
}

type resolver struct {
	lookup     LookupFunc
	unresolved map[string]string
}

func (r *resolver) field(path string, p *string) {
	if p == nil || *p == "" {
		return
	}
	*p = placeholderRe.ReplaceAllStringFunc(*p, func(ref string) string {
		name := placeholderRe.FindStringSubmatch(ref)[1]
		if v, ok := r.lookup(name); ok {
			return v
		}
		r.unresolved[path] = name
		return ref
	})
}

func (r *resolver) password(path string, c *Connection) {
	m := wholePlaceholderRe.FindStringSubmatch(c.Password)
	if m == nil {
		r.field(path, &c.Password)
		return
	}
	c.PasswordVar = m[1]
	if v, ok := r.lookup(m[1]); ok && v != "" {
		c.Password = v
		return
	}
	c.Password = ""
}

// UnresolvedErrors describes unresolved placeholders, sorted by field.
func (c *DeployConfig) UnresolvedErrors() []string {
	paths := make([]string, 0, len(c.Unresolved))
	for p := range c.Unresolved {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, fmt.Sprintf("%s: environment variable %s is not set", p, c.Unresolved[p]))
	}
	return out
}
