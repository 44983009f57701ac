package version

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	goversion "github.com/hashicorp/go-version"

	"github.com/rocketdoo/rkd/internal/execx"
)

// Tool describes an external program used by deploy backends.
type Tool struct {
	Name    string `json:"name"`
	Path    string `json:"path,omitempty"`
	Version string `json:"version,omitempty"`
	Found   bool   `json:"found"`

	// OK is false when the tool is missing or older than its minimum.
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

type toolSpec struct {
	name    string
	args    []string
	minimum string
	purpose string
}

// The git minimum covers checkout of a new branch in an empty clone.
var toolSpecs = []toolSpec{
	{name: "git", args: []string{"--version"}, minimum: "2.28.0", purpose: "git-push targets"},
	{name: "ssh", args: []string{"-V"}, purpose: "vps targets"},
	{name: "rsync", args: []string{"--version"}, minimum: "3.0.0", purpose: "vps targets"},
	{name: "sshpass", args: []string{"-V"}, purpose: "vps password auth"},
	{name: "python3", args: []string{"--version"}, purpose: "python syntax check"},
	{name: "docker", args: []string{"--version"}, purpose: "local docker diagnostics"},
}

var versionRe = regexp.MustCompile(`\d+\.\d+(?:\.\d+)?(?:p\d+)?`)

const versionTimeout = 10 * time.Second

// DetectTools reports path, version and minimum version status for every
// external tool.
func DetectTools(ctx context.Context, r execx.Runner) []Tool {
	tools := make([]Tool, 0, len(toolSpecs))
	for _, s := range toolSpecs {
		tools = append(tools, detect(ctx, r, s))
	}
	return tools
}

func detect(ctx context.Context, r execx.Runner, s toolSpec) Tool {
	t := Tool{Name: s.name}
	path, err := r.LookPath(s.name)
	if err != nil {
		t.Message = "not found (needed for " + s.purpose + ")"
		return t
	}
	t.Path = path
	t.Found = true

	res, err := r.Run(ctx, execx.Command{Name: path, Args: s.args, Timeout: versionTimeout, Op: s.name + " version"})
	if err != nil {
		t.Message = err.Error()
		return t
	}
	t.Version = ExtractVersion(res.Stdout + "\n" + res.Stderr)
	t.OK, t.Message = Satisfies(t.Version, s.minimum)
	return t
}

// ExtractVersion returns the first dotted version number in output, e.g.
// "2.43.0" from "git version 2.43.0". OpenSSH patch levels such as "9.6p1"
// are normalized to "9.6.1".
func ExtractVersion(output string) string {
	for _, line := range strings.Split(output, "\n") {
		if m := versionRe.FindString(line); m != "" {
			return strings.Replace(m, "p", ".", 1)
		}
	}
	return ""
}

// Satisfies reports whether v meets minimum. An empty minimum accepts any
// version, including an unparseable one.
func Satisfies(v, minimum string) (bool, string) {
	if minimum == "" {
		return true, ""
	}
	have, err := goversion.NewVersion(v)
	if err != nil {
		return false, fmt.Sprintf("cannot parse version %q", v)
	}
	want := goversion.Must(goversion.NewVersion(minimum))
	if have.LessThan(want) {
		return false, fmt.Sprintf("version %s is older than required %s", v, minimum)
	}
	return true, ""
}
