package deploy

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rocketdoo/rkd/internal/cmdtypes"
	"github.com/rocketdoo/rkd/internal/cmdutil"
	"github.com/rocketdoo/rkd/internal/output"
	"github.com/rocketdoo/rkd/internal/sshkeys"
)

type keysOptions struct {
	dir    string
	output cmdutil.OutputFlags
}

// NewKeysCmd creates the deploy keys command.
func NewKeysCmd(_ *cmdtypes.GlobalConfig) *cobra.Command {
	opts := &keysOptions{}

	c := &cobra.Command{
		Use:   "keys",
		Short: "List SSH private keys usable for VPS targets",
		Long: `List the private keys in an SSH directory with their type,
fingerprint and permissions. Hosts are taken from IdentityFile entries in
the directory's config file.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return runKeys(c, opts)
		},
	}

	c.Flags().StringVar(&opts.dir, "dir", "", "SSH directory (default: ~/.ssh)")
	opts.output.AddTo(c, "table")
	return c
}

func runKeys(c *cobra.Command, opts *keysOptions) error {
	format, err := opts.output.Parse()
	if err != nil {
		return err
	}
	dir := opts.dir
	if dir == "" {
		if dir, err = sshkeys.DefaultDir(); err != nil {
			return err
		}
	}

	keys, err := sshkeys.List(dir)
	if err != nil {
		return withExitCode(err)
	}
	if format != output.FormatTable {
		return cmdutil.WriteStructured(c.OutOrStdout(), format, keys)
	}
	if len(keys) == 0 {
		output.Warn("no SSH private keys found", "dir", dir)
		return nil
	}

	tbl := output.NewTable("NAME", "TYPE", "FINGERPRINT", "PERMS", "ENCRYPTED", "HOSTS")
	for _, k := range keys {
		perms := output.StatusStyle(output.StatusOK).Render(k.Permissions)
		if !k.Secure {
			perms = output.StatusStyle(output.StatusFailed).Render(k.Permissions)
		}
		encrypted := "no"
		if k.Encrypted {
			encrypted = "yes"
		}
		hosts := "-"
		if len(k.Hosts) > 0 {
			hosts = strings.Join(k.Hosts, ", ")
		}
		tbl.Row(output.StyleNoun.Render(k.Name), k.Type, k.Fingerprint, perms, encrypted, hosts)
	}
	w := c.OutOrStdout()
	fmt.Fprintln(w, tbl.String())
	for _, k := range keys {
		if !k.Secure {
			output.Warn("key is readable by other users", "key", k.Path, "fix", "chmod 600 "+k.Path)
		}
	}
	return nil
}
