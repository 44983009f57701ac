package config

import (
	"fmt"
	"sort"
)

const emptyTemplate = `# rkd deployment configuration
modules:
  base_path: addons
  auto_detect: true

targets: {}

backup:
  enabled: true
  keep_last: 3

validations:
  check_manifest: true
  check_python_syntax: true
  check_xml_syntax: true
`

const basicTemplate = `# rkd deployment configuration
modules:
  base_path: addons
  auto_detect: true
  # Files left out of every deployment.
  exclude_patterns:
    - "*.pyc"
    - "__pycache__"
    - ".git"

targets:
  production:
    type: vps
    enabled: true
    deployment_type: docker
    connection:
      host: server.example.com
      port: 22
      user: odoo
      auth_method: ssh_key
      ssh_key: ~/.ssh/id_ed25519
    docker:
      container_name: odoo
      compose_path: /opt/odoo
      addons_mount: /mnt/extra-addons
    post_deploy:
      restart_service: true
      update_modules: false

backup:
  enabled: true
  keep_last: 3

validations:
  check_manifest: true
  check_python_syntax: true
  check_xml_syntax: true
`

const advancedTemplate = `# rkd deployment configuration
modules:
  base_path: addons
  auto_detect: true
  exclude_patterns:
    - "*.pyc"
    - "__pycache__"
    - ".git"
    - "*.log"

targets:
  staging:
    type: vps
    enabled: true
    deployment_type: docker
    connection:
      host: staging.example.com
      port: 22
      user: odoo
      auth_method: ssh_key
      ssh_key: ~/.ssh/id_ed25519
    docker:
      container_name: odoo-staging
      compose_path: /opt/odoo-staging
      addons_mount: /mnt/extra-addons
    post_deploy:
      restart_service: true
      update_modules: true
      # Database used for module updates.
      database: staging

  production:
    type: git-push
    enabled: true
    git_push:
      project_id: "12345"
      branch: production
      # Token read from the environment at load time.
      api_token: ${ODOO_SH_TOKEN}
      git_url: git@github.com:example/odoo-project.git
    require_confirmation: true
    require_git_tag: true
    post_deploy:
      open_browser: true

backup:
  enabled: true
  keep_last: 5

validations:
  check_manifest: true
  check_python_syntax: true
  check_xml_syntax: true
`

var templates = map[string]string{
	"empty":    emptyTemplate,
	"basic":    basicTemplate,
	"advanced": advancedTemplate,
}

// DefaultTemplate is used by init when no template is named.
const DefaultTemplate = "basic"

// Template returns the YAML text of the named template.
func Template(name string) ([]byte, error) {
	t, ok := templates[name]
	if !ok {
		return nil, fmt.Errorf("unknown template %q (available: %v)", name, TemplateNames())
	}
	return []byte(t), nil
}

// TemplateNames returns the available template names, sorted.
func TemplateNames() []string {
	names := make([]string, 0, len(templates))
	for n := range templates {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
