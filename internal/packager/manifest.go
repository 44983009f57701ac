package packager

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rocketdoo/rkd/internal/module"
)

// DeploymentManifest records what a deployment shipped.
type DeploymentManifest struct {
	DeploymentDate string          `json:"deployment_date"`
	TotalModules   int             `json:"total_modules"`
	Modules        []ManifestEntry `json:"modules"`
}

// ManifestEntry describes one shipped module.
type ManifestEntry struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Path      string   `json:"path"`
	SizeBytes int64    `json:"size_bytes"`
	Depends   []string `json:"depends"`
}

// BuildManifest describes mods as they would be staged.
func (p *Packager) BuildManifest(mods []*module.Module) (*DeploymentManifest, error) {
	dm := &DeploymentManifest{
		DeploymentDate: p.now().Format(time.RFC3339),
		TotalModules:   len(mods),
		Modules:        make([]ManifestEntry, 0, len(mods)),
	}
	for _, m := range mods {
		size, err := p.ModuleSize(m)
		if err != nil {
			return nil, err
		}
		dm.Modules = append(dm.Modules, ManifestEntry{
			Name:      m.Name,
			Version:   m.Version(),
			Path:      m.Path,
			SizeBytes: size,
			Depends:   m.Depends(),
		})
	}
	return dm, nil
}

// WriteManifest writes the deployment manifest of mods as indented JSON.
func (p *Packager) WriteManifest(mods []*module.Module, path string) error {
	dm, err := p.BuildManifest(mods)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(dm, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	p.logger.Info("manifest written", "path", path, "modules", len(mods))
	return nil
}
