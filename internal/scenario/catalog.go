package scenario

import (
	"bytes"
	"embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/foodbank-alloc/fbdam/pkg/config"
)

//go:embed catalogs/*.yaml
var catalogFS embed.FS

const (
	constraintsCatalog = "catalogs/constraints.yaml"
	objectivesCatalog  = "catalogs/objectives.yaml"
)

type constraintsDoc struct {
	Version     string                     `yaml:"version"`
	Constraints []config.CatalogConstraint `yaml:"constraints"`
}

type objectivesDoc struct {
	Version    string                    `yaml:"version"`
	Objectives []config.CatalogObjective `yaml:"objectives"`
}

var loadCatalog = sync.OnceValues(func() (*config.Catalog, error) {
	var cons constraintsDoc
	if err := decodeEmbedded(constraintsCatalog, &cons); err != nil {
		return nil, err
	}
	var objs objectivesDoc
	if err := decodeEmbedded(objectivesCatalog, &objs); err != nil {
		return nil, err
	}
	return config.NewCatalog(cons.Constraints, objs.Objectives)
})

// Catalog returns the packaged constraint and objective catalog.
func Catalog() (*config.Catalog, error) {
	return loadCatalog()
}

func decodeEmbedded(name string, out any) error {
	raw, err := catalogFS.ReadFile(name)
	if err != nil {
		return fmt.Errorf("%w: reading packaged %s: %w", config.ErrConfig, name, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: packaged %s: %w", config.ErrConfig, name, err)
	}
	return nil
}
