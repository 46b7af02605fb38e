package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/robert-malhotra/scene-chipper/internal/scene"
)

// CollectionConfig describes how scenes of one catalog collection are read. It is
// typically loaded from JSON or YAML files in the collections directory.
type CollectionConfig struct {
	ID          string   `json:"id" yaml:"id"`
	Title       string   `json:"title" yaml:"title"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Family      string   `json:"family" yaml:"family"`
	Platforms   []string `json:"platforms,omitempty" yaml:"platforms,omitempty"`

	// Assets maps roles ("visual", or "red", "green", "blue") to the collection's asset keys.
	Assets map[string]string `json:"assets" yaml:"assets"`
}

// Asset roles read by the extractors.
const (
	AssetVisual = "visual"
	AssetRed    = "red"
	AssetGreen  = "green"
	AssetBlue   = "blue"
)

// ParsedFamily returns the scene family named by the Family field.
func (c *CollectionConfig) ParsedFamily() scene.Family {
	switch strings.ToLower(c.Family) {
	case scene.FamilyHighResolution.String():
		return scene.FamilyHighResolution
	case scene.FamilyModerateResolution.String():
		return scene.FamilyModerateResolution
	default:
		return scene.FamilyUnknown
	}
}

// AssetKey returns the asset key for a role, defaulting to the role name itself.
func (c *CollectionConfig) AssetKey(role string) string {
	if key, ok := c.Assets[role]; ok && key != "" {
		return key
	}
	return role
}

// DefaultCollections returns the built-in Sentinel-2 L2A and Landsat Collection 2 L2
// definitions of the Planetary Computer catalog.
func DefaultCollections() *CollectionRegistry {
	registry := NewCollectionRegistry()
	registry.Add(&CollectionConfig{
		ID:          "sentinel-2-l2a",
		Title:       "Sentinel-2 Level-2A",
		Description: "Sentinel-2 surface reflectance with a pre-rendered true-color product",
		Family:      scene.FamilyHighResolution.String(),
		Platforms:   []string{"sentinel-2a", "sentinel-2b"},
		Assets:      map[string]string{AssetVisual: "visual"},
	})
	registry.Add(&CollectionConfig{
		ID:          "landsat-c2-l2",
		Title:       "Landsat Collection 2 Level-2",
		Description: "Landsat surface reflectance delivered as separate bands",
		Family:      scene.FamilyModerateResolution.String(),
		Platforms:   []string{"landsat-8"},
		Assets:      map[string]string{AssetRed: "red", AssetGreen: "green", AssetBlue: "blue"},
	})
	return registry
}

// CollectionRegistry holds all loaded collection configurations indexed by ID.
type CollectionRegistry struct {
	collections map[string]*CollectionConfig
}

// NewCollectionRegistry creates a new empty collection registry.
func NewCollectionRegistry() *CollectionRegistry {
	return &CollectionRegistry{
		collections: make(map[string]*CollectionConfig),
	}
}

// LoadCollections loads collection definitions from JSON and YAML files in the specified
// directory. Files with a .json, .yaml or .yml extension are processed.
func LoadCollections(collectionsDir string) (*CollectionRegistry, error) {
	registry := NewCollectionRegistry()

	info, err := os.Stat(collectionsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to access collections directory %q: %w", collectionsDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("collections path %q is not a directory", collectionsDir)
	}

	entries, err := os.ReadDir(collectionsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read collections directory %q: %w", collectionsDir, err)
	}

	loadedCount := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			continue
		}

		filePath := filepath.Join(collectionsDir, entry.Name())
		collection, err := loadCollectionFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load collection from %q: %w", filePath, err)
		}

		if err := registry.Add(collection); err != nil {
			return nil, fmt.Errorf("failed to add collection from %q: %w", filePath, err)
		}

		loadedCount++
	}

	if loadedCount == 0 {
		return nil, fmt.Errorf("no collection files found in %q", collectionsDir)
	}

	return registry, nil
}

// loadCollectionFile loads a single collection configuration from a JSON or YAML file.
func loadCollectionFile(filePath string) (*CollectionConfig, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var collection CollectionConfig
	if strings.EqualFold(filepath.Ext(filePath), ".json") {
		if err := json.Unmarshal(data, &collection); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &collection); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	if err := validateCollection(&collection); err != nil {
		return nil, fmt.Errorf("invalid collection configuration: %w", err)
	}

	return &collection, nil
}

// validateCollection checks that a collection configuration is valid.
func validateCollection(c *CollectionConfig) error {
	if c.ID == "" {
		return fmt.Errorf("collection ID is required")
	}

	if c.Title == "" {
		return fmt.Errorf("collection title is required")
	}

	if c.ParsedFamily() == scene.FamilyUnknown {
		return fmt.Errorf("collection family must be %q or %q, got %q",
			scene.FamilyHighResolution, scene.FamilyModerateResolution, c.Family)
	}

	for role, key := range c.Assets {
		if key == "" {
			return fmt.Errorf("asset key for role %q cannot be empty", role)
		}
	}

	for _, p := range c.Platforms {
		if scene.FamilyOf(p) != c.ParsedFamily() {
			return fmt.Errorf("platform %q does not belong to the %s family", p, c.Family)
		}
	}

	return nil
}

// Add registers a collection in the registry.
// Returns an error if a collection with the same ID already exists.
func (r *CollectionRegistry) Add(collection *CollectionConfig) error {
	if collection == nil {
		return fmt.Errorf("cannot add nil collection")
	}

	if _, exists := r.collections[collection.ID]; exists {
		return fmt.Errorf("collection with ID %q already exists", collection.ID)
	}

	r.collections[collection.ID] = collection
	return nil
}

// Get retrieves a collection by ID.
// Returns nil if the collection does not exist.
func (r *CollectionRegistry) Get(id string) *CollectionConfig {
	return r.collections[id]
}

// Has checks if a collection with the given ID exists in the registry.
func (r *CollectionRegistry) Has(id string) bool {
	_, exists := r.collections[id]
	return exists
}

// IDs returns all collection IDs in the registry in lexical order.
func (r *CollectionRegistry) IDs() []string {
	ids := make([]string, 0, len(r.collections))
	for id := range r.collections {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of collections in the registry.
func (r *CollectionRegistry) Count() int {
	return len(r.collections)
}

// ForFamily returns the first collection (by ID) of the given family, or nil.
func (r *CollectionRegistry) ForFamily(f scene.Family) *CollectionConfig {
	for _, id := range r.IDs() {
		if c := r.collections[id]; c.ParsedFamily() == f {
			return c
		}
	}
	return nil
}

// Platforms returns the union of platforms of the given collections, in order of
// first appearance. Unknown collection IDs are ignored.
func (r *CollectionRegistry) Platforms(collectionIDs []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, id := range collectionIDs {
		c := r.Get(id)
		if c == nil {
			continue
		}
		for _, p := range c.Platforms {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}
