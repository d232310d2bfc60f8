package destination

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mixpanel/action-destinations-sub001/internal/mapping"
)

// SubscriptionSet is one destination's subscription rules as loaded from a
// YAML file, fingerprinted for staleness detection.
type SubscriptionSet struct {
	Destination   string
	Subscriptions []Subscription
	Fingerprint   string // SHA-256 of the raw YAML file; computed at load time
}

// rawSubscriptionFile is the on-disk YAML shape. One file configures one
// destination.
type rawSubscriptionFile struct {
	Destination   string         `yaml:"destination"`
	Subscriptions []Subscription `yaml:"subscriptions"`
}

// SubscriptionRepository loads subscription rules per destination.
type SubscriptionRepository interface {
	// Get returns the subscription set for the given destination id, or
	// false when none is configured.
	Get(destinationID string) (*SubscriptionSet, bool)

	// Sets returns all loaded subscription sets.
	Sets() []SubscriptionSet
}

// FileSubscriptionRepository loads subscription sets from *.yaml files in a
// directory. Each file configures exactly one destination. Files are loaded
// once at startup and cached in memory; there is no hot reload.
//
// Mappings are validated structurally at load time so a bad directive tree
// fails startup instead of the first matching event.
type FileSubscriptionRepository struct {
	dir      string
	registry *mapping.Registry
	sets     map[string]SubscriptionSet // keyed by destination id
}

// NewFileSubscriptionRepository creates a repository and eagerly loads all
// subscription files from dir. Returns an error if any file is malformed,
// names a duplicate destination, or carries an invalid mapping.
func NewFileSubscriptionRepository(dir string, registry *mapping.Registry) (*FileSubscriptionRepository, error) {
	repo := &FileSubscriptionRepository{
		dir:      dir,
		registry: registry,
		sets:     make(map[string]SubscriptionSet),
	}
	if err := repo.load(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *FileSubscriptionRepository) load() error {
	info, err := os.Stat(r.dir)
	if os.IsNotExist(err) {
		return nil // no subscriptions directory means zero destinations configured
	}
	if err != nil {
		return fmt.Errorf("subscription dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("subscription path %q is not a directory", r.dir)
	}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("reading subscription dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || (!strings.HasSuffix(e.Name(), ".yaml") && !strings.HasSuffix(e.Name(), ".yml")) {
			continue
		}

		path := filepath.Join(r.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading subscription file %s: %w", path, err)
		}

		var raw rawSubscriptionFile
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("parsing subscription file %s: %w", path, err)
		}
		if raw.Destination == "" && len(raw.Subscriptions) == 0 {
			continue // skip empty / comment-only files
		}
		if raw.Destination == "" {
			return fmt.Errorf("subscription file %s: destination must not be empty", path)
		}

		if _, exists := r.sets[raw.Destination]; exists {
			return fmt.Errorf("destination %q: duplicate subscription file (check multiple YAML files)", raw.Destination)
		}

		// YAML numbers decode as int; the evaluator and matcher operate on
		// the JSON value model, so normalize before validating.
		subs := make([]Subscription, len(raw.Subscriptions))
		seen := make(map[string]bool, len(raw.Subscriptions))
		for i, sub := range raw.Subscriptions {
			if sub.Name == "" {
				return fmt.Errorf("subscription file %s: subscription %d requires a name", path, i)
			}
			if seen[sub.Name] {
				return fmt.Errorf("destination %q: duplicate subscription %q", raw.Destination, sub.Name)
			}
			seen[sub.Name] = true
			if sub.PartnerAction == "" {
				return fmt.Errorf("subscription %q: partner_action must not be empty", sub.Name)
			}
			sub.Subscribe = normalizeYAMLMap(sub.Subscribe)
			sub.Mapping = normalizeYAMLMap(sub.Mapping)
			sub.Settings = normalizeYAMLMap(sub.Settings)
			if sub.Mapping != nil {
				if err := mapping.Validate(r.registry, map[string]any(sub.Mapping)); err != nil {
					return fmt.Errorf("subscription %q: invalid mapping: %w", sub.Name, err)
				}
			}
			subs[i] = sub
		}

		r.sets[raw.Destination] = SubscriptionSet{
			Destination:   raw.Destination,
			Subscriptions: subs,
			Fingerprint:   fmt.Sprintf("%x", sha256.Sum256(data)),
		}
	}
	return nil
}

// Get returns the subscription set for the given destination id.
func (r *FileSubscriptionRepository) Get(destinationID string) (*SubscriptionSet, bool) {
	set, ok := r.sets[destinationID]
	if !ok {
		return nil, false
	}
	return &set, true
}

// Sets returns all loaded subscription sets.
func (r *FileSubscriptionRepository) Sets() []SubscriptionSet {
	out := make([]SubscriptionSet, 0, len(r.sets))
	for _, set := range r.sets {
		out = append(out, set)
	}
	return out
}

// normalizeYAMLMap converts a YAML-decoded map to the JSON value model:
// integers become float64, nested map[any]any keys become strings.
func normalizeYAMLMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out, _ := normalizeYAML(m).(map[string]any)
	return out
}

func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeYAML(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeYAML(val)
		}
		return out
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case uint64:
		return float64(t)
	default:
		return v
	}
}
