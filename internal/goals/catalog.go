package goals

import (
	_ "embed"
	"fmt"

	"github.com/BurntSushi/toml"
)

//go:embed catalog.toml
var defaultCatalog []byte

// Catalog is an ordered, read-only set of goals.
type Catalog struct {
	goals []Goal
	byID  map[string]int
}

type catalogFile struct {
	Goals []Goal `toml:"goals"`
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Parse decodes a TOML catalog and validates every goal.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	md, err := toml.Decode(string(data), &file)
	if err != nil {
		return nil, fmt.Errorf("decoding goal catalog: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown keys in goal catalog: %v", undecoded)
	}

	c := &Catalog{byID: make(map[string]int, len(file.Goals))}
	for _, g := range file.Goals {
		if err := g.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byID[g.ID]; dup {
			return nil, fmt.Errorf("duplicate goal %q", g.ID)
		}
		c.byID[g.ID] = len(c.goals)
		c.goals = append(c.goals, g)
	}
	if len(c.goals) == 0 {
		return nil, fmt.Errorf("goal catalog is empty")
	}
	return c, nil
}

// Get returns the goal with the given id.
func (c *Catalog) Get(id string) (Goal, error) {
	i, ok := c.byID[id]
	if !ok {
		return Goal{}, fmt.Errorf("%w: %s", ErrGoalNotFound, id)
	}
	return c.goals[i], nil
}

// List returns all goals in catalog order.
func (c *Catalog) List() []Goal {
	out := make([]Goal, len(c.goals))
	copy(out, c.goals)
	return out
}
