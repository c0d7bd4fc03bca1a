package disguise

import (
	"context"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/masomo-disguise/core"
	"github.com/trezcool/masomo-disguise/core/user"
)

// Context levels
const (
	LevelCourse = "course"
	LevelModule = "module"
)

// Context is a scope (course, module) to which a disguise binding and its configuration apply.
type Context struct {
	ID        string    `json:"id"`
	Level     string    `json:"level"`
	Name      string    `json:"name"`
	ParentID  string    `json:"parent_id,omitempty"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

// NewContext contains information needed to register a new Context.
type NewContext struct {
	Level    string `json:"level" validate:"required,oneof=course module"`
	Name     string `json:"name" validate:"required,max=255"`
	ParentID string `json:"parent_id" validate:"omitempty,uuid"`
}

func (nc *NewContext) Validate(validate *validator.Validate) error {
	nc.Level = core.CleanString(nc.Level, true /* lower */)
	nc.Name = core.CleanString(nc.Name)
	nc.ParentID = core.CleanString(nc.ParentID, true /* lower */)
	return validate.Struct(nc)
}

type ContextFilter struct {
	Search   string `query:"search"`
	Level    string `query:"level"`
	ParentID string `query:"parent_id"`
}

func (cf *ContextFilter) Clean() {
	cf.Search = core.CleanString(cf.Search)
	cf.Level = core.CleanString(cf.Level, true /* lower */)
	cf.ParentID = core.CleanString(cf.ParentID, true /* lower */)
}

// Binding associates a Context with a disguise variant. There is at most one Binding per Context.
type Binding struct {
	ContextID  string    `json:"context_id"`
	Variant    string    `json:"variant"`
	Configured bool      `json:"configured"`
	CreatedAt  time.Time `json:"created_at"` // UTC
	UpdatedAt  time.Time `json:"updated_at"` // UTC
}

// Config holds the key/value settings of a Binding.
type Config map[string]string

// Get returns the value of key, or "" when unset.
func (c Config) Get(key string) string {
	if c == nil {
		return ""
	}
	return c[key]
}

// Merge returns a new Config holding c overlaid with `over`.
func (c Config) Merge(over Config) Config {
	merged := make(Config, len(c)+len(over))
	for k, v := range c {
		merged[k] = v
	}
	for k, v := range over {
		merged[k] = v
	}
	return merged
}

// Keys returns the sorted keys of c.
func (c Config) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// NavEntry is an admin UI affordance exposed by a variant.
type NavEntry struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	URL   string `json:"url"`
}

// DisplayOptions carries what a Plugin needs to compute an alias.
type DisplayOptions struct {
	Context Context
	Config  Config // defaults overlaid with stored settings
}

// Overview describes the disguise state of a Context for the admin surface.
type Overview struct {
	Context    Context    `json:"context"`
	Binding    *Binding   `json:"binding"`
	Settings   Config     `json:"settings"`
	Active     bool       `json:"active"`
	Navigation []NavEntry `json:"navigation"`
	Variants   []string   `json:"variants"`
}

// Setup contains the settings submitted by the admin setup surface.
type Setup struct {
	Settings Config `json:"settings"`
}

// BindRequest selects the variant to bind to a Context.
type BindRequest struct {
	Variant string `json:"variant" validate:"required"`
}

// RevealRequest toggles the reveal state of the requesting viewer.
type RevealRequest struct {
	Reveal   bool   `json:"reveal"`
	ReturnTo string `json:"return_to" validate:"omitempty,localpath"`
}

func (rr *RevealRequest) Validate(validate *validator.Validate) error {
	rr.ReturnTo = core.CleanString(rr.ReturnTo)
	return validate.Struct(rr)
}

// UserGetter looks up real identities.
type UserGetter interface {
	GetByID(ctx context.Context, id string) (user.User, error)
}
