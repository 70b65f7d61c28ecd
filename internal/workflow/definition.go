package workflow

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/dataanalyst1029/rfg-standardized-forms-sub001/internal/models"
)

// EvidenceSpec declares what a stage requires before it counts as executed.
type EvidenceSpec struct {
	ActorName   bool     `mapstructure:"actor_name"`
	Signature   bool     `mapstructure:"signature"`
	ExtraFields []string `mapstructure:"extra_fields"`
}

// StageSpec is one role-gated step in a form type's approval sequence.
type StageSpec struct {
	Name     string       `mapstructure:"name" validate:"required"`
	Role     string       `mapstructure:"role" validate:"required"`
	Evidence EvidenceSpec `mapstructure:"evidence"`
}

// Definition is the ordered stage list for one form type. Definitions are
// immutable after load and safe for concurrent reads.
type Definition struct {
	FormType   string      `mapstructure:"-" validate:"required"`
	CodePrefix string      `mapstructure:"code_prefix" validate:"required,alphanum"`
	Stages     []StageSpec `mapstructure:"stages" validate:"required,min=1,dive"`
}

// Registry holds the workflow definitions for every known form type.
type Registry struct {
	definitions map[string]*Definition
}

// NewRegistry validates the given definitions and builds a registry.
// Definition inconsistencies are configuration errors and fail the load.
func NewRegistry(defs []Definition) (*Registry, error) {
	validate := validator.New()

	r := &Registry{definitions: make(map[string]*Definition, len(defs))}
	for i := range defs {
		def := defs[i]
		if err := validate.Struct(def); err != nil {
			return nil, fmt.Errorf("%w: form type %q: %v", ErrConfiguration, def.FormType, err)
		}
		if _, dup := r.definitions[def.FormType]; dup {
			return nil, fmt.Errorf("%w: duplicate form type %q", ErrConfiguration, def.FormType)
		}
		seen := make(map[string]bool, len(def.Stages))
		for _, stage := range def.Stages {
			if seen[stage.Name] {
				return nil, fmt.Errorf("%w: form type %q: duplicate stage %q", ErrConfiguration, def.FormType, stage.Name)
			}
			if models.Status(stage.Name).IsTerminal() {
				return nil, fmt.Errorf("%w: form type %q: stage %q collides with a terminal marker", ErrConfiguration, def.FormType, stage.Name)
			}
			seen[stage.Name] = true
		}
		r.definitions[def.FormType] = &def
	}

	if len(r.definitions) == 0 {
		return nil, fmt.Errorf("%w: no workflow definitions configured", ErrConfiguration)
	}

	return r, nil
}

// Definition returns the workflow definition for a form type.
func (r *Registry) Definition(formType string) (*Definition, error) {
	def, ok := r.definitions[formType]
	if !ok {
		return nil, fmt.Errorf("%w: unknown form type %q", ErrConfiguration, formType)
	}
	return def, nil
}

// FormTypes returns all registered form type identifiers.
func (r *Registry) FormTypes() []string {
	types := make([]string, 0, len(r.definitions))
	for formType := range r.definitions {
		types = append(types, formType)
	}
	return types
}

// FirstStage returns the stage a freshly created request awaits.
func (r *Registry) FirstStage(formType string) (StageSpec, error) {
	def, err := r.Definition(formType)
	if err != nil {
		return StageSpec{}, err
	}
	return def.Stages[0], nil
}

// StageFor resolves the stage spec matching a request's current status.
func (r *Registry) StageFor(formType string, status models.Status) (StageSpec, error) {
	def, err := r.Definition(formType)
	if err != nil {
		return StageSpec{}, err
	}
	for _, stage := range def.Stages {
		if stage.Name == string(status) {
			return stage, nil
		}
	}
	return StageSpec{}, fmt.Errorf("%w: form type %q has no stage %q", ErrConfiguration, formType, status)
}

// NextStatus returns the status a request moves to once the named stage has
// been executed: the following stage's name, or Completed after the last.
func (r *Registry) NextStatus(formType, stageName string) (models.Status, error) {
	def, err := r.Definition(formType)
	if err != nil {
		return "", err
	}
	for i, stage := range def.Stages {
		if stage.Name == stageName {
			if i == len(def.Stages)-1 {
				return models.StatusCompleted, nil
			}
			return models.Status(def.Stages[i+1].Name), nil
		}
	}
	return "", fmt.Errorf("%w: form type %q has no stage %q", ErrConfiguration, formType, stageName)
}

// RoleStages returns, per form type, the stage names granted to a role.
// The role-scoped query uses this to narrow its status filter.
func (r *Registry) RoleStages(role string) map[string][]string {
	stages := make(map[string][]string)
	for formType, def := range r.definitions {
		for _, stage := range def.Stages {
			if stage.Role == role {
				stages[formType] = append(stages[formType], stage.Name)
			}
		}
	}
	return stages
}

// StageOrder returns the position of a stage in its form type's sequence,
// used to order audit trail entries.
func (r *Registry) StageOrder(formType, stageName string) (int, error) {
	def, err := r.Definition(formType)
	if err != nil {
		return 0, err
	}
	for i, stage := range def.Stages {
		if stage.Name == stageName {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: form type %q has no stage %q", ErrConfiguration, formType, stageName)
}

// LoadDefinitions reads workflow definitions from a YAML file. The file maps
// form type identifiers to their stage lists; see configs/workflows.yaml.
func LoadDefinitions(path string) ([]Definition, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read workflow definitions: %w", err)
	}

	raw := map[string]Definition{}
	if err := v.UnmarshalKey("workflows", &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow definitions: %w", err)
	}

	defs := make([]Definition, 0, len(raw))
	for formType, def := range raw {
		def.FormType = formType
		defs = append(defs, def)
	}
	return defs, nil
}
