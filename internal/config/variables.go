package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/fgeck/pgbackctl/internal/models"
)

// Names of the built-in session variables.
const (
	VarLogLevel       = "log_level"
	VarLogJSON        = "log_json"
	VarArchiveDir     = "archive_directory"
	VarMaxWorkerJobs  = "max_worker_jobs"
	VarBackupProfile  = "backup_profile"
	VarWALCleanupMode = "wal_cleanup_mode"
)

// Variable is one typed session variable with its default value.
type Variable struct {
	Name       string
	Type       models.VariableType
	EnumValues []string

	defStr  string
	defBool bool
	defInt  int

	valStr  string
	valBool bool
	valInt  int
}

// String renders the current value for SHOW output.
func (v *Variable) String() string {
	switch v.Type {
	case models.VarTypeBool:
		return strconv.FormatBool(v.valBool)
	case models.VarTypeInteger:
		return strconv.Itoa(v.valInt)
	case models.VarTypeString, models.VarTypeEnum:
		return v.valStr
	}
	return ""
}

// StringValue returns the string payload of a string or enum variable.
func (v *Variable) StringValue() (string, error) {
	if v.Type != models.VarTypeString && v.Type != models.VarTypeEnum {
		return "", models.NewCatalogError("variable %q is not string valued", v.Name)
	}
	return v.valStr, nil
}

// BoolValue returns the payload of a boolean variable.
func (v *Variable) BoolValue() (bool, error) {
	if v.Type != models.VarTypeBool {
		return false, models.NewCatalogError("variable %q is not boolean valued", v.Name)
	}
	return v.valBool, nil
}

// IntValue returns the payload of an integer variable.
func (v *Variable) IntValue() (int, error) {
	if v.Type != models.VarTypeInteger {
		return 0, models.NewCatalogError("variable %q is not integer valued", v.Name)
	}
	return v.valInt, nil
}

func (v *Variable) reset() {
	v.valStr = v.defStr
	v.valBool = v.defBool
	v.valInt = v.defInt
}

// Variables is the session variable registry. The zero value is not
// usable; NewVariables registers the built-in set.
type Variables struct {
	vars map[string]*Variable
}

// NewVariables builds a registry holding the built-in session
// variables at their defaults.
func NewVariables() *Variables {
	r := &Variables{vars: map[string]*Variable{}}

	r.register(&Variable{
		Name:       VarLogLevel,
		Type:       models.VarTypeEnum,
		EnumValues: []string{"debug", "info", "warn", "error"},
		defStr:     "info",
	})
	r.register(&Variable{Name: VarLogJSON, Type: models.VarTypeBool})
	r.register(&Variable{Name: VarArchiveDir, Type: models.VarTypeString})
	r.register(&Variable{Name: VarMaxWorkerJobs, Type: models.VarTypeInteger, defInt: 1})
	r.register(&Variable{Name: VarBackupProfile, Type: models.VarTypeString, defStr: models.DefaultProfileName})
	r.register(&Variable{
		Name:       VarWALCleanupMode,
		Type:       models.VarTypeEnum,
		EnumValues: []string{"offset", "all", "none"},
		defStr:     "offset",
	})

	return r
}

func (r *Variables) register(v *Variable) {
	v.reset()
	r.vars[v.Name] = v
}

// Get returns the named variable.
func (r *Variables) Get(name string) (*Variable, error) {
	v, ok := r.vars[name]
	if !ok {
		return nil, models.NewCatalogError("unknown variable %q", name)
	}
	return v, nil
}

// Names returns all registered variable names sorted alphabetically.
func (r *Variables) Names() []string {
	names := make([]string, 0, len(r.vars))
	for name := range r.vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetString assigns a string or enum variable. Enum assignments are
// validated against the allowed values.
func (r *Variables) SetString(name, value string) error {
	v, err := r.Get(name)
	if err != nil {
		return err
	}
	switch v.Type {
	case models.VarTypeString:
		v.valStr = value
		return nil
	case models.VarTypeEnum:
		for _, allowed := range v.EnumValues {
			if value == allowed {
				v.valStr = value
				return nil
			}
		}
		return models.NewCatalogError("variable %q accepts one of: %s",
			name, strings.Join(v.EnumValues, ", "))
	}
	return models.NewCatalogError("variable %q is not string valued", name)
}

// SetBool assigns a boolean variable.
func (r *Variables) SetBool(name string, value bool) error {
	v, err := r.Get(name)
	if err != nil {
		return err
	}
	if v.Type != models.VarTypeBool {
		return models.NewCatalogError("variable %q is not boolean valued", name)
	}
	v.valBool = value
	return nil
}

// SetInt assigns an integer variable.
func (r *Variables) SetInt(name string, value int) error {
	v, err := r.Get(name)
	if err != nil {
		return err
	}
	if v.Type != models.VarTypeInteger {
		return models.NewCatalogError("variable %q is not integer valued", name)
	}
	v.valInt = value
	return nil
}

// SetFromString assigns any variable from its textual representation,
// converting to the variable's type first.
func (r *Variables) SetFromString(name, value string) error {
	v, err := r.Get(name)
	if err != nil {
		return err
	}
	switch v.Type {
	case models.VarTypeBool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return models.NewCatalogError("variable %q expects a boolean, got %q", name, value)
		}
		return r.SetBool(name, b)
	case models.VarTypeInteger:
		n, err := strconv.Atoi(value)
		if err != nil {
			return models.NewCatalogError("variable %q expects an integer, got %q", name, value)
		}
		return r.SetInt(name, n)
	}
	return r.SetString(name, value)
}

// Reset restores a variable to its default value.
func (r *Variables) Reset(name string) error {
	v, err := r.Get(name)
	if err != nil {
		return err
	}
	v.reset()
	return nil
}

// Show renders one variable as "name = value".
func (r *Variables) Show(name string) (string, error) {
	v, err := r.Get(name)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s = %s", v.Name, v.String()), nil
}

// ShowAll renders every variable, one per line, sorted by name.
func (r *Variables) ShowAll() string {
	var b strings.Builder
	for _, name := range r.Names() {
		line, _ := r.Show(name)
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}
