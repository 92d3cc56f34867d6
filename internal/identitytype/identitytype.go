// Package identitytype holds the enumerated set of identity types an issuer
// can mint and the metadata fields each one requires.
package identitytype

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"idvault/internal/apperr"
)

var (
	ErrUnknownType     = apperr.New(apperr.ErrValidation, "unknown identity type")
	ErrMissingMetadata = apperr.New(apperr.ErrValidation, "all required fields must be filled in")
	ErrUnknownField    = apperr.New(apperr.ErrValidation, "metadata contains a field the identity type does not define")
)

// Type describes one issuable identity type.
type Type struct {
	Key         string   `json:"key"`
	DisplayName string   `json:"display_name"`
	Fields      []string `json:"fields"`
}

// HasField reports whether name is one of the type's fields.
func (t Type) HasField(name string) bool {
	return slices.Contains(t.Fields, name)
}

// Built-in identity types.
var (
	GovernmentID = Type{
		Key:         "government-id",
		DisplayName: "Government ID",
		Fields:      []string{"Full Name", "Date of Birth", "ID Number", "Issuing Authority"},
	}
	ProfessionalLicense = Type{
		Key:         "professional-license",
		DisplayName: "Professional License",
		Fields:      []string{"License Number", "Profession", "Issue Date", "Valid Until"},
	}
	EducationalCredential = Type{
		Key:         "educational-credential",
		DisplayName: "Educational Credential",
		Fields:      []string{"Degree", "Institution", "Graduation Date", "Student ID"},
	}
	EmploymentVerification = Type{
		Key:         "employment-verification",
		DisplayName: "Employment Verification",
		Fields:      []string{"Company Name", "Position", "Start Date", "Employee ID"},
	}
)

// Registry holds all registered identity types.
type Registry struct {
	mu    sync.RWMutex
	types map[string]Type
}

// NewRegistry creates a registry with the built-in types.
func NewRegistry() *Registry {
	r := &Registry{types: make(map[string]Type)}

	r.Register(GovernmentID)
	r.Register(ProfessionalLicense)
	r.Register(EducationalCredential)
	r.Register(EmploymentVerification)

	return r
}

// Register adds a type to the registry, replacing any type with the same key.
func (r *Registry) Register(t Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[t.Key] = t
}

// Get returns a type by key.
func (r *Registry) Get(key string) (Type, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.types[key]
	if !ok {
		return Type{}, ErrUnknownType
	}
	return t, nil
}

// List returns all registered types sorted by key.
func (r *Registry) List() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]Type, 0, len(r.types))
	for _, t := range r.types {
		types = append(types, t)
	}
	slices.SortFunc(types, func(a, b Type) int { return strings.Compare(a.Key, b.Key) })
	return types
}

// ValidateMetadata checks that metadata carries exactly the fields of the type
// keyed by typeKey, each with a non-blank value.
func (r *Registry) ValidateMetadata(typeKey string, metadata map[string]string) error {
	t, err := r.Get(typeKey)
	if err != nil {
		return err
	}

	for _, field := range t.Fields {
		if strings.TrimSpace(metadata[field]) == "" {
			return fmt.Errorf("%w: %q", ErrMissingMetadata, field)
		}
	}
	for field := range metadata {
		if !t.HasField(field) {
			return fmt.Errorf("%w: %q", ErrUnknownField, field)
		}
	}
	return nil
}
