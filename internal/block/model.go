package block

import (
	"time"

	"github.com/google/uuid"
	"github.com/nrednav/cuid2"
)

// Field selects one named metadata field of one of the owner's credentials.
type Field struct {
	ID           string    `json:"id"`
	CredentialID uuid.UUID `json:"credential_id"`
	FieldName    string    `json:"field_name"`
}

// Block is a named, ordered selection of credential fields.
type Block struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	Name      string    `json:"name"`
	Fields    []Field   `json:"fields"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ResolvedField is a block field with the credential value it points at.
type ResolvedField struct {
	FieldID        string    `json:"field_id"`
	CredentialID   uuid.UUID `json:"credential_id"`
	CredentialType string    `json:"credential_type"`
	Issuer         string    `json:"issuer"`
	FieldName      string    `json:"field_name"`
	Value          string    `json:"value"`
}

// Draft is a block being assembled in memory. Nothing is stored until it is
// passed to Manager.Save.
type Draft struct {
	Name   string  `json:"name"`
	Fields []Field `json:"fields"`
}

// AddField appends a field with a fresh ID and returns it. The same credential
// field may be added more than once.
func (d *Draft) AddField(credentialID uuid.UUID, fieldName string) Field {
	f := Field{ID: cuid2.Generate(), CredentialID: credentialID, FieldName: fieldName}
	d.Fields = append(d.Fields, f)
	return f
}

// RemoveField drops the field with the given ID, keeping the order of the
// rest. It reports whether a field was removed.
func (d *Draft) RemoveField(fieldID string) bool {
	for i, f := range d.Fields {
		if f.ID == fieldID {
			d.Fields = append(d.Fields[:i], d.Fields[i+1:]...)
			return true
		}
	}
	return false
}
