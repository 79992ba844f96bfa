package cdm

// EntityType identifies a common-model entity.
type EntityType string

const (
	EntityPatient     EntityType = "patient"
	EntityProvider    EntityType = "provider"
	EntityTransaction EntityType = "transaction"
)

// FieldType drives normalization and validation of a common field.
type FieldType int

const (
	FieldText FieldType = iota
	FieldDate
	FieldMoney
)

// FieldSpec describes one column of the common data model.
type FieldSpec struct {
	Name     string
	Type     FieldType
	Required bool
	// Enriched fields are populated from the reference lookup service,
	// never from source columns, and never participate in versioning.
	Enriched bool
}

// Schema is the common data model for one entity type.
type Schema struct {
	Entity          EntityType
	NaturalKeyField string
	Fields          []FieldSpec
	// TrackedFields is the explicit list of fields compared during an
	// SCD2 merge. Anything outside it is non-versioning metadata.
	TrackedFields []string
	// Dimension entities project to one gold row per surrogate key;
	// non-dimension entities project to fact rows.
	Dimension bool
}

var schemas = map[EntityType]Schema{
	EntityPatient: {
		Entity:          EntityPatient,
		NaturalKeyField: "patient_id",
		Fields: []FieldSpec{
			{Name: "patient_id", Type: FieldText, Required: true},
			{Name: "first_name", Type: FieldText, Required: true},
			{Name: "last_name", Type: FieldText, Required: true},
			{Name: "date_of_birth", Type: FieldDate, Required: true},
			{Name: "gender", Type: FieldText},
			{Name: "payer_code", Type: FieldText},
			{Name: "payer_name", Type: FieldText, Enriched: true},
		},
		TrackedFields: []string{"first_name", "last_name", "date_of_birth", "gender", "payer_code"},
		Dimension:     true,
	},
	EntityProvider: {
		Entity:          EntityProvider,
		NaturalKeyField: "provider_id",
		Fields: []FieldSpec{
			{Name: "provider_id", Type: FieldText, Required: true},
			{Name: "provider_name", Type: FieldText, Required: true},
			{Name: "specialty", Type: FieldText},
			{Name: "department", Type: FieldText},
		},
		TrackedFields: []string{"provider_name", "specialty", "department"},
		Dimension:     true,
	},
	EntityTransaction: {
		Entity:          EntityTransaction,
		NaturalKeyField: "transaction_id",
		Fields: []FieldSpec{
			{Name: "transaction_id", Type: FieldText, Required: true},
			{Name: "patient_id", Type: FieldText, Required: true},
			{Name: "provider_id", Type: FieldText, Required: true},
			{Name: "department", Type: FieldText},
			{Name: "transaction_date", Type: FieldDate, Required: true},
			{Name: "charge_amt", Type: FieldMoney, Required: true},
			{Name: "paid_amt", Type: FieldMoney, Required: true},
		},
		TrackedFields: []string{"patient_id", "provider_id", "department", "transaction_date", "charge_amt", "paid_amt"},
	},
}

// SchemaFor returns the common schema for an entity type.
func SchemaFor(entity EntityType) (Schema, bool) {
	s, ok := schemas[entity]
	return s, ok
}

// Field returns the spec for a named field of the schema.
func (s Schema) Field(name string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// RequiredFields returns the names of all required fields.
func (s Schema) RequiredFields() []string {
	var names []string
	for _, f := range s.Fields {
		if f.Required {
			names = append(names, f.Name)
		}
	}
	return names
}
