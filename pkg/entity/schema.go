package entity

import (
	"context"
	"fmt"

	"github.com/openbraininstitute/entitykit/pkg/forge"
	"github.com/openbraininstitute/entitykit/pkg/jsonld"
)

// FormatFunc renders a coerced object of a schema for submission.
//
// body is the coerced object, without "type" unless it was given.
type FormatFunc func(ctx context.Context, store forge.Store, class *Class, body *jsonld.Object) (any, error)

// Schema declares a kind of entity.
type Schema struct {
	Name string

	// name of the parent schema. Empty for a root.
	Parent string

	// Abstract schemas can be parents or nested values,
	// but a definition cannot resolve to them.
	Abstract bool

	// Hidden schemas are resolvable but not listed as known types.
	Hidden bool

	// fields declared by this schema. Parent's fields are inherited.
	Fields []Field

	// When not empty, a bare string given as a nested value
	// becomes an object {StringField: string}.
	StringField string

	// custom rendering. When nil, fields are rendered one by one.
	Format FormatFunc
}

var activityStatus = []string{"Pending", "Running", "Done", "Failed"}

// Schemas returns declarations of entities known by default.
func Schemas() []Schema {
	return []Schema{
		{Name: "BaseModel", Abstract: true},
		{
			Name: "EntityMixIn", Parent: "BaseModel", Abstract: true,
			Fields: []Field{
				{Name: "wasAttributedTo", Kind: IDRef},
				{Name: "wasGeneratedBy", Kind: IDRef},
				{Name: "wasDerivedFrom", Kind: IDRef},
				{Name: "dateCreated", Kind: DateTime},
			},
		},
		{
			Name: "Entity", Parent: "EntityMixIn", Hidden: true,
			Fields: []Field{
				{Name: "id", Kind: String},
				{Name: "name", Kind: String},
				{Name: "description", Kind: String},
				{Name: "distribution", Kind: Distribution},
			},
		},
		{
			Name: "Activity", Parent: "BaseModel",
			Fields: []Field{
				{Name: "name", Kind: String},
				{Name: "status", Kind: Enum, Values: activityStatus},
				{Name: "used", Kind: IDRef},
				{Name: "generated", Kind: IDRef},
				{Name: "startedAtTime", Kind: String},
				{Name: "endedAtTime", Kind: String},
				{Name: "wasStartedBy", Kind: IDRef},
				{Name: "wasInformedBy", Kind: IDRef},
				{Name: "wasInfluencedBy", Kind: IDRef},
			},
		},
		{
			Name: "AnalysisReport", Parent: "Entity",
			Fields: []Field{
				{Name: "image", Kind: PathList},
				{Name: "derivation", Kind: IDRef},
				{Name: "types", Kind: StringList},
			},
		},
		{
			Name: "ID", Parent: "BaseModel", Abstract: true, Hidden: true,
			Fields: []Field{
				{Name: "ids", Kind: StringList, Required: true},
			},
		},
		{
			Name: "BrainRegion", Parent: "BaseModel", Abstract: true, Hidden: true,
			StringField: "id",
			Fields: []Field{
				{Name: "id", Kind: String, Required: true},
			},
			Format: formatBrainRegion,
		},
		{
			Name: "BrainLocation", Parent: "BaseModel", Abstract: true, Hidden: true,
			Fields: []Field{
				{Name: "brainRegion", Kind: Nested, Schema: "BrainRegion", Required: true},
			},
		},
		{
			Name: "ModelInstance", Parent: "Entity", Abstract: true,
			Fields: []Field{
				{Name: "modelOf", Kind: String},
				{Name: "brainLocation", Kind: Nested, Schema: "BrainLocation"},
				{Name: "subject", Kind: IDRef},
			},
		},
		{
			Name: "DetailedCircuit", Parent: "ModelInstance",
			Fields: []Field{
				{Name: "circuitConfigPath", Kind: DataDownload, Required: true},
				{Name: "circuitType", Kind: String},
				{Name: "circuitBase", Kind: String},
				{Name: "nodeCollection", Kind: String},
				{Name: "edgeCollection", Kind: String},
				{Name: "target", Kind: String},
				{Name: "atlasRelease", Kind: IDRef},
			},
		},
		{Name: "DetailedCircuitValidation", Parent: "Activity"},
		{Name: "DetailedCircuitValidationReport", Parent: "AnalysisReport"},
		{
			Name: "Simulation", Parent: "Activity",
			Fields: []Field{
				{Name: "spikes", Kind: IDRef},
				{Name: "jobId", Kind: String},
				{Name: "path", Kind: String},
				{Name: "params", Kind: String},
				{Name: "simulationConfigPath", Kind: DataDownload, Required: true},
			},
		},
		{Name: "SimulationCampaignGeneration", Parent: "Activity"},
		{
			Name: "SimulationConfiguration", Parent: "Entity",
			Fields: []Field{
				{Name: "circuit", Kind: IDRef},
			},
		},
		{
			Name: "SimulationCampaignConfiguration", Parent: "Entity",
			Fields: []Field{
				{Name: "configuration", Kind: Path},
				{Name: "template", Kind: Path},
				{Name: "target", Kind: Path},
			},
		},
		{
			Name: "EModelScript", Parent: "Entity",
			Fields: []Field{
				{Name: "etype_annotation_id", Kind: IDRef},
				{Name: "iteration_tag", Kind: String},
				{Name: "holding_current", Kind: String},
				{Name: "threshold_current", Kind: String},
			},
		},
	}
}

// brain regions are rendered as they are in the store, trimmed.
func formatBrainRegion(ctx context.Context, store forge.Store, _ *Class, body *jsonld.Object) (any, error) {
	id, _ := body.GetString("id")
	if !isURL(id) {
		return nil, fmt.Errorf("%w: brainRegion: Expected URL, but got '%s'", forge.ErrValidation, id)
	}
	r, err := store.Retrieve(ctx, id, true)
	if err != nil {
		return nil, err
	}
	return store.Reshape(r, []string{"id", "label", "notation"}), nil
}
