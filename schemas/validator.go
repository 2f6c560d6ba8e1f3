package schemas

import (
	_ "embed"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/xeipuuv/gojsonschema"
)

var (
	//go:embed event-record-schema.json
	eventRecordSchemaBytes []byte
	//go:embed deployment-schema.json
	deploymentSchemaBytes []byte
	//go:embed deployment-state-schema.json
	deploymentStateSchemaBytes []byte
)

var (
	eventRecordSchema     *gojsonschema.Schema
	deploymentSchema      *gojsonschema.Schema
	deploymentStateSchema *gojsonschema.Schema
)

// rootField is the field gojsonschema reports for document-level errors.
const rootField = "(root)"

// ErrSchema wraps every schema violation.
var ErrSchema = errors.New("schema validation failed")

func init() {
	eventRecordSchema = mustLoad("event record", eventRecordSchemaBytes)
	deploymentSchema = mustLoad("deployment", deploymentSchemaBytes)
	deploymentStateSchema = mustLoad("deployment state", deploymentStateSchemaBytes)
}

func mustLoad(name string, data []byte) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
	if err != nil {
		panic(fmt.Sprintf("failed to load %s schema: %v", name, err))
	}
	return schema
}

func validate(schema *gojsonschema.Schema, data []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}
	var merr *multierror.Error
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == rootField {
			field = ""
		}
		merr = multierror.Append(merr, &ValidationError{Field: field, Message: desc.String()})
	}
	return fmt.Errorf("%w: %w", ErrSchema, merr.ErrorOrNil())
}

// ValidateEventRecord validates one JSON event record.
func ValidateEventRecord(data []byte) error {
	return validate(eventRecordSchema, data)
}

// ValidateDeployment validates a deployment JSON document.
func ValidateDeployment(data []byte) error {
	return validate(deploymentSchema, data)
}

// ValidateDeploymentState validates a deployment-state file.
func ValidateDeploymentState(data []byte) error {
	return validate(deploymentStateSchema, data)
}
