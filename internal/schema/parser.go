package schema

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/foldb/folddb/internal/atom"
	ferrors "github.com/foldb/folddb/pkg/errors"
)

// wireSchema is the on-the-wire shape a Document decodes into before it is
// promoted to a Schema. Struct tags drive both JSON/YAML decoding and
// go-playground/validator structural checks.
type wireSchema struct {
	Name         string                  `json:"name" yaml:"name" validate:"required"`
	Kind         string                  `json:"kind" yaml:"kind" validate:"required,oneof=single range"`
	PartitionKey string                  `json:"partition_key" yaml:"partition_key"`
	Fields       map[string]wireFieldDef `json:"fields" yaml:"fields" validate:"required,min=1,dive"`
}

type wireFieldDef struct {
	Variant          string         `json:"variant" yaml:"variant" validate:"required,oneof=single collection range"`
	PermissionPolicy string         `json:"permission_policy" yaml:"permission_policy"`
	PaymentPolicy    string         `json:"payment_policy" yaml:"payment_policy"`
	Mappers          []string       `json:"mappers" yaml:"mappers"`
	Transform        *wireTransform `json:"transform" yaml:"transform"`
	Writable         *bool          `json:"writable" yaml:"writable"`
}

type wireTransform struct {
	ID            string         `json:"id" yaml:"id" validate:"required"`
	Inputs        []string       `json:"inputs" yaml:"inputs" validate:"required,min=1"`
	Logic         string         `json:"logic" yaml:"logic" validate:"required"`
	TriggerFields []string       `json:"trigger_fields" yaml:"trigger_fields"`
	Defaults      map[string]any `json:"defaults" yaml:"defaults"`
}

// Parser decodes a Document into a Schema, running structural validation
// before the registry ever sees it (spec §4.3 "Validation (at load time)").
type Parser struct {
	validate *validator.Validate
}

// NewParser returns a ready-to-use Parser with a single validator
// instance, the way the teacher's pkg/shared package keeps one validator
// singleton rather than allocating per call.
func NewParser() *Parser {
	return &Parser{validate: validator.New()}
}

// Parse decodes doc and runs structural validation. Fields decode as map
// keys, so no separate field-name collision check runs. Transform inputs
// and outputs are not checked against existing fields here or in the
// registry; inputs are first resolved when the transform orchestrator
// registers the approved schema.
func (p *Parser) Parse(ctx context.Context, doc Document) (*Schema, error) {
	var w wireSchema
	var err error
	switch doc.Kind {
	case "yaml":
		err = yaml.Unmarshal(doc.Raw, &w)
	default:
		err = json.Unmarshal(doc.Raw, &w)
	}
	if err != nil {
		return nil, ferrors.SchemaValidationErr(doc.ID, fmt.Sprintf("decode: %s", err))
	}

	if err := p.validate.StructCtx(ctx, w); err != nil {
		return nil, ferrors.SchemaValidationErr(doc.ID, fmt.Sprintf("structure: %s", err))
	}

	s := &Schema{
		Name:         w.Name,
		Kind:         Kind(w.Kind),
		PartitionKey: w.PartitionKey,
		Fields:       make(map[string]FieldDef, len(w.Fields)),
	}

	for name, wf := range w.Fields {
		writable := true
		if wf.Writable != nil {
			writable = *wf.Writable
		}
		fd := FieldDef{
			Name:             name,
			PermissionPolicy: wf.PermissionPolicy,
			PaymentPolicy:    wf.PaymentPolicy,
			Mappers:          wf.Mappers,
			Writable:         writable,
		}
		switch wf.Variant {
		case "collection":
			fd.Variant = atom.RefCollection
		case "range":
			fd.Variant = atom.RefRange
		default:
			fd.Variant = atom.RefSingle
		}
		if wf.Transform != nil {
			fd.Transform = &Transform{
				ID:            wf.Transform.ID,
				Inputs:        wf.Transform.Inputs,
				Logic:         wf.Transform.Logic,
				TriggerFields: wf.Transform.TriggerFields,
				Defaults:      wf.Transform.Defaults,
			}
			fd.Writable = false // transform outputs are never user-writable
		}
		s.Fields[name] = fd
	}

	if err := p.validateStructure(s); err != nil {
		return nil, err
	}
	s.ContentHash = contentHash(doc.Raw)
	return s, nil
}

// validateStructure checks the invariants the parser owns before approval:
// range-schema uniformity and a resolvable partition key.
func (p *Parser) validateStructure(s *Schema) error {
	if s.Kind != Kind("range") {
		return nil
	}
	if s.PartitionKey == "" {
		return ferrors.SchemaValidationErr(s.Name, "range schema missing partition_key")
	}
	if _, ok := s.Fields[s.PartitionKey]; !ok {
		return ferrors.SchemaValidationErr(s.Name,
			fmt.Sprintf("partition key field %q not defined", s.PartitionKey))
	}
	for name, fd := range s.Fields {
		if fd.Variant != atom.RefRange {
			return ferrors.RangeUniformityErr(s.Name, name)
		}
	}
	return nil
}

func contentHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
