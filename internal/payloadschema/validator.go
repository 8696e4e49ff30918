package payloadschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed candidate_batch.schema.json
var candidateBatchSchemaJSON string

const schemaResource = "candidate_batch.schema.json"

type CandidateBatch struct {
	PayloadVersion string         `json:"payload_version"`
	Companies      []Company      `json:"companies,omitempty"`
	Candidates     []CandidateRow `json:"candidates"`
}

type Company struct {
	CompanyID int64   `json:"company_id"`
	Name      string  `json:"name"`
	Industry  *string `json:"industry,omitempty"`
}

type EntityMention struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// CandidateRow is one discovered item as supplied by the discovery and
// enrichment collaborators.
type CandidateRow struct {
	CompanyID       int64           `json:"company_id"`
	Title           string          `json:"title"`
	SourceURL       *string         `json:"source_url,omitempty"`
	Citations       []string        `json:"citations,omitempty"`
	PublishedAt     *time.Time      `json:"published_at,omitempty"`
	GatheredAt      time.Time       `json:"gathered_at"`
	Type            string          `json:"type,omitempty"`
	Sentiment       *string         `json:"sentiment,omitempty"`
	RelevanceScore  *float64        `json:"relevance_score,omitempty"`
	Themes          []string        `json:"themes,omitempty"`
	Entities        []EntityMention `json:"entities,omitempty"`
	NeedsDateReview bool            `json:"needs_date_review,omitempty"`
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// ValidateCandidateBatch checks payload against the embedded schema and a few
// semantic rules, then decodes it.
func ValidateCandidateBatch(payload []byte) (*CandidateBatch, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize payload JSON: %w", err)
	}

	var batch CandidateBatch
	if err := json.Unmarshal(normalized, &batch); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}

	if err := validateSemantics(&batch); err != nil {
		return nil, err
	}

	return &batch, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource(schemaResource, strings.NewReader(candidateBatchSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile(schemaResource)
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}

	return value, nil
}

func validateSemantics(batch *CandidateBatch) error {
	if batch == nil {
		return fmt.Errorf("payload is nil")
	}

	seen := make(map[int64]struct{}, len(batch.Companies))
	for i, company := range batch.Companies {
		if strings.TrimSpace(company.Name) == "" {
			return fmt.Errorf("companies[%d].name must not be empty", i)
		}
		if _, dup := seen[company.CompanyID]; dup {
			return fmt.Errorf("companies[%d]: duplicate company_id %d", i, company.CompanyID)
		}
		seen[company.CompanyID] = struct{}{}
	}

	for i, row := range batch.Candidates {
		if strings.TrimSpace(row.Title) == "" {
			return fmt.Errorf("candidates[%d].title must not be empty", i)
		}
		if row.GatheredAt.IsZero() {
			return fmt.Errorf("candidates[%d].gathered_at must be set", i)
		}
		for j, mention := range row.Entities {
			if strings.TrimSpace(mention.Name) == "" {
				return fmt.Errorf("candidates[%d].entities[%d].name must not be empty", i, j)
			}
		}
	}

	return nil
}
