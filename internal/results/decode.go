// File: internal/results/decode.go
package results

import (
	"bytes"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/codeshield-25/codeshield-web/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// engineError is the envelope the scan CLI prints instead of results when it
// cannot run (bad token, unsupported project and so on).
type engineError struct {
	OK    *bool  `json:"ok"`
	Error string `json:"error"`
}

type openSourceDoc struct {
	engineError
	Vulnerabilities *[]schemas.Vulnerability `json:"vulnerabilities"`
	DependencyCount int                      `json:"dependencyCount"`
	UniqueCount     int                      `json:"uniqueCount"`
	ProjectName     string                   `json:"projectName"`
	PackageManager  string                   `json:"packageManager"`
}

func (p openSourceDoc) result() (schemas.OpenSourceResult, error) {
	if p.Vulnerabilities == nil {
		if p.Error != "" {
			return schemas.OpenSourceResult{}, fmt.Errorf("%w: engine reported: %s", schemas.ErrMalformedOutput, p.Error)
		}
		return schemas.OpenSourceResult{}, fmt.Errorf("%w: missing vulnerabilities list", schemas.ErrMalformedOutput)
	}
	r := schemas.OpenSourceResult{
		Vulnerabilities: *p.Vulnerabilities,
		DependencyCount: p.DependencyCount,
		UniqueCount:     p.UniqueCount,
		ProjectName:     p.ProjectName,
		PackageManager:  p.PackageManager,
	}
	r.OK = len(r.Vulnerabilities) == 0
	if p.OK != nil {
		r.OK = *p.OK
	}
	return r, nil
}

// DecodeOpenSource validates and decodes dependency scan output. Both the
// single project object and the array form emitted for multi-project
// repositories are accepted; the array form is merged into one result.
func DecodeOpenSource(data []byte) (*schemas.OpenSourceResult, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty open-source output", schemas.ErrMalformedOutput)
	}

	if trimmed[0] == '[' {
		var projects []openSourceDoc
		if err := json.Unmarshal(trimmed, &projects); err != nil {
			return nil, fmt.Errorf("%w: %v", schemas.ErrMalformedOutput, err)
		}
		if len(projects) == 0 {
			return nil, fmt.Errorf("%w: empty project list", schemas.ErrMalformedOutput)
		}
		merged := &schemas.OpenSourceResult{OK: true, Vulnerabilities: []schemas.Vulnerability{}}
		for i, p := range projects {
			r, err := p.result()
			if err != nil {
				return nil, fmt.Errorf("project %d: %w", i, err)
			}
			merged.Vulnerabilities = append(merged.Vulnerabilities, r.Vulnerabilities...)
			merged.DependencyCount += r.DependencyCount
			merged.UniqueCount += r.UniqueCount
			merged.OK = merged.OK && r.OK
			if merged.ProjectName == "" {
				merged.ProjectName = r.ProjectName
				merged.PackageManager = r.PackageManager
			}
		}
		return merged, nil
	}

	var doc openSourceDoc
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", schemas.ErrMalformedOutput, err)
	}
	r, err := doc.result()
	if err != nil {
		return nil, err
	}
	return &r, nil
}

type codeSecurityDoc struct {
	engineError
	Version string             `json:"version"`
	Schema  string             `json:"$schema"`
	Runs    *[]schemas.CodeRun `json:"runs"`
}

// DecodeCodeSecurity validates and decodes a SARIF log from the code scan.
func DecodeCodeSecurity(data []byte) (*schemas.CodeSecurityResult, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty code-security output", schemas.ErrMalformedOutput)
	}

	var doc codeSecurityDoc
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", schemas.ErrMalformedOutput, err)
	}
	if doc.Runs == nil {
		if doc.Error != "" {
			return nil, fmt.Errorf("%w: engine reported: %s", schemas.ErrMalformedOutput, doc.Error)
		}
		return nil, fmt.Errorf("%w: missing runs", schemas.ErrMalformedOutput)
	}
	return &schemas.CodeSecurityResult{
		Version: doc.Version,
		Schema:  doc.Schema,
		Runs:    *doc.Runs,
	}, nil
}

// Decode dispatches to the decoder for kind. The concrete type of the result
// is *schemas.OpenSourceResult or *schemas.CodeSecurityResult.
func Decode(kind schemas.ScanKind, data []byte) (any, error) {
	switch kind {
	case schemas.ScanKindOpenSource:
		r, err := DecodeOpenSource(data)
		if err != nil {
			return nil, err
		}
		return r, nil
	case schemas.ScanKindCodeSecurity:
		r, err := DecodeCodeSecurity(data)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unsupported scan kind %q", kind)
	}
}
