package core

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// metadataSuffix marks the metadata entry of a run archive.
const metadataSuffix = ".json"

// runMetadataJSON mirrors the fields read from the run descriptor.
// Pointers distinguish absent fields from zero values so defaults are
// applied explicitly.
type runMetadataJSON struct {
	ModelName *string `json:"ModelName"`
	Name      *string `json:"Name"`
	SubCount  *int    `json:"SubCount"`
	LangCode  *string `json:"LangCode"`
}

// FindMetadataEntry returns the single *.json entry among names.
func FindMetadataEntry(names []string) (string, error) {
	var found []string
	for _, name := range names {
		if strings.HasSuffix(name, metadataSuffix) {
			found = append(found, name)
		}
	}
	if len(found) != 1 {
		return "", &MetadataCountError{Count: len(found)}
	}
	return found[0], nil
}

// ParseRunMetadata decodes the run descriptor text. Absent SubCount
// defaults to 1 and absent LangCode to "EN"; absent names stay empty and fail
// identity verification.
func ParseRunMetadata(entry, text string) (RunMetadata, error) {
	var raw runMetadataJSON
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return RunMetadata{}, &MetadataParseError{Entry: entry, Err: err}
	}

	md := RunMetadata{
		SubCount: DefaultSubCount,
		LangCode: DefaultLangCode,
	}
	if raw.ModelName != nil {
		md.ModelName = *raw.ModelName
	}
	if raw.Name != nil {
		md.RunName = *raw.Name
	}
	if raw.SubCount != nil {
		if *raw.SubCount < 1 {
			return RunMetadata{}, &MetadataParseError{
				Entry: entry,
				Err:   fmt.Errorf("SubCount must be at least 1, got %d", *raw.SubCount),
			}
		}
		md.SubCount = *raw.SubCount
	}
	if raw.LangCode != nil && *raw.LangCode != "" {
		md.LangCode = *raw.LangCode
	}
	return md, nil
}

// Verify checks that the metadata belongs to the expected model and run.
func (m RunMetadata) Verify(upstream, run string) error {
	if m.ModelName != upstream {
		return &IdentityMismatchError{Field: "model name", Expected: upstream, Actual: m.ModelName}
	}
	if m.RunName != run {
		return &IdentityMismatchError{Field: "run name", Expected: run, Actual: m.RunName}
	}
	return nil
}

// LanguageTag parses LangCode as a BCP 47 tag. Model language codes such as
// "EN" or "FR" parse case-insensitively; the original code is still what
// goes into the output descriptor.
func (m RunMetadata) LanguageTag() (language.Tag, error) {
	return language.Parse(m.LangCode)
}

// LoadRunMetadata finds, parses and verifies the metadata entry of a.
func LoadRunMetadata(a *Archive, upstream, run string) (RunMetadata, error) {
	entry, err := FindMetadataEntry(a.Names())
	if err != nil {
		return RunMetadata{}, err
	}

	text, err := a.ReadText(entry)
	if err != nil {
		return RunMetadata{}, err
	}

	md, err := ParseRunMetadata(entry, text)
	if err != nil {
		return RunMetadata{}, err
	}
	if err := md.Verify(upstream, run); err != nil {
		return RunMetadata{}, err
	}
	return md, nil
}
