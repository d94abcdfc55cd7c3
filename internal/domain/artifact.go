// Package domain defines the core review types shared across the engine:
// artifacts submitted for review, findings produced by analysis backends and
// checks, scored review results, and the persisted record form.
//
// Design principles:
//   - Immutable artifacts: content is fixed once submitted to a task.
//   - Explicit validation: structs carry validate tags and Validate methods.
//   - Bounded scores: quality scores always live in [0,100].
//   - Deterministic identity: fingerprints derive only from reviewable content.
package domain

import (
	"errors"
	"path/filepath"
	"strings"
)

// ErrEmptyArtifactName indicates an artifact was submitted without a name or path.
var ErrEmptyArtifactName = errors.New("artifact name must not be empty")

// Language identifies the declared language of an artifact.
// Kept as a string type so callers can introduce languages the
// extension table does not know about.
type Language string

// Languages recognized by the extension table.
const (
	LanguagePython     Language = "python"
	LanguageJavaScript Language = "javascript"
	LanguageTypeScript Language = "typescript"
	LanguageJava       Language = "java"
	LanguageGo         Language = "go"
	LanguageRust       Language = "rust"
	LanguageC          Language = "c"
	LanguageCPP        Language = "cpp"
	LanguageRuby       Language = "ruby"

	// LanguageUnknown marks artifacts whose extension is not recognized.
	// Unknown artifacts are still reviewable as plain text.
	LanguageUnknown Language = "unknown"
)

// extensionLanguages maps file extensions to their language identifier.
var extensionLanguages = map[string]Language{
	".py":   LanguagePython,
	".js":   LanguageJavaScript,
	".jsx":  LanguageJavaScript,
	".ts":   LanguageTypeScript,
	".tsx":  LanguageTypeScript,
	".java": LanguageJava,
	".go":   LanguageGo,
	".rs":   LanguageRust,
	".c":    LanguageC,
	".h":    LanguageC,
	".cc":   LanguageCPP,
	".cpp":  LanguageCPP,
	".hpp":  LanguageCPP,
	".rb":   LanguageRuby,
}

// DetectLanguage maps a file path to its language identifier by extension.
// Unrecognized extensions return LanguageUnknown.
func DetectLanguage(path string) Language {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := extensionLanguages[ext]; ok {
		return lang
	}
	return LanguageUnknown
}

// Fingerprint is the deterministic digest identifying an artifact's
// reviewable content. It serves as the cache and deduplication key;
// two artifacts with identical content, language, and rule-set version
// always share a fingerprint.
type Fingerprint string

// IsZero reports whether the fingerprint is unset.
func (f Fingerprint) IsZero() bool { return f == "" }

// String returns the hex-encoded digest.
func (f Fingerprint) String() string { return string(f) }

// Short returns a truncated form suitable for log lines.
func (f Fingerprint) Short() string {
	const n = 12
	if len(f) <= n {
		return string(f)
	}
	return string(f[:n])
}

// Artifact is a unit of reviewable content: a file path or logical name,
// its content, and a declared language. Artifacts are immutable once
// submitted to a review task; pre-hooks operate on copies of the content.
type Artifact struct {
	// Name is the path or logical identifier of the artifact.
	Name string `json:"name" validate:"required,min=1"`

	// Content is the full reviewable text.
	Content string `json:"content"`

	// Language is the declared language, detected from the name when
	// not provided explicitly.
	Language Language `json:"language" validate:"required"`
}

// NewArtifact builds an artifact, detecting the language from the name
// when lang is empty.
func NewArtifact(name, content string, lang Language) (Artifact, error) {
	if strings.TrimSpace(name) == "" {
		return Artifact{}, ErrEmptyArtifactName
	}
	if lang == "" {
		lang = DetectLanguage(name)
	}
	return Artifact{Name: name, Content: content, Language: lang}, nil
}

// Validate checks the artifact against its structural constraints.
func (a Artifact) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return ErrEmptyArtifactName
	}
	return validate.Struct(a)
}
