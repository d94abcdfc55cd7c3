package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-critique/internal/domain"
)

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected domain.Language
	}{
		{
			name:     "python file",
			path:     "src/app.py",
			expected: domain.LanguagePython,
		},
		{
			name:     "javascript file",
			path:     "web/index.js",
			expected: domain.LanguageJavaScript,
		},
		{
			name:     "jsx maps to javascript",
			path:     "web/App.jsx",
			expected: domain.LanguageJavaScript,
		},
		{
			name:     "typescript file",
			path:     "web/main.ts",
			expected: domain.LanguageTypeScript,
		},
		{
			name:     "tsx maps to typescript",
			path:     "web/App.tsx",
			expected: domain.LanguageTypeScript,
		},
		{
			name:     "java file",
			path:     "Main.java",
			expected: domain.LanguageJava,
		},
		{
			name:     "go file",
			path:     "cmd/server/main.go",
			expected: domain.LanguageGo,
		},
		{
			name:     "rust file",
			path:     "src/lib.rs",
			expected: domain.LanguageRust,
		},
		{
			name:     "c header maps to c",
			path:     "include/util.h",
			expected: domain.LanguageC,
		},
		{
			name:     "cpp file",
			path:     "src/engine.cpp",
			expected: domain.LanguageCPP,
		},
		{
			name:     "ruby file",
			path:     "lib/worker.rb",
			expected: domain.LanguageRuby,
		},
		{
			name:     "uppercase extension normalizes",
			path:     "LEGACY.PY",
			expected: domain.LanguagePython,
		},
		{
			name:     "unrecognized extension",
			path:     "notes.txt",
			expected: domain.LanguageUnknown,
		},
		{
			name:     "no extension",
			path:     "Makefile",
			expected: domain.LanguageUnknown,
		},
		{
			name:     "empty path",
			path:     "",
			expected: domain.LanguageUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, domain.DetectLanguage(tt.path))
		})
	}
}

func TestNewArtifact(t *testing.T) {
	tests := []struct {
		name     string
		artName  string
		content  string
		lang     domain.Language
		wantErr  error
		wantLang domain.Language
	}{
		{
			name:     "detects language from name",
			artName:  "app.py",
			content:  "x = 1\n",
			wantLang: domain.LanguagePython,
		},
		{
			name:     "explicit language wins over extension",
			artName:  "template.txt",
			content:  "puts 'hi'\n",
			lang:     domain.LanguageRuby,
			wantLang: domain.LanguageRuby,
		},
		{
			name:     "unknown extension still reviewable",
			artName:  "script",
			content:  "#!/bin/sh\n",
			wantLang: domain.LanguageUnknown,
		},
		{
			name:    "empty name rejected",
			artName: "",
			content: "x = 1\n",
			wantErr: domain.ErrEmptyArtifactName,
		},
		{
			name:    "whitespace name rejected",
			artName: "   ",
			content: "x = 1\n",
			wantErr: domain.ErrEmptyArtifactName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			art, err := domain.NewArtifact(tt.artName, tt.content, tt.lang)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.artName, art.Name)
			assert.Equal(t, tt.content, art.Content)
			assert.Equal(t, tt.wantLang, art.Language)
			require.NoError(t, art.Validate())
		})
	}
}

func TestArtifact_Validate(t *testing.T) {
	valid := domain.Artifact{Name: "app.py", Content: "x = 1\n", Language: domain.LanguagePython}
	require.NoError(t, valid.Validate())

	// Empty content is allowed; an empty file is still reviewable.
	empty := domain.Artifact{Name: "empty.py", Language: domain.LanguagePython}
	require.NoError(t, empty.Validate())

	missing := domain.Artifact{Name: "app.py", Content: "x = 1\n"}
	require.Error(t, missing.Validate())
}

func TestFingerprint_Short(t *testing.T) {
	tests := []struct {
		name     string
		fp       domain.Fingerprint
		expected string
	}{
		{
			name:     "long digest truncated",
			fp:       domain.Fingerprint("0123456789abcdef0123456789abcdef"),
			expected: "0123456789ab",
		},
		{
			name:     "short value unchanged",
			fp:       domain.Fingerprint("abc"),
			expected: "abc",
		},
		{
			name:     "empty",
			fp:       domain.Fingerprint(""),
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.fp.Short())
		})
	}
}

func TestFingerprint_IsZero(t *testing.T) {
	assert.True(t, domain.Fingerprint("").IsZero())
	assert.False(t, domain.Fingerprint("deadbeef").IsZero())
}
