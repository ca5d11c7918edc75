package mcpserver

import (
	"encoding/json"
)

const (
	manifestSchema = "https://static.modelcontextprotocol.io/schemas/2025-10-17/server.schema.json"
	registryName   = "io.github.panbanda/pyshake"
	repositoryURL  = "https://github.com/panbanda/pyshake"
	imageName      = "ghcr.io/panbanda/pyshake"
)

// Manifest is the MCP registry server.json document.
type Manifest struct {
	Schema      string      `json:"$schema"`
	Name        string      `json:"name"`
	Title       string      `json:"title,omitempty"`
	Description string      `json:"description"`
	Version     string      `json:"version"`
	Repository  *Repository `json:"repository,omitempty"`
	Packages    []Package   `json:"packages,omitempty"`
}

// Repository points at the source repository.
type Repository struct {
	URL    string `json:"url"`
	Source string `json:"source"`
}

// Package describes how to install/run the MCP server.
type Package struct {
	RegistryType         string        `json:"registryType"`
	Identifier           string        `json:"identifier"`
	PackageArguments     []Argument    `json:"packageArguments,omitempty"`
	EnvironmentVariables []EnvVariable `json:"environmentVariables,omitempty"`
	Transport            Transport     `json:"transport"`
}

type Argument struct {
	Type  string `json:"type"`
	Value string `json:"value,omitempty"`
}

// EnvVariable is an optional setting the server reads from its environment.
type EnvVariable struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type Transport struct {
	Type string `json:"type"`
}

// GenerateManifest renders server.json for version, publishing the OCI
// image that runs "pyshake mcp" over stdio.
func GenerateManifest(version string) ([]byte, error) {
	if version == "" || version == "dev" {
		version = "0.0.0"
	}

	return json.MarshalIndent(Manifest{
		Schema:      manifestSchema,
		Name:        registryName,
		Title:       "pyshake",
		Description: "Python import collection, vendoring and tree shaking",
		Version:     version,
		Repository:  &Repository{URL: repositoryURL, Source: "github"},
		Packages: []Package{{
			RegistryType:     "oci",
			Identifier:       imageName + ":" + version,
			PackageArguments: []Argument{{Type: "positional", Value: "mcp"}},
			EnvironmentVariables: []EnvVariable{
				{Name: "PYSHAKE_CONFIG", Description: "Path to a pyshake.toml, .yaml or .json config file"},
				{Name: "PYSHAKE_LOG_LEVEL", Description: "Log level written to stderr: debug, info, warn or error"},
			},
			Transport: Transport{Type: "stdio"},
		}},
	}, "", "  ")
}
