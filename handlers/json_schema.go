package handlers

import "github.com/xeipuuv/gojsonschema"

// RemoteRequestSchemaDefinition validates POST /remote bodies (§4.1).
const RemoteRequestSchemaDefinition = `{
	"type": "object",
	"properties": {
		"url": { "type": "string", "minLength": 1 },
		"source_lang": { "type": "string" },
		"target_lang": { "type": "string" },
		"burn_in": { "type": "boolean" },
		"transcribe_model": { "type": "string" },
		"translation_service": { "type": "string" },
		"watermark": {
			"type": "object",
			"properties": {
				"enabled": { "type": "boolean" },
				"position": { "type": "string" },
				"size": { "type": "string" },
				"opacity": { "type": "integer", "minimum": 0, "maximum": 100 },
				"logo_ref": { "type": "string" }
			},
			"additionalProperties": false
		},
		"start_time": { "type": "string" },
		"end_time": { "type": "string" }
	},
	"required": ["url"],
	"additionalProperties": false
}`

// DownloadOnlyRequestSchemaDefinition validates POST /download-only bodies
// (§4.1): URL plus the optional time-range bound, no transcription choices.
const DownloadOnlyRequestSchemaDefinition = `{
	"type": "object",
	"properties": {
		"url": { "type": "string", "minLength": 1 },
		"start_time": { "type": "string" },
		"end_time": { "type": "string" }
	},
	"required": ["url"],
	"additionalProperties": false
}`

var inputSchemas = map[string]string{
	"Remote":       RemoteRequestSchemaDefinition,
	"DownloadOnly": DownloadOnlyRequestSchemaDefinition,
}

func compileJSONSchemas() map[string]*gojsonschema.Schema {
	compiled := make(map[string]*gojsonschema.Schema, len(inputSchemas))
	for name, text := range inputSchemas {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(text))
		if err != nil {
			panic(err) // fix schema text
		}
		compiled[name] = schema
	}
	return compiled
}

var inputSchemasCompiled = compileJSONSchemas()
