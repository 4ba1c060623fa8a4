package cbc

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
)

// Transport is the HTTP collaborator every model and query talks through.
//
// Paths are relative to the configured API URL. Implementations return
// *NotFoundError for 404 responses and *APIError for any other non-2xx status.
type Transport interface {
	OrgKey() string
	GetObject(ctx context.Context, path string, query url.Values) (json.RawMessage, error)
	PostObject(ctx context.Context, path string, body any) (json.RawMessage, error)
	PutObject(ctx context.Context, path string, body any) (json.RawMessage, error)
	PatchObject(ctx context.Context, path string, body any) (json.RawMessage, error)
	DeleteObject(ctx context.Context, path string) error
	GetRawData(ctx context.Context, path string, query url.Values) ([]byte, error)
}

// Logger interface for logging.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, map[string]interface{}) {}
func (NopLogger) Info(string, map[string]interface{})  {}
func (NopLogger) Warn(string, map[string]interface{})  {}
func (NopLogger) Error(string, map[string]interface{}) {}

// LoggerProvider is implemented by transports that expose their logger.
type LoggerProvider interface {
	Logger() Logger
}

func loggerFor(api Transport) Logger {
	if lp, ok := api.(LoggerProvider); ok {
		if l := lp.Logger(); l != nil {
			return l
		}
	}

	return NopLogger{}
}

// FormatPath fills {org_key} and any named placeholders in a URL template.
func FormatPath(template, orgKey string, params map[string]string) string {
	replacements := make([]string, 0, 2+2*len(params))
	replacements = append(replacements, "{org_key}", url.PathEscape(orgKey))

	for k, v := range params {
		replacements = append(replacements, "{"+k+"}", url.PathEscape(v))
	}

	return strings.NewReplacer(replacements...).Replace(template)
}

// DecodeFields decodes a JSON object response. An empty body is an empty document.
func DecodeFields(raw json.RawMessage) (Fields, error) {
	return decodeFields(raw)
}

func decodeFields(raw json.RawMessage) (Fields, error) {
	if len(raw) == 0 {
		return Fields{}, nil
	}

	var doc map[string]any

	err := json.Unmarshal(raw, &doc)
	if err != nil {
		return nil, err
	}

	return Fields(doc), nil
}
