package platform

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fivetwenty-io/cbc-client/pkg/cbc"
)

// Static errors for err113 compliance.
var (
	ErrSessionFailed = errors.New("live response session failed")
	ErrCommandFailed = errors.New("live response command failed")
)

// Live response session states.
const (
	SessionStatusPending = "PENDING"
	SessionStatusActive  = "ACTIVE"
	SessionStatusClosed  = "CLOSED"
	SessionStatusError   = "ERROR"
)

// Live response command states.
const (
	CommandStatusPending  = "pending"
	CommandStatusComplete = "complete"
	CommandStatusError    = "error"
)

const (
	lrCommandsURL    = "/appservices/v6/orgs/{org_key}/liveresponse/sessions/{id}/commands"
	lrCommandURL     = "/appservices/v6/orgs/{org_key}/liveresponse/sessions/{id}/commands/{command_id}"
	lrFileContentURL = "/appservices/v6/orgs/{org_key}/liveresponse/sessions/{id}/files/{file_id}/content"
)

// LiveResponseSessionInfo describes live response sessions.
var LiveResponseSessionInfo = &cbc.ResourceInfo{
	Name:        "live response session",
	URLTemplate: "/appservices/v6/orgs/{org_key}/liveresponse/sessions/{id}",
	CreateURL:   "/appservices/v6/orgs/{org_key}/liveresponse/sessions",
}

// LiveResponse opens sessions on devices.
type LiveResponse struct {
	platform *API
}

// LiveResponse returns the live response entry point.
func (a *API) LiveResponse() *LiveResponse {
	return &LiveResponse{platform: a}
}

// RequestSession opens a session on deviceID and waits until it is active.
func (lr *LiveResponse) RequestSession(ctx context.Context, deviceID string) (*LiveResponseSession, error) {
	api := lr.platform.transport
	path := cbc.FormatPath(LiveResponseSessionInfo.CreateURL, api.OrgKey(), nil)

	raw, err := api.PostObject(ctx, path, map[string]any{"device_id": deviceID})
	if err != nil {
		return nil, fmt.Errorf("requesting session on device %s: %w", deviceID, err)
	}

	doc, err := cbc.DecodeFields(raw)
	if err != nil {
		return nil, &cbc.APIError{Path: path, Message: "malformed session response", Err: err}
	}

	session := &LiveResponseSession{
		Model:    cbc.NewModelFromDocument(api, LiveResponseSessionInfo, doc, true),
		platform: lr.platform,
	}

	if session.ID() == "" {
		return nil, &cbc.APIError{Path: path, Message: "session response has no id"}
	}

	err = session.waitActive(ctx)
	if err != nil {
		return nil, err
	}

	return session, nil
}

// LiveResponseSession is an open remote shell on one device.
type LiveResponseSession struct {
	*cbc.Model

	platform *API
}

// Status returns the session status.
func (s *LiveResponseSession) Status() string { return s.Peek("status").String() }

// DeviceID returns the device the session is attached to.
func (s *LiveResponseSession) DeviceID() string { return s.Peek("device_id").String() }

func (s *LiveResponseSession) waitActive(ctx context.Context) error {
	lr := s.platform

	return pollUntil(ctx, "live response session", s.ID(), lr.lrPollInterval, lr.lrPollTimeout, func(ctx context.Context) (bool, error) {
		if strings.EqualFold(s.Status(), SessionStatusActive) {
			return true, nil
		}

		err := s.Refresh(ctx)
		if err != nil {
			return false, fmt.Errorf("getting session status: %w", err)
		}

		switch strings.ToUpper(s.Status()) {
		case SessionStatusActive:
			return true, nil
		case SessionStatusError, SessionStatusClosed:
			return false, &cbc.APIError{
				Path:    s.Path(),
				Message: fmt.Sprintf("session %s is %s", s.ID(), s.Status()),
				Reason:  s.Peek("status_message").String(),
				Err:     ErrSessionFailed,
			}
		default:
			return false, nil
		}
	})
}

// Command submits a command and waits for it to finish. The returned
// document holds the command result, e.g. "files" for a directory list.
func (s *LiveResponseSession) Command(ctx context.Context, name string, params map[string]any) (cbc.Fields, error) {
	api := s.API()
	path := cbc.FormatPath(lrCommandsURL, api.OrgKey(), map[string]string{"id": s.ID()})

	body := map[string]any{"name": name}
	for k, v := range params {
		body[k] = v
	}

	raw, err := api.PostObject(ctx, path, body)
	if err != nil {
		return nil, fmt.Errorf("submitting %q: %w", name, err)
	}

	command, err := cbc.DecodeFields(raw)
	if err != nil {
		return nil, &cbc.APIError{Path: path, Message: "malformed command response", Err: err}
	}

	commandID := command.Get("id").String()
	if commandID == "" {
		return nil, &cbc.APIError{Path: path, Message: "command response has no id"}
	}

	commandPath := cbc.FormatPath(lrCommandURL, api.OrgKey(), map[string]string{"id": s.ID(), "command_id": commandID})

	err = pollUntil(ctx, name, commandID, s.platform.lrPollInterval, s.platform.lrPollTimeout, func(ctx context.Context) (bool, error) {
		if strings.EqualFold(command.Get("status").String(), CommandStatusComplete) {
			return true, nil
		}

		raw, err := api.GetObject(ctx, commandPath, nil)
		if err != nil {
			return false, fmt.Errorf("getting %q status: %w", name, err)
		}

		command, err = cbc.DecodeFields(raw)
		if err != nil {
			return false, &cbc.APIError{Path: commandPath, Message: "malformed command status", Err: err}
		}

		switch strings.ToLower(command.Get("status").String()) {
		case CommandStatusComplete:
			return true, nil
		case CommandStatusError:
			return false, &cbc.APIError{
				Path:    commandPath,
				Message: fmt.Sprintf("%q failed", name),
				Reason:  command.Get("result_desc").String(),
				Err:     ErrCommandFailed,
			}
		default:
			return false, nil
		}
	})
	if err != nil {
		return nil, err
	}

	return command, nil
}

// ListDirectory lists a remote directory.
func (s *LiveResponseSession) ListDirectory(ctx context.Context, dir string) ([]cbc.Fields, error) {
	result, err := s.Command(ctx, "directory list", map[string]any{"path": dir})
	if err != nil {
		return nil, err
	}

	rows := result.Get("files").Slice()

	files := make([]cbc.Fields, 0, len(rows))
	for _, row := range rows {
		if file, ok := row.(map[string]any); ok {
			files = append(files, cbc.Fields(file))
		}
	}

	return files, nil
}

// GetFile downloads a remote file.
func (s *LiveResponseSession) GetFile(ctx context.Context, remotePath string) ([]byte, error) {
	result, err := s.Command(ctx, "get file", map[string]any{"path": remotePath})
	if err != nil {
		return nil, err
	}

	fileID := result.Get("file_details.file_id").String()
	if fileID == "" {
		fileID = result.Get("file_id").String()
	}

	path := cbc.FormatPath(lrFileContentURL, s.API().OrgKey(), map[string]string{"id": s.ID(), "file_id": fileID})

	data, err := s.API().GetRawData(ctx, path, nil)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", remotePath, err)
	}

	return data, nil
}

// Close ends the session.
func (s *LiveResponseSession) Close(ctx context.Context) error {
	return s.Delete(ctx)
}
