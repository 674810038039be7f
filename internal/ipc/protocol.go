// Package ipc carries control commands from the volwheelctl client to the
// running daemon over a per-user named pipe. One JSON request and one JSON
// response per connection, newline-delimited.
package ipc

import (
	"encoding/json"
	"log/slog"
	"os"
	"os/user"
	"regexp"
	"strings"

	"volwheel/internal/logring"
	"volwheel/internal/userutil"
)

var pipeNamePattern = regexp.MustCompile(`(?i)^\\\\\.\\pipe\\volwheel-[a-z0-9._-]{1,128}$`)

const defaultPipePrefix = `\\.\pipe\volwheel-`

// Command names accepted by the daemon.
const (
	CommandStatus        = "status"
	CommandReload        = "reload"
	CommandSetStep       = "set-step"
	CommandAddMapping    = "add-mapping"
	CommandRemoveMapping = "remove-mapping"
	CommandListMappings  = "list-mappings"
	CommandListDevices   = "list-devices"
	CommandRecentLogs    = "recent-logs"
	CommandStop          = "stop"
)

// MappingSpec is the wire form of a mapping submitted by add-mapping.
type MappingSpec struct {
	Combo      string `json:"combo"`
	TargetKind string `json:"target_kind"`
	DeviceID   string `json:"device_id,omitempty"`
	DeviceName string `json:"device_name,omitempty"`
	Process    string `json:"process,omitempty"`
}

// Request is a single control command.
type Request struct {
	Command   string       `json:"command"`
	Step      float64      `json:"step,omitempty"`
	Mapping   *MappingSpec `json:"mapping,omitempty"`
	MappingID string       `json:"mapping_id,omitempty"`
	Limit     int          `json:"limit,omitempty"`
}

// MappingInfo describes one configured mapping in responses.
type MappingInfo struct {
	ID     string `json:"id"`
	Combo  string `json:"combo"`
	Target string `json:"target"`
}

// DeviceInfo describes one active render endpoint in responses.
type DeviceInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// StatusInfo summarizes the daemon state.
type StatusInfo struct {
	PID           int     `json:"pid"`
	Step          float64 `json:"step"`
	Mappings      int     `json:"mappings"`
	HookInstalled bool    `json:"hook_installed"`
	StreamAddr    string  `json:"stream_addr,omitempty"`
	SettingsPath  string  `json:"settings_path"`
}

// Response is the daemon's reply to one request.
type Response struct {
	OK       bool            `json:"ok"`
	Error    string          `json:"error,omitempty"`
	Status   *StatusInfo     `json:"status,omitempty"`
	Mappings []MappingInfo   `json:"mappings,omitempty"`
	Devices  []DeviceInfo    `json:"devices,omitempty"`
	Logs     []logring.Entry `json:"logs,omitempty"`
}

// ErrorResponse builds a failed Response from an error message.
func ErrorResponse(message string) Response {
	return Response{OK: false, Error: message}
}

// CommandExecutor handles a control request and returns a response.
type CommandExecutor interface {
	Execute(req Request) Response
}

func sanitizeUsername(value string) string {
	return userutil.SanitizeUsername(value)
}

// DefaultPipeName returns the pipe path to use. If the VOLWHEEL_PIPE
// environment variable is set and passes pattern validation, its value is
// used; otherwise a per-user default is constructed from the current
// username.
func DefaultPipeName() string {
	if v, ok := trustedPipeNameFromEnv(); ok {
		return v
	}

	username := strings.TrimSpace(os.Getenv("USERNAME"))
	if username == "" {
		if current, err := user.Current(); err == nil {
			username = current.Username
		}
	}
	return defaultPipePrefix + sanitizeUsername(username)
}

func trustedPipeNameFromEnv() (string, bool) {
	value := strings.TrimSpace(os.Getenv("VOLWHEEL_PIPE"))
	if value == "" {
		return "", false
	}
	if !pipeNamePattern.MatchString(value) {
		slog.Warn("[ipc] VOLWHEEL_PIPE rejected: value does not match allowed pattern", "value", value)
		return "", false
	}
	return value, true
}

func encodeRequest(req Request) ([]byte, error) {
	return json.Marshal(req)
}

func decodeRequest(raw []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return Request{}, err
	}
	req.Command = strings.TrimSpace(req.Command)
	return req, nil
}

func encodeResponse(resp Response) ([]byte, error) {
	return json.Marshal(resp)
}

func decodeResponse(raw []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Response{}, err
	}
	return resp, nil
}
