package main

import (
	"fmt"
	"log/slog"
	"os"

	"volwheel/internal/audio"
	"volwheel/internal/hotkey"
	"volwheel/internal/ipc"
	"volwheel/internal/logring"
	"volwheel/internal/settings"
)

// defaultRecentLogLimit bounds a recent-logs response when the client does
// not ask for a specific count.
const defaultRecentLogLimit = 50

// App wires the control surface to the running daemon: it executes ipc
// commands against the mapping store, the audio system and the settings
// file.
type App struct {
	settingsPath  string
	store         *hotkey.Store
	system        audio.System
	ring          *logring.Ring
	hookInstalled func() bool
	streamURL     func() string
	requestStop   func()

	// saveSettings is a test seam around settings.Save.
	saveSettings func(path string, s settings.Settings) (settings.Settings, error)
	// loadSettings is a test seam around settings.Load.
	loadSettings func(path string) (settings.Settings, error)
}

// AppConfig carries the daemon components App operates on. Nil callbacks are
// tolerated and treated as absent features.
type AppConfig struct {
	SettingsPath  string
	Store         *hotkey.Store
	System        audio.System
	Ring          *logring.Ring
	HookInstalled func() bool
	StreamURL     func() string
	RequestStop   func()
}

// NewApp builds the command executor.
func NewApp(cfg AppConfig) *App {
	a := &App{
		settingsPath:  cfg.SettingsPath,
		store:         cfg.Store,
		system:        cfg.System,
		ring:          cfg.Ring,
		hookInstalled: cfg.HookInstalled,
		streamURL:     cfg.StreamURL,
		requestStop:   cfg.RequestStop,
		saveSettings:  settings.Save,
		loadSettings:  settings.Load,
	}
	if a.hookInstalled == nil {
		a.hookInstalled = func() bool { return false }
	}
	if a.streamURL == nil {
		a.streamURL = func() string { return "" }
	}
	return a
}

// Execute implements ipc.CommandExecutor.
func (a *App) Execute(req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStatus:
		return a.status()
	case ipc.CommandReload:
		return a.reload()
	case ipc.CommandSetStep:
		return a.setStep(req.Step)
	case ipc.CommandAddMapping:
		return a.addMapping(req.Mapping)
	case ipc.CommandRemoveMapping:
		return a.removeMapping(req.MappingID)
	case ipc.CommandListMappings:
		return a.listMappings()
	case ipc.CommandListDevices:
		return a.listDevices()
	case ipc.CommandRecentLogs:
		return a.recentLogs(req.Limit)
	case ipc.CommandStop:
		return a.stop()
	default:
		return ipc.ErrorResponse(fmt.Sprintf("unknown command %q", req.Command))
	}
}

func (a *App) status() ipc.Response {
	return ipc.Response{
		OK: true,
		Status: &ipc.StatusInfo{
			PID:           os.Getpid(),
			Step:          a.store.Step(),
			Mappings:      len(a.store.Snapshot()),
			HookInstalled: a.hookInstalled(),
			StreamAddr:    a.streamURL(),
			SettingsPath:  a.settingsPath,
		},
	}
}

// reload re-reads the settings file and swaps the whole configuration, the
// same path the file watcher takes.
func (a *App) reload() ipc.Response {
	s, err := a.loadSettings(a.settingsPath)
	if err != nil {
		return ipc.ErrorResponse(fmt.Sprintf("reload: %v", err))
	}
	a.store.Replace(s.Step, settings.BuildMappings(s))
	slog.Info("[app] settings reloaded via control command", "mappings", len(a.store.Snapshot()))
	return ipc.Response{OK: true}
}

func (a *App) setStep(step float64) ipc.Response {
	if err := a.store.SetStep(step); err != nil {
		return ipc.ErrorResponse(err.Error())
	}
	if err := a.persist(); err != nil {
		return ipc.ErrorResponse(fmt.Sprintf("step changed but not persisted: %v", err))
	}
	return ipc.Response{OK: true}
}

func (a *App) addMapping(spec *ipc.MappingSpec) ipc.Response {
	if spec == nil {
		return ipc.ErrorResponse("add-mapping requires a mapping")
	}
	target, err := targetFromSpec(spec)
	if err != nil {
		return ipc.ErrorResponse(err.Error())
	}
	m, err := hotkey.NewMapping("", spec.Combo, target)
	if err != nil {
		return ipc.ErrorResponse(err.Error())
	}
	a.store.Add(m)
	if err := a.persist(); err != nil {
		return ipc.ErrorResponse(fmt.Sprintf("mapping added but not persisted: %v", err))
	}
	return ipc.Response{
		OK:       true,
		Mappings: []ipc.MappingInfo{mappingInfo(m)},
	}
}

func (a *App) removeMapping(id string) ipc.Response {
	if id == "" {
		return ipc.ErrorResponse("remove-mapping requires a mapping id")
	}
	if err := a.store.Remove(id); err != nil {
		return ipc.ErrorResponse(err.Error())
	}
	if err := a.persist(); err != nil {
		return ipc.ErrorResponse(fmt.Sprintf("mapping removed but not persisted: %v", err))
	}
	return ipc.Response{OK: true}
}

func (a *App) listMappings() ipc.Response {
	snapshot := a.store.Snapshot()
	infos := make([]ipc.MappingInfo, 0, len(snapshot))
	for _, m := range snapshot {
		infos = append(infos, mappingInfo(m))
	}
	return ipc.Response{OK: true, Mappings: infos}
}

func (a *App) listDevices() ipc.Response {
	if a.system == nil {
		return ipc.ErrorResponse("audio system unavailable")
	}
	endpoints, err := a.system.Endpoints()
	if err != nil {
		return ipc.ErrorResponse(fmt.Sprintf("enumerate devices: %v", err))
	}
	devices := make([]ipc.DeviceInfo, 0, len(endpoints))
	for _, ep := range endpoints {
		devices = append(devices, ipc.DeviceInfo{ID: ep.ID(), Name: ep.Name()})
		ep.Close()
	}
	return ipc.Response{OK: true, Devices: devices}
}

func (a *App) recentLogs(limit int) ipc.Response {
	if a.ring == nil {
		return ipc.ErrorResponse("log buffer unavailable")
	}
	if limit <= 0 {
		limit = defaultRecentLogLimit
	}
	return ipc.Response{OK: true, Logs: a.ring.Recent(limit)}
}

func (a *App) stop() ipc.Response {
	if a.requestStop == nil {
		return ipc.ErrorResponse("stop is not supported")
	}
	slog.Info("[app] stop requested via control command")
	a.requestStop()
	return ipc.Response{OK: true}
}

// persist writes the current runtime configuration back to the settings
// file so control-command changes survive a restart.
func (a *App) persist() error {
	s := settings.FromMappings(a.store.Step(), a.store.Snapshot())
	_, err := a.saveSettings(a.settingsPath, s)
	return err
}

func targetFromSpec(spec *ipc.MappingSpec) (hotkey.Target, error) {
	kind, err := hotkey.ParseTargetKind(spec.TargetKind)
	if err != nil {
		return hotkey.Target{}, err
	}
	switch kind {
	case hotkey.TargetMaster:
		return hotkey.MasterTarget(), nil
	case hotkey.TargetDevice:
		return hotkey.DeviceTarget(spec.DeviceID, spec.DeviceName)
	case hotkey.TargetApplication:
		return hotkey.ApplicationTarget(spec.Process)
	default:
		return hotkey.Target{}, fmt.Errorf("unknown target kind %q", spec.TargetKind)
	}
}

func mappingInfo(m hotkey.Mapping) ipc.MappingInfo {
	return ipc.MappingInfo{
		ID:     m.ID(),
		Combo:  m.Combo(),
		Target: m.Target().String(),
	}
}
