//go:build windows

package audio

import (
	"fmt"
	"math"
	"syscall"
	"unsafe"

	"github.com/go-ole/go-ole"
	"golang.org/x/sys/windows"
)

var (
	clsidMMDeviceEnumerator  = ole.NewGUID("{BCDE0395-E52F-467C-8E3D-C4579291692E}")
	iidIMMDeviceEnumerator   = ole.NewGUID("{A95664D2-9614-4F35-A746-DE8DB63617E6}")
	iidIAudioEndpointVolume  = ole.NewGUID("{5CDF2C82-841E-4546-9722-0CF74078229A}")
	iidIAudioSessionManager2 = ole.NewGUID("{77AA99A0-1BD6-484F-8BC7-2C654C9A9B6F}")
	iidIAudioSessionControl2 = ole.NewGUID("{BFB7FF88-7239-4FC9-8FA2-07C950BE9C6D}")
	iidISimpleAudioVolume    = ole.NewGUID("{87CE5498-68D6-44E5-9215-6DA47EF883D8}")
	iidIPropertyStore        = ole.NewGUID("{886D8EEB-8CF2-4446-8D02-CDBA1DBDCF99}")
)

// PKEY_Device_FriendlyName: fmtid {A45C254E-DF1C-4EFD-8020-67D146A850E0}, pid 14.
var pkeyDeviceFriendlyName = propertyKey{
	fmtid: *ole.NewGUID("{A45C254E-DF1C-4EFD-8020-67D146A850E0}"),
	pid:   14,
}

const (
	eRender           = 0
	deviceStateActive = 0x00000001
	clsctxAll         = 0x17 // INPROC_SERVER | INPROC_HANDLER | LOCAL_SERVER | REMOTE_SERVER
	stgmRead          = 0

	vtLPWSTR = 31

	sessionStateExpired = 2

	// sFalse is the S_FALSE HRESULT; go-ole reports it as an error from
	// CoInitializeEx even though it just means "already initialized".
	sFalse = uintptr(1)
)

var (
	ole32DLL            = syscall.NewLazyDLL("ole32.dll")
	procPropVariantClear = ole32DLL.NewProc("PropVariantClear")
)

type propertyKey struct {
	fmtid ole.GUID
	pid   uint32
}

// propVariant mirrors the Win32 PROPVARIANT for the VT_LPWSTR case.
// Field layout must match the binary layout on 64-bit Windows.
type propVariant struct {
	vt       uint16
	reserved [6]byte
	val      uintptr
	val2     uintptr
}

func (pv *propVariant) clear() {
	procPropVariantClear.Call(uintptr(unsafe.Pointer(pv)))
}

// hr converts an HRESULT return into an error, nil for success codes.
func hr(result uintptr) error {
	if int32(result) < 0 {
		return ole.NewError(result)
	}
	return nil
}

func call(proc uintptr, args ...uintptr) error {
	result, _, _ := syscall.SyscallN(proc, args...)
	return hr(result)
}

// queryInterface performs IUnknown::QueryInterface on a raw COM object.
func queryInterface(obj *ole.IUnknown, iid *ole.GUID) (uintptr, error) {
	var out uintptr
	err := call(obj.VTable().QueryInterface,
		uintptr(unsafe.Pointer(obj)),
		uintptr(unsafe.Pointer(iid)),
		uintptr(unsafe.Pointer(&out)),
	)
	if err != nil {
		return 0, err
	}
	return out, nil
}

// ---- IMMDeviceEnumerator ----

type immDeviceEnumeratorVtbl struct {
	ole.IUnknownVtbl
	EnumAudioEndpoints                     uintptr
	GetDefaultAudioEndpoint                uintptr
	GetDevice                              uintptr
	RegisterEndpointNotificationCallback   uintptr
	UnregisterEndpointNotificationCallback uintptr
}

type immDeviceEnumerator struct{ ole.IUnknown }

func (v *immDeviceEnumerator) vtable() *immDeviceEnumeratorVtbl {
	return (*immDeviceEnumeratorVtbl)(unsafe.Pointer(v.RawVTable))
}

// ---- IMMDeviceCollection ----

type immDeviceCollectionVtbl struct {
	ole.IUnknownVtbl
	GetCount uintptr
	Item     uintptr
}

type immDeviceCollection struct{ ole.IUnknown }

func (v *immDeviceCollection) vtable() *immDeviceCollectionVtbl {
	return (*immDeviceCollectionVtbl)(unsafe.Pointer(v.RawVTable))
}

// ---- IMMDevice ----

type immDeviceVtbl struct {
	ole.IUnknownVtbl
	Activate          uintptr
	OpenPropertyStore uintptr
	GetId             uintptr
	GetState          uintptr
}

type immDevice struct{ ole.IUnknown }

func (v *immDevice) vtable() *immDeviceVtbl {
	return (*immDeviceVtbl)(unsafe.Pointer(v.RawVTable))
}

// ---- IPropertyStore ----

type propertyStoreVtbl struct {
	ole.IUnknownVtbl
	GetCount uintptr
	GetAt    uintptr
	GetValue uintptr
	SetValue uintptr
	Commit   uintptr
}

type propertyStore struct{ ole.IUnknown }

func (v *propertyStore) vtable() *propertyStoreVtbl {
	return (*propertyStoreVtbl)(unsafe.Pointer(v.RawVTable))
}

// ---- IAudioEndpointVolume ----

type audioEndpointVolumeVtbl struct {
	ole.IUnknownVtbl
	RegisterControlChangeNotify   uintptr
	UnregisterControlChangeNotify uintptr
	GetChannelCount               uintptr
	SetMasterVolumeLevel          uintptr
	SetMasterVolumeLevelScalar    uintptr
	GetMasterVolumeLevel          uintptr
	GetMasterVolumeLevelScalar    uintptr
	SetChannelVolumeLevel         uintptr
	SetChannelVolumeLevelScalar   uintptr
	GetChannelVolumeLevel         uintptr
	GetChannelVolumeLevelScalar   uintptr
	SetMute                       uintptr
	GetMute                       uintptr
	GetVolumeStepInfo             uintptr
	VolumeStepUp                  uintptr
	VolumeStepDown                uintptr
	QueryHardwareSupport          uintptr
	GetVolumeRange                uintptr
}

type audioEndpointVolume struct{ ole.IUnknown }

func (v *audioEndpointVolume) vtable() *audioEndpointVolumeVtbl {
	return (*audioEndpointVolumeVtbl)(unsafe.Pointer(v.RawVTable))
}

// ---- IAudioSessionManager2 ----

type audioSessionManager2Vtbl struct {
	ole.IUnknownVtbl
	GetAudioSessionControl        uintptr
	GetSimpleAudioVolume          uintptr
	GetSessionEnumerator          uintptr
	RegisterSessionNotification   uintptr
	UnregisterSessionNotification uintptr
	RegisterDuckNotification      uintptr
	UnregisterDuckNotification    uintptr
}

type audioSessionManager2 struct{ ole.IUnknown }

func (v *audioSessionManager2) vtable() *audioSessionManager2Vtbl {
	return (*audioSessionManager2Vtbl)(unsafe.Pointer(v.RawVTable))
}

// ---- IAudioSessionEnumerator ----

type audioSessionEnumeratorVtbl struct {
	ole.IUnknownVtbl
	GetCount   uintptr
	GetSession uintptr
}

type audioSessionEnumerator struct{ ole.IUnknown }

func (v *audioSessionEnumerator) vtable() *audioSessionEnumeratorVtbl {
	return (*audioSessionEnumeratorVtbl)(unsafe.Pointer(v.RawVTable))
}

// ---- IAudioSessionControl2 ----

type audioSessionControl2Vtbl struct {
	ole.IUnknownVtbl
	GetState                          uintptr
	GetDisplayName                    uintptr
	SetDisplayName                    uintptr
	GetIconPath                       uintptr
	SetIconPath                       uintptr
	GetGroupingParam                  uintptr
	SetGroupingParam                  uintptr
	RegisterAudioSessionNotification  uintptr
	UnregisterAudioSessionNotification uintptr
	GetSessionIdentifier              uintptr
	GetSessionInstanceIdentifier      uintptr
	GetProcessId                      uintptr
	IsSystemSoundsSession             uintptr
	SetDuckingPreference              uintptr
}

type audioSessionControl2 struct{ ole.IUnknown }

func (v *audioSessionControl2) vtable() *audioSessionControl2Vtbl {
	return (*audioSessionControl2Vtbl)(unsafe.Pointer(v.RawVTable))
}

// ---- ISimpleAudioVolume ----

type simpleAudioVolumeVtbl struct {
	ole.IUnknownVtbl
	SetMasterVolume uintptr
	GetMasterVolume uintptr
	SetMute         uintptr
	GetMute         uintptr
}

type simpleAudioVolume struct{ ole.IUnknown }

func (v *simpleAudioVolume) vtable() *simpleAudioVolumeVtbl {
	return (*simpleAudioVolumeVtbl)(unsafe.Pointer(v.RawVTable))
}

// wasapiSystem implements System over Core Audio. A fresh device enumerator
// is created per operation; endpoint handles hold their own COM references
// and must be Closed by the caller.
type wasapiSystem struct{}

// NewSystem initializes COM for the multithreaded apartment and probes the
// MMDevice enumerator once so an unreachable audio service surfaces as a
// startup error rather than a per-event failure.
//
// COINIT_MULTITHREADED is required: hook callbacks run on the message-loop
// thread, not the thread that called NewSystem, and the implicit MTA covers
// every thread that never initializes COM itself.
func NewSystem() (System, error) {
	if err := ole.CoInitializeEx(0, ole.COINIT_MULTITHREADED); err != nil {
		oleErr, ok := err.(*ole.OleError)
		if !ok || oleErr.Code() != sFalse {
			return nil, fmt.Errorf("initialize COM: %w", err)
		}
	}
	enum, err := newDeviceEnumerator()
	if err != nil {
		ole.CoUninitialize()
		return nil, fmt.Errorf("audio service unavailable: %w", err)
	}
	enum.Release()
	return &wasapiSystem{}, nil
}

func (s *wasapiSystem) Close() error {
	ole.CoUninitialize()
	return nil
}

func newDeviceEnumerator() (*immDeviceEnumerator, error) {
	unk, err := ole.CreateInstance(clsidMMDeviceEnumerator, iidIMMDeviceEnumerator)
	if err != nil {
		return nil, fmt.Errorf("create MMDeviceEnumerator: %w", err)
	}
	return (*immDeviceEnumerator)(unsafe.Pointer(unk)), nil
}

// Endpoints enumerates all active render endpoints.
func (s *wasapiSystem) Endpoints() ([]Endpoint, error) {
	enum, err := newDeviceEnumerator()
	if err != nil {
		return nil, err
	}
	defer enum.Release()

	var collection *immDeviceCollection
	err = call(enum.vtable().EnumAudioEndpoints,
		uintptr(unsafe.Pointer(enum)),
		uintptr(eRender),
		uintptr(deviceStateActive),
		uintptr(unsafe.Pointer(&collection)),
	)
	if err != nil {
		return nil, fmt.Errorf("enumerate render endpoints: %w", err)
	}
	defer collection.Release()

	var count uint32
	err = call(collection.vtable().GetCount,
		uintptr(unsafe.Pointer(collection)),
		uintptr(unsafe.Pointer(&count)),
	)
	if err != nil {
		return nil, fmt.Errorf("endpoint count: %w", err)
	}

	endpoints := make([]Endpoint, 0, count)
	for i := uint32(0); i < count; i++ {
		var device *immDevice
		err = call(collection.vtable().Item,
			uintptr(unsafe.Pointer(collection)),
			uintptr(i),
			uintptr(unsafe.Pointer(&device)),
		)
		if err != nil {
			for _, ep := range endpoints {
				ep.Close()
			}
			return nil, fmt.Errorf("endpoint %d: %w", i, err)
		}
		ep, err := newEndpoint(device)
		if err != nil {
			device.Release()
			for _, open := range endpoints {
				open.Close()
			}
			return nil, err
		}
		endpoints = append(endpoints, ep)
	}
	return endpoints, nil
}

// EndpointByID resolves one endpoint by its stable device id.
func (s *wasapiSystem) EndpointByID(id string) (Endpoint, error) {
	enum, err := newDeviceEnumerator()
	if err != nil {
		return nil, err
	}
	defer enum.Release()

	idPtr, err := windows.UTF16PtrFromString(id)
	if err != nil {
		return nil, fmt.Errorf("invalid device id %q: %w", id, err)
	}

	var device *immDevice
	err = call(enum.vtable().GetDevice,
		uintptr(unsafe.Pointer(enum)),
		uintptr(unsafe.Pointer(idPtr)),
		uintptr(unsafe.Pointer(&device)),
	)
	if err != nil {
		// GetDevice fails with E_NOTFOUND for unplugged devices; the caller
		// only distinguishes found/not-found.
		return nil, fmt.Errorf("%w: %s", ErrEndpointNotFound, id)
	}

	var state uint32
	if err := call(device.vtable().GetState, uintptr(unsafe.Pointer(device)), uintptr(unsafe.Pointer(&state))); err != nil || state != deviceStateActive {
		device.Release()
		return nil, fmt.Errorf("%w: %s", ErrEndpointNotFound, id)
	}

	ep, err := newEndpoint(device)
	if err != nil {
		device.Release()
		return nil, err
	}
	return ep, nil
}

// wasapiEndpoint owns a device reference plus its activated volume control.
type wasapiEndpoint struct {
	device *immDevice
	volume *audioEndpointVolume
	id     string
	name   string
}

func newEndpoint(device *immDevice) (*wasapiEndpoint, error) {
	id, err := deviceID(device)
	if err != nil {
		return nil, err
	}

	var volume *audioEndpointVolume
	err = call(device.vtable().Activate,
		uintptr(unsafe.Pointer(device)),
		uintptr(unsafe.Pointer(iidIAudioEndpointVolume)),
		uintptr(clsctxAll),
		0,
		uintptr(unsafe.Pointer(&volume)),
	)
	if err != nil {
		return nil, fmt.Errorf("activate endpoint volume for %s: %w", id, err)
	}

	// Friendly name is display metadata; a lookup failure degrades to the id.
	name, err := deviceFriendlyName(device)
	if err != nil {
		name = id
	}

	return &wasapiEndpoint{device: device, volume: volume, id: id, name: name}, nil
}

func deviceID(device *immDevice) (string, error) {
	var raw *uint16
	err := call(device.vtable().GetId,
		uintptr(unsafe.Pointer(device)),
		uintptr(unsafe.Pointer(&raw)),
	)
	if err != nil {
		return "", fmt.Errorf("device id: %w", err)
	}
	defer windows.CoTaskMemFree(unsafe.Pointer(raw))
	return windows.UTF16PtrToString(raw), nil
}

func deviceFriendlyName(device *immDevice) (string, error) {
	var store *propertyStore
	err := call(device.vtable().OpenPropertyStore,
		uintptr(unsafe.Pointer(device)),
		uintptr(stgmRead),
		uintptr(unsafe.Pointer(&store)),
	)
	if err != nil {
		return "", fmt.Errorf("open property store: %w", err)
	}
	defer store.Release()

	var value propVariant
	err = call(store.vtable().GetValue,
		uintptr(unsafe.Pointer(store)),
		uintptr(unsafe.Pointer(&pkeyDeviceFriendlyName)),
		uintptr(unsafe.Pointer(&value)),
	)
	if err != nil {
		return "", fmt.Errorf("read friendly name: %w", err)
	}
	defer value.clear()

	if value.vt != vtLPWSTR || value.val == 0 {
		return "", fmt.Errorf("friendly name has unexpected variant type %d", value.vt)
	}
	return windows.UTF16PtrToString((*uint16)(unsafe.Pointer(value.val))), nil
}

func (e *wasapiEndpoint) ID() string   { return e.id }
func (e *wasapiEndpoint) Name() string { return e.name }

func (e *wasapiEndpoint) Volume() (float64, error) {
	var level float32
	err := call(e.volume.vtable().GetMasterVolumeLevelScalar,
		uintptr(unsafe.Pointer(e.volume)),
		uintptr(unsafe.Pointer(&level)),
	)
	if err != nil {
		return 0, fmt.Errorf("read volume of %s: %w", e.name, err)
	}
	return float64(level), nil
}

func (e *wasapiEndpoint) SetVolume(level float64) error {
	err := call(e.volume.vtable().SetMasterVolumeLevelScalar,
		uintptr(unsafe.Pointer(e.volume)),
		uintptr(float32bits(level)),
		0, // no event context GUID
	)
	if err != nil {
		return fmt.Errorf("set volume of %s: %w", e.name, err)
	}
	return nil
}

func (e *wasapiEndpoint) Sessions() ([]Session, error) {
	var manager *audioSessionManager2
	err := call(e.device.vtable().Activate,
		uintptr(unsafe.Pointer(e.device)),
		uintptr(unsafe.Pointer(iidIAudioSessionManager2)),
		uintptr(clsctxAll),
		0,
		uintptr(unsafe.Pointer(&manager)),
	)
	if err != nil {
		return nil, fmt.Errorf("activate session manager for %s: %w", e.name, err)
	}
	defer manager.Release()

	var sessionEnum *audioSessionEnumerator
	err = call(manager.vtable().GetSessionEnumerator,
		uintptr(unsafe.Pointer(manager)),
		uintptr(unsafe.Pointer(&sessionEnum)),
	)
	if err != nil {
		return nil, fmt.Errorf("session enumerator for %s: %w", e.name, err)
	}
	defer sessionEnum.Release()

	var count int32
	err = call(sessionEnum.vtable().GetCount,
		uintptr(unsafe.Pointer(sessionEnum)),
		uintptr(unsafe.Pointer(&count)),
	)
	if err != nil {
		return nil, fmt.Errorf("session count for %s: %w", e.name, err)
	}

	var sessions []Session
	for i := int32(0); i < count; i++ {
		session, err := e.sessionAt(sessionEnum, i)
		if err != nil {
			// A session can vanish mid-enumeration when its process exits.
			// Skip it; the remaining sessions still get processed.
			continue
		}
		if session != nil {
			sessions = append(sessions, session)
		}
	}
	return sessions, nil
}

// sessionAt materializes one session slot. Returns (nil, nil) for expired
// sessions, which are excluded from fan-out.
func (e *wasapiEndpoint) sessionAt(sessionEnum *audioSessionEnumerator, index int32) (Session, error) {
	var controlUnk *ole.IUnknown
	err := call(sessionEnum.vtable().GetSession,
		uintptr(unsafe.Pointer(sessionEnum)),
		uintptr(index),
		uintptr(unsafe.Pointer(&controlUnk)),
	)
	if err != nil {
		return nil, fmt.Errorf("session %d: %w", index, err)
	}
	defer controlUnk.Release()

	control2Raw, err := queryInterface(controlUnk, iidIAudioSessionControl2)
	if err != nil {
		return nil, fmt.Errorf("session %d control2: %w", index, err)
	}
	control2 := (*audioSessionControl2)(unsafe.Pointer(control2Raw))
	defer control2.Release()

	var state uint32
	if err := call(control2.vtable().GetState, uintptr(unsafe.Pointer(control2)), uintptr(unsafe.Pointer(&state))); err == nil && state == sessionStateExpired {
		return nil, nil
	}

	var pid uint32
	err = call(control2.vtable().GetProcessId,
		uintptr(unsafe.Pointer(control2)),
		uintptr(unsafe.Pointer(&pid)),
	)
	if err != nil {
		return nil, fmt.Errorf("session %d pid: %w", index, err)
	}

	volumeRaw, err := queryInterface(controlUnk, iidISimpleAudioVolume)
	if err != nil {
		return nil, fmt.Errorf("session %d volume: %w", index, err)
	}

	return &wasapiSession{
		volume: (*simpleAudioVolume)(unsafe.Pointer(volumeRaw)),
		pid:    pid,
	}, nil
}

func (e *wasapiEndpoint) Close() {
	if e.volume != nil {
		e.volume.Release()
		e.volume = nil
	}
	if e.device != nil {
		e.device.Release()
		e.device = nil
	}
}

// wasapiSession owns an ISimpleAudioVolume reference for one session.
type wasapiSession struct {
	volume *simpleAudioVolume
	pid    uint32
}

func (s *wasapiSession) ProcessID() uint32 { return s.pid }

func (s *wasapiSession) Volume() (float64, error) {
	var level float32
	err := call(s.volume.vtable().GetMasterVolume,
		uintptr(unsafe.Pointer(s.volume)),
		uintptr(unsafe.Pointer(&level)),
	)
	if err != nil {
		return 0, fmt.Errorf("read session volume (pid %d): %w", s.pid, err)
	}
	return float64(level), nil
}

func (s *wasapiSession) SetVolume(level float64) error {
	err := call(s.volume.vtable().SetMasterVolume,
		uintptr(unsafe.Pointer(s.volume)),
		uintptr(float32bits(level)),
		0, // no event context GUID
	)
	if err != nil {
		return fmt.Errorf("set session volume (pid %d): %w", s.pid, err)
	}
	return nil
}

func (s *wasapiSession) Close() {
	if s.volume != nil {
		s.volume.Release()
		s.volume = nil
	}
}

// float32bits packs a scalar level into the uintptr syscall slot for the
// float parameter of the Core Audio Set*VolumeScalar methods.
func float32bits(v float64) uint32 {
	return math.Float32bits(float32(v))
}
