// Package media holds the small media-adjacent value types shared by
// one-to-one and group call sessions.
package media

// NetworkAdapterType mirrors the adapter types reported by the engine.
// It is not an option set; a route has exactly one of these values.
// Cellular means the generation is unknown; when known the engine
// reports one of the CellularXG values instead.
type NetworkAdapterType int

const (
	AdapterTypeUnknown    NetworkAdapterType = 0
	AdapterTypeEthernet   NetworkAdapterType = 1 << 0
	AdapterTypeWifi       NetworkAdapterType = 1 << 1
	AdapterTypeCellular   NetworkAdapterType = 1 << 2
	AdapterTypeVpn        NetworkAdapterType = 1 << 3
	AdapterTypeLoopback   NetworkAdapterType = 1 << 4
	AdapterTypeDefault    NetworkAdapterType = 1 << 5
	AdapterTypeCellular2G NetworkAdapterType = 1 << 6
	AdapterTypeCellular3G NetworkAdapterType = 1 << 7
	AdapterTypeCellular4G NetworkAdapterType = 1 << 8
	AdapterTypeCellular5G NetworkAdapterType = 1 << 9
)

// NetworkRoute describes the route used for sending audio/video/data.
type NetworkRoute struct {
	LocalAdapterType NetworkAdapterType
}

// RawAudioLevel is in the range 0-32767 where 0 is silence.
type RawAudioLevel uint16

// NormalizedAudioLevel is in the range 0.0-1.0 where 0 is silence.
type NormalizedAudioLevel float32

func NormalizeAudioLevel(raw RawAudioLevel) NormalizedAudioLevel {
	return NormalizedAudioLevel(raw) / 32767
}

type BandwidthMode int

const (
	BandwidthModeLow    BandwidthMode = 0
	BandwidthModeNormal BandwidthMode = 1
)

// VideoPixelFormat of raw frame buffers handed to or pulled from the
// engine.
type VideoPixelFormat int

const (
	VideoPixelFormatI420 VideoPixelFormat = iota
	VideoPixelFormatNV12
	VideoPixelFormatRGBA
)

// AudioDevice describes an audio input or output device.
type AudioDevice struct {
	// Device name.
	Name string
	// Index of this device, starting from 0.
	Index int
	// A unique and somewhat stable identifier of this device.
	UniqueID string
	// If present, the identifier of a localized string to substitute
	// for the device name.
	I18nKey string
}
