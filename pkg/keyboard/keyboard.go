//go:build tinygo

// Package keyboard is the USB HID transport: it sends keyboard input reports
// on the HID IN endpoint and collects the host's output reports (LEDs plus
// the vendor command/data pair) from the OUT endpoint.
package keyboard

import (
	"machine"
	"machine/usb"
	"machine/usb/hid"
	"runtime/interrupt"
	"time"

	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/command"
	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/composite"
	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/logging"
	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/report"

	"golang.org/x/time/rate"
)

// Layout is the input report layout the composite descriptor advertises.
const Layout = report.LayoutBasic

// Keyboard implements pedal.Transport.
type Keyboard struct {
	buf     *hid.RingBuffer
	waitTxc bool

	// written by the OUT endpoint interrupt
	leds    uint8
	rx      [command.PacketSize]byte
	rxLen   int
	rxReady bool
}

var keyboardInstance *Keyboard

// dropLog keeps a suspended host from flooding the console.
var dropLog = rate.NewLimiter(rate.Every(10*time.Second), 1)

// Port configures the USB stack with the composite descriptor and returns
// the keyboard. Only the first call configures.
func Port() *Keyboard {
	if keyboardInstance == nil {
		keyboardInstance = &Keyboard{
			buf: hid.NewRingBuffer(),
		}
		machine.ConfigureUSBEndpoint(composite.USBDescriptor,
			[]usb.EndpointConfig{
				{
					Index:     usb.HID_ENDPOINT_IN,
					IsIn:      true,
					Type:      usb.ENDPOINT_TYPE_INTERRUPT,
					TxHandler: func() { keyboardInstance.TxHandler() },
				},
				{
					Index:     usb.HID_ENDPOINT_OUT,
					IsIn:      false,
					Type:      usb.ENDPOINT_TYPE_INTERRUPT,
					RxHandler: func(b []byte) { keyboardInstance.RxHandler(b) },
				},
			},
			[]usb.SetupConfig{
				{
					Index:   usb.HID_INTERFACE,
					Handler: setupHandler,
				},
			})
	}
	return keyboardInstance
}

// TxHandler is called by the USB interrupt when the endpoint is ready to transmit.
func (k *Keyboard) TxHandler() bool {
	k.waitTxc = false
	if b, ok := k.buf.Get(); ok {
		k.waitTxc = true
		hid.SendUSBPacket(b)
		return true
	}
	return false
}

// RxHandler stores an output report [leds][command][data]. The command pair
// is kept until ReadRaw consumes it; a newer report replaces an unread one.
func (k *Keyboard) RxHandler(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	k.leds = b[0]
	k.rxLen = copy(k.rx[:], b[1:])
	k.rxReady = true
	return true
}

// Poll reports whether an output report is waiting.
func (k *Keyboard) Poll() bool {
	state := interrupt.Disable()
	ready := k.rxReady
	interrupt.Restore(state)
	return ready
}

// ReadRaw returns the pending command packet. n is 0 if nothing is pending.
func (k *Keyboard) ReadRaw() ([command.PacketSize]byte, int, error) {
	var buf [command.PacketSize]byte

	state := interrupt.Disable()
	n := 0
	if k.rxReady {
		buf = k.rx
		n = k.rxLen
		k.rxReady = false
	}
	interrupt.Restore(state)

	return buf, n, nil
}

// LEDs returns the last LED state written by the host.
func (k *Keyboard) LEDs() uint8 {
	state := interrupt.Disable()
	leds := k.leds
	interrupt.Restore(state)
	return leds
}

// WriteReport queues r for the IN endpoint. Reports written before the host
// has configured the device are dropped.
func (k *Keyboard) WriteReport(r *report.Report) error {
	var raw [11]byte
	k.tx(r.AppendTo(raw[:0], Layout))
	return nil
}

// tx sends a report packet, queuing if the endpoint is busy. When the queue
// is full (host suspended) the oldest report is dropped.
func (k *Keyboard) tx(b []byte) {
	if !machine.USBDev.InitEndpointComplete {
		return
	}

	dropped := false
	state := interrupt.Disable()
	if !k.waitTxc {
		k.waitTxc = true
		hid.SendUSBPacket(b)
	} else if !k.buf.Put(b) {
		k.buf.Get()
		k.buf.Put(b)
		dropped = true
	}
	interrupt.Restore(state)

	if dropped && dropLog.Allow() {
		logging.Warn(logging.ComponentReport, "hid queue full, dropped oldest report")
	}
}

func setupHandler(setup usb.Setup) bool {
	if setup.BmRequestType == usb.SET_REPORT_TYPE && setup.BRequest == usb.SET_IDLE {
		machine.SendZlp()
		return true
	}
	return false
}
