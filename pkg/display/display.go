//go:build tinygo && !nodebug

// Package display provides SSD1306 OLED display support for debug output.
// Serial config traffic goes on the yellow rows (0-3); the blue rows show
// the live bindings, the last HID command and the last report. A halting
// fault replaces the outgoing rows.
//
// To build without display support (saves RAM and flash), use:
//
//	tinygo build -tags=nodebug -target=pico -o firmware.uf2 .
package display

import (
	"image/color"
	"machine"
	"time"

	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/command"
	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/config"
	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/logging"
	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/protocol"
	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/report"

	"tinygo.org/x/drivers/ssd1306"
	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"
)

const (
	i2cAddress = 0x3C
	sclPin     = machine.GPIO1
	sdaPin     = machine.GPIO0

	screenWidth  = 128
	screenHeight = 64
	charWidth    = 8
	charHeight   = 8
	cols         = screenWidth / charWidth  // 16 columns
	rows         = screenHeight / charHeight // 8 rows

	rowInBytes   = 0
	rowInParsed  = 1
	rowOutBytes  = 2
	rowOutParsed = 3
	rowBindings  = 5
	rowCommand   = 6
	rowReport    = 7
)

var (
	black = color.RGBA{0, 0, 0, 0}
	white = color.RGBA{255, 255, 255, 255}
)

// Manager handles the SSD1306 display for debug output. A nil *Manager is
// valid and draws nothing.
type Manager struct {
	device    *ssd1306.Device
	formatter *Formatter
}

// NewManager creates and initializes the display manager.
// Returns nil if display initialization fails (non-fatal for debug).
func NewManager(cfg config.Configuration) *Manager {
	i2c := machine.I2C0
	if err := i2c.Configure(machine.I2CConfig{
		Frequency: 400000,
		SCL:       sclPin,
		SDA:       sdaPin,
	}); err != nil {
		logging.Warn(logging.ComponentBoard, "display i2c config failed", "err", err)
		return nil
	}

	// bus settle
	time.Sleep(10 * time.Millisecond)

	dev := ssd1306.NewI2C(i2c)
	dev.Configure(ssd1306.Config{
		Address: i2cAddress,
		Width:   screenWidth,
		Height:  screenHeight,
	})
	dev.ClearDisplay()

	m := &Manager{
		device:    dev,
		formatter: NewFormatter(),
	}
	m.drawString(rowInBytes, "Pedal Debug")
	m.drawString(rowBindings, m.formatter.FormatBindings(cfg))
	m.refresh()
	return m
}

// FrameIn shows an incoming serial frame.
func (m *Manager) FrameIn(frame *protocol.Frame) {
	if m == nil {
		return
	}
	bytesStr, parsedStr := m.formatter.FormatIncoming(frame)
	m.drawString(rowInBytes, "I:"+bytesStr)
	m.drawString(rowInParsed, " "+parsedStr)
	m.refresh()
}

// FrameOut shows an outgoing serial response.
func (m *Manager) FrameOut(resp *protocol.Response) {
	if m == nil {
		return
	}
	bytesStr, parsedStr := m.formatter.FormatOutgoing(resp)
	m.drawString(rowOutBytes, "O:"+bytesStr)
	m.drawString(rowOutParsed, " "+parsedStr)
	m.refresh()
}

// CommandApplied shows the command and the bindings it produced.
func (m *Manager) CommandApplied(cmd command.Command, cfg config.Configuration) {
	if m == nil {
		return
	}
	m.drawString(rowBindings, m.formatter.FormatBindings(cfg))
	m.drawString(rowCommand, m.formatter.FormatCommand(cmd))
	m.refresh()
}

// ConfigChanged shows bindings changed over the serial channel.
func (m *Manager) ConfigChanged(cfg config.Configuration) {
	if m == nil {
		return
	}
	m.drawString(rowBindings, m.formatter.FormatBindings(cfg))
	m.refresh()
}

// ReportSent shows the transmitted report.
func (m *Manager) ReportSent(r report.Report, forced bool) {
	if m == nil {
		return
	}
	m.drawString(rowReport, m.formatter.FormatReport(r, forced))
	m.refresh()
}

// Fault shows the error that halted the device.
func (m *Manager) Fault(err error) {
	if m == nil {
		return
	}
	m.drawString(rowOutBytes, "ERR:")
	m.drawString(rowOutParsed, m.formatter.FormatError(err))
	m.refresh()
}

// drawString clears a row and writes s into it.
func (m *Manager) drawString(row int, s string) {
	if row < 0 || row >= rows {
		return
	}
	yStart := int16(row * charHeight)
	for y := yStart; y < yStart+charHeight; y++ {
		for x := int16(0); x < screenWidth; x++ {
			m.device.SetPixel(x, y, black)
		}
	}
	// tinyfont positions on the baseline
	tinyfont.WriteLine(m.device, &proggy.TinySZ8pt7b, 0, yStart+charHeight-1, truncate(s, cols-1), white)
}

func (m *Manager) refresh() {
	m.device.Display()
}
