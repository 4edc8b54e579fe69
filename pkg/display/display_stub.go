//go:build !tinygo || nodebug

package display

import (
	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/command"
	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/config"
	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/protocol"
	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/report"
)

// Manager is a no-op stub when built with nodebug or off-device.
type Manager struct{}

// NewManager returns nil; main skips registering it.
func NewManager(config.Configuration) *Manager {
	return nil
}

func (m *Manager) FrameIn(*protocol.Frame) {}
func (m *Manager) FrameOut(*protocol.Response) {}
func (m *Manager) CommandApplied(command.Command, config.Configuration) {}
func (m *Manager) ReportSent(report.Report, bool) {}
func (m *Manager) ConfigChanged(config.Configuration) {}
func (m *Manager) Fault(error) {}
