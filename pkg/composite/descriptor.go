//go:build tinygo

// Package composite provides the USB composite device descriptor: CDC
// (serial config channel) + one HID keyboard interface.
package composite

import (
	"machine/usb"
	"machine/usb/descriptor"
)

// hidUsagePageVendorPedal is the vendor usage page 0xFF17 carrying host commands.
var hidUsagePageVendorPedal = []byte{0x06, 0x17, 0xFF}

// KeyboardReportDescriptor describes a boot-style keyboard without report IDs.
//
//	input:  [modifier][reserved][keycodes:6]   (8 bytes)
//	output: [leds][command][data]              (3 bytes)
var KeyboardReportDescriptor = descriptor.Append([][]byte{
	descriptor.HIDUsagePageGenericDesktop,
	descriptor.HIDUsageDesktopKeyboard,
	descriptor.HIDCollectionApplication,
	// Modifier keys (8 bits)
	descriptor.HIDUsagePageKeyboard,
	descriptor.HIDUsageMinimum(224),
	descriptor.HIDUsageMaximum(231),
	descriptor.HIDLogicalMinimum(0),
	descriptor.HIDLogicalMaximum(1),
	descriptor.HIDReportSize(1),
	descriptor.HIDReportCount(8),
	descriptor.HIDInputDataVarAbs,
	// Reserved byte
	descriptor.HIDReportCount(1),
	descriptor.HIDReportSize(8),
	descriptor.HIDInputConstVarAbs,
	// LED output (5 bits + 3 padding)
	descriptor.HIDReportCount(5),
	descriptor.HIDReportSize(1),
	descriptor.HIDUsagePageLED,
	descriptor.HIDUsageMinimum(1),
	descriptor.HIDUsageMaximum(5),
	descriptor.HIDOutputDataVarAbs,
	descriptor.HIDReportCount(1),
	descriptor.HIDReportSize(3),
	descriptor.HIDOutputConstVarAbs,
	// Keycodes (6 keys)
	descriptor.HIDReportCount(6),
	descriptor.HIDReportSize(8),
	descriptor.HIDLogicalMinimum(0),
	descriptor.HIDLogicalMaximum(255),
	descriptor.HIDUsagePageKeyboard,
	descriptor.HIDUsageMinimum(0),
	descriptor.HIDUsageMaximum(0xDD),
	descriptor.HIDInputDataAryAbs,
	// Command opcode and its data byte
	hidUsagePageVendorPedal,
	descriptor.HIDUsageMinimum(1),
	descriptor.HIDUsageMaximum(0xFF),
	descriptor.HIDLogicalMinimum(0),
	descriptor.HIDLogicalMaximum(255),
	descriptor.HIDReportSize(8),
	descriptor.HIDReportCount(2),
	descriptor.HIDOutputDataVarAbs,
	descriptor.HIDCollectionEnd,
})

// USBDescriptor is the complete USB descriptor for the pedal.
var USBDescriptor = descriptor.Descriptor{
	Device: descriptor.DeviceCDC.Bytes(),

	Configuration: descriptor.Append([][]byte{
		descriptor.ConfigurationCDCHID.Bytes(),
		// CDC interfaces
		descriptor.InterfaceAssociationCDC.Bytes(),
		descriptor.InterfaceCDCControl.Bytes(),
		descriptor.ClassSpecificCDCHeader.Bytes(),
		descriptor.ClassSpecificCDCACM.Bytes(),
		descriptor.ClassSpecificCDCUnion.Bytes(),
		descriptor.ClassSpecificCDCCallManagement.Bytes(),
		descriptor.EndpointEP1IN.Bytes(),
		descriptor.InterfaceCDCData.Bytes(),
		descriptor.EndpointEP2OUT.Bytes(),
		descriptor.EndpointEP3IN.Bytes(),
		// HID interface
		descriptor.InterfaceHID.Bytes(),
		func() []byte {
			classHID := descriptor.ClassHID.Bytes()
			// report descriptor length
			classHID[7] = byte(len(KeyboardReportDescriptor))
			classHID[8] = byte(len(KeyboardReportDescriptor) >> 8)
			return classHID
		}(),
		descriptor.EndpointEP4IN.Bytes(),
		descriptor.EndpointEP5OUT.Bytes(),
	}),

	HID: map[uint16][]byte{
		usb.HID_INTERFACE: KeyboardReportDescriptor,
	},
}
