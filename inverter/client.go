// Package inverter reads plant telemetry from a Sigenergy hybrid
// inverter over Modbus. The integration is read-only: schedule execution
// belongs to the vendor EMS, this client only observes live state and the
// lifetime energy counters the observation pipeline differences.
package inverter

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/goburrow/modbus"
)

// PlantAddress is the fixed slave address of the plant-level register map.
const PlantAddress = 247

// Register blocks. All registers are big-endian input registers.
const (
	statusBase   = 30000
	statusCount  = 40 // through ESSPower at offset 74..78
	counterBase  = 30200
	counterCount = 10
)

// Client is a read-only Modbus connection to the plant.
type Client struct {
	client     modbus.Client
	handler    *modbus.RTUClientHandler
	tcpHandler *modbus.TCPClientHandler
}

// NewTCPClient connects over Modbus TCP.
func NewTCPClient(address string, slaveID byte) (*Client, error) {
	handler := modbus.NewTCPClientHandler(address)
	handler.SlaveId = slaveID
	handler.Timeout = 1 * time.Second

	if err := handler.Connect(); err != nil {
		return nil, fmt.Errorf("modbus tcp connect: %w", err)
	}

	return &Client{
		client:     modbus.NewClient(handler),
		tcpHandler: handler,
	}, nil
}

// NewRTUClient connects over a serial RTU line.
func NewRTUClient(device string, baudRate int, slaveID byte) (*Client, error) {
	handler := modbus.NewRTUClientHandler(device)
	handler.BaudRate = baudRate
	handler.DataBits = 8
	handler.Parity = "N"
	handler.StopBits = 1
	handler.SlaveId = slaveID
	handler.Timeout = 1 * time.Second

	if err := handler.Connect(); err != nil {
		return nil, fmt.Errorf("modbus rtu connect: %w", err)
	}

	return &Client{
		client:  modbus.NewClient(handler),
		handler: handler,
	}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.handler != nil {
		return c.handler.Close()
	}
	if c.tcpHandler != nil {
		return c.tcpHandler.Close()
	}
	return nil
}

// Status is a live snapshot of the plant.
type Status struct {
	SOCPercent     float64
	GridPowerKW    float64 // positive import, negative export
	PVPowerKW      float64
	BatteryPowerKW float64 // positive charging, negative discharging
}

// ReadStatus reads the live plant block.
func (c *Client) ReadStatus() (*Status, error) {
	data, err := c.client.ReadInputRegisters(statusBase, statusCount)
	if err != nil {
		return nil, fmt.Errorf("reading plant status: %w", err)
	}
	return decodeStatus(data)
}

func decodeStatus(data []byte) (*Status, error) {
	if len(data) < int(statusCount)*2 {
		return nil, fmt.Errorf("plant status block too short: %d bytes", len(data))
	}
	return &Status{
		GridPowerKW:    float64(bytesToS32(data[10:14])) / 1000.0,
		SOCPercent:     float64(bytesToU16(data[28:30])) / 10.0,
		PVPowerKW:      float64(bytesToS32(data[70:74])) / 1000.0,
		BatteryPowerKW: float64(bytesToS32(data[74:78])) / 1000.0,
	}, nil
}

// Counters are the plant's lifetime cumulative energy totals. They only
// ever grow; the observation store turns them into per-slot deltas.
type Counters struct {
	PVGeneratedKWh       float64
	GridImportedKWh      float64
	GridExportedKWh      float64
	BatteryChargedKWh    float64
	BatteryDischargedKWh float64
}

// ReadCounters reads the accumulated-energy block.
func (c *Client) ReadCounters() (*Counters, error) {
	data, err := c.client.ReadInputRegisters(counterBase, counterCount)
	if err != nil {
		return nil, fmt.Errorf("reading energy counters: %w", err)
	}
	return decodeCounters(data)
}

func decodeCounters(data []byte) (*Counters, error) {
	if len(data) < int(counterCount)*2 {
		return nil, fmt.Errorf("energy counter block too short: %d bytes", len(data))
	}
	return &Counters{
		PVGeneratedKWh:       float64(bytesToU32(data[0:4])) / 100.0,
		GridImportedKWh:      float64(bytesToU32(data[4:8])) / 100.0,
		GridExportedKWh:      float64(bytesToU32(data[8:12])) / 100.0,
		BatteryChargedKWh:    float64(bytesToU32(data[12:16])) / 100.0,
		BatteryDischargedKWh: float64(bytesToU32(data[16:20])) / 100.0,
	}, nil
}

func bytesToU16(data []byte) uint16 {
	return binary.BigEndian.Uint16(data)
}

func bytesToU32(data []byte) uint32 {
	return binary.BigEndian.Uint32(data)
}

func bytesToS32(data []byte) int32 {
	return int32(binary.BigEndian.Uint32(data))
}
