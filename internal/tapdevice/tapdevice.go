// Package tapdevice wraps a TAP virtual Ethernet adapter: frame read/write
// goroutines feeding buffered channels, adapter discovery by description,
// and idempotent IP assignment.
package tapdevice

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/songgao/water"

	"github.com/didierodjou/televkvpn/pkg/layer2"
)

// channelDepth sizes the read/write channels generously enough to absorb a
// burst without the TAP read/write loops blocking on a slow consumer.
const channelDepth = 2000

// Device manages a TAP interface: raw frame I/O plus OS-level configuration
// needed to bring it into service as the tunnel's virtual NIC.
type Device struct {
	iface     *water.Interface
	name      string
	mtu       int
	readChan  chan *layer2.EthernetFrame
	writeChan chan []byte
	errorChan chan error
	packets   atomic.Uint64
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// Config configures a new TAP device.
type Config struct {
	// Name is the desired interface name/alias. On Windows this is matched
	// against existing adapters rather than requested at creation time;
	// pass the value returned by Discover.
	Name string
	MTU  int
}

// Discover returns the name of the first network adapter whose description
// contains aliasSubstring, matching a TAP-Windows6 virtual adapter's
// "TAP-Windows Adapter V9" style description. Only meaningful on Windows;
// other platforms return an error since interface discovery there is done
// by the caller supplying an explicit name (e.g. a pre-created tunN).
func Discover(aliasSubstring string) (string, error) {
	if runtime.GOOS != "windows" {
		return "", fmt.Errorf("tapdevice: adapter discovery by description is only supported on windows")
	}

	script := fmt.Sprintf(
		`(Get-NetAdapter | Where-Object {$_.InterfaceDescription -like "*%s*"} | Select-Object -First 1).Name`,
		aliasSubstring,
	)
	out, err := exec.Command("powershell", "-NoProfile", "-Command", script).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("tapdevice: discover adapter: %w (output: %s)", err, strings.TrimSpace(string(out)))
	}

	name := strings.TrimSpace(string(out))
	if name == "" {
		return "", fmt.Errorf("tapdevice: no adapter found with description containing %q", aliasSubstring)
	}
	return name, nil
}

// New creates and opens a TAP interface.
func New(cfg Config) (*Device, error) {
	if cfg.MTU == 0 {
		cfg.MTU = 1280
	}

	waterCfg := water.Config{DeviceType: water.TAP}
	if cfg.Name != "" {
		waterCfg.Name = cfg.Name
	}

	iface, err := water.New(waterCfg)
	if err != nil {
		return nil, fmt.Errorf("tapdevice: open interface: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Device{
		iface:     iface,
		name:      iface.Name(),
		mtu:       cfg.MTU,
		readChan:  make(chan *layer2.EthernetFrame, channelDepth),
		writeChan: make(chan []byte, channelDepth),
		errorChan: make(chan error, 10),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start launches the read and write goroutines.
func (d *Device) Start() {
	d.wg.Add(2)
	go d.readLoop()
	go d.writeLoop()
}

// Stop cancels the read/write goroutines, waits for them, and closes the
// underlying interface and channels.
func (d *Device) Stop() error {
	d.cancel()
	d.wg.Wait()

	if err := d.iface.Close(); err != nil {
		return fmt.Errorf("tapdevice: close interface: %w", err)
	}

	close(d.readChan)
	close(d.writeChan)
	close(d.errorChan)
	return nil
}

func (d *Device) readLoop() {
	defer d.wg.Done()

	buffer := make([]byte, d.mtu+layer2.EthernetHeaderSize)

	for {
		select {
		case <-d.ctx.Done():
			return
		default:
		}

		n, err := d.iface.Read(buffer)
		if err != nil {
			if err == io.EOF {
				return
			}
			d.emitError(fmt.Errorf("tap read: %w", err))
			continue
		}

		frame, err := layer2.ParseFrame(buffer[:n], d.mtu+layer2.EthernetHeaderSize)
		if err != nil {
			d.emitError(fmt.Errorf("malformed frame dropped: %w", err))
			continue
		}
		d.packets.Add(1)

		select {
		case d.readChan <- frame:
		case <-d.ctx.Done():
			return
		default:
			d.emitError(fmt.Errorf("read channel full, dropping frame"))
		}
	}
}

func (d *Device) writeLoop() {
	defer d.wg.Done()

	maxFrame := d.mtu + layer2.EthernetHeaderSize

	for {
		select {
		case <-d.ctx.Done():
			return

		case frame := <-d.writeChan:
			if len(frame) < layer2.MinFrameSize {
				d.emitError(fmt.Errorf("dropping invalid frame: too short (%d bytes)", len(frame)))
				continue
			}
			if len(frame) > maxFrame {
				d.emitError(fmt.Errorf("dropping invalid frame: too large (%d bytes)", len(frame)))
				continue
			}
			if _, err := d.iface.Write(frame); err != nil {
				d.emitError(fmt.Errorf("tap write: %w", err))
			}
		}
	}
}

func (d *Device) emitError(err error) {
	select {
	case d.errorChan <- err:
	default:
	}
}

// ReadChannel returns parsed frames read from the TAP device.
func (d *Device) ReadChannel() <-chan *layer2.EthernetFrame { return d.readChan }

// WriteChannel accepts raw Ethernet frames to write to the TAP device.
func (d *Device) WriteChannel() chan<- []byte { return d.writeChan }

// ErrorChannel surfaces non-fatal I/O errors for the caller to log.
func (d *Device) ErrorChannel() <-chan error { return d.errorChan }

// Name returns the OS-assigned interface name.
func (d *Device) Name() string { return d.name }

// MTU returns the configured MTU.
func (d *Device) MTU() int { return d.mtu }

// PacketCount returns the number of frames read from the interface so far.
func (d *Device) PacketCount() uint64 { return d.packets.Load() }

// MACAddress queries the adapter's hardware address via PowerShell. Windows
// only; water does not expose this itself for TAP-Windows6 adapters.
func (d *Device) MACAddress() ([6]byte, error) {
	var mac [6]byte
	if runtime.GOOS != "windows" {
		return mac, fmt.Errorf("tapdevice: MACAddress is only implemented for windows")
	}

	script := fmt.Sprintf(`(Get-NetAdapter -Name "%s").MacAddress`, d.name)
	out, err := exec.Command("powershell", "-NoProfile", "-Command", script).CombinedOutput()
	if err != nil {
		return mac, fmt.Errorf("tapdevice: query MAC: %w", err)
	}

	raw := strings.NewReplacer("-", "", ":", "").Replace(strings.TrimSpace(string(out)))
	if len(raw) != 12 {
		return mac, fmt.Errorf("tapdevice: unexpected MAC address format %q", raw)
	}
	for i := 0; i < 6; i++ {
		var b int
		if _, err := fmt.Sscanf(raw[i*2:i*2+2], "%02x", &b); err != nil {
			return mac, fmt.Errorf("tapdevice: parse MAC byte %d: %w", i, err)
		}
		mac[i] = byte(b)
	}
	return mac, nil
}

// AssignIP sets the interface's IPv4 address, removing any existing address
// first so repeated calls (e.g. on reconnect) are idempotent.
func (d *Device) AssignIP(ip string, prefixLength int) error {
	switch runtime.GOOS {
	case "windows":
		script := fmt.Sprintf(`
Remove-NetIPAddress -InterfaceAlias "%s" -Confirm:$false -ErrorAction SilentlyContinue
New-NetIPAddress -IPAddress %s -PrefixLength %d -InterfaceAlias "%s" | Out-Null
Enable-NetAdapter -Name "%s" -Confirm:$false
`, d.name, ip, prefixLength, d.name, d.name)
		if out, err := exec.Command("powershell", "-NoProfile", "-Command", script).CombinedOutput(); err != nil {
			return fmt.Errorf("tapdevice: assign IP %s to %s: %w (output: %s)", ip, d.name, err, strings.TrimSpace(string(out)))
		}
		return nil

	default:
		up := exec.Command("ip", "link", "set", "dev", d.name, "up")
		if out, err := up.CombinedOutput(); err != nil {
			return fmt.Errorf("tapdevice: bring up %s: %w (output: %s)", d.name, err, strings.TrimSpace(string(out)))
		}
		exec.Command("ip", "addr", "flush", "dev", d.name).Run()
		cidr := fmt.Sprintf("%s/%d", ip, prefixLength)
		addAddr := exec.Command("ip", "addr", "add", cidr, "dev", d.name)
		if out, err := addAddr.CombinedOutput(); err != nil {
			return fmt.Errorf("tapdevice: assign %s to %s: %w (output: %s)", cidr, d.name, err, strings.TrimSpace(string(out)))
		}
		return nil
	}
}
