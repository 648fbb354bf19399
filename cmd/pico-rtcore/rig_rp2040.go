//go:build rp2040

package main

import (
	"context"

	"machine"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"

	"rtcore-go/comms"
	"rtcore-go/drivers/tmp102"
	"rtcore-go/errcode"
	"rtcore-go/sensors"
	"rtcore-go/x/shmring"
)

// Board wiring: the link rides UART0 on the Pico default pins, the TMP102
// hangs off I2C0.
const (
	uartTX = machine.Pin(0)
	uartRX = machine.Pin(1)
	i2cSDA = machine.Pin(12)
	i2cSCL = machine.Pin(13)
)

// uartPort adapts uartx to comms.Port. uartx reads block inside
// RecvSomeContext, so a pump goroutine drains the hardware into a ring the
// executive polls non-blocking.
type uartPort struct {
	u  *uartx.UART
	rx *shmring.Ring
}

func newUARTPort(u *uartx.UART) *uartPort {
	p := &uartPort{u: u, rx: shmring.New(1024)}
	go p.pump()
	return p
}

func (p *uartPort) pump() {
	buf := make([]byte, 64)
	for {
		n, err := p.u.RecvSomeContext(context.Background(), buf)
		if err != nil {
			return
		}
		for off := 0; off < n; {
			w := p.rx.TryWriteFrom(buf[off:n])
			if w == 0 {
				<-p.rx.Writable()
				continue
			}
			off += w
		}
	}
}

func (p *uartPort) Write(b []byte) (int, error) { return p.u.Write(b) }
func (p *uartPort) Buffered() int               { return p.rx.Available() }
func (p *uartPort) Read(b []byte) (int, error)  { return p.rx.TryReadInto(b), nil }
func (p *uartPort) Readable() <-chan struct{}   { return p.rx.Readable() }

func openPort() comms.Port {
	_ = uartx.UART0.Configure(uartx.UARTConfig{
		BaudRate: 115_200,
		TX:       uartTX,
		RX:       uartRX,
	})
	return newUARTPort(uartx.UART0)
}

func openSource() sensors.Source {
	i2cSDA.Configure(machine.PinConfig{Mode: machine.PinI2C})
	i2cSCL.Configure(machine.PinConfig{Mode: machine.PinI2C})
	_ = machine.I2C0.Configure(machine.I2CConfig{
		SCL:       i2cSCL,
		SDA:       i2cSDA,
		Frequency: 400_000,
	})

	temp := tmp102.New(machine.I2C0)
	temp.Configure(tmp102.Config{Rate: tmp102.Rate4Hz})

	return sensors.SourceFunc(func(name string) (float64, error) {
		if name == "temp0" {
			return temp.SampleCelsius()
		}
		return 0, errcode.SensorNotFound
	})
}
