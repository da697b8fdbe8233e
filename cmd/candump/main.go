// candump prints frames from one motor bus, decoding motor telemetry where it recognises it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/CodedInternet/gorobomotor/onboard/canbus"
	"github.com/CodedInternet/gorobomotor/onboard/hardware"
	"github.com/golang/glog"
)

func main() {
	ifname := flag.String("if", "can0", "SocketCAN interface, or serial port with -slcan")
	slcan := flag.Bool("slcan", false, "Open an SLCAN serial adapter instead of SocketCAN")
	bitrate := flag.Int("bitrate", 1000000, "SLCAN bitrate")
	gimbal := flag.Bool("gimbal", false, "Treat the bus as the gimbal bus when decoding")
	raw := flag.Bool("raw", false, "Only print raw frames")
	flag.Parse()
	defer glog.Flush()

	sel := canbus.BusChassis
	if *gimbal {
		sel = canbus.BusGimbal
	}

	var bus canbus.CANBusInterface
	var err error
	if *slcan {
		bus, err = canbus.NewSLCANBus(*ifname, *bitrate, sel)
	} else {
		bus, err = canbus.NewCANBus(*ifname, sel)
	}
	if err != nil {
		glog.Exitf("Unable to open %s: %v", *ifname, err)
	}
	defer bus.Close()

	fmt.Printf("Listening on %s as the %s bus\n", *ifname, sel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	channel := hardware.NewMotorChannel(nil, nil, hardware.Options{NotifyAuxiliary: true})
	rx := make(chan canbus.Frame, 64)
	bus.AddListener(rx)

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-rx:
			fmt.Print(msg)
			if *raw {
				fmt.Println()
				continue
			}

			slot, ok, err := channel.Decode(msg)
			switch {
			case err != nil:
				fmt.Printf("\t%v\n", err)
			case ok:
				m := channel.Read(slot)
				fmt.Printf("\t%-6s ecd %4d  rpm %6d  cur %6d  %3dC\n",
					hardware.SlotName(slot), m.Encoder, m.SpeedRPM, m.GivenCurrent, m.Temperature)
			default:
				fmt.Println()
			}
		}
	}
}
