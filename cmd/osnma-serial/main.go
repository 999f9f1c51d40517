// osnma-serial feeds a Galmon transport stream from standard input to
// an embedded OSNMA device over a serial line and relays the device's
// authentication status lines.
//
// The line protocol is ASCII with CRLF terminators. The device emits
// one READY token per record it is willing to accept; the host answers
// with "SVN WN TOW BAND HEX" carrying either an INAV word or an OSNMA
// data message. All other device output (acknowledgements and AUTH
// status lines) is copied to standard output.
package main

import (
	"bufio"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/navsec/osnma/pkg/galileo"
	"github.com/navsec/osnma/pkg/galmon"
)

func fatal(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, "osnma-serial: "+format+"\n", a...)
	os.Exit(1)
}

type device struct {
	w io.Writer
	r *bufio.Reader
}

// waitReady echoes device output until a READY token grants credit for
// one more record.
func (d *device) waitReady() error {
	for {
		line, err := d.r.ReadString('\n')
		if err != nil {
			return err
		}
		fmt.Print(line)
		if strings.TrimRight(line, "\r\n") == "READY" {
			return nil
		}
	}
}

func (d *device) send(svn galileo.Svn, gst galileo.Gst, band int, payload []byte) error {
	_, err := fmt.Fprintf(d.w, "%d %d %d %d %s\r\n",
		uint8(svn), gst.Wn(), gst.Tow(), band, hex.EncodeToString(payload))
	return err
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: osnma-serial <serial device>\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	port, err := os.OpenFile(flag.Arg(0), os.O_RDWR, 0)
	if err != nil {
		fatal("%v", err)
	}
	defer port.Close()
	dev := &device{w: port, r: bufio.NewReader(port)}

	reader := galmon.NewReader(os.Stdin)
	for {
		packet, err := reader.ReadPacket()
		if err == io.EOF {
			return
		}
		if err != nil {
			fatal("%v", err)
		}
		gi := packet.GI
		if gi == nil {
			continue
		}
		tow := gi.GnssTOW % galileo.SecondsPerWeek
		wn := uint16(gi.GnssWN) + uint16(gi.GnssTOW/galileo.SecondsPerWeek)
		gst, err := galileo.NewGst(wn, tow)
		if err != nil {
			continue
		}
		svn, err := galileo.NewSvn(int(gi.GnssSV))
		if err != nil {
			continue
		}
		band := 1
		if gi.HasSigid && gi.Sigid == 5 {
			band = 5
		}
		if err := dev.waitReady(); err != nil {
			fatal("%v", err)
		}
		if err := dev.send(svn, gst, band, gi.Contents); err != nil {
			fatal("%v", err)
		}
		if len(gi.Reserved1) > 0 {
			if err := dev.waitReady(); err != nil {
				fatal("%v", err)
			}
			if err := dev.send(svn, gst, band, gi.Reserved1); err != nil {
				fatal("%v", err)
			}
		}
	}
}
