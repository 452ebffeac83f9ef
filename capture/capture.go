// Package capture writes the PDUs an association exchanges to a pcap file.
// Each PDU becomes one or more synthetic TCP segments so that Wireshark's
// DICOM dissector can decode the conversation.
package capture

import (
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/hsdfat/go-zlog/logger"
	"github.com/pkg/errors"

	"github.com/caio-sobreiro/dicomassoc/host"
	dlog "github.com/caio-sobreiro/dicomassoc/logger"
)

const (
	snapLength = 262144
	// MaxSegment is the largest TCP payload written per packet; it keeps
	// the IPv4 total length within 16 bits.
	MaxSegment = 65535 - 20 - 20
)

var (
	localMAC  = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	remoteMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}

	defaultLocal  = &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 104}
	defaultRemote = &net.TCPAddr{IP: net.IPv4(127, 0, 0, 2), Port: 50104}
)

var _ host.Tap = (*Recorder)(nil)

// Recorder is a host.Tap writing pcap records. It is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	w       *pcapgo.Writer
	closer  io.Closer
	local   *net.TCPAddr
	remote  *net.TCPAddr
	seq     [2]uint32
	packets int
	failed  bool
	log     logger.LoggerI
	now     func() time.Time
}

// New writes a pcap header to w and returns a recorder for the TCP
// conversation between local and remote. Addresses that are not IPv4 TCP
// addresses are replaced by loopback placeholders.
func New(w io.Writer, local, remote net.Addr) (*Recorder, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(snapLength, layers.LinkTypeEthernet); err != nil {
		return nil, errors.Wrap(err, "write pcap header")
	}
	return &Recorder{
		w:      pw,
		local:  tcpAddr(local, defaultLocal),
		remote: tcpAddr(remote, defaultRemote),
		seq:    [2]uint32{1, 1},
		log:    dlog.Log,
		now:    time.Now,
	}, nil
}

// Create is New on a file at path, which Close closes.
func Create(path string, local, remote net.Addr) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "create capture file")
	}
	r, err := New(f, local, remote)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	r.closer = f
	r.log.Infow("Capturing PDUs", "file", path, "local", r.local.String(), "remote", r.remote.String())
	return r, nil
}

// WithLogger replaces the logger used to report write failures.
func (r *Recorder) WithLogger(l logger.LoggerI) *Recorder {
	if l != nil {
		r.log = l
	}
	return r
}

func tcpAddr(addr net.Addr, fallback *net.TCPAddr) *net.TCPAddr {
	if a, ok := addr.(*net.TCPAddr); ok && a.IP.To4() != nil {
		return a
	}
	return fallback
}

// Record implements host.Tap. A write failure is logged once and stops the
// capture; it never affects the association.
func (r *Recorder) Record(outbound bool, raw []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failed {
		return
	}
	for len(raw) > 0 {
		n := min(len(raw), MaxSegment)
		if err := r.writeSegment(outbound, raw[:n]); err != nil {
			r.failed = true
			r.log.Warnw("PDU capture stopped", "error", err, "packets", r.packets)
			return
		}
		raw = raw[n:]
	}
}

func (r *Recorder) writeSegment(outbound bool, payload []byte) error {
	src, dst := r.local, r.remote
	srcMAC, dstMAC := localMAC, remoteMAC
	dir, other := 0, 1
	if !outbound {
		src, dst = dst, src
		srcMAC, dstMAC = dstMAC, srcMAC
		dir, other = 1, 0
	}

	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    src.IP.To4(),
		DstIP:    dst.IP.To4(),
	}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(src.Port),
		DstPort: layers.TCPPort(dst.Port),
		Seq:     r.seq[dir],
		Ack:     r.seq[other],
		ACK:     true,
		PSH:     true,
		Window:  65535,
	}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		return err
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload(payload)); err != nil {
		return errors.Wrap(err, "serialize packet")
	}
	data := buf.Bytes()
	ci := gopacket.CaptureInfo{Timestamp: r.now(), CaptureLength: len(data), Length: len(data)}
	if err := r.w.WritePacket(ci, data); err != nil {
		return errors.Wrap(err, "write packet")
	}
	r.seq[dir] += uint32(len(payload))
	r.packets++
	return nil
}

// Packets is the number of packets written so far.
func (r *Recorder) Packets() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.packets
}

// Close closes the capture file opened by Create.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = true
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
